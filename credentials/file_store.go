package credentials

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// FileStore keeps credentials in a single JSON file under a directory,
// one file per API origin so credentials for different backends never mix.
type FileStore struct {
	path string
	lock sync.Mutex
}

var _ Store = (*FileStore)(nil)

// fileState is the on-disk shape of a FileStore.
type fileState struct {
	AccessToken  string   `json:"accessToken,omitempty"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	Envelope     Envelope `json:"envelope,omitempty"`
	Onboarded    bool     `json:"onboarded,omitempty"`
}

// NewFileStore creates a store rooted at dir for the given origin
// (e.g. "https://api.ledgerline.io"). The directory is created if missing.
func NewFileStore(dir, origin string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] creating credentials dir")
	}
	return &FileStore{path: filepath.Join(dir, originFilename(origin))}, nil
}

// originFilename flattens an origin URL into a safe filename.
func originFilename(origin string) string {
	name := origin
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		name = u.Host
	}
	name = strings.NewReplacer(":", "_", "/", "_").Replace(name)
	return name + ".json"
}

func (fs *FileStore) SavePair(pair Pair) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	state := fs.read()
	state.AccessToken = pair.AccessToken
	state.RefreshToken = pair.RefreshToken
	return fs.write(state)
}

func (fs *FileStore) LoadPair() (*Pair, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	state := fs.read()
	if state.AccessToken == "" && state.RefreshToken == "" {
		return nil, nil
	}
	return &Pair{AccessToken: state.AccessToken, RefreshToken: state.RefreshToken}, nil
}

func (fs *FileStore) SaveEnvelope(env Envelope) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	state := fs.read()
	state.Envelope = env
	return fs.write(state)
}

func (fs *FileStore) LoadEnvelope() (Envelope, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	return fs.read().Envelope, nil
}

func (fs *FileStore) SetOnboarded(done bool) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	state := fs.read()
	state.Onboarded = done
	return fs.write(state)
}

func (fs *FileStore) Onboarded() bool {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	return fs.read().Onboarded
}

// Clear removes every stored key at once. A missing file is not an error.
func (fs *FileStore) Clear() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if err := os.Remove(fs.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[FileStore.Clear] removing credentials file")
	}
	return nil
}

// read loads the current state, returning an empty state on any read or
// decode problem so a corrupt file behaves like an absent one.
func (fs *FileStore) read() *fileState {
	state := &fileState{}
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return state
	}
	if err := json.Unmarshal(data, state); err != nil {
		return &fileState{}
	}
	return state
}

func (fs *FileStore) write(state *fileState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "[FileStore.write] marshalling state")
	}
	if err := os.WriteFile(fs.path, data, 0o600); err != nil {
		return errors.Wrap(err, "[FileStore.write] writing credentials file")
	}
	return nil
}
