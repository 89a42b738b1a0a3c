package storefake

import (
	"sync"

	"github.com/ledgerline/ledgerline-go/credentials"
)

var _ credentials.Store = (*FakeStore)(nil)

// FakeStore is an in-memory credentials.Store for tests.
type FakeStore struct {
	pair      *credentials.Pair
	envelope  credentials.Envelope
	onboarded bool
	lock      sync.RWMutex
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

func (fs *FakeStore) SavePair(pair credentials.Pair) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.pair = &pair
	return nil
}

func (fs *FakeStore) LoadPair() (*credentials.Pair, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	if fs.pair == nil {
		return nil, nil
	}
	pair := *fs.pair
	return &pair, nil
}

func (fs *FakeStore) SaveEnvelope(env credentials.Envelope) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.envelope = env
	return nil
}

func (fs *FakeStore) LoadEnvelope() (credentials.Envelope, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	return fs.envelope, nil
}

func (fs *FakeStore) SetOnboarded(done bool) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.onboarded = done
	return nil
}

func (fs *FakeStore) Onboarded() bool {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	return fs.onboarded
}

func (fs *FakeStore) Clear() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.pair = nil
	fs.envelope = nil
	fs.onboarded = false
	return nil
}
