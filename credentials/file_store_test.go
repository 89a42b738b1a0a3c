package credentials_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline-go/credentials"
)

const testOrigin = "https://api.ledgerline.test:8443"

func newTestStore(t *testing.T) *credentials.FileStore {
	t.Helper()

	store, err := credentials.NewFileStore(t.TempDir(), testOrigin)
	require.NoError(t, err)
	return store
}

func TestFileStorePairRoundTrip(t *testing.T) {
	store := newTestStore(t)

	loaded, err := store.LoadPair()
	require.NoError(t, err)
	require.Nil(t, loaded)

	pair := credentials.Pair{AccessToken: "access-1", RefreshToken: "refresh-1"}
	require.NoError(t, store.SavePair(pair))

	loaded, err = store.LoadPair()
	require.NoError(t, err)
	require.Equal(t, &pair, loaded)
}

func TestFileStoreEnvelopeSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	store, err := credentials.NewFileStore(dir, testOrigin)
	require.NoError(t, err)

	env := credentials.Envelope{"payload": map[string]any{"email": "ada@example.com"}}
	require.NoError(t, store.SaveEnvelope(env))
	require.NoError(t, store.SavePair(credentials.Pair{AccessToken: "a", RefreshToken: "r"}))

	// A new store over the same directory sees the same state.
	reopened, err := credentials.NewFileStore(dir, testOrigin)
	require.NoError(t, err)

	loadedEnv, err := reopened.LoadEnvelope()
	require.NoError(t, err)
	require.Equal(t, env, loadedEnv)

	loadedPair, err := reopened.LoadPair()
	require.NoError(t, err)
	require.Equal(t, "a", loadedPair.AccessToken)
}

func TestFileStoreOnboardedFlag(t *testing.T) {
	store := newTestStore(t)

	require.False(t, store.Onboarded())
	require.NoError(t, store.SetOnboarded(true))
	require.True(t, store.Onboarded())
}

func TestFileStoreClearRemovesEverything(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SavePair(credentials.Pair{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, store.SaveEnvelope(credentials.Envelope{"k": "v"}))
	require.NoError(t, store.SetOnboarded(true))

	require.NoError(t, store.Clear())

	pair, err := store.LoadPair()
	require.NoError(t, err)
	require.Nil(t, pair)

	env, err := store.LoadEnvelope()
	require.NoError(t, err)
	require.Nil(t, env)
	require.False(t, store.Onboarded())

	// Clearing an already-clear store is not an error.
	require.NoError(t, store.Clear())
}

func TestFileStoreOriginScoping(t *testing.T) {
	dir := t.TempDir()

	first, err := credentials.NewFileStore(dir, "https://api.one.test")
	require.NoError(t, err)
	second, err := credentials.NewFileStore(dir, "https://api.two.test")
	require.NoError(t, err)

	require.NoError(t, first.SavePair(credentials.Pair{AccessToken: "one", RefreshToken: "r1"}))

	pair, err := second.LoadPair()
	require.NoError(t, err)
	require.Nil(t, pair)
}

func TestFileStoreCorruptFileBehavesAsEmpty(t *testing.T) {
	dir := t.TempDir()

	store, err := credentials.NewFileStore(dir, "https://api.one.test")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "api.one.test.json"), []byte("{not json"), 0o600))

	pair, err := store.LoadPair()
	require.NoError(t, err)
	require.Nil(t, pair)
}
