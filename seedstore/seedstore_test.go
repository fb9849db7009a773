package seedstore_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidbarsky/simulation/seedstore"
)

func openStore(t *testing.T) *seedstore.Store {
	t.Helper()
	store, err := seedstore.Open(filepath.Join(t.TempDir(), "seeds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPutAndFailures(t *testing.T) {
	store := openStore(t)

	require.NoError(t, store.Put("TestFoo", seedstore.Record{
		Seed:      42,
		Checksum:  0xdeadbeef,
		Err:       "task panicked: boom",
		LogOutput: []byte(`{"msg":"hello"}` + "\n"),
	}))
	require.NoError(t, store.Put("TestFoo", seedstore.Record{Seed: 7, Err: "stalled"}))

	failures, err := store.Failures("TestFoo")
	require.NoError(t, err)
	require.Len(t, failures, 2)

	assert.Equal(t, int64(42), failures[0].Seed)
	assert.Equal(t, "TestFoo", failures[0].Test)
	assert.NotEmpty(t, failures[0].ID)
	assert.False(t, failures[0].When.IsZero())
	assert.Equal(t, uint64(0xdeadbeef), failures[0].Checksum)
	assert.Equal(t, int64(7), failures[1].Seed)
}

func TestTests(t *testing.T) {
	store := openStore(t)

	require.NoError(t, store.Put("TestFoo", seedstore.Record{Seed: 1}))
	require.NoError(t, store.Put("TestBar", seedstore.Record{Seed: 2}))

	tests, err := store.Tests()
	require.NoError(t, err)
	assert.Equal(t, []string{"TestBar", "TestFoo"}, tests)
}

func TestGet(t *testing.T) {
	store := openStore(t)

	require.NoError(t, store.Put("TestFoo", seedstore.Record{Seed: 42, Err: "boom"}))
	failures, err := store.Failures("TestFoo")
	require.NoError(t, err)
	require.Len(t, failures, 1)

	rec, err := store.Get("TestFoo", failures[0].ID)
	require.NoError(t, err)
	assert.Equal(t, failures[0], rec)

	_, err = store.Get("TestFoo", "nope")
	assert.Error(t, err)
	_, err = store.Get("TestMissing", "nope")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	store := openStore(t)

	require.NoError(t, store.Put("TestFoo", seedstore.Record{Seed: 1}))
	require.NoError(t, store.Delete("TestFoo"))

	failures, err := store.Failures("TestFoo")
	require.NoError(t, err)
	assert.Empty(t, failures)

	// deleting an unknown test is not an error
	require.NoError(t, store.Delete("TestMissing"))
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.db")

	store, err := seedstore.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Put("TestFoo", seedstore.Record{Seed: 42}))
	require.NoError(t, store.Close())

	store, err = seedstore.Open(path)
	require.NoError(t, err)
	defer store.Close()

	failures, err := store.Failures("TestFoo")
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, int64(42), failures[0].Seed)
}
