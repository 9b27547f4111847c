package testsupport

import (
	"context"
	"testing"

	"ferry/internal/config"
	"ferry/internal/store"
)

// MustOpenStore opens a store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewArchive registers a discovered archive for tests using the provided store.
func NewArchive(t testing.TB, st *store.Store, id, displayName string, expectedBytes int64) *store.Archive {
	t.Helper()

	archive, err := st.NewArchive(context.Background(), id, displayName, expectedBytes)
	if err != nil {
		t.Fatalf("store.NewArchive: %v", err)
	}
	return archive
}

// NewItem inserts an extracted media item for tests using the provided store.
func NewItem(t testing.TB, st *store.Store, archiveID, sourcePath, fingerprint string) *store.Item {
	t.Helper()

	item, err := st.InsertItem(context.Background(), archiveID, sourcePath, "", fingerprint)
	if err != nil {
		t.Fatalf("store.InsertItem: %v", err)
	}
	return item
}
