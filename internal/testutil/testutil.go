// Package testutil provides shared test helpers for setting up data files and databases.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/starford/teologia/internal/index"
	"github.com/starford/teologia/internal/storage"
)

// TestDB creates a temporary SQLite index that is automatically closed.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "teologia-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a FileStore for a data file that does not exist yet.
func TestStore(t *testing.T) *storage.FileStore {
	t.Helper()
	store, err := storage.NewFileStore(storage.Options{
		Path: filepath.Join(t.TempDir(), "dados_teologia.json"),
	})
	if err != nil {
		t.Fatal(err)
	}
	return store
}
