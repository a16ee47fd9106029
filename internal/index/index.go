package index

import "github.com/starford/teologia/internal/models"

// StudyIndex defines the interface for study indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type StudyIndex interface {
	Sync(c models.Collection, checksum string) error
	Checksum() (string, error)
	Count() (int, error)
	Search(query string, limit int) ([]Hit, error)
	Close() error
}

// Verify *DB satisfies StudyIndex at compile time.
var _ StudyIndex = (*DB)(nil)
