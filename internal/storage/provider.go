// Package storage persists the study collection.
package storage

import "github.com/starford/teologia/internal/models"

// LoadState describes where a loaded collection came from.
type LoadState string

const (
	// StateLoaded means the backing file was parsed successfully.
	StateLoaded LoadState = "loaded"
	// StateMissing means there was no backing file; defaults were returned.
	StateMissing LoadState = "missing"
	// StateRecovered means the backing file could not be parsed and was
	// replaced by defaults. Its content is discarded on the next save.
	StateRecovered LoadState = "recovered"
)

// LoadReport accompanies every Load.
type LoadReport struct {
	State LoadState
	// Err is the decode error when State is StateRecovered.
	Err error
	// Checksum of the raw file content, empty when the file is missing.
	Checksum string
	// Applied lists the normalization passes that changed something.
	Applied []string
}

// Provider is the interface for collection persistence.
type Provider interface {
	// Load reads the collection. Malformed content degrades to defaults and
	// is reported through LoadReport, never as an error.
	Load() (models.Collection, LoadReport, error)
	// Save overwrites the backing file with c and returns the checksum of
	// the bytes written.
	Save(c models.Collection) (string, error)
	// Path returns the absolute path of the backing file.
	Path() string
}
