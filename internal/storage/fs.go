package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/starford/teologia/internal/checksum"
	"github.com/starford/teologia/internal/models"
)

// Options configures a FileStore.
type Options struct {
	// Path of the JSON file. Parent directories are created on save.
	Path string
	// DefaultTopics are always present in a loaded collection. When empty
	// models.DefaultTopics is used.
	DefaultTopics models.TopicSet
}

// FileStore implements Provider backed by a single JSON file.
type FileStore struct {
	path     string // absolute
	defaults models.TopicSet
}

var _ Provider = (*FileStore)(nil)

// NewFileStore creates a store for the file at opts.Path. The file does not
// need to exist.
func NewFileStore(opts Options) (*FileStore, error) {
	if opts.Path == "" {
		return nil, errors.New("storage: path is required")
	}
	abs, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve path: %w", err)
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return nil, fmt.Errorf("storage: path is a directory: %s", abs)
	}
	defaults := opts.DefaultTopics
	if len(defaults) == 0 {
		defaults = models.DefaultTopics()
	}
	return &FileStore{path: abs, defaults: models.TopicSet(nil).WithDefaults(defaults)}, nil
}

// Path returns the absolute path of the backing file.
func (f *FileStore) Path() string { return f.path }

// Defaults returns a copy of the default topic list.
func (f *FileStore) Defaults() models.TopicSet { return f.defaults.Clone() }

// document mirrors the on-disk layout; pointer fields distinguish absent keys.
type document struct {
	Topics  *models.TopicSet `json:"temas"`
	Studies []models.Study   `json:"estudos"`
}

// Load reads and reconciles the collection.
func (f *FileStore) Load() (models.Collection, LoadReport, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.NewCollection(f.defaults), LoadReport{State: StateMissing}, nil
		}
		return models.Collection{}, LoadReport{}, fmt.Errorf("storage: read %s: %w", f.path, err)
	}

	report := LoadReport{State: StateLoaded, Checksum: checksum.Sum(data)}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		report.State = StateRecovered
		report.Err = err
		return models.NewCollection(f.defaults), report, nil
	}

	c := models.Collection{Topics: f.defaults.Clone(), Studies: doc.Studies}
	if doc.Topics != nil {
		c.Topics = *doc.Topics
	}
	if c.Studies == nil {
		c.Studies = []models.Study{}
	}

	report.Applied = normalize(&c)
	c.Topics = c.Topics.WithDefaults(f.defaults)

	return c, report, nil
}

// Save encodes c and atomically replaces the backing file:
// tmp file → fsync → rename.
func (f *FileStore) Save(c models.Collection) (string, error) {
	content, err := Encode(c)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".teologia-tmp-*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return "", fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return "", fmt.Errorf("storage: chmod: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return "", fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return checksum.Sum(content), nil
}

// Encode renders c in the persisted layout: two-space indentation, literal
// non-ASCII and HTML characters, trailing newline.
func Encode(c models.Collection) ([]byte, error) {
	out := models.Collection{Topics: c.Topics, Studies: make([]models.Study, len(c.Studies))}
	if out.Topics == nil {
		out.Topics = models.TopicSet{}
	}
	copy(out.Studies, c.Studies)
	for i := range out.Studies {
		if out.Studies[i].Tags == nil {
			out.Studies[i].Tags = []string{}
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("storage: encode: %w", err)
	}
	return buf.Bytes(), nil
}
