package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/teologia/internal/checksum"
	"github.com/starford/teologia/internal/storage"
)

// Watcher kinds passed to EventCallback.
const (
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

// debounce collapses the burst of events produced by one save.
const debounce = 100 * time.Millisecond

// EventCallback is called after a watcher-driven re-sync.
// kind is one of KindUpdated, KindDeleted.
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on the directory holding the data file
// and re-syncs the index whenever the file changes on disk, until ctx is
// cancelled. Changes whose checksum already matches the index (our own
// saves) are skipped. It calls cb (if non-nil) after each re-sync.
//
// The directory is watched rather than the file because atomic saves
// replace the file through a rename.
func Watch(ctx context.Context, db *DB, store storage.Provider, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	path := store.Path()
	dir, base := filepath.Dir(path), filepath.Base(path)
	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("path", path))

	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			Reload(db, store, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// Reload re-syncs the index from the store unless the file on disk already
// matches the indexed checksum. It reports whether a re-sync happened.
func Reload(db *DB, store storage.Provider, logger *slog.Logger, cb EventCallback) bool {
	path := store.Path()
	onDisk, err := checksum.File(path)
	if err != nil {
		logger.Warn("reload: checksum failed", slog.String("path", path), slog.String("error", err.Error()))
		return false
	}
	indexed, err := db.Checksum()
	if err != nil {
		logger.Warn("reload: index checksum failed", slog.String("error", err.Error()))
		return false
	}
	if onDisk == indexed {
		return false
	}

	c, report, err := store.Load()
	if err != nil {
		logger.Warn("reload: load failed", slog.String("path", path), slog.String("error", err.Error()))
		return false
	}
	if report.State == storage.StateRecovered {
		logger.Warn("reload: library file unreadable, indexing defaults",
			slog.String("path", path),
			slog.String("error", report.Err.Error()))
	}
	if err := db.Sync(c, report.Checksum); err != nil {
		logger.Warn("reload: sync failed", slog.String("error", err.Error()))
		return false
	}

	kind := KindUpdated
	if report.State == storage.StateMissing {
		kind = KindDeleted
	}
	logger.Debug("reload: indexed",
		slog.String("path", path),
		slog.String("op", kind),
		slog.Int("studies", len(c.Studies)))
	if cb != nil {
		cb(kind, path)
	}
	return true
}
