package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/teologia/internal/models"
	"github.com/starford/teologia/internal/storage"
)

// watcherTestEnv sets up a data dir, store, and DB for watcher tests.
func watcherTestEnv(t *testing.T) (*storage.FileStore, *DB) {
	t.Helper()
	store, err := storage.NewFileStore(storage.Options{Path: filepath.Join(t.TempDir(), "dados.json")})
	if err != nil {
		t.Fatal(err)
	}
	return store, testDB(t)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func oneStudy(id string) models.Collection {
	c := models.NewCollection(models.DefaultTopics())
	c.Studies = []models.Study{{ID: id, Title: "estudo " + id, Topic: "Outros", Tags: []string{}}}
	return c
}

func TestReload_SkipsWhenChecksumMatches(t *testing.T) {
	store, db := watcherTestEnv(t)
	sum, err := store.Save(oneStudy("a"))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Sync(oneStudy("a"), sum); err != nil {
		t.Fatal(err)
	}

	calls := 0
	if Reload(db, store, quietLogger(), func(string, string) { calls++ }) {
		t.Error("reload should be skipped for an up-to-date index")
	}
	if calls != 0 {
		t.Errorf("callback fired %d times", calls)
	}
}

func TestReload_SyncsExternalChange(t *testing.T) {
	store, db := watcherTestEnv(t)
	if _, err := store.Save(oneStudy("a")); err != nil {
		t.Fatal(err)
	}

	var kinds []string
	if !Reload(db, store, quietLogger(), func(kind, _ string) { kinds = append(kinds, kind) }) {
		t.Fatal("expected reload")
	}
	n, _ := db.Count()
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	if len(kinds) != 1 || kinds[0] != KindUpdated {
		t.Errorf("kinds = %v", kinds)
	}
}

func TestReload_DeletedFile(t *testing.T) {
	store, db := watcherTestEnv(t)
	sum, _ := store.Save(oneStudy("a"))
	_ = db.Sync(oneStudy("a"), sum)
	_ = os.Remove(store.Path())

	var kinds []string
	Reload(db, store, quietLogger(), func(kind, _ string) { kinds = append(kinds, kind) })
	n, _ := db.Count()
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
	if len(kinds) != 1 || kinds[0] != KindDeleted {
		t.Errorf("kinds = %v", kinds)
	}
}

func TestWatcher_ExternalEditIndexed(t *testing.T) {
	store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go Watch(ctx, db, store, quietLogger(), func(kind, path string) {
		mu.Lock()
		events = append(events, kind)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	content, err := storage.Encode(oneStudy("ext"))
	if err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(store.Path(), content, 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		hits, _ := db.Search("ext", 10)
		return len(hits) == 1
	}, "external edit not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) > 0 && events[0] == KindUpdated
	}, "expected updated callback")
}

func TestWatcher_AtomicSaveIndexed(t *testing.T) {
	store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	if _, err := store.Save(oneStudy("renamed")); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		n, _ := db.Count()
		return n == 1
	}, "save via rename not picked up by watcher")
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	calls := 0
	go Watch(ctx, db, store, quietLogger(), func(string, string) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(filepath.Dir(store.Path()), "outro.json"), []byte("{}"), 0o644)
	time.Sleep(400 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("callback fired %d times for unrelated file", calls)
	}
}
