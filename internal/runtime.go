package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/teologia/internal/index"
	"github.com/starford/teologia/internal/library"
	"github.com/starford/teologia/internal/models"
	"github.com/starford/teologia/internal/query"
	"github.com/starford/teologia/internal/storage"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	store  *storage.FileStore
	db     *index.DB
	svc    *library.Service
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
}

// bootstrap opens the store, the index and the library service, then brings
// the index up to date with the data file.
func bootstrap(cfg *Config, logger *slog.Logger, opts ...library.Option) (*runtime, error) {
	loc, err := cfg.Library.Location()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Library.DataFile), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := storage.NewFileStore(storage.Options{
		Path:          cfg.Library.DataFile,
		DefaultTopics: cfg.Library.Topics(),
	})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	engine := query.NewEngine(query.Config{
		FallbackTopic: cfg.Library.FallbackTopic,
		Stamper: models.Stamper{
			DisplayLayout: cfg.Library.DisplayLayout,
			Location:      loc,
		},
	})

	opts = append([]library.Option{
		library.WithLogger(logger),
		library.WithIndex(db),
	}, opts...)
	svc := library.New(store, engine, opts...)

	index.Reload(db, store, logger, nil)

	return &runtime{cfg: cfg, logger: logger, store: store, db: db, svc: svc}, nil
}

func (rt *runtime) close() {
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("close index failed", slog.String("error", err.Error()))
	}
}

// Topics returns the per-topic study counts.
func Topics(ctx context.Context, opts ...Option) ([]query.TopicCount, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	rt, err := bootstrap(app.config, app.newLogger())
	if err != nil {
		return nil, err
	}
	defer rt.close()
	return rt.svc.Topics(ctx)
}
