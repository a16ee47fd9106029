package internal

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/teologia/internal/library"
	"github.com/starford/teologia/internal/parser"
	"github.com/starford/teologia/internal/query"
)

// Import records one study per Markdown file found under paths. Directories
// are walked recursively; files that cannot be read or parsed are logged and
// counted as skipped.
func Import(ctx context.Context, paths []string, opts ...Option) (*library.ImportResult, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	logger := app.newLogger()

	files, err := collectMarkdown(paths)
	if err != nil {
		return nil, err
	}

	rt, err := bootstrap(app.config, logger)
	if err != nil {
		return nil, err
	}
	defer rt.close()

	inputs, failed := readDrafts(files, logger)
	res, err := rt.svc.Import(ctx, inputs)
	if err != nil {
		return nil, err
	}
	res.Skipped += failed
	return res, nil
}

// collectMarkdown expands paths into a sorted list of .md files.
func collectMarkdown(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("import: %w", err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".md") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("import: walk %s: %w", p, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

func readDrafts(files []string, logger *slog.Logger) ([]query.CreateInput, int) {
	inputs := make([]query.CreateInput, 0, len(files))
	failed := 0
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			logger.Warn("import: read failed", slog.String("path", f), slog.String("error", err.Error()))
			failed++
			continue
		}
		draft, err := parser.Parse(data)
		if err != nil {
			logger.Warn("import: parse failed", slog.String("path", f), slog.String("error", err.Error()))
			failed++
			continue
		}
		if strings.TrimSpace(draft.Title) == "" {
			draft.Title = strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		}
		inputs = append(inputs, draft.Input())
	}
	return inputs, failed
}
