//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/teologia/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; full-text search uses LIKE over the studies table.
	return nil
}

func ftsClear(_ *sql.Tx) error { return nil }

func ftsInsert(_ *sql.Tx, _ models.Study) error { return nil }

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
// SQLite's LIKE folds ASCII case only.
func (db *DB) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	rows, err := db.conn.Query(`
		SELECT id, title, topic, substr(CASE WHEN summary != '' THEN summary ELSE body END, 1, 200)
		FROM studies
		WHERE title LIKE ?1 ESCAPE '\' OR summary LIKE ?1 ESCAPE '\'
		   OR body LIKE ?1 ESCAPE '\' OR tags LIKE ?1 ESCAPE '\'
		ORDER BY created_at DESC
		LIMIT ?2
	`, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanHits(rows)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
