//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/teologia/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS studies_fts USING fts5(
			id UNINDEXED,
			title,
			summary,
			body,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsClear(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM studies_fts`); err != nil {
		return fmt.Errorf("index: clear fts: %w", err)
	}
	return nil
}

func ftsInsert(tx *sql.Tx, s models.Study) error {
	_, err := tx.Exec(`INSERT INTO studies_fts (id, title, summary, body, tags) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.Title, s.Summary, s.Body, strings.Join(s.Tags, " "))
	if err != nil {
		return fmt.Errorf("index: insert fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 full-text search and returns matching studies with
// snippets, best match first.
func (db *DB) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT studies_fts.id,
		       s.title,
		       s.topic,
		       snippet(studies_fts, 3, '<b>', '</b>', '...', 32)
		FROM studies_fts
		JOIN studies s ON s.id = studies_fts.id
		WHERE studies_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, matchQuery(query), limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanHits(rows)
}

// matchQuery quotes every term so user input is never parsed as FTS5 syntax.
func matchQuery(q string) string {
	fields := strings.Fields(q)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(fields, " ")
}
