package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/teologia/internal/models"
)

const checksumKey = "checksum"

// Hit represents one search hit.
type Hit struct {
	ID      string `json:"id"`
	Title   string `json:"titulo"`
	Topic   string `json:"tema"`
	Snippet string `json:"trecho"`
}

// Sync replaces every indexed study with the studies of c and records the
// checksum of the file they were read from, all in one transaction.
func (db *DB) Sync(c models.Collection, checksum string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM studies`); err != nil {
		return fmt.Errorf("index: clear studies: %w", err)
	}
	if err := ftsClear(tx); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO studies (id, title, topic, summary, body, link, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("index: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range c.Studies {
		tags := s.Tags
		if tags == nil {
			tags = []string{}
		}
		tagsJSON, _ := json.Marshal(tags)
		if _, err := stmt.Exec(s.ID, s.Title, s.Topic, s.Summary, s.Body, s.Link, string(tagsJSON), s.CreatedAt); err != nil {
			return fmt.Errorf("index: insert study %s: %w", s.ID, err)
		}
		if err := ftsInsert(tx, s); err != nil {
			return err
		}
	}

	_, err = tx.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, checksumKey, checksum)
	if err != nil {
		return fmt.Errorf("index: record checksum: %w", err)
	}

	return tx.Commit()
}

// Checksum returns the checksum recorded by the last Sync, or an empty
// string if the index has never been synced.
func (db *DB) Checksum() (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT value FROM meta WHERE key = ?`, checksumKey).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: checksum: %w", err)
	}
	return cs, nil
}

// Count returns the number of indexed studies.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM studies`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

func scanHits(rows *sql.Rows) ([]Hit, error) {
	defer rows.Close()
	out := []Hit{}
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.Title, &h.Topic, &h.Snippet); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
