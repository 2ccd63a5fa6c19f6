//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; full-text search uses LIKE fallback on bullets.text.
	return nil
}

func ftsInsert(_ *sql.Tx, _, _ string) error {
	// Text is already stored in the bullets table; nothing extra to do.
	return nil
}

func ftsDelete(_ *sql.Tx, _ string) {}

func ftsReset(_ *sql.Tx) {}

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
// Redacted bullets are filtered at query time.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT b.id,
		       b.note_id,
		       COALESCE(n.date, ''),
		       COALESCE(n.title, ''),
		       b.text,
		       b.depth,
		       COALESCE(b.parent_id, ''),
		       substr(b.text, 1, 200)
		FROM bullets b
		JOIN notes n ON n.id = b.note_id
		WHERE b.redacted = 0 AND b.text LIKE ?
		ORDER BY b.order_seq DESC
		LIMIT ?
	`, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.BulletID, &r.NoteID, &r.Date, &r.Title, &r.Text, &r.Depth, &r.ParentID, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
