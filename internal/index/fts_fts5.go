//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS bullets_fts USING fts5(
			bullet_id UNINDEXED,
			text,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(tx *sql.Tx, bulletID, text string) error {
	_, _ = tx.Exec(`DELETE FROM bullets_fts WHERE bullet_id = ?`, bulletID)
	_, err := tx.Exec(`INSERT INTO bullets_fts (bullet_id, text) VALUES (?, ?)`, bulletID, text)
	if err != nil {
		return fmt.Errorf("index: insert fts: %w", err)
	}
	return nil
}

// ftsDelete removes a bullet from the search index. Redacted bullets must
// never surface in search results.
func ftsDelete(tx *sql.Tx, bulletID string) {
	_, _ = tx.Exec(`DELETE FROM bullets_fts WHERE bullet_id = ?`, bulletID)
}

func ftsReset(tx *sql.Tx) {
	_, _ = tx.Exec(`DELETE FROM bullets_fts`)
}

// Search performs an FTS5 full-text search over non-redacted bullet text.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(`
		SELECT b.id,
		       b.note_id,
		       COALESCE(n.date, ''),
		       COALESCE(n.title, ''),
		       b.text,
		       b.depth,
		       COALESCE(b.parent_id, ''),
		       snippet(bullets_fts, 1, '<b>', '</b>', '...', 32)
		FROM bullets_fts
		JOIN bullets b ON b.id = bullets_fts.bullet_id
		JOIN notes n ON n.id = b.note_id
		WHERE bullets_fts MATCH ? AND b.redacted = 0
		ORDER BY rank
		LIMIT ?
	`, query, limit)
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
