package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/models"
)

// SearchResult is one full-text search hit.
type SearchResult struct {
	BulletID string `json:"bulletId"`
	NoteID   string `json:"noteId"`
	Date     string `json:"date,omitempty"`
	Title    string `json:"title,omitempty"`
	Text     string `json:"text"`
	Depth    int    `json:"depth"`
	ParentID string `json:"parentId,omitempty"`
	Snippet  string `json:"snippet"`
}

// BacklinkResult is one bullet whose link set contains a given target.
type BacklinkResult struct {
	BulletID string `json:"bulletId"`
	NoteID   string `json:"noteId"`
	Date     string `json:"date,omitempty"`
	Title    string `json:"title,omitempty"`
	Text     string `json:"text"`
	Depth    int    `json:"depth"`
}

// TaskResult is one bullet with its current task state.
type TaskResult struct {
	BulletID string `json:"bulletId"`
	NoteID   string `json:"noteId"`
	Date     string `json:"date,omitempty"`
	Title    string `json:"title,omitempty"`
	Text     string `json:"text"`
	State    string `json:"state"`
	Depth    int    `json:"depth"`
}

// BulletsSince returns a note's bullets ordered by order_seq ascending,
// filtered to order keys strictly greater than sinceSeq (pass 0 for all).
// Redacted bullets are excluded unless includeRedacted is set.
func (db *DB) BulletsSince(noteID string, sinceSeq int64, includeRedacted bool) ([]models.Bullet, error) {
	q := `
		SELECT id, note_id, COALESCE(parent_id, ''), depth, order_seq, text, spans, redacted, created_at
		FROM bullets
		WHERE note_id = ? AND order_seq > ?`
	if !includeRedacted {
		q += ` AND redacted = 0`
	}
	q += ` ORDER BY order_seq ASC`

	rows, err := db.conn.Query(q, noteID, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("index: bullets since: %w", err)
	}
	defer rows.Close()

	var out []models.Bullet
	for rows.Next() {
		b, err := scanBullet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// GetBullet returns a bullet by id, redacted or not. A redacted bullet stays
// resolvable so children's parent chains remain intact.
func (db *DB) GetBullet(bulletID string) (*models.Bullet, error) {
	row := db.conn.QueryRow(`
		SELECT id, note_id, COALESCE(parent_id, ''), depth, order_seq, text, spans, redacted, created_at
		FROM bullets WHERE id = ?
	`, bulletID)
	b, err := scanBullet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: bullet %q: %w", bulletID, apperr.ErrNotFound)
	}
	return b, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBullet(row rowScanner) (*models.Bullet, error) {
	var b models.Bullet
	var spansJSON string
	var redacted int
	err := row.Scan(&b.ID, &b.NoteID, &b.ParentID, &b.Depth, &b.OrderSeq, &b.Text, &spansJSON, &redacted, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("index: scan bullet: %w", err)
	}
	b.Redacted = redacted != 0
	if err := json.Unmarshal([]byte(spansJSON), &b.Spans); err != nil {
		return nil, fmt.Errorf("index: decode spans: %w", err)
	}
	return &b, nil
}

// Backlinks returns every non-redacted bullet whose link set contains the
// given (targetType, targetValue) pair, newest first.
func (db *DB) Backlinks(targetType, targetValue string) ([]BacklinkResult, error) {
	rows, err := db.conn.Query(`
		SELECT b.id, b.note_id, COALESCE(n.date, ''), COALESCE(n.title, ''), b.text, b.depth
		FROM links l
		JOIN bullets b ON b.id = l.bullet_id
		JOIN notes n ON n.id = b.note_id
		WHERE l.target_type = ? AND l.target_value = ? AND b.redacted = 0
		ORDER BY b.order_seq DESC
	`, targetType, targetValue)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []BacklinkResult
	for rows.Next() {
		var r BacklinkResult
		if err := rows.Scan(&r.BulletID, &r.NoteID, &r.Date, &r.Title, &r.Text, &r.Depth); err != nil {
			return nil, fmt.Errorf("index: scan backlink: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Tasks returns one entry per non-redacted bullet that has at least one task
// annotation, using the most recent task annotation as current state.
// Creation order is the annotation id: state transitions append rows, and the
// greatest id per bullet wins.
func (db *DB) Tasks() ([]TaskResult, error) {
	rows, err := db.conn.Query(`
		SELECT b.id, b.note_id, COALESCE(n.date, ''), COALESCE(n.title, ''), b.text, b.depth, a.data
		FROM annotations a
		JOIN (
			SELECT bullet_id, MAX(id) AS latest_id
			FROM annotations
			WHERE type = 'task'
			GROUP BY bullet_id
		) latest ON latest.latest_id = a.id
		JOIN bullets b ON b.id = a.bullet_id
		JOIN notes n ON n.id = b.note_id
		WHERE b.redacted = 0
		ORDER BY b.order_seq DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("index: tasks: %w", err)
	}
	defer rows.Close()

	var out []TaskResult
	for rows.Next() {
		var r TaskResult
		var data string
		if err := rows.Scan(&r.BulletID, &r.NoteID, &r.Date, &r.Title, &r.Text, &r.Depth, &data); err != nil {
			return nil, fmt.Errorf("index: scan task: %w", err)
		}
		var td models.TaskData
		if err := json.Unmarshal([]byte(data), &td); err != nil || td.State == "" {
			td.State = models.TaskOpen
		}
		r.State = td.State
		out = append(out, r)
	}
	return out, rows.Err()
}

// LinkTargets returns distinct target values of the given type matching the
// query (case-insensitive contains), for wikilink and tag autocomplete.
func (db *DB) LinkTargets(targetType, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.conn.Query(`
		SELECT DISTINCT target_value FROM links
		WHERE target_type = ? AND target_value LIKE '%' || ? || '%' COLLATE NOCASE
		ORDER BY target_value
		LIMIT ?
	`, targetType, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: link targets: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
