package index

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/models"
)

// EnsureDailyNote returns the note for the given date (YYYY-MM-DD), creating
// it if absent. Exactly one note exists per date; a concurrent create loses
// to the date uniqueness constraint and reads the winner's row.
func (db *DB) EnsureDailyNote(date string) (*models.Note, error) {
	_, err := db.conn.Exec(`
		INSERT INTO notes (id, kind, date) VALUES (?, 'daily', ?)
		ON CONFLICT(date) DO NOTHING
	`, uuid.NewString(), date)
	if err != nil {
		return nil, fmt.Errorf("index: ensure daily note: %w", err)
	}
	return db.noteBy("date", date)
}

// EnsureNamedNote returns the note with the given title, creating it if
// absent. Exactly one note exists per title.
func (db *DB) EnsureNamedNote(title string) (*models.Note, error) {
	_, err := db.conn.Exec(`
		INSERT INTO notes (id, kind, title) VALUES (?, 'named', ?)
		ON CONFLICT(title) DO NOTHING
	`, uuid.NewString(), title)
	if err != nil {
		return nil, fmt.Errorf("index: ensure named note: %w", err)
	}
	return db.noteBy("title", title)
}

// GetNote returns a note by id.
func (db *DB) GetNote(noteID string) (*models.Note, error) {
	return db.noteBy("id", noteID)
}

func (db *DB) noteBy(column, value string) (*models.Note, error) {
	row := db.conn.QueryRow(`
		SELECT id, kind, COALESCE(date, ''), COALESCE(title, ''), last_seq, created_at
		FROM notes WHERE `+column+` = ?
	`, value)

	var n models.Note
	err := row.Scan(&n.ID, &n.Kind, &n.Date, &n.Title, &n.LastSeq, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: note %s=%q: %w", column, value, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	return &n, nil
}
