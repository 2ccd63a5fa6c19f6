package index

import (
	"database/sql"
	"errors"
	"fmt"
)

// ImportChecksum returns the recorded checksum for an imported file, or empty
// string when the file has not been imported yet.
func (db *DB) ImportChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM import_files WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: read import checksum: %w", err)
	}
	return cs, nil
}

// SetImportChecksum records the checksum of an imported file so an unchanged
// file is not ingested twice.
func (db *DB) SetImportChecksum(path, checksum string) error {
	_, err := db.conn.Exec(`
		INSERT INTO import_files (path, checksum) VALUES (?, ?)
		ON CONFLICT(path) DO UPDATE SET checksum = excluded.checksum
	`, path, checksum)
	if err != nil {
		return fmt.Errorf("index: set import checksum: %w", err)
	}
	return nil
}
