package index

import (
	"encoding/json"
	"fmt"
)

// Rebuild drops every materialized view and replays the whole append log in
// sequence order through the same per-event code path as live writes. The
// log itself is never touched. Used for recovery and as the ground truth for
// replay-equivalence: the result must match what incremental materialization
// produced.
func (db *DB) Rebuild() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{
		`DELETE FROM links`,
		`DELETE FROM annotations`,
		`DELETE FROM bullets`,
		`UPDATE notes SET last_seq = 0`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("index: reset materialized state: %w", err)
		}
	}
	ftsReset(tx)

	rows, err := tx.Query(`SELECT seq, note_id, kind, payload FROM appends ORDER BY seq ASC`)
	if err != nil {
		return fmt.Errorf("index: read log: %w", err)
	}
	defer rows.Close()

	type event struct {
		seq     int64
		noteID  string
		kind    string
		payload json.RawMessage
	}
	var events []event
	for rows.Next() {
		var ev event
		var payload []byte
		if err := rows.Scan(&ev.seq, &ev.noteID, &ev.kind, &payload); err != nil {
			return fmt.Errorf("index: scan event: %w", err)
		}
		ev.payload = json.RawMessage(payload)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("index: read log: %w", err)
	}
	rows.Close()

	for _, ev := range events {
		if err := materializeEvent(tx, ev.seq, ev.noteID, ev.kind, ev.payload); err != nil {
			return fmt.Errorf("index: replay seq %d: %w", ev.seq, err)
		}
		if err := advanceWatermark(tx, ev.noteID, ev.seq); err != nil {
			return err
		}
	}

	return tx.Commit()
}
