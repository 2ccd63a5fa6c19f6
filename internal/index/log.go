package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/models"
	"github.com/starford/dagaz/internal/parser"
)

// AppendResult is the outcome of a bullet append.
type AppendResult struct {
	OrderSeq  int64 `json:"orderSeq"`
	LastSeq   int64 `json:"lastSeq"`
	Duplicate bool  `json:"-"`
}

// AppendBullet runs the full write path for one bullet as a single
// transactional unit: idempotency check-and-reserve, log append (allocating
// the next global sequence number), and materialization of the bullet, its
// derived links, and its FTS entry. Either everything is visible afterwards
// or nothing is.
//
// When the payload carries a clientSeq, a previously seen (clientID,
// clientSeq) pair short-circuits: no new log entry is written and the
// original bullet's result is returned with Duplicate set. A concurrent race
// on the same pair is resolved by the idempotency_keys primary key; the loser
// observes the winner's reservation.
func (db *DB) AppendBullet(noteID, clientID string, p models.BulletPayload) (AppendResult, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return AppendResult{}, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := noteExists(tx, noteID); err != nil {
		return AppendResult{}, err
	}

	if p.ClientSeq != nil {
		res, err := tx.Exec(`
			INSERT INTO idempotency_keys (client_id, client_seq, bullet_id)
			VALUES (?, ?, ?)
			ON CONFLICT(client_id, client_seq) DO NOTHING
		`, clientID, *p.ClientSeq, p.BulletID)
		if err != nil {
			return AppendResult{}, fmt.Errorf("index: reserve idempotency key: %w", err)
		}
		affected, _ := res.RowsAffected()
		if affected == 0 {
			// Duplicate retry: return the already-materialized result.
			var existingID string
			if err := tx.QueryRow(`
				SELECT bullet_id FROM idempotency_keys WHERE client_id = ? AND client_seq = ?
			`, clientID, *p.ClientSeq).Scan(&existingID); err != nil {
				return AppendResult{}, fmt.Errorf("index: read idempotency key: %w", err)
			}
			var orderSeq int64
			if err := tx.QueryRow(`SELECT order_seq FROM bullets WHERE id = ?`, existingID).Scan(&orderSeq); err != nil {
				return AppendResult{}, fmt.Errorf("index: read duplicate bullet: %w", err)
			}
			if err := tx.Commit(); err != nil {
				return AppendResult{}, fmt.Errorf("index: commit: %w", err)
			}
			return AppendResult{OrderSeq: orderSeq, LastSeq: orderSeq, Duplicate: true}, nil
		}
	}

	seq, err := appendEvent(tx, noteID, models.EventKindBullet, p)
	if err != nil {
		return AppendResult{}, err
	}
	payload, _ := json.Marshal(p)
	if err := materializeEvent(tx, seq, noteID, models.EventKindBullet, payload); err != nil {
		return AppendResult{}, err
	}
	if err := advanceWatermark(tx, noteID, seq); err != nil {
		return AppendResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return AppendResult{}, fmt.Errorf("index: commit: %w", err)
	}
	return AppendResult{OrderSeq: seq, LastSeq: seq}, nil
}

// AppendAnnotation appends an annotation event and materializes it. Repeated
// states are appended as history, never merged. Returns the event's sequence
// number. Fails with apperr.ErrNotFound when the bullet does not exist.
func (db *DB) AppendAnnotation(p models.AnnotationPayload) (int64, error) {
	return db.appendForBullet(p.BulletID, models.EventKindAnnotation, p)
}

// Redact appends a redact event and flips the bullet's redacted flag.
// Redacting an already-redacted bullet is a no-op, not an error. The bullet
// row is retained so children and links are not orphaned.
func (db *DB) Redact(p models.RedactPayload) (int64, error) {
	return db.appendForBullet(p.BulletID, models.EventKindRedact, p)
}

// appendForBullet is the shared transactional write path for events that
// reference an existing bullet: the owning note is resolved from the bullet,
// the event is appended, materialized, and the watermark advanced.
func (db *DB) appendForBullet(bulletID, kind string, p any) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var noteID string
	err = tx.QueryRow(`SELECT note_id FROM bullets WHERE id = ?`, bulletID).Scan(&noteID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("index: bullet %q: %w", bulletID, apperr.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("index: resolve bullet: %w", err)
	}

	seq, err := appendEvent(tx, noteID, kind, p)
	if err != nil {
		return 0, err
	}
	payload, _ := json.Marshal(p)
	if err := materializeEvent(tx, seq, noteID, kind, payload); err != nil {
		return 0, err
	}
	if err := advanceWatermark(tx, noteID, seq); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("index: commit: %w", err)
	}
	return seq, nil
}

func noteExists(tx *sql.Tx, noteID string) error {
	var one int
	err := tx.QueryRow(`SELECT 1 FROM notes WHERE id = ?`, noteID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("index: note %q: %w", noteID, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("index: check note: %w", err)
	}
	return nil
}

// appendEvent inserts one immutable log row and returns the allocated
// sequence number. The log is write-once, read-many: no update or delete
// path exists anywhere in this package.
func appendEvent(tx *sql.Tx, noteID, kind string, payload any) (int64, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("index: marshal payload: %w", err)
	}
	res, err := tx.Exec(`INSERT INTO appends (note_id, kind, payload) VALUES (?, ?, ?)`,
		noteID, kind, string(raw))
	if err != nil {
		return 0, fmt.Errorf("index: append event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("index: read seq: %w", err)
	}
	return seq, nil
}

// advanceWatermark moves the note's last_seq forward, never backward.
func advanceWatermark(tx *sql.Tx, noteID string, seq int64) error {
	_, err := tx.Exec(`UPDATE notes SET last_seq = MAX(last_seq, ?) WHERE id = ?`, seq, noteID)
	if err != nil {
		return fmt.Errorf("index: advance watermark: %w", err)
	}
	return nil
}

// materializeEvent applies one log event to the materialized views. It is
// the single code path shared by live writes and Rebuild, so incremental and
// from-scratch materialization cannot diverge.
func materializeEvent(tx *sql.Tx, seq int64, noteID, kind string, payload []byte) error {
	switch kind {
	case models.EventKindBullet:
		var p models.BulletPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("index: decode bullet payload: %w", err)
		}
		return materializeBullet(tx, seq, noteID, p)
	case models.EventKindAnnotation:
		var p models.AnnotationPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("index: decode annotation payload: %w", err)
		}
		return materializeAnnotation(tx, p)
	case models.EventKindRedact:
		var p models.RedactPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("index: decode redact payload: %w", err)
		}
		return materializeRedact(tx, p)
	default:
		return fmt.Errorf("index: unknown event kind %q", kind)
	}
}

// materializeBullet inserts the bullet row and every link derivable from its
// spans. Spans are taken from the payload when the client supplied them and
// extracted from the text otherwise. The insert is keyed on the
// caller-generated bullet id: re-processing the same event is treated as
// already-applied, not an error, and leaves the original row (and its links)
// untouched.
func materializeBullet(tx *sql.Tx, seq int64, noteID string, p models.BulletPayload) error {
	spans := p.Spans
	if len(spans) == 0 {
		spans = parser.Extract(p.Text)
	}
	spansJSON, _ := json.Marshal(spans)

	res, err := tx.Exec(`
		INSERT INTO bullets (id, note_id, parent_id, depth, order_seq, text, spans)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, p.BulletID, noteID, nullable(p.ParentID), p.Depth, seq, p.Text, string(spansJSON))
	if err != nil {
		return fmt.Errorf("index: insert bullet: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		// Already applied (crash replay or duplicate event): links and the
		// FTS entry exist from the first application.
		return nil
	}

	stmt, err := tx.Prepare(`INSERT INTO links (bullet_id, target_type, target_value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare link insert: %w", err)
	}
	defer stmt.Close()
	for _, s := range spans {
		targetType, ok := linkTarget(s.Type)
		if !ok || s.Target == "" {
			continue
		}
		if _, err := stmt.Exec(p.BulletID, targetType, s.Target); err != nil {
			return fmt.Errorf("index: insert link: %w", err)
		}
	}

	return ftsInsert(tx, p.BulletID, p.Text)
}

// linkTarget maps a span type to its link target type. Mentions and unknown
// span types derive no link rows.
func linkTarget(spanType string) (string, bool) {
	switch spanType {
	case models.SpanWikilink:
		return models.TargetNote, true
	case models.SpanTag:
		return models.TargetEntity, true
	case models.SpanURL:
		return models.TargetURL, true
	default:
		return "", false
	}
}

func materializeAnnotation(tx *sql.Tx, p models.AnnotationPayload) error {
	data := p.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	_, err := tx.Exec(`INSERT INTO annotations (bullet_id, type, data) VALUES (?, ?, ?)`,
		p.BulletID, p.Type, string(data))
	if err != nil {
		return fmt.Errorf("index: insert annotation: %w", err)
	}
	return nil
}

func materializeRedact(tx *sql.Tx, p models.RedactPayload) error {
	if _, err := tx.Exec(`UPDATE bullets SET redacted = 1 WHERE id = ?`, p.BulletID); err != nil {
		return fmt.Errorf("index: redact bullet: %w", err)
	}
	ftsDelete(tx, p.BulletID)
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
