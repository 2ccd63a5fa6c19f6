// Package models defines the domain types for Dagaz.
package models

import (
	"encoding/json"
	"time"
)

// Note kinds.
const (
	NoteKindDaily = "daily"
	NoteKindNamed = "named"
)

// Append event kinds.
const (
	EventKindBullet     = "bullet"
	EventKindAnnotation = "annotation"
	EventKindRedact     = "redact"
)

// Span types.
const (
	SpanWikilink = "wikilink"
	SpanTag      = "tag"
	SpanURL      = "url"
	SpanMention  = "mention"
)

// Link target types. Wikilinks resolve to notes, tags to entities.
const (
	TargetNote   = "note"
	TargetEntity = "entity"
	TargetURL    = "url"
)

// Annotation types.
const (
	AnnotationTask   = "task"
	AnnotationEntity = "entity"
	AnnotationLink   = "link"
	AnnotationLabel  = "label"
	AnnotationPin    = "pin"
)

// Task states carried in a task annotation's data.
const (
	TaskOpen  = "open"
	TaskDoing = "doing"
	TaskDone  = "done"
)

// Note is a container for bullets, identified by either a calendar date
// (daily) or a title (named). LastSeq is the highest log sequence number
// fully materialized for this note.
type Note struct {
	ID        string    `json:"noteId"`
	Kind      string    `json:"kind"`
	Date      string    `json:"date,omitempty"` // YYYY-MM-DD, daily notes only
	Title     string    `json:"title,omitempty"`
	LastSeq   int64     `json:"lastSeq"`
	CreatedAt time.Time `json:"createdAt"`
}

// AppendEvent is one immutable entry in the append log. Seq is globally
// unique and strictly increasing across all notes.
type AppendEvent struct {
	Seq       int64           `json:"seq"`
	NoteID    string          `json:"noteId"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Span is a typed, offset-located substring of bullet text. Offsets are byte
// offsets into the text, half-open [Start, End).
type Span struct {
	Type   string `json:"type"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Target string `json:"target,omitempty"`
}

// Bullet is one node in a note's outline tree. The id is caller-generated so
// clients can reference a bullet before the append is acknowledged. OrderSeq
// is the log sequence number of the bullet's append event and defines the
// stable ordering within a note. Text is immutable; only Redacted may flip
// (one-way) via a redact event.
type Bullet struct {
	ID        string    `json:"bulletId"`
	NoteID    string    `json:"noteId"`
	ParentID  string    `json:"parentId,omitempty"`
	Depth     int       `json:"depth"`
	OrderSeq  int64     `json:"orderSeq"`
	Text      string    `json:"text"`
	Spans     []Span    `json:"spans"`
	Redacted  bool      `json:"redacted"`
	CreatedAt time.Time `json:"createdAt"`
}

// Link is a derived index row projecting one span target of a bullet.
type Link struct {
	BulletID    string `json:"bulletId"`
	TargetType  string `json:"targetType"`
	TargetValue string `json:"targetValue"`
}

// Annotation is an append-only fact about a bullet. State transitions are new
// annotations, not mutations; the current state for a (bullet, type) pair is
// the most recently created annotation.
type Annotation struct {
	ID        int64           `json:"annotationId"`
	BulletID  string          `json:"bulletId"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
}

// BulletPayload is the kind-specific payload of a bullet append event.
type BulletPayload struct {
	BulletID  string `json:"bulletId"`
	ParentID  string `json:"parentId,omitempty"`
	Depth     int    `json:"depth"`
	Text      string `json:"text"`
	Spans     []Span `json:"spans,omitempty"`
	ClientSeq *int64 `json:"clientSeq,omitempty"`
}

// AnnotationPayload is the payload of an annotation append event.
type AnnotationPayload struct {
	BulletID string          `json:"bulletId"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
}

// RedactPayload is the payload of a redact event.
type RedactPayload struct {
	BulletID string `json:"bulletId"`
	Reason   string `json:"reason,omitempty"`
}

// TaskData is the data blob of a task annotation.
type TaskData struct {
	State string `json:"state"`
}
