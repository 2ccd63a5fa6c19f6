package api

import (
	"github.com/starford/dagaz/internal/index"
	"github.com/starford/dagaz/internal/models"
)

// EnsureNoteRequest identifies a note by date (daily) or title (named).
type EnsureNoteRequest struct {
	Date  string `json:"date,omitempty" example:"2025-10-03"`
	Title string `json:"title,omitempty" example:"Projects"`
}

// EnsureNoteResponse is returned after ensuring a note exists.
type EnsureNoteResponse struct {
	NoteID  string `json:"noteId" validate:"required"`
	LastSeq int64  `json:"lastSeq" validate:"required"`
}

// AppendResponse is returned after a successful bullet append (aliased from
// the index layer).
type AppendResponse = index.AppendResult

// BatchAppendResponse wraps a bulk append.
type BatchAppendResponse struct {
	Count   int   `json:"count" validate:"required"`
	LastSeq int64 `json:"lastSeq" validate:"required"`
}

// AnnotationResponse is returned after an annotation append.
type AnnotationResponse struct {
	AnnotationSeq int64 `json:"annotationSeq" validate:"required"`
}

// RedactResponse is returned after a redaction.
type RedactResponse struct {
	BulletID string `json:"bulletId" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// BacklinksResponse wraps backlink results.
type BacklinksResponse struct {
	Results []index.BacklinkResult `json:"results" validate:"required"`
}

// TargetsResponse wraps autocomplete targets.
type TargetsResponse struct {
	Targets []string `json:"targets" validate:"required"`
}

// TasksResponse wraps the task listing.
type TasksResponse struct {
	Tasks []index.TaskResult `json:"tasks" validate:"required"`
}

// BulletPayload is the request body for bullet appends (aliased from the
// domain layer).
type BulletPayload = models.BulletPayload

// AnnotationPayload is the request body for annotation appends.
type AnnotationPayload = models.AnnotationPayload

// RedactPayload is the request body for redactions.
type RedactPayload = models.RedactPayload
