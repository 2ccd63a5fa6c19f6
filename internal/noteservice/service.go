// Package noteservice orchestrates validation, the append log, and the
// materialized views behind the API, MCP, and importer surfaces.
package noteservice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/index"
	"github.com/starford/dagaz/internal/models"
	"github.com/starford/dagaz/internal/parser"
)

// Service coordinates write and read operations over the append log.
type Service struct {
	db index.Log
}

// NewService creates a new Service.
func NewService(db index.Log) *Service {
	return &Service{db: db}
}

// NoteBullets is the read model for one note's outline.
type NoteBullets struct {
	NoteID  string          `json:"noteId"`
	Date    string          `json:"date,omitempty"`
	Title   string          `json:"title,omitempty"`
	Bullets []models.Bullet `json:"bullets"`
	LastSeq int64           `json:"lastSeq"`
}

// EnsureNote returns the note identified by date (daily) or title (named),
// creating it lazily on first reference. Exactly one of date and title must
// be given; a malformed date is a validation error and writes nothing.
func (s *Service) EnsureNote(_ context.Context, date, title string) (*models.Note, error) {
	switch {
	case date != "" && title != "":
		return nil, fmt.Errorf("date and title are mutually exclusive: %w", apperr.ErrValidation)
	case date != "":
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", date, apperr.ErrValidation)
		}
		return s.db.EnsureDailyNote(date)
	case title != "":
		return s.db.EnsureNamedNote(title)
	default:
		return nil, fmt.Errorf("date or title is required: %w", apperr.ErrValidation)
	}
}

// AppendBullet validates and appends one bullet to a note's log. clientID
// pairs with the payload's clientSeq as the idempotency key; retries with the
// same pair return the original result instead of appending again.
func (s *Service) AppendBullet(_ context.Context, noteID, clientID string, p models.BulletPayload) (index.AppendResult, error) {
	if err := s.validateBulletPayload(p); err != nil {
		return index.AppendResult{}, err
	}
	return s.db.AppendBullet(noteID, clientID, p)
}

// AppendBulletBatch appends bullets strictly sequentially to preserve
// intra-batch ordering. Each bullet is its own atomic unit; on failure the
// already-appended prefix stays applied and the error is returned.
func (s *Service) AppendBulletBatch(ctx context.Context, noteID, clientID string, payloads []models.BulletPayload) (int, int64, error) {
	var lastSeq int64
	for i, p := range payloads {
		res, err := s.AppendBullet(ctx, noteID, clientID, p)
		if err != nil {
			return i, lastSeq, fmt.Errorf("batch item %d: %w", i, err)
		}
		lastSeq = res.LastSeq
	}
	return len(payloads), lastSeq, nil
}

// AppendAnnotation validates and appends an annotation event.
func (s *Service) AppendAnnotation(_ context.Context, p models.AnnotationPayload) (int64, error) {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.BulletID, validation.Required),
		validation.Field(&p.Type, validation.Required, validation.In(
			models.AnnotationTask, models.AnnotationEntity, models.AnnotationLink,
			models.AnnotationLabel, models.AnnotationPin)),
	)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, apperr.ErrValidation)
	}
	if p.Type == models.AnnotationTask {
		var td models.TaskData
		if err := json.Unmarshal(p.Data, &td); err != nil {
			return 0, fmt.Errorf("invalid task data: %w", apperr.ErrValidation)
		}
		if err := validation.Validate(td.State,
			validation.Required,
			validation.In(models.TaskOpen, models.TaskDoing, models.TaskDone),
		); err != nil {
			return 0, fmt.Errorf("task state %q: %w", td.State, apperr.ErrValidation)
		}
	}
	return s.db.AppendAnnotation(p)
}

// Redact soft-deletes a bullet. One-way and idempotent.
func (s *Service) Redact(_ context.Context, p models.RedactPayload) (int64, error) {
	if p.BulletID == "" {
		return 0, fmt.Errorf("bulletId is required: %w", apperr.ErrValidation)
	}
	return s.db.Redact(p)
}

// GetBullets returns a note's non-redacted bullets with order keys strictly
// greater than sinceSeq, plus the note's watermark for incremental sync.
func (s *Service) GetBullets(_ context.Context, noteID string, sinceSeq int64, includeRedacted bool) (*NoteBullets, error) {
	note, err := s.db.GetNote(noteID)
	if err != nil {
		return nil, err
	}
	bullets, err := s.db.BulletsSince(noteID, sinceSeq, includeRedacted)
	if err != nil {
		return nil, err
	}
	if bullets == nil {
		bullets = []models.Bullet{}
	}
	return &NoteBullets{
		NoteID:  note.ID,
		Date:    note.Date,
		Title:   note.Title,
		Bullets: bullets,
		LastSeq: note.LastSeq,
	}, nil
}

// GetBullet resolves a single bullet by id, redacted or not.
func (s *Service) GetBullet(_ context.Context, bulletID string) (*models.Bullet, error) {
	return s.db.GetBullet(bulletID)
}

// Search runs full-text search over non-redacted bullet text.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Backlinks lists non-redacted bullets whose link set contains the target.
func (s *Service) Backlinks(_ context.Context, targetType, targetValue string) ([]index.BacklinkResult, error) {
	err := validation.Validate(targetType,
		validation.Required,
		validation.In(models.TargetNote, models.TargetEntity, models.TargetURL))
	if err != nil {
		return nil, fmt.Errorf("target type %q: %w", targetType, apperr.ErrValidation)
	}
	return s.db.Backlinks(targetType, targetValue)
}

// Tasks lists every open bullet-task with its current state.
func (s *Service) Tasks(_ context.Context) ([]index.TaskResult, error) {
	return s.db.Tasks()
}

// WikilinkTargets returns distinct wikilink targets for autocomplete.
func (s *Service) WikilinkTargets(_ context.Context, query string) ([]string, error) {
	return s.db.LinkTargets(models.TargetNote, query, 10)
}

// TagTargets returns distinct tag targets for autocomplete.
func (s *Service) TagTargets(_ context.Context, query string) ([]string, error) {
	return s.db.LinkTargets(models.TargetEntity, query, 10)
}

// Rebuild replays the append log from scratch.
func (s *Service) Rebuild(_ context.Context) error {
	return s.db.Rebuild()
}

// validateBulletPayload checks required fields, offset validity of
// client-supplied spans, and parent/depth consistency: a root bullet has
// depth 0, a child sits exactly one level below its parent.
func (s *Service) validateBulletPayload(p models.BulletPayload) error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.BulletID, validation.Required),
		validation.Field(&p.Text, validation.Required),
		validation.Field(&p.Depth, validation.Min(0)),
	)
	if err != nil {
		return fmt.Errorf("%v: %w", err, apperr.ErrValidation)
	}
	if !parser.Valid(p.Text, p.Spans) {
		return fmt.Errorf("span offsets out of range: %w", apperr.ErrValidation)
	}
	if p.ParentID == "" {
		if p.Depth != 0 {
			return fmt.Errorf("root bullet must have depth 0: %w", apperr.ErrValidation)
		}
		return nil
	}
	parent, err := s.db.GetBullet(p.ParentID)
	if err != nil {
		return fmt.Errorf("parent bullet %q not found: %w", p.ParentID, apperr.ErrValidation)
	}
	if p.Depth != parent.Depth+1 {
		return fmt.Errorf("depth %d does not match parent depth %d: %w", p.Depth, parent.Depth, apperr.ErrValidation)
	}
	return nil
}
