package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/index"
	"github.com/starford/dagaz/internal/models"
	"github.com/starford/dagaz/internal/noteservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc    *noteservice.Service
	notify func(event string, data any)
}

// NewHandler creates a new Handler. notify, if non-nil, is called after each
// successful write with an event name and payload (wired to the SSE broker).
func NewHandler(svc *noteservice.Service, notify func(event string, data any)) *Handler {
	return &Handler{svc: svc, notify: notify}
}

func (h *Handler) publish(event string, data any) {
	if h.notify != nil {
		h.notify(event, data)
	}
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("conflict"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// EnsureNote handles POST /api/notes/ensure.
//
//	@Summary		Ensure a daily or named note exists
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		EnsureNoteRequest	true	"Note identifier"
//	@Success		200		{object}	EnsureNoteResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/ensure [post]
func (h *Handler) EnsureNote(w http.ResponseWriter, r *http.Request) {
	var req EnsureNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	note, err := h.svc.EnsureNote(r.Context(), req.Date, req.Title)
	if err != nil {
		writeError(w, "ensure note", err)
		return
	}
	writeJSON(w, http.StatusOK, EnsureNoteResponse{NoteID: note.ID, LastSeq: note.LastSeq})
}

// GetBullets handles GET /api/notes/{noteID}/bullets.
//
//	@Summary		Get a note's bullets, optionally since a sequence number
//	@Tags			notes
//	@Produce		json
//	@Param			noteID			path		string	true	"Note id"
//	@Param			sinceSeq		query		int		false	"Return bullets with order key strictly greater"
//	@Param			includeRedacted	query		bool	false	"Include redacted bullets"
//	@Success		200				{object}	noteservice.NoteBullets
//	@Failure		404				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{noteID}/bullets [get]
func (h *Handler) GetBullets(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	q := r.URL.Query()
	sinceSeq, _ := strconv.ParseInt(q.Get("sinceSeq"), 10, 64)
	includeRedacted, _ := strconv.ParseBool(q.Get("includeRedacted"))

	out, err := h.svc.GetBullets(r.Context(), noteID, sinceSeq, includeRedacted)
	if err != nil {
		writeError(w, "get bullets", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// AppendBullet handles POST /api/notes/{noteID}/bullets/append.
//
//	@Summary		Append one bullet to a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			noteID		path		string			true	"Note id"
//	@Param			X-Client-ID	header		string			false	"Client identifier for idempotency"
//	@Param			body		body		BulletPayload	true	"Bullet to append"
//	@Success		200			{object}	AppendResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{noteID}/bullets/append [post]
func (h *Handler) AppendBullet(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	noteID := chi.URLParam(r, "noteID")

	var p models.BulletPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	res, err := h.svc.AppendBullet(r.Context(), noteID, clientID(r), p)
	if err != nil {
		writeError(w, "append bullet", err)
		return
	}
	if !res.Duplicate {
		h.publish("bullet.appended", map[string]any{"noteId": noteID, "bulletId": p.BulletID, "orderSeq": res.OrderSeq})
	}
	writeJSON(w, http.StatusOK, res)
}

// AppendBulletBatch handles POST /api/notes/{noteID}/bullets/appendBatch.
//
//	@Summary		Append bullets in order (bulk import)
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			noteID	path		string			true	"Note id"
//	@Param			body	body		[]BulletPayload	true	"Bullets in append order"
//	@Success		200		{object}	BatchAppendResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{noteID}/bullets/appendBatch [post]
func (h *Handler) AppendBulletBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	noteID := chi.URLParam(r, "noteID")

	var payloads []models.BulletPayload
	if err := json.NewDecoder(r.Body).Decode(&payloads); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	count, lastSeq, err := h.svc.AppendBulletBatch(r.Context(), noteID, clientID(r), payloads)
	if err != nil {
		writeError(w, "append bullet batch", err)
		return
	}
	h.publish("bullet.appended", map[string]any{"noteId": noteID, "count": count})
	writeJSON(w, http.StatusOK, BatchAppendResponse{Count: count, LastSeq: lastSeq})
}

// AppendAnnotation handles POST /api/annotations/append.
//
//	@Summary		Append an annotation to a bullet
//	@Tags			annotations
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AnnotationPayload	true	"Annotation"
//	@Success		200		{object}	AnnotationResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations/append [post]
func (h *Handler) AppendAnnotation(w http.ResponseWriter, r *http.Request) {
	var p models.AnnotationPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	seq, err := h.svc.AppendAnnotation(r.Context(), p)
	if err != nil {
		writeError(w, "append annotation", err)
		return
	}
	h.publish("annotation.appended", map[string]any{"bulletId": p.BulletID, "type": p.Type})
	writeJSON(w, http.StatusOK, AnnotationResponse{AnnotationSeq: seq})
}

// Redact handles POST /api/redact.
//
//	@Summary		Soft-delete a bullet
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RedactPayload	true	"Redaction"
//	@Success		200		{object}	RedactResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/redact [post]
func (h *Handler) Redact(w http.ResponseWriter, r *http.Request) {
	var p models.RedactPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if _, err := h.svc.Redact(r.Context(), p); err != nil {
		writeError(w, "redact", err)
		return
	}
	h.publish("bullet.redacted", map[string]any{"bulletId": p.BulletID})
	writeJSON(w, http.StatusOK, RedactResponse{BulletID: p.BulletID})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across non-redacted bullets
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Backlinks handles GET /api/search/backlinks.
//
//	@Summary		Bullets linking to a target
//	@Tags			search
//	@Produce		json
//	@Param			target	query		string	true	"Target value"
//	@Param			type	query		string	false	"Target type"	Enums(note, entity, url)
//	@Success		200		{object}	BacklinksResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search/backlinks [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'target' is required"))
		return
	}
	targetType := r.URL.Query().Get("type")
	if targetType == "" {
		targetType = models.TargetNote
	}
	results, err := h.svc.Backlinks(r.Context(), targetType, target)
	if err != nil {
		writeError(w, "backlinks", err)
		return
	}
	if results == nil {
		results = []index.BacklinkResult{}
	}
	writeJSON(w, http.StatusOK, BacklinksResponse{Results: results})
}

// WikilinkTargets handles GET /api/search/wikilinks (autocomplete).
//
//	@Summary		Distinct wikilink targets matching a prefix
//	@Tags			search
//	@Produce		json
//	@Param			q	query		string	false	"Filter"
//	@Success		200	{object}	TargetsResponse
//	@Security		BearerAuth
//	@Router			/search/wikilinks [get]
func (h *Handler) WikilinkTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.svc.WikilinkTargets(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, "wikilink targets", err)
		return
	}
	if targets == nil {
		targets = []string{}
	}
	writeJSON(w, http.StatusOK, TargetsResponse{Targets: targets})
}

// TagTargets handles GET /api/search/tags (autocomplete).
//
//	@Summary		Distinct tag targets matching a prefix
//	@Tags			search
//	@Produce		json
//	@Param			q	query		string	false	"Filter"
//	@Success		200	{object}	TargetsResponse
//	@Security		BearerAuth
//	@Router			/search/tags [get]
func (h *Handler) TagTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.svc.TagTargets(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, "tag targets", err)
		return
	}
	if targets == nil {
		targets = []string{}
	}
	writeJSON(w, http.StatusOK, TargetsResponse{Targets: targets})
}

// Tasks handles GET /api/tasks.
//
//	@Summary		Current task state per bullet
//	@Tags			tasks
//	@Produce		json
//	@Success		200	{object}	TasksResponse
//	@Security		BearerAuth
//	@Router			/tasks [get]
func (h *Handler) Tasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.Tasks(r.Context())
	if err != nil {
		writeError(w, "tasks", err)
		return
	}
	if tasks == nil {
		tasks = []index.TaskResult{}
	}
	writeJSON(w, http.StatusOK, TasksResponse{Tasks: tasks})
}
