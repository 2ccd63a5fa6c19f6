package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dagaz/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// notify, if non-nil, receives an event name and payload after each
// successful write (wired to the SSE broker).
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, notify func(event string, data any), sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, notify)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes and the append path.
	r.Post("/notes/ensure", h.EnsureNote)
	r.Get("/notes/{noteID}/bullets", h.GetBullets)
	r.Post("/notes/{noteID}/bullets/append", h.AppendBullet)
	r.Post("/notes/{noteID}/bullets/appendBatch", h.AppendBulletBatch)

	// Annotations and redaction.
	r.Post("/annotations/append", h.AppendAnnotation)
	r.Post("/redact", h.Redact)

	// Search and derived views.
	r.Get("/search", h.Search)
	r.Get("/search/backlinks", h.Backlinks)
	r.Get("/search/wikilinks", h.WikilinkTargets)
	r.Get("/search/tags", h.TagTargets)
	r.Get("/tasks", h.Tasks)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
