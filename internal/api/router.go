package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/sse"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// broker, if non-nil, serves the per-user event stream at GET /events.
func NewRouter(h *Handler, authEnabled bool, token string, broker *sse.Broker) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Assistant.
	r.Post("/assistant/message", h.AssistantMessage)
	r.Post("/assistant/reset", h.ResetSession)

	// Workspace reads plus the few direct mutations the UI needs.
	r.Get("/pages", h.ListPages)
	r.Post("/pages", h.CreatePage)
	r.Get("/pages/{pageID}/sections", h.ListSections)
	r.Get("/notes", h.QueryNotes)
	r.Get("/notes/{noteID}", h.GetNote)
	r.Get("/tags", h.ListTags)

	// Trash.
	r.Get("/trash", h.ListTrash)
	r.Post("/trash/restore", h.Restore)

	// SSE endpoint (protected by same auth middleware).
	if broker != nil {
		r.Get("/events", func(w http.ResponseWriter, req *http.Request) {
			broker.ServeUser(w, req, requestUser(req, h.defaultUser))
		})
	}

	return r
}
