package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/agent"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/observe"
	"github.com/starford/ansuz/internal/session"
	"github.com/starford/ansuz/internal/store"
)

// Handler holds API route handlers.
type Handler struct {
	ws          store.Workspace
	loop        *agent.Loop
	sessions    *session.Manager
	journal     *observe.Journal
	defaultUser string
}

// NewHandler creates a new Handler.
func NewHandler(ws store.Workspace, loop *agent.Loop, sessions *session.Manager, journal *observe.Journal, defaultUser string) *Handler {
	return &Handler{ws: ws, loop: loop, sessions: sessions, journal: journal, defaultUser: defaultUser}
}

// AssistantMessage handles POST /api/assistant/message. Requests for the
// same user are serialized through the session manager so plan state never
// interleaves.
func (h *Handler) AssistantMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var body AssistantMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := body.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	userID := requestUser(r, h.defaultUser)
	req := agent.Request{
		Message:   body.Message,
		UserID:    userID,
		History:   body.History,
		Confirmed: body.Confirmed,
		Context:   body.Context,
		Source:    body.Source,
	}

	start := time.Now()
	resp := h.sessions.Do(r.Context(), userID, func(state agent.PlanState) (agent.Response, agent.PlanState) {
		return h.loop.Run(r.Context(), req, state)
	})
	h.journal.Add(observe.Record{
		UserID:       userID,
		Source:       body.Source,
		ResponseType: resp.Type,
		DurationMS:   time.Since(start).Milliseconds(),
	})

	writeJSON(w, http.StatusOK, resp)
}

// ResetSession handles POST /api/assistant/reset, discarding any in-flight
// plan state for the user.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.Reset(requestUser(r, h.defaultUser))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (store.Scope, bool) {
	scope, err := h.ws.VisibleScope(requestUser(r, h.defaultUser))
	if err != nil {
		slog.Error("visible scope failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return store.Scope{}, false
	}
	return scope, true
}

// ListPages handles GET /api/pages.
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	pages, err := h.ws.ListPages(scope)
	if err != nil {
		slog.Error("list pages failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if pages == nil {
		pages = []models.Page{}
	}
	writeJSON(w, http.StatusOK, PageListResponse{Pages: pages})
}

// CreatePage handles POST /api/pages.
func (h *Handler) CreatePage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var body CreatePageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := body.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	p := &models.Page{Name: body.Name, OwnerID: requestUser(r, h.defaultUser)}
	if err := h.ws.CreatePage(p); err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			writeJSON(w, http.StatusConflict, errorBody("page already exists"))
			return
		}
		slog.Error("create page failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ListSections handles GET /api/pages/{pageID}/sections.
func (h *Handler) ListSections(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	pageID := chi.URLParam(r, "pageID")
	sections, err := h.ws.ListSections(scope, pageID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		slog.Error("list sections failed", slog.String("page", pageID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if sections == nil {
		sections = []models.Section{}
	}
	writeJSON(w, http.StatusOK, SectionListResponse{Sections: sections})
}

// QueryNotes handles GET /api/notes with filter query parameters.
func (h *Handler) QueryNotes(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := store.Filter{
		PageID:    q.Get("page"),
		SectionID: q.Get("section"),
		Search:    q.Get("search"),
	}
	if tags, found := q["tag"]; found {
		f.Tags = tags
	}
	if v := q.Get("completed"); v != "" {
		b := v == "true"
		f.Completed = &b
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			f.DateFrom = &t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			f.DateTo = &t
		}
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	notes, err := h.ws.QueryNotes(scope, f)
	if err != nil {
		slog.Error("query notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if notes == nil {
		notes = []models.Note{}
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Total: len(notes)})
}

// GetNote handles GET /api/notes/{noteID}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "noteID")
	note, err := h.ws.GetNote(scope, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		slog.Error("get note failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// ListTags handles GET /api/tags.
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	tags, err := h.ws.ListTags(scope)
	if err != nil {
		slog.Error("list tags failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, http.StatusOK, TagListResponse{Tags: tags})
}

// ListTrash handles GET /api/trash.
func (h *Handler) ListTrash(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	items, err := h.ws.ListTrash(scope)
	if err != nil {
		slog.Error("list trash failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if items == nil {
		items = []models.TrashItem{}
	}
	writeJSON(w, http.StatusOK, TrashListResponse{Items: items})
}

// Restore handles POST /api/trash/restore.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var body RestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := body.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	var err error
	switch body.Kind {
	case "page":
		err = h.ws.RestorePage(scope, body.ID)
	case "section":
		err = h.ws.RestoreSection(scope, body.ID)
	case "note":
		err = h.ws.RestoreNote(scope, body.ID)
	}
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrConflict):
			writeJSON(w, http.StatusConflict, errorBody("parent is still in the trash"))
		default:
			slog.Error("restore failed", slog.String("kind", body.Kind), slog.String("id", body.ID), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
