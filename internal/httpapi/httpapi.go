// Package httpapi exposes a document store over HTTP as JSON.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	j "github.com/goccy/go-json"

	"github.com/reoring/docbind/document"
	"github.com/reoring/docbind/store"
	"github.com/reoring/docbind/store/query"
)

// maxBody bounds the size of a document accepted by POST /documents.
const maxBody = 4 << 20

// Handler serves the store routes.
type Handler struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a Handler over st.
func New(st store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{store: st, logger: logger}
}

// Register mounts the store routes on r.
func (h *Handler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(middleware.RequestID)
	api.Use(middleware.Recoverer)
	api.Use(middleware.Timeout(30 * time.Second))

	api.Get("/classes", h.handleClasses)
	api.Put("/classes", h.handleDeclare)
	api.Delete("/classes/{class}", h.handleDrop)
	api.Get("/classes/{class}/documents", h.handleList)
	api.Post("/documents", h.handleSave)
	api.Get("/documents/{id}", h.handleFetch)
	api.Get("/query", h.handleQuery)

	r.Mount("/", api)
}

func (h *Handler) handleClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := h.store.Classes(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if classes == nil {
		classes = []store.Class{}
	}
	writeJSON(w, http.StatusOK, classes)
}

func (h *Handler) handleDeclare(w http.ResponseWriter, r *http.Request) {
	var c store.Class
	if err := j.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&c); err != nil || c.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid class declaration"})
		return
	}
	if err := h.store.DeclareType(r.Context(), c); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDrop(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DropType(r.Context(), chi.URLParam(r, "class")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleList serves the documents of one class. The optional where parameter
// is a query tail such as "WHERE name = 'ann' LIMIT 5".
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	text := query.Select(chi.URLParam(r, "class")).String()
	if where := strings.TrimSpace(r.URL.Query().Get("where")); where != "" {
		text += " " + where
	}
	h.runQuery(w, r, text)
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("q")
	if text == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing q parameter"})
		return
	}
	h.runQuery(w, r, text)
}

func (h *Handler) runQuery(w http.ResponseWriter, r *http.Request, text string) {
	docs, err := h.store.Query(r.Context(), text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []*document.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	doc, err := document.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	status := http.StatusCreated
	if !doc.ID.IsZero() {
		status = http.StatusOK
	}
	id, err := h.store.Save(r.Context(), doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, status, savedBody{ID: id})
}

func (h *Handler) handleFetch(w http.ResponseWriter, r *http.Request) {
	id, err := document.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid document id"})
		return
	}
	doc, err := h.store.Fetch(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type errorBody struct {
	Error string `json:"error"`
}

type savedBody struct {
	ID document.ID `json:"id"`
}

// writeError maps store errors to HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrUnknownClass):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrClassExists):
		status = http.StatusConflict
	case errors.Is(err, query.ErrSyntax):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "httpapi: request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"error", err.Error(),
		)
		writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = j.NewEncoder(w).Encode(v)
}
