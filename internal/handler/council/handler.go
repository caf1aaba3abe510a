package council

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-council/backend/internal/service/ai"
	councilsvc "github.com/zhouzirui/z-council/backend/internal/service/council"
	"github.com/zhouzirui/z-council/backend/internal/service/session"
	"github.com/zhouzirui/z-council/backend/pkg/utils"
)

// Discusser runs one deliberation end to end.
type Discusser interface {
	Discuss(ctx context.Context, req councilsvc.DiscussRequest, hooks councilsvc.Hooks) (session.Record, error)
}

// Handler serves the council session routes.
type Handler struct {
	discusser Discusser
	archive   session.Store
	logger    zerolog.Logger
}

// New creates the handler. A nil archive turns the read routes into 503s.
func New(discusser Discusser, archive session.Store, logger zerolog.Logger) *Handler {
	return &Handler{
		discusser: discusser,
		archive:   archive,
		logger:    logger.With().Str("component", "council-handler").Logger(),
	}
}

// RegisterRoutes mounts /council/sessions.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/council/sessions", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/{sessionID}", h.handleGet)
		r.Get("/{sessionID}/export", h.handleExport)
		r.Delete("/{sessionID}", h.handleDelete)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req councilsvc.DiscussRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.discusser.Discuss(r.Context(), req, councilsvc.Hooks{})
	if err != nil && rec.ID == "" {
		h.logger.Warn().Err(err).Str("topic", req.Topic).Msg("[council] discussion failed")
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	if err != nil {
		// finished but not archived
		w.Header().Set("X-Council-Archive-Error", err.Error())
	}
	utils.RespondJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if !h.requireArchive(w) {
		return
	}
	items, err := h.archive.List(r.Context())
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, items)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	if !h.requireArchive(w) {
		return
	}
	rec, err := h.archive.Load(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if !h.requireArchive(w) {
		return
	}
	format, err := session.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.archive.Load(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	body, err := session.Export(rec, format)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	contentType, ext := "application/json", "json"
	if format == session.FormatMarkdown {
		contentType, ext = "text/markdown; charset=utf-8", "md"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=council-%s.%s", rec.ID, ext))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !h.requireArchive(w) {
		return
	}
	if err := h.archive.Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireArchive(w http.ResponseWriter) bool {
	if h.archive == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "session archive disabled")
		return false
	}
	return true
}

// StatusFor maps service errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, councilsvc.ErrTopicRequired),
		errors.Is(err, councilsvc.ErrPersonaNotFound),
		errors.Is(err, councilsvc.ErrInvalidRequest),
		errors.Is(err, councilsvc.ErrNoPersonas),
		errors.Is(err, session.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, ai.ErrNoProvider), errors.Is(err, ai.ErrUnknownProvider):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
