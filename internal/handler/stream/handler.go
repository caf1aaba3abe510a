package stream

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	councilsvc "github.com/zhouzirui/z-council/backend/internal/service/council"
	"github.com/zhouzirui/z-council/backend/internal/service/session"
	"github.com/zhouzirui/z-council/backend/pkg/utils"
)

// Discusser runs one deliberation end to end.
type Discusser interface {
	Discuss(ctx context.Context, req councilsvc.DiscussRequest, hooks councilsvc.Hooks) (session.Record, error)
}

// Handler streams a live deliberation via Server-Sent Events.
type Handler struct {
	discusser Discusser
	logger    zerolog.Logger
}

// New creates a new stream handler
func New(discusser Discusser, logger zerolog.Logger) *Handler {
	return &Handler{
		discusser: discusser,
		logger:    logger.With().Str("component", "sse").Logger(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/council/stream", h.handleStream)
}

// RequestFromQuery reads a DiscussRequest from URL parameters. Persona names are comma separated.
func RequestFromQuery(r *http.Request) (councilsvc.DiscussRequest, error) {
	q := r.URL.Query()
	req := councilsvc.DiscussRequest{
		Topic:          q.Get("topic"),
		Objective:      q.Get("objective"),
		InitialContext: q.Get("context"),
		ConsensusType:  q.Get("consensus_type"),
	}
	if raw := q.Get("personas"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				req.PersonaNames = append(req.PersonaNames, name)
			}
		}
	}
	var err error
	if raw := q.Get("generate"); raw != "" {
		if req.Generate, err = strconv.ParseBool(raw); err != nil {
			return req, err
		}
	}
	if raw := q.Get("count"); raw != "" {
		if req.Count, err = strconv.Atoi(raw); err != nil {
			return req, err
		}
	}
	if raw := q.Get("max_rounds"); raw != "" {
		if req.MaxRounds, err = strconv.Atoi(raw); err != nil {
			return req, err
		}
	}
	return req, nil
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	req, err := RequestFromQuery(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid query: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		utils.RespondError(w, http.StatusBadRequest, "topic query parameter is required")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	runID := uuid.NewString()
	logger := h.logger.With().Str("run_id", runID).Logger()
	emit := func(ev Event) {
		if err := utils.SendSSEEvent(w, flusher, ev.Type, ev); err != nil {
			logger.Debug().Err(err).Str("event", ev.Type).Msg("[sse] write failed")
		}
	}

	logger.Info().Str("topic", req.Topic).Msg("[sse] deliberation started")
	emit(Event{Type: EventStart, RunID: runID})

	rec, err := h.discusser.Discuss(r.Context(), req, Hooks(runID, emit))
	if err != nil {
		logger.Warn().Err(err).Msg("[sse] deliberation failed")
	}
	Finish(runID, rec, err, emit)
}
