package persona

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-council/backend/internal/model/persona"
	personasvc "github.com/zhouzirui/z-council/backend/internal/service/persona"
	"github.com/zhouzirui/z-council/backend/pkg/utils"
)

// Catalogue is the part of the council service the persona routes need.
type Catalogue interface {
	Personas() []persona.Persona
	GeneratePersonas(ctx context.Context, topic string, count int) ([]persona.Persona, bool)
}

// Handler persona服务的HTTP处理器
type Handler struct {
	catalogue Catalogue
}

// New 创建persona处理器
func New(catalogue Catalogue) *Handler {
	return &Handler{catalogue: catalogue}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleListPersonas)
	r.Post("/personas/generate", h.handleGeneratePersonas)
}

func (h *Handler) handleListPersonas(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.catalogue.Personas())
}

type generateRequest struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

type generateResponse struct {
	Personas  []persona.Persona `json:"personas"`
	Generated bool              `json:"generated"`
}

func (h *Handler) handleGeneratePersonas(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		utils.RespondError(w, http.StatusBadRequest, "topic is required")
		return
	}
	if req.Count == 0 {
		req.Count = 5
	}

	personas, generated := h.catalogue.GeneratePersonas(r.Context(), req.Topic, personasvc.ClampCount(req.Count))
	utils.RespondJSON(w, http.StatusOK, generateResponse{Personas: personas, Generated: generated})
}
