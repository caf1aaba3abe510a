package provider

import (
	"context"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-council/backend/pkg/utils"
)

// Registry is the provider view the routes need.
type Registry interface {
	Names() []string
	Validate(ctx context.Context) map[string]error
}

// Handler exposes configured providers and their connectivity.
type Handler struct {
	registry Registry
}

func New(registry Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/providers", h.handleList)
	r.Post("/providers/validate", h.handleValidate)
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{"providers": h.registry.Names()})
}

type providerStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	results := h.registry.Validate(r.Context())
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	statuses := make([]providerStatus, 0, len(names))
	healthy := len(names) > 0
	for _, name := range names {
		st := providerStatus{Name: name, OK: results[name] == nil}
		if err := results[name]; err != nil {
			st.Error = err.Error()
			healthy = false
		}
		statuses = append(statuses, st)
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	utils.RespondJSON(w, status, map[string]any{"providers": statuses, "healthy": healthy})
}
