package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-council/backend/internal/handler/council"
	"github.com/zhouzirui/z-council/backend/internal/handler/persona"
	"github.com/zhouzirui/z-council/backend/internal/handler/provider"
	"github.com/zhouzirui/z-council/backend/internal/handler/stream"
	"github.com/zhouzirui/z-council/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/z-council/backend/internal/middleware"
	councilService "github.com/zhouzirui/z-council/backend/internal/service/council"
	"github.com/zhouzirui/z-council/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(logger zerolog.Logger, councilSvc *councilService.Service, providers provider.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger(logger))
	r.Use(middlewarePkg.Metrics)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	personaHandler := persona.New(councilSvc)
	councilHandler := council.New(councilSvc, councilSvc.Archive(), logger)
	streamHandler := stream.New(councilSvc, logger)
	wsHandler := ws.New(councilSvc, logger)

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		councilHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)

		if providers != nil {
			provider.New(providers).RegisterRoutes(api)
		}
	})

	return r
}
