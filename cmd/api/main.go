package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-council/backend/internal/app"
	"github.com/zhouzirui/z-council/backend/internal/config"
	"github.com/zhouzirui/z-council/backend/internal/handler"
	"github.com/zhouzirui/z-council/backend/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(cfg.Log.Level, cfg.IsDevelopment())
	zlog.Logger = logger
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file, using system environment only")
	}
	for _, src := range cfg.Sources {
		logger.Info().Str("file", src).Msg("config file loaded")
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize services")
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("session store close failed")
		}
	}()

	if _, err := a.Providers.Default(ctx); err != nil {
		logger.Warn().Msg("default provider not configured; deliberations will fail until ARK_API_KEY and COUNCIL_MODEL are set")
	}

	router := handler.NewRouter(logger, a.Council, a.Providers)
	if err := startServer(ctx, logger, cfg, router); err != nil {
		logger.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
}

func startServer(ctx context.Context, logger zerolog.Logger, cfg *config.Config, router http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("env", cfg.Env).
		Str("store", cfg.Store.Kind).
		Str("consensus", cfg.Council.ConsensusType).
		Msg("z-council backend listening")
	return runServer(ctx, logger, srv)
}

// runServer blocks until ctx is cancelled or the listener fails.
// Deliberations are long-lived, so there is no write timeout; shutdown waits for them.
func runServer(ctx context.Context, logger zerolog.Logger, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		logger.Info().Msg("server stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
