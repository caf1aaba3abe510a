// Package app assembles the council services shared by the API server, the CLI and the MCP server.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-council/backend/internal/config"
	"github.com/zhouzirui/z-council/backend/internal/model/persona"
	"github.com/zhouzirui/z-council/backend/internal/service/ai"
	"github.com/zhouzirui/z-council/backend/internal/service/council"
	"github.com/zhouzirui/z-council/backend/internal/service/session"
)

// App holds the wired services of one process.
type App struct {
	Config    *config.Config
	Providers *ai.Registry
	Personas  *persona.MemoryStore
	Archive   session.Store
	Council   *council.Service

	closeArchive func() error
}

// Option adjusts how an App is built.
type Option func(*options)

type options struct {
	factory ai.Factory
	archive session.Store
}

// WithFactory replaces the ark chat-model factory, mainly for tests.
func WithFactory(factory ai.Factory) Option {
	return func(o *options) { o.factory = factory }
}

// WithArchive overrides the configured session store.
func WithArchive(store session.Store) Option {
	return func(o *options) { o.archive = store }
}

// New wires providers, the persona catalogue, the archive and the council service.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...Option) (*App, error) {
	o := options{factory: ai.ArkFactory(logger)}
	for _, opt := range opts {
		opt(&o)
	}

	registry, err := ai.NewRegistryFromConfig(ctx, cfg, o.factory, logger)
	if err != nil {
		return nil, err
	}

	personas := persona.NewMemoryStore(persona.Seed())
	if cfg.Council.PersonasFile != "" {
		loaded, err := persona.LoadFile(cfg.Council.PersonasFile)
		if err != nil {
			return nil, err
		}
		personas.Replace(loaded)
		logger.Info().Str("file", cfg.Council.PersonasFile).Int("count", len(loaded)).Msg("personas loaded")
	}

	archive, closeArchive := o.archive, func() error { return nil }
	if archive == nil {
		archive, closeArchive, err = session.Open(ctx, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
	}

	svc := council.NewService(registry, personas, archive, council.SettingsFromConfig(cfg.Council), logger)
	return &App{
		Config:       cfg,
		Providers:    registry,
		Personas:     personas,
		Archive:      archive,
		Council:      svc,
		closeArchive: closeArchive,
	}, nil
}

// Close releases the archive connection.
func (a *App) Close() error {
	if a.closeArchive == nil {
		return nil
	}
	return a.closeArchive()
}
