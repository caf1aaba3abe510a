package ai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-council/backend/internal/config"
	"github.com/zhouzirui/z-council/backend/internal/model/persona"
)

var (
	// ErrNoProvider means neither a persona-specific provider nor a default could be found.
	ErrNoProvider = errors.New("no provider configured")
	// ErrUnknownProvider means a persona named a provider that is not registered.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Factory turns provider settings into a Completer.
type Factory func(ctx context.Context, name string, settings config.ProviderSettings) (Completer, error)

// ArkFactory builds ark-backed clients.
func ArkFactory(logger zerolog.Logger) Factory {
	return func(ctx context.Context, name string, settings config.ProviderSettings) (Completer, error) {
		return NewClientFromSettings(ctx, name, settings, logger)
	}
}

// Registry resolves the completer for each persona call.
//
// Resolution order: the persona's inline provider_config, then a provider named
// by the persona (or matching the persona name), then the default provider.
// Clients built from named settings are cached; inline overrides are built per call.
type Registry struct {
	mu       sync.Mutex
	factory  Factory
	base     config.ProviderSettings
	settings map[string]config.ProviderSettings
	clients  map[string]Completer
	fallback Completer
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry. base is merged under every named or inline setting.
func NewRegistry(factory Factory, base config.ProviderSettings, logger zerolog.Logger) *Registry {
	return &Registry{
		factory:  factory,
		base:     base,
		settings: make(map[string]config.ProviderSettings),
		clients:  make(map[string]Completer),
		logger:   logger,
	}
}

// NewRegistryFromConfig registers the default provider, named providers and persona configs.
func NewRegistryFromConfig(ctx context.Context, cfg *config.Config, factory Factory, logger zerolog.Logger) (*Registry, error) {
	registry := NewRegistry(factory, cfg.Provider, logger)

	if cfg.File != nil {
		for name, settings := range cfg.File.Providers {
			registry.Register(name, settings)
		}
		for name, settings := range cfg.File.PersonaConfigs {
			registry.Register(name, settings)
		}
	}

	if cfg.Provider.Expand().Enabled() {
		client, err := factory(ctx, "default", cfg.Provider)
		if err != nil {
			return nil, fmt.Errorf("default provider: %w", err)
		}
		registry.SetDefault(client)
	}
	return registry, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds named provider settings.
func (r *Registry) Register(name string, settings config.ProviderSettings) {
	key := normalizeName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[key] = settings
	delete(r.clients, key)
}

// RegisterClient adds a ready-made completer under name.
func (r *Registry) RegisterClient(name string, client Completer) {
	key := normalizeName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[key] = client
	if _, ok := r.settings[key]; !ok {
		r.settings[key] = config.ProviderSettings{}
	}
}

// SetDefault sets the fallback completer.
func (r *Registry) SetDefault(client Completer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = client
}

// Default returns the fallback completer or ErrNoProvider.
func (r *Registry) Default(_ context.Context) (Completer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fallback == nil {
		return nil, ErrNoProvider
	}
	return r.fallback, nil
}

// Names lists registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.settings))
	for name := range r.settings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Settings returns the merged settings for a named provider.
func (r *Registry) Settings(name string) (config.ProviderSettings, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	settings, ok := r.settings[normalizeName(name)]
	if !ok {
		return config.ProviderSettings{}, false
	}
	return r.base.MergeWith(settings), true
}

// Resolve returns the completer for persona p.
func (r *Registry) Resolve(ctx context.Context, p persona.Persona) (Completer, error) {
	if p.ProviderConfig != nil {
		settings := r.base.MergeWith(*p.ProviderConfig)
		client, err := r.factory(ctx, p.Name, settings)
		if err != nil {
			return nil, fmt.Errorf("persona %s provider override: %w", p.Name, err)
		}
		return client, nil
	}

	if p.Provider != "" {
		client, ok, err := r.named(ctx, p.Provider)
		if err != nil {
			return nil, fmt.Errorf("persona %s: %w", p.Name, err)
		}
		if !ok {
			return nil, fmt.Errorf("persona %s: %w %q", p.Name, ErrUnknownProvider, p.Provider)
		}
		return client, nil
	}

	client, ok, err := r.named(ctx, p.Name)
	if err != nil {
		return nil, fmt.Errorf("persona %s: %w", p.Name, err)
	}
	if ok {
		return client, nil
	}

	client, err = r.Default(ctx)
	if err != nil {
		return nil, fmt.Errorf("persona %s: %w", p.Name, err)
	}
	return client, nil
}

func (r *Registry) named(ctx context.Context, name string) (Completer, bool, error) {
	key := normalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[key]; ok {
		return client, true, nil
	}
	settings, ok := r.settings[key]
	if !ok {
		return nil, false, nil
	}

	client, err := r.factory(ctx, key, r.base.MergeWith(settings))
	if err != nil {
		return nil, true, fmt.Errorf("provider %s: %w", key, err)
	}
	r.clients[key] = client
	r.logger.Debug().Str("provider", key).Msg("provider client created")
	return client, true, nil
}

// Validate pings the default and every named provider. A nil error means reachable.
func (r *Registry) Validate(ctx context.Context) map[string]error {
	results := make(map[string]error)

	if client, err := r.Default(ctx); err == nil {
		results["default"] = pingErr(ctx, client)
	}
	for _, name := range r.Names() {
		client, _, err := r.named(ctx, name)
		if err != nil {
			results[name] = err
			continue
		}
		results[name] = pingErr(ctx, client)
	}
	return results
}

func pingErr(ctx context.Context, client Completer) error {
	if !client.TestConnection(ctx) {
		return errors.New("connection test failed")
	}
	return nil
}
