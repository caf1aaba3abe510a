package council

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	model "github.com/zhouzirui/z-council/backend/internal/model/council"
	"github.com/zhouzirui/z-council/backend/internal/model/persona"
	personasvc "github.com/zhouzirui/z-council/backend/internal/service/persona"
	"github.com/zhouzirui/z-council/backend/internal/service/session"
)

var (
	ErrTopicRequired   = errors.New("topic is required")
	ErrPersonaNotFound = errors.New("persona not found")
	ErrInvalidRequest  = errors.New("invalid request")
)

// DiscussRequest is the outer-surface form of a deliberation: it names personas
// instead of carrying them and may override the configured policy.
type DiscussRequest struct {
	Topic          string            `json:"topic"`
	Objective      string            `json:"objective"`
	InitialContext string            `json:"initial_context,omitempty"`
	PersonaNames   []string          `json:"persona_names,omitempty"`
	Personas       []persona.Persona `json:"personas,omitempty"`
	Generate       bool              `json:"generate,omitempty"`
	Count          int               `json:"count,omitempty"`
	ConsensusType  string            `json:"consensus_type,omitempty"`
	MaxRounds      int               `json:"max_rounds,omitempty"`
}

// Service wires persona selection, the engine and the session archive together.
type Service struct {
	providers Providers
	personas  persona.Store
	archive   session.Store
	settings  Settings
	logger    zerolog.Logger
}

// NewService creates the council service. archive may be nil to skip persistence.
func NewService(providers Providers, personas persona.Store, archive session.Store, settings Settings, logger zerolog.Logger) *Service {
	return &Service{
		providers: providers,
		personas:  personas,
		archive:   archive,
		settings:  settings.normalized(),
		logger:    logger,
	}
}

// Settings returns the configured defaults.
func (s *Service) Settings() Settings {
	return s.settings
}

// Personas returns the persona catalogue.
func (s *Service) Personas() []persona.Persona {
	if s.personas == nil {
		return persona.Seed()
	}
	return s.personas.List()
}

// Archive exposes the session store, nil when persistence is off.
func (s *Service) Archive() session.Store {
	return s.archive
}

// GeneratePersonas asks the default provider for a topic-specific panel.
func (s *Service) GeneratePersonas(ctx context.Context, topic string, count int) ([]persona.Persona, bool) {
	completer, err := s.providers.Default(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("[council] no default provider for persona generation")
		completer = nil
	}
	return personasvc.NewGenerator(completer, s.logger).Generate(ctx, topic, count)
}

// Discuss runs a deliberation and archives the result. When archiving fails the
// finished record is still returned together with the error.
func (s *Service) Discuss(ctx context.Context, req DiscussRequest, hooks Hooks) (session.Record, error) {
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		return session.Record{}, ErrTopicRequired
	}
	if strings.TrimSpace(req.Objective) == "" {
		req.Objective = "Reach a shared recommendation on the topic."
	}

	settings := s.settings
	if req.ConsensusType != "" {
		ct, err := model.ParseConsensusType(req.ConsensusType)
		if err != nil {
			return session.Record{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		settings.ConsensusType = ct
	}
	if req.MaxRounds > 0 {
		settings.MaxRounds = req.MaxRounds
	}

	personas, err := s.selectPersonas(ctx, req)
	if err != nil {
		return session.Record{}, err
	}

	engine := NewEngine(s.providers, settings, WithHooks(hooks), WithLogger(s.logger))
	result, err := engine.Run(ctx, Request{
		Topic:          req.Topic,
		Objective:      req.Objective,
		Personas:       personas,
		InitialContext: req.InitialContext,
	})
	if err != nil {
		return session.Record{}, err
	}

	effective := engine.Settings()
	rec := session.NewRecord(*result, effective.ConsensusType, effective.MaxRounds)
	if s.archive != nil {
		if err := s.archive.Save(ctx, rec); err != nil {
			s.logger.Error().Err(err).Str("session_id", rec.ID).Msg("[council] archive session failed")
			return rec, fmt.Errorf("archive session: %w", err)
		}
	}
	return rec, nil
}

func (s *Service) selectPersonas(ctx context.Context, req DiscussRequest) ([]persona.Persona, error) {
	switch {
	case len(req.Personas) > 0:
		return req.Personas, nil
	case len(req.PersonaNames) > 0:
		selected := make([]persona.Persona, 0, len(req.PersonaNames))
		for _, name := range req.PersonaNames {
			p, ok := s.lookup(name)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrPersonaNotFound, name)
			}
			selected = append(selected, p)
		}
		return selected, nil
	case req.Generate:
		count := req.Count
		if count <= 0 {
			count = 5
		}
		personas, _ := s.GeneratePersonas(ctx, req.Topic, count)
		return personas, nil
	default:
		all := s.Personas()
		if req.Count > 0 && req.Count < len(all) {
			all = all[:req.Count]
		}
		return all, nil
	}
}

func (s *Service) lookup(name string) (persona.Persona, bool) {
	if s.personas == nil {
		for _, p := range persona.Seed() {
			if strings.EqualFold(p.Name, name) || p.ID == name {
				return p, true
			}
		}
		return persona.Persona{}, false
	}
	if p, ok := s.personas.FindByName(name); ok {
		return p, true
	}
	return s.personas.FindByID(name)
}
