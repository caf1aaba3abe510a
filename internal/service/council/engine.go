package council

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-council/backend/internal/analysis/vote"
	"github.com/zhouzirui/z-council/backend/internal/config"
	"github.com/zhouzirui/z-council/backend/internal/metrics"
	model "github.com/zhouzirui/z-council/backend/internal/model/council"
	"github.com/zhouzirui/z-council/backend/internal/model/persona"
	"github.com/zhouzirui/z-council/backend/internal/service/ai"
)

// ErrNoPersonas is returned before any model call when a run has no participants.
var ErrNoPersonas = errors.New("council requires at least one persona")

// Providers resolves completers for persona turns and moderator calls.
type Providers interface {
	Resolve(ctx context.Context, p persona.Persona) (ai.Completer, error)
	Default(ctx context.Context) (ai.Completer, error)
}

// Settings are the deliberation parameters the engine consumes.
type Settings struct {
	ConsensusType      model.ConsensusType
	MaxRounds          int
	StalemateThreshold int
	PassRatioThreshold float64
}

// DefaultSettings mirrors config.DefaultCouncilConfig.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.DefaultCouncilConfig())
}

// SettingsFromConfig converts loaded configuration.
func SettingsFromConfig(cfg config.CouncilConfig) Settings {
	ct, err := model.ParseConsensusType(cfg.ConsensusType)
	if err != nil {
		ct = model.Majority
	}
	return Settings{
		ConsensusType:      ct,
		MaxRounds:          cfg.MaxRounds,
		StalemateThreshold: cfg.StalemateThreshold,
		PassRatioThreshold: cfg.PassRatioThreshold,
	}
}

func (s Settings) normalized() Settings {
	def := config.DefaultCouncilConfig()
	if s.MaxRounds < 1 {
		s.MaxRounds = def.MaxRounds
	}
	if s.StalemateThreshold < 1 {
		s.StalemateThreshold = def.StalemateThreshold
	}
	if s.PassRatioThreshold <= 0 || s.PassRatioThreshold > 1 {
		s.PassRatioThreshold = def.PassRatioThreshold
	}
	if _, err := model.ParseConsensusType(string(s.ConsensusType)); err != nil {
		s.ConsensusType = model.Majority
	}
	return s
}

// Request describes one deliberation.
type Request struct {
	Topic          string
	Objective      string
	Personas       []persona.Persona
	InitialContext string
}

// Engine drives rounds, consensus checks and votes for a single session at a time.
// All model calls are sequential.
type Engine struct {
	providers Providers
	settings  Settings
	machine   *vote.Machine
	hooks     Hooks
	logger    zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithHooks registers lifecycle observers.
func WithHooks(hooks Hooks) Option {
	return func(e *Engine) {
		e.hooks = MergeHooks(e.hooks, hooks)
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an engine. Out-of-range settings fall back to defaults.
func NewEngine(providers Providers, settings Settings, opts ...Option) *Engine {
	settings = settings.normalized()
	e := &Engine{
		providers: providers,
		settings:  settings,
		machine:   vote.NewMachine(settings.ConsensusType),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "council").Logger()
	return e
}

// Settings returns the effective settings.
func (e *Engine) Settings() Settings {
	return e.settings
}

// Run executes a full deliberation and returns the finished session.
func (e *Engine) Run(ctx context.Context, req Request) (*model.Session, error) {
	if len(req.Personas) == 0 {
		return nil, ErrNoPersonas
	}

	personas := designateMediator(req.Personas)
	if err := e.preflight(ctx, personas); err != nil {
		return nil, err
	}

	session := &model.Session{
		Topic:     req.Topic,
		Objective: req.Objective,
		Personas:  personas,
		Rounds:    []model.RoundResult{},
	}
	order := speakingOrder(personas)
	state := NewDiscussionState()
	log := e.logger.With().Str("topic", req.Topic).Logger()

	var (
		history      []model.Message
		lastSummary  string
		stalemate    int
		lastProposal *string
		// only one forced vote per run; later votes wait for the final round
		forcedSpent bool
	)

	log.Info().
		Int("personas", len(personas)).
		Int("max_rounds", e.settings.MaxRounds).
		Str("policy", string(e.settings.ConsensusType)).
		Msg("deliberation started")

	for state.Round() < e.settings.MaxRounds {
		round := state.AdvanceRound()
		e.hooks.roundStart(ctx, round)
		metrics.RoundsTotal.Inc()

		result := model.RoundResult{Round: round, Messages: []model.Message{}}
		for _, p := range order {
			msg, err := e.speak(ctx, req, p, round, history, result.Messages)
			if err != nil {
				metrics.SessionsTotal.WithLabelValues("error").Inc()
				return nil, err
			}
			msg.IsPass = state.RecordResponse(p.Name, msg.Content)
			if msg.IsPass {
				metrics.PassResponses.Inc()
			}
			result.Messages = append(result.Messages, msg)
			e.hooks.message(ctx, msg)
		}
		history = append(history, result.Messages...)

		verdict := e.checkConsensus(ctx, req, personas, history)
		if verdict.Summary != "" && verdict.Summary == lastSummary {
			stalemate++
		} else {
			stalemate = 0
		}
		lastSummary = verdict.Summary

		e.hooks.consensusCheck(ctx, ConsensusEvent{
			Round:         round,
			Reached:       verdict.Reached,
			Position:      verdict.Position,
			Summary:       verdict.Summary,
			Disagreements: verdict.Disagreements,
			Stalemate:     stalemate,
		})

		if verdict.Reached {
			position := verdict.Position
			result.ConsensusReached = true
			result.ConsensusPosition = &position
			session.Rounds = append(session.Rounds, result)
			session.ConsensusReached = true
			session.FinalConsensus = model.StringPtr(position)
			log.Info().Int("round", round).Msg("consensus reached in discussion")
			break
		}

		passes, total := state.Counts()
		final := round >= e.settings.MaxRounds
		forced := !forcedSpent &&
			(stalemate >= e.settings.StalemateThreshold || state.ShouldForceVote(e.settings.PassRatioThreshold))
		if !final && !forced {
			session.Rounds = append(session.Rounds, result)
			continue
		}

		log.Info().
			Int("round", round).
			Int("stalemate", stalemate).
			Int("passes", passes).
			Int("responses", total).
			Bool("final", final).
			Msg("moving to vote")

		fallback := verdict.Summary
		if fallback == undeterminedSummary {
			fallback = ""
		}
		proposal, votes, tally, err := e.runVote(ctx, req, personas, history, round, fallback, !final)
		if err != nil {
			metrics.SessionsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		result.Proposal = model.StringPtr(proposal)
		result.Votes = votes
		result.Tally = &tally
		lastProposal = model.StringPtr(proposal)
		if tally.ConsensusReached {
			result.ConsensusReached = true
			result.ConsensusPosition = model.StringPtr(proposal)
		}
		session.Rounds = append(session.Rounds, result)

		if tally.ConsensusReached {
			session.ConsensusReached = true
			session.FinalConsensus = model.StringPtr(proposal)
			break
		}
		if final {
			break
		}
		// failed forced vote: keep discussing with a fresh counter
		stalemate = 0
		forcedSpent = true
	}

	if !session.ConsensusReached {
		session.FinalConsensus = lastProposal
	}

	outcome := "no_consensus"
	if session.ConsensusReached {
		outcome = "consensus"
	}
	metrics.SessionsTotal.WithLabelValues(outcome).Inc()
	log.Info().
		Int("rounds", len(session.Rounds)).
		Bool("consensus", session.ConsensusReached).
		Msg("deliberation finished")

	e.hooks.complete(ctx, session)
	return session, nil
}

// preflight resolves every provider once so configuration errors surface before any call.
func (e *Engine) preflight(ctx context.Context, personas []persona.Persona) error {
	for _, p := range personas {
		if _, err := e.providers.Resolve(ctx, p); err != nil {
			return err
		}
	}
	if _, err := e.providers.Default(ctx); err != nil {
		return fmt.Errorf("moderator: %w", err)
	}
	return nil
}

func (e *Engine) speak(ctx context.Context, req Request, p persona.Persona, round int, history, sameRound []model.Message) (model.Message, error) {
	completer, err := e.providers.Resolve(ctx, p)
	if err != nil {
		return model.Message{}, err
	}

	systemPrompt := p.SystemPrompt()
	if p.IsMediator {
		systemPrompt = p.MediatorPrompt()
	}
	userPrompt := BuildDiscussionPrompt(PromptInput{
		Round:          round,
		Topic:          req.Topic,
		Objective:      req.Objective,
		InitialContext: req.InitialContext,
		History:        history,
		SameRound:      sameRound,
		IsMediator:     p.IsMediator,
	})

	reply, err := completer.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return model.Message{}, fmt.Errorf("round %d, persona %s: %w", round, p.Name, err)
	}

	return model.Message{
		PersonaName: p.Name,
		Content:     strings.TrimSpace(reply),
		Round:       round,
		Kind:        model.KindDiscussion,
		IsMediator:  p.IsMediator,
	}, nil
}

func (e *Engine) runVote(ctx context.Context, req Request, personas []persona.Persona, history []model.Message, round int, summary string, forced bool) (string, []model.Vote, model.VoteTally, error) {
	proposal, err := e.synthesizeProposal(ctx, req, history, summary)
	if err != nil {
		return "", nil, model.VoteTally{}, fmt.Errorf("round %d: %w", round, err)
	}
	e.hooks.message(ctx, model.Message{
		PersonaName: "moderator",
		Content:     proposal,
		Round:       round,
		Kind:        model.KindSummary,
	})

	votePrompt := BuildVotePrompt(req.Topic, req.Objective, proposal, history)
	votes := make([]model.Vote, 0, len(personas))
	for _, p := range voters(personas) {
		completer, err := e.providers.Resolve(ctx, p)
		if err != nil {
			return "", nil, model.VoteTally{}, err
		}
		reply, err := completer.Complete(ctx, p.SystemPrompt(), votePrompt)
		if err != nil {
			return "", nil, model.VoteTally{}, fmt.Errorf("round %d, vote from %s: %w", round, p.Name, err)
		}

		v := vote.Parse(p.Name, reply)
		metrics.VotesTotal.WithLabelValues(string(v.Choice)).Inc()
		if !v.ParseSuccess {
			metrics.VoteParseFailures.Inc()
			e.logger.Warn().Str("persona", p.Name).Msg("vote response not understood, counted as abstain")
		}
		votes = append(votes, v)
		e.hooks.message(ctx, model.Message{
			PersonaName: p.Name,
			Content:     strings.TrimSpace(reply),
			Round:       round,
			Kind:        model.KindVote,
		})
	}

	tally := e.machine.Tally(votes)
	e.logger.Info().Int("round", round).Msg(tally.String())
	e.hooks.vote(ctx, VoteEvent{
		Round:    round,
		Proposal: proposal,
		Votes:    votes,
		Tally:    tally,
		Forced:   forced,
	})
	return proposal, votes, tally, nil
}

// designateMediator copies personas and keeps exactly one mediator: the first
// flagged one, or the first persona when none is flagged.
func designateMediator(in []persona.Persona) []persona.Persona {
	out := make([]persona.Persona, len(in))
	found := false
	for i, p := range in {
		out[i] = p.Clone()
		if out[i].IsMediator {
			if found {
				out[i].IsMediator = false
			}
			found = true
		}
	}
	if !found && len(out) > 0 {
		out[0].IsMediator = true
	}
	return out
}

// speakingOrder puts the mediator first and keeps list order for everyone else.
func speakingOrder(personas []persona.Persona) []persona.Persona {
	order := make([]persona.Persona, 0, len(personas))
	for _, p := range personas {
		if p.IsMediator {
			order = append(order, p)
		}
	}
	for _, p := range personas {
		if !p.IsMediator {
			order = append(order, p)
		}
	}
	return order
}

// voters excludes the mediator unless nobody else is left to vote.
func voters(personas []persona.Persona) []persona.Persona {
	out := make([]persona.Persona, 0, len(personas))
	for _, p := range personas {
		if !p.IsMediator {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return personas
	}
	return out
}
