package council

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-council/backend/internal/config"
	model "github.com/zhouzirui/z-council/backend/internal/model/council"
	"github.com/zhouzirui/z-council/backend/internal/model/persona"
	"github.com/zhouzirui/z-council/backend/internal/service/ai"
)

type call struct {
	system string
	user   string
}

// stubTransport answers every call through respond and records it.
type stubTransport struct {
	mu      sync.Mutex
	calls   []call
	respond func(system, user string) (string, error)
}

func (s *stubTransport) Complete(_ context.Context, system, user string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{system: system, user: user})
	s.mu.Unlock()
	return s.respond(system, user)
}

func (s *stubTransport) TestConnection(context.Context) bool { return true }

func (s *stubTransport) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubTransport) callsWhere(match func(call) bool) []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []call
	for _, c := range s.calls {
		if match(c) {
			out = append(out, c)
		}
	}
	return out
}

type stubProviders struct{ transport *stubTransport }

func (p stubProviders) Resolve(context.Context, persona.Persona) (ai.Completer, error) {
	return p.transport, nil
}

func (p stubProviders) Default(context.Context) (ai.Completer, error) {
	return p.transport, nil
}

// script routes calls by their role in the protocol.
type script struct {
	discussion func(speaker, user string) string
	verdict    func(n int) string
	proposal   string
	votes      map[string]string
	verdicts   int
}

func (sc *script) respond(system, user string) (string, error) {
	switch {
	case system == consensusSystemPrompt:
		sc.verdicts++
		if sc.verdict == nil {
			return `{"reached": false, "position": null, "summary": "", "disagreements": []}`, nil
		}
		return sc.verdict(sc.verdicts), nil
	case system == proposalSystemPrompt:
		return sc.proposal, nil
	case strings.Contains(user, "PROPOSAL:"):
		speaker := speakerOf(system)
		if v, ok := sc.votes[speaker]; ok {
			return v, nil
		}
		return "[VOTE] ABSTAIN", nil
	default:
		speaker := speakerOf(system)
		if sc.discussion != nil {
			return sc.discussion(speaker, user), nil
		}
		return speaker + " shares a view.", nil
	}
}

func speakerOf(system string) string {
	line := strings.SplitN(system, "\n", 2)[0]
	line = strings.TrimPrefix(line, "You are ")
	if i := strings.Index(line, ","); i != -1 {
		line = line[:i]
	}
	return strings.TrimSuffix(line, ".")
}

func newEngine(t *testing.T, sc *script, settings Settings, opts ...Option) (*Engine, *stubTransport) {
	t.Helper()
	transport := &stubTransport{respond: sc.respond}
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	return NewEngine(stubProviders{transport: transport}, settings, opts...), transport
}

func members(names ...string) []persona.Persona {
	out := make([]persona.Persona, 0, len(names))
	for _, n := range names {
		out = append(out, persona.Persona{Name: n, Role: "Member"})
	}
	return out
}

func TestRunRejectsEmptyPersonasBeforeAnyCall(t *testing.T) {
	eng, transport := newEngine(t, &script{}, DefaultSettings())

	session, err := eng.Run(context.Background(), Request{Topic: "t", Objective: "o"})
	require.ErrorIs(t, err, ErrNoPersonas)
	assert.Nil(t, session)
	assert.Equal(t, 0, transport.count())
}

func TestRunMissingProviderIsFatalBeforeAnyCall(t *testing.T) {
	transport := &stubTransport{respond: (&script{}).respond}
	registry := ai.NewRegistry(func(context.Context, string, config.ProviderSettings) (ai.Completer, error) {
		return transport, nil
	}, config.ProviderSettings{}, zerolog.Nop())
	eng := NewEngine(registry, DefaultSettings())

	_, err := eng.Run(context.Background(), Request{Topic: "t", Objective: "o", Personas: members("A", "B")})
	require.ErrorIs(t, err, ai.ErrNoProvider)
	assert.Equal(t, 0, transport.count())
}

func TestRunForcedFinalVoteReachesMajority(t *testing.T) {
	sc := &script{
		proposal: "Adopt the phased rollout.",
		votes: map[string]string{
			"Alpha": "[VOTE] AGREE\n[CONFIDENCE] 0.9\n[REASONING] Low risk.",
			"Beta":  "VOTE: AGREE\nCONFIDENCE: 0.7\nREASON: Fine by me.",
			"Gamma": "[VOTE] DISAGREE\n[CONFIDENCE] 0.8\n[REASONING] Too slow.",
		},
	}
	eng, _ := newEngine(t, sc, Settings{ConsensusType: model.Majority, MaxRounds: 1, StalemateThreshold: 2, PassRatioThreshold: 0.6})

	session, err := eng.Run(context.Background(), Request{Topic: "Rollout", Objective: "Pick a plan", Personas: members("Chair", "Alpha", "Beta", "Gamma")})
	require.NoError(t, err)

	assert.True(t, session.ConsensusReached)
	require.NotNil(t, session.FinalConsensus)
	assert.Equal(t, "Adopt the phased rollout.", *session.FinalConsensus)

	require.Len(t, session.Rounds, 1)
	round := session.Rounds[0]
	assert.Equal(t, 1, round.Round)
	assert.True(t, round.ConsensusReached)
	require.NotNil(t, round.ConsensusPosition)
	assert.Equal(t, "Adopt the phased rollout.", *round.ConsensusPosition)
	require.Len(t, round.Votes, 3)
	require.NotNil(t, round.Tally)
	assert.Equal(t, 2, round.Tally.AgreeCount)
	assert.Equal(t, 1, round.Tally.DisagreeCount)
	require.NotNil(t, round.Proposal)
	assert.Equal(t, "Adopt the phased rollout.", *round.Proposal)
}

func TestRunMediatorSpeaksFirstAndDoesNotVote(t *testing.T) {
	sc := &script{
		proposal: "Ship it.",
		votes: map[string]string{
			"Alpha": "[VOTE] AGREE",
			"Beta":  "[VOTE] AGREE",
			"Chair": "[VOTE] DISAGREE",
		},
	}
	eng, transport := newEngine(t, sc, Settings{ConsensusType: model.Unanimous, MaxRounds: 1})

	personas := members("Alpha", "Beta", "Chair")
	personas[2].IsMediator = true
	session, err := eng.Run(context.Background(), Request{Topic: "t", Objective: "o", Personas: personas})
	require.NoError(t, err)

	msgs := session.Rounds[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "Chair", msgs[0].PersonaName)
	assert.True(t, msgs[0].IsMediator)
	assert.Equal(t, []string{"Alpha", "Beta"}, []string{msgs[1].PersonaName, msgs[2].PersonaName})

	mediatorCalls := transport.callsWhere(func(c call) bool { return strings.Contains(c.system, "MEDIATOR") })
	require.Len(t, mediatorCalls, 1)

	votes := session.Rounds[0].Votes
	require.Len(t, votes, 2)
	for _, v := range votes {
		assert.NotEqual(t, "Chair", v.PersonaName)
	}
	assert.True(t, session.ConsensusReached)

	// the caller's slice is untouched
	assert.True(t, personas[2].IsMediator)
	assert.False(t, personas[0].IsMediator)
}

func TestRunUnflaggedPanelMakesFirstPersonaMediator(t *testing.T) {
	sc := &script{
		proposal: "Ship it.",
		votes: map[string]string{
			"A": "[VOTE] DISAGREE",
			"B": "[VOTE] AGREE",
			"C": "[VOTE] AGREE",
		},
	}
	eng, transport := newEngine(t, sc, Settings{ConsensusType: model.Unanimous, MaxRounds: 1})

	personas := members("A", "B", "C")
	session, err := eng.Run(context.Background(), Request{Topic: "t", Objective: "o", Personas: personas})
	require.NoError(t, err)

	assert.True(t, session.Personas[0].IsMediator)
	assert.False(t, session.Personas[1].IsMediator)
	assert.False(t, personas[0].IsMediator)

	msgs := session.Rounds[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "A", msgs[0].PersonaName)
	assert.True(t, msgs[0].IsMediator)
	require.Len(t, transport.callsWhere(func(c call) bool { return strings.Contains(c.system, "MEDIATOR") }), 1)

	votes := session.Rounds[0].Votes
	require.Len(t, votes, 2)
	assert.Equal(t, []string{"B", "C"}, []string{votes[0].PersonaName, votes[1].PersonaName})
	assert.True(t, session.ConsensusReached)
}

func TestRunOnlyFirstFlaggedMediatorKept(t *testing.T) {
	eng, _ := newEngine(t, &script{proposal: "p"}, Settings{MaxRounds: 1})

	personas := members("A", "B", "C")
	personas[1].IsMediator = true
	personas[2].IsMediator = true
	session, err := eng.Run(context.Background(), Request{Topic: "t", Objective: "o", Personas: personas})
	require.NoError(t, err)

	assert.False(t, session.Personas[0].IsMediator)
	assert.True(t, session.Personas[1].IsMediator)
	assert.False(t, session.Personas[2].IsMediator)
	assert.Equal(t, "B", session.Rounds[0].Messages[0].PersonaName)
}

func TestRunConsensusInDiscussionStopsEarly(t *testing.T) {
	sc := &script{
		verdict: func(n int) string {
			if n < 2 {
				return fmt.Sprintf(`{"reached": false, "position": null, "summary": "round %d", "disagreements": ["cost"]}`, n)
			}
			return "```json\n{\"reached\": true, \"position\": \"Use Postgres\", \"summary\": \"aligned\"}\n```"
		},
	}
	eng, transport := newEngine(t, sc, Settings{MaxRounds: 5})

	session, err := eng.Run(context.Background(), Request{Topic: "db", Objective: "choose", Personas: members("A", "B")})
	require.NoError(t, err)

	require.Len(t, session.Rounds, 2)
	assert.True(t, session.ConsensusReached)
	assert.Equal(t, "Use Postgres", *session.FinalConsensus)
	assert.True(t, session.Rounds[1].ConsensusReached)
	assert.Equal(t, "Use Postgres", *session.Rounds[1].ConsensusPosition)
	assert.Empty(t, session.Rounds[0].Votes)
	assert.Empty(t, session.Rounds[1].Votes)
	assert.Empty(t, transport.callsWhere(func(c call) bool { return c.system == proposalSystemPrompt }))
}

func TestRunStalemateForcesVoteAndContinuesAfterFailure(t *testing.T) {
	sc := &script{
		verdict: func(int) string {
			return `{"reached": false, "position": null, "summary": "still split on budget", "disagreements": []}`
		},
		proposal: "Split the budget.",
		votes: map[string]string{
			"A": "[VOTE] DISAGREE",
			"B": "[VOTE] DISAGREE",
		},
	}
	eng, _ := newEngine(t, sc, Settings{ConsensusType: model.Majority, MaxRounds: 5, StalemateThreshold: 2, PassRatioThreshold: 0.9})

	session, err := eng.Run(context.Background(), Request{Topic: "t", Objective: "o", Personas: members("A", "B")})
	require.NoError(t, err)

	require.Len(t, session.Rounds, 5)
	var voted []int
	for i, r := range session.Rounds {
		assert.Equal(t, i+1, r.Round)
		if len(r.Votes) > 0 {
			voted = append(voted, r.Round)
		}
	}
	// stalemate vote in round 3 fails; counter restarts and the final round votes again
	assert.Equal(t, []int{3, 5}, voted)
	assert.False(t, session.ConsensusReached)
	require.NotNil(t, session.FinalConsensus)
	assert.Equal(t, "Split the budget.", *session.FinalConsensus)
}

func TestRunPassStormForcesVote(t *testing.T) {
	sc := &script{
		discussion: func(speaker, _ string) string {
			if speaker == "A" {
				return "I think we are done here."
			}
			return "[PASS] Nothing to add."
		},
		proposal: "Keep the current plan.",
		votes: map[string]string{
			"A": "[VOTE] AGREE",
			"B": "[VOTE] AGREE",
			"C": "[VOTE] AGREE",
		},
	}
	eng, _ := newEngine(t, sc, Settings{MaxRounds: 5, PassRatioThreshold: 0.6})

	session, err := eng.Run(context.Background(), Request{Topic: "t", Objective: "o", Personas: members("A", "B", "C")})
	require.NoError(t, err)

	require.Len(t, session.Rounds, 1)
	msgs := session.Rounds[0].Messages
	assert.False(t, msgs[0].IsPass)
	assert.True(t, msgs[1].IsPass)
	assert.True(t, msgs[2].IsPass)
	assert.True(t, session.ConsensusReached)
}

func TestRunOnlyOneForcedVoteBeforeFinalRound(t *testing.T) {
	sc := &script{
		discussion: func(speaker, _ string) string {
			if speaker == "A" {
				return "Let's keep going."
			}
			return "[PASS]"
		},
		proposal: "Keep the current plan.",
		votes: map[string]string{
			"B": "[VOTE] DISAGREE",
			"C": "[VOTE] DISAGREE",
		},
	}
	var forced []bool
	hooks := Hooks{OnVote: func(_ context.Context, ev VoteEvent) { forced = append(forced, ev.Forced) }}
	eng, _ := newEngine(t, sc, Settings{ConsensusType: model.Majority, MaxRounds: 4, StalemateThreshold: 10, PassRatioThreshold: 0.6}, WithHooks(hooks))

	session, err := eng.Run(context.Background(), Request{Topic: "t", Objective: "o", Personas: members("A", "B", "C")})
	require.NoError(t, err)

	require.Len(t, session.Rounds, 4)
	var voted []int
	for _, r := range session.Rounds {
		if len(r.Votes) > 0 {
			voted = append(voted, r.Round)
		}
		assert.False(t, r.ConsensusReached)
	}
	// every round is a pass storm, but only round 1 and the final round vote
	assert.Equal(t, []int{1, 4}, voted)
	assert.Equal(t, []bool{true, false}, forced)
	assert.False(t, session.ConsensusReached)
	assert.Equal(t, "Keep the current plan.", *session.FinalConsensus)
}

func TestRunRepeatedModeratorFailuresCountAsStalemate(t *testing.T) {
	sc := &script{
		proposal: "Hold.",
		votes:    map[string]string{"B": "[VOTE] DISAGREE"},
	}
	transport := &stubTransport{}
	transport.respond = func(system, user string) (string, error) {
		if system == consensusSystemPrompt {
			return "", errors.New("timeout")
		}
		return sc.respond(system, user)
	}
	var stalemates []int
	hooks := Hooks{OnConsensusCheck: func(_ context.Context, ev ConsensusEvent) {
		assert.Equal(t, undeterminedSummary, ev.Summary)
		stalemates = append(stalemates, ev.Stalemate)
	}}
	eng := NewEngine(stubProviders{transport: transport}, Settings{ConsensusType: model.Majority, MaxRounds: 5, StalemateThreshold: 2, PassRatioThreshold: 1}, WithHooks(hooks), WithLogger(zerolog.Nop()))

	session, err := eng.Run(context.Background(), Request{Topic: "t", Objective: "o", Personas: members("A", "B")})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 1, 2}, stalemates)
	var voted []int
	for _, r := range session.Rounds {
		if len(r.Votes) > 0 {
			voted = append(voted, r.Round)
		}
	}
	assert.Equal(t, []int{3, 5}, voted)
}

func TestRunEmptyProposalAfterModeratorFailureIsFatal(t *testing.T) {
	sc := &script{proposal: "   "}
	transport := &stubTransport{}
	transport.respond = func(system, user string) (string, error) {
		if system == consensusSystemPrompt {
			return "garbled", nil
		}
		return sc.respond(system, user)
	}
	eng := NewEngine(stubProviders{transport: transport}, Settings{MaxRounds: 1}, WithLogger(zerolog.Nop()))

	_, err := eng.Run(context.Background(), Request{Topic: "t", Objective: "o", Personas: members("A", "B")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty proposal")
	assert.NotContains(t, err.Error(), undeterminedSummary)
}

func TestRunProposalFailureIsFatal(t *testing.T) {
	sc := &script{
		verdict: func(int) string { return "not json at all" },
	}
	eng, _ := newEngine(t, sc, Settings{MaxRounds: 2})

	transport := &stubTransport{respond: func(system, user string) (string, error) {
		if system == proposalSystemPrompt {
			return "", errors.New("moderator offline")
		}
		return sc.respond(system, user)
	}}
	eng.providers = stubProviders{transport: transport}

	_, err := eng.Run(context.Background(), Request{Topic: "t", Objective: "o", Personas: members("A")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proposal synthesis")
}

func TestRunModeratorFailureIsNotFatal(t *testing.T) {
	sc := &script{
		proposal: "Go.",
		votes:    map[string]string{"A": "no opinion really"},
	}
	transport := &stubTransport{}
	transport.respond = func(system, user string) (string, error) {
		if system == consensusSystemPrompt {
			return "", errors.New("timeout")
		}
		return sc.respond(system, user)
	}
	eng := NewEngine(stubProviders{transport: transport}, Settings{MaxRounds: 2})

	session, err := eng.Run(context.Background(), Request{Topic: "t", Objective: "o", Personas: members("A")})
	require.NoError(t, err)

	require.Len(t, session.Rounds, 2)
	assert.False(t, session.ConsensusReached)
	require.NotNil(t, session.FinalConsensus)
	assert.Equal(t, "Go.", *session.FinalConsensus)
	require.Len(t, session.Rounds[1].Votes, 1)
	assert.False(t, session.Rounds[1].Votes[0].ParseSuccess)
	assert.Equal(t, 1, session.Rounds[1].Tally.ParseFailures)
}

func TestRunDiscussionTransportErrorIsFatal(t *testing.T) {
	transport := &stubTransport{respond: func(system, user string) (string, error) {
		if strings.HasPrefix(system, "You are B") {
			return "", errors.New("connection reset")
		}
		return "ok", nil
	}}
	eng := NewEngine(stubProviders{transport: transport}, Settings{MaxRounds: 3})

	_, err := eng.Run(context.Background(), Request{Topic: "t", Objective: "o", Personas: members("A", "B", "C")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "round 1, persona B")
	assert.Contains(t, err.Error(), "connection reset")
	// C never spoke
	assert.Equal(t, 2, transport.count())
}

func TestRunPromptsSeeOnlyEarlierSpeakers(t *testing.T) {
	sc := &script{
		discussion: func(speaker, _ string) string { return "opinion-of-" + speaker },
		proposal:   "p",
	}
	eng, transport := newEngine(t, sc, Settings{MaxRounds: 2, StalemateThreshold: 5, PassRatioThreshold: 1})

	_, err := eng.Run(context.Background(), Request{
		Topic:          "t",
		Objective:      "o",
		Personas:       members("A", "B"),
		InitialContext: "budget is 10k",
	})
	require.NoError(t, err)

	turns := transport.callsWhere(func(c call) bool {
		return c.system != consensusSystemPrompt && c.system != proposalSystemPrompt && !strings.Contains(c.user, "PROPOSAL:")
	})
	require.Len(t, turns, 4)

	// round 1
	assert.Contains(t, turns[0].user, "budget is 10k")
	assert.NotContains(t, turns[0].user, "opinion-of-B")
	assert.Contains(t, turns[1].user, "opinion-of-A")
	// round 2
	assert.NotContains(t, turns[2].user, "budget is 10k")
	assert.Contains(t, turns[2].user, "opinion-of-B")
	assert.Contains(t, turns[2].user, "Round 1:")
}

func TestRunHooks(t *testing.T) {
	sc := &script{proposal: "p", votes: map[string]string{"A": "[VOTE] AGREE", "B": "[VOTE] AGREE"}}

	var rounds []int
	var kinds []model.MessageKind
	var checks, votes, completes int
	hooks := Hooks{
		OnRoundStart:     func(_ context.Context, round int) { rounds = append(rounds, round) },
		OnMessage:        func(_ context.Context, msg model.Message) { kinds = append(kinds, msg.Kind) },
		OnConsensusCheck: func(context.Context, ConsensusEvent) { checks++ },
		OnVote: func(_ context.Context, ev VoteEvent) {
			votes++
			assert.False(t, ev.Forced)
			assert.True(t, ev.Tally.ConsensusReached)
		},
		OnComplete: func(_ context.Context, s *model.Session) {
			completes++
			assert.True(t, s.ConsensusReached)
		},
	}
	eng, _ := newEngine(t, sc, Settings{MaxRounds: 2, StalemateThreshold: 5, PassRatioThreshold: 1}, WithHooks(hooks))

	_, err := eng.Run(context.Background(), Request{Topic: "t", Objective: "o", Personas: members("A", "B")})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, rounds)
	assert.Equal(t, []model.MessageKind{
		model.KindDiscussion, model.KindDiscussion,
		model.KindDiscussion, model.KindDiscussion,
		model.KindSummary, model.KindVote,
	}, kinds)
	assert.Equal(t, 2, checks)
	assert.Equal(t, 1, votes)
	assert.Equal(t, 1, completes)
}

func TestMergeHooksOrder(t *testing.T) {
	var order []string
	merged := MergeHooks(
		Hooks{OnRoundStart: func(context.Context, int) { order = append(order, "first") }},
		Hooks{},
		Hooks{OnRoundStart: func(context.Context, int) { order = append(order, "second") }},
	)
	merged.roundStart(context.Background(), 1)
	assert.Equal(t, []string{"first", "second"}, order)

	// nil hooks are no-ops
	Hooks{}.complete(context.Background(), nil)
}

func TestSettingsNormalized(t *testing.T) {
	eng := NewEngine(stubProviders{}, Settings{ConsensusType: "bogus", MaxRounds: 0, StalemateThreshold: -1, PassRatioThreshold: 3})
	s := eng.Settings()
	assert.Equal(t, model.Majority, s.ConsensusType)
	assert.Equal(t, 5, s.MaxRounds)
	assert.Equal(t, 2, s.StalemateThreshold)
	assert.InDelta(t, 0.6, s.PassRatioThreshold, 1e-9)

	assert.Equal(t, model.Supermajority, SettingsFromConfig(config.CouncilConfig{ConsensusType: "supermajority"}).ConsensusType)
}
