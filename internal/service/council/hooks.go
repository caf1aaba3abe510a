package council

import (
	"context"

	model "github.com/zhouzirui/z-council/backend/internal/model/council"
)

// ConsensusEvent describes the moderator verdict after a round.
type ConsensusEvent struct {
	Round         int      `json:"round"`
	Reached       bool     `json:"reached"`
	Position      string   `json:"position,omitempty"`
	Summary       string   `json:"summary"`
	Disagreements []string `json:"disagreements,omitempty"`
	Stalemate     int      `json:"stalemate"`
}

// VoteEvent is emitted once per vote phase.
type VoteEvent struct {
	Round    int             `json:"round"`
	Proposal string          `json:"proposal"`
	Votes    []model.Vote    `json:"votes"`
	Tally    model.VoteTally `json:"tally"`
	Forced   bool            `json:"forced"`
}

// Hooks are optional observers of a run. Nil fields are skipped; hooks run
// synchronously on the engine's goroutine and must not block for long.
type Hooks struct {
	OnRoundStart     func(ctx context.Context, round int)
	OnMessage        func(ctx context.Context, msg model.Message)
	OnConsensusCheck func(ctx context.Context, ev ConsensusEvent)
	OnVote           func(ctx context.Context, ev VoteEvent)
	OnComplete       func(ctx context.Context, session *model.Session)
}

// MergeHooks chains several hook sets; each event is delivered in argument order.
func MergeHooks(sets ...Hooks) Hooks {
	var merged Hooks
	for _, h := range sets {
		h := h
		if h.OnRoundStart != nil {
			prev := merged.OnRoundStart
			merged.OnRoundStart = func(ctx context.Context, round int) {
				if prev != nil {
					prev(ctx, round)
				}
				h.OnRoundStart(ctx, round)
			}
		}
		if h.OnMessage != nil {
			prev := merged.OnMessage
			merged.OnMessage = func(ctx context.Context, msg model.Message) {
				if prev != nil {
					prev(ctx, msg)
				}
				h.OnMessage(ctx, msg)
			}
		}
		if h.OnConsensusCheck != nil {
			prev := merged.OnConsensusCheck
			merged.OnConsensusCheck = func(ctx context.Context, ev ConsensusEvent) {
				if prev != nil {
					prev(ctx, ev)
				}
				h.OnConsensusCheck(ctx, ev)
			}
		}
		if h.OnVote != nil {
			prev := merged.OnVote
			merged.OnVote = func(ctx context.Context, ev VoteEvent) {
				if prev != nil {
					prev(ctx, ev)
				}
				h.OnVote(ctx, ev)
			}
		}
		if h.OnComplete != nil {
			prev := merged.OnComplete
			merged.OnComplete = func(ctx context.Context, session *model.Session) {
				if prev != nil {
					prev(ctx, session)
				}
				h.OnComplete(ctx, session)
			}
		}
	}
	return merged
}

func (h Hooks) roundStart(ctx context.Context, round int) {
	if h.OnRoundStart != nil {
		h.OnRoundStart(ctx, round)
	}
}

func (h Hooks) message(ctx context.Context, msg model.Message) {
	if h.OnMessage != nil {
		h.OnMessage(ctx, msg)
	}
}

func (h Hooks) consensusCheck(ctx context.Context, ev ConsensusEvent) {
	if h.OnConsensusCheck != nil {
		h.OnConsensusCheck(ctx, ev)
	}
}

func (h Hooks) vote(ctx context.Context, ev VoteEvent) {
	if h.OnVote != nil {
		h.OnVote(ctx, ev)
	}
}

func (h Hooks) complete(ctx context.Context, session *model.Session) {
	if h.OnComplete != nil {
		h.OnComplete(ctx, session)
	}
}
