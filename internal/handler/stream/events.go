package stream

import (
	"context"

	model "github.com/zhouzirui/z-council/backend/internal/model/council"
	councilsvc "github.com/zhouzirui/z-council/backend/internal/service/council"
	"github.com/zhouzirui/z-council/backend/internal/service/session"
)

// Event types pushed to live clients.
const (
	EventStart          = "start"
	EventRoundStart     = "round_start"
	EventMessage        = "message"
	EventConsensusCheck = "consensus_check"
	EventVote           = "vote"
	EventComplete       = "complete"
	EventError          = "error"
)

// Event is the envelope shared by the SSE and websocket transports.
type Event struct {
	Type      string                     `json:"type"`
	RunID     string                     `json:"run_id,omitempty"`
	Round     int                        `json:"round,omitempty"`
	Message   *model.Message             `json:"message,omitempty"`
	Consensus *councilsvc.ConsensusEvent `json:"consensus,omitempty"`
	Vote      *councilsvc.VoteEvent      `json:"vote,omitempty"`
	Record    *session.Record            `json:"record,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

// Hooks turns engine callbacks into events for emit.
func Hooks(runID string, emit func(Event)) councilsvc.Hooks {
	return councilsvc.Hooks{
		OnRoundStart: func(_ context.Context, round int) {
			emit(Event{Type: EventRoundStart, RunID: runID, Round: round})
		},
		OnMessage: func(_ context.Context, msg model.Message) {
			emit(Event{Type: EventMessage, RunID: runID, Round: msg.Round, Message: &msg})
		},
		OnConsensusCheck: func(_ context.Context, ev councilsvc.ConsensusEvent) {
			emit(Event{Type: EventConsensusCheck, RunID: runID, Round: ev.Round, Consensus: &ev})
		},
		OnVote: func(_ context.Context, ev councilsvc.VoteEvent) {
			emit(Event{Type: EventVote, RunID: runID, Round: ev.Round, Vote: &ev})
		},
	}
}

// Finish emits the terminal events for a Discuss result.
func Finish(runID string, rec session.Record, err error, emit func(Event)) {
	if rec.ID != "" {
		emit(Event{Type: EventComplete, RunID: runID, Record: &rec})
	}
	if err != nil {
		emit(Event{Type: EventError, RunID: runID, Error: err.Error()})
	}
}
