package council

import (
	"github.com/zhouzirui/z-council/backend/internal/model/persona"
)

// MessageKind distinguishes the role a message plays inside a round.
type MessageKind string

const (
	KindDiscussion MessageKind = "discussion"
	KindVote       MessageKind = "vote"
	KindSummary    MessageKind = "summary"
)

// Message is one persona's utterance in one round. It is never mutated after creation.
type Message struct {
	PersonaName string      `json:"persona_name"`
	Content     string      `json:"content"`
	Round       int         `json:"round_number"`
	Kind        MessageKind `json:"message_type"`
	IsPass      bool        `json:"is_pass"`
	IsMediator  bool        `json:"is_mediator"`
}

// RoundResult collects everything that happened in one discussion round.
type RoundResult struct {
	Round             int        `json:"round_number"`
	Messages          []Message  `json:"messages"`
	ConsensusReached  bool       `json:"consensus_reached"`
	ConsensusPosition *string    `json:"consensus_position"`
	Proposal          *string    `json:"proposal,omitempty"`
	Votes             []Vote     `json:"votes"`
	Tally             *VoteTally `json:"tally,omitempty"`
}

// Session is the only externally visible artifact of a deliberation run.
type Session struct {
	Topic            string            `json:"topic"`
	Objective        string            `json:"objective"`
	Personas         []persona.Persona `json:"personas"`
	Rounds           []RoundResult     `json:"rounds"`
	FinalConsensus   *string           `json:"final_consensus"`
	ConsensusReached bool              `json:"consensus_reached"`
}

// Mediator returns the designated mediator persona, if any.
func (s *Session) Mediator() (persona.Persona, bool) {
	for _, p := range s.Personas {
		if p.IsMediator {
			return p, true
		}
	}
	return persona.Persona{}, false
}

// LastTally returns the tally of the most recent vote, or nil when no vote was held.
func (s *Session) LastTally() *VoteTally {
	for i := len(s.Rounds) - 1; i >= 0; i-- {
		if s.Rounds[i].Tally != nil {
			return s.Rounds[i].Tally
		}
	}
	return nil
}

// MessageCount counts discussion messages across all rounds.
func (s *Session) MessageCount() int {
	total := 0
	for _, r := range s.Rounds {
		total += len(r.Messages)
	}
	return total
}

// StringPtr is a small helper for the nullable text fields above.
func StringPtr(v string) *string {
	return &v
}
