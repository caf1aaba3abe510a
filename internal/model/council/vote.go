package council

import (
	"fmt"
	"strings"
)

// VoteChoice is the position a persona takes on a proposal.
type VoteChoice string

const (
	Agree    VoteChoice = "AGREE"
	Disagree VoteChoice = "DISAGREE"
	Abstain  VoteChoice = "ABSTAIN"
)

// ParseVoteChoice normalises a raw choice token.
func ParseVoteChoice(raw string) (VoteChoice, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(Agree):
		return Agree, true
	case string(Disagree):
		return Disagree, true
	case string(Abstain):
		return Abstain, true
	default:
		return "", false
	}
}

// Vote is the structured result of parsing one persona's vote response.
// ParseSuccess is false only when the parser fell back to its default.
type Vote struct {
	PersonaName  string     `json:"persona_name"`
	Choice       VoteChoice `json:"choice"`
	Confidence   float64    `json:"confidence"`
	Reasoning    string     `json:"reasoning"`
	ParseSuccess bool       `json:"parse_success"`
}

// ConsensusType is the policy used to decide whether a vote passes.
type ConsensusType string

const (
	Unanimous     ConsensusType = "unanimous"
	Supermajority ConsensusType = "supermajority"
	Majority      ConsensusType = "majority"
	Plurality     ConsensusType = "plurality"
)

// ConsensusTypes lists every supported policy in a stable order.
var ConsensusTypes = []ConsensusType{Unanimous, Supermajority, Majority, Plurality}

// ParseConsensusType accepts policy names case-insensitively.
func ParseConsensusType(raw string) (ConsensusType, error) {
	normalized := ConsensusType(strings.ToLower(strings.TrimSpace(raw)))
	for _, ct := range ConsensusTypes {
		if ct == normalized {
			return ct, nil
		}
	}
	return "", fmt.Errorf("unknown consensus type %q (want unanimous, supermajority, majority or plurality)", raw)
}

// VoteTally is derived from a vote set; it has no lifecycle of its own.
type VoteTally struct {
	Policy           ConsensusType `json:"policy"`
	AgreeCount       int           `json:"agree_count"`
	DisagreeCount    int           `json:"disagree_count"`
	AbstainCount     int           `json:"abstain_count"`
	TotalVoting      int           `json:"total_voting"`
	AgreeRatio       float64       `json:"agree_ratio"`
	WinningChoice    *VoteChoice   `json:"winning_choice"`
	ConsensusReached bool          `json:"consensus_reached"`
	ParseFailures    int           `json:"parse_failures"`
}

// ToMap is the audit export form of a tally.
func (t VoteTally) ToMap() map[string]any {
	var winning any
	if t.WinningChoice != nil {
		winning = string(*t.WinningChoice)
	}
	return map[string]any{
		"policy":            string(t.Policy),
		"agree_count":       t.AgreeCount,
		"disagree_count":    t.DisagreeCount,
		"abstain_count":     t.AbstainCount,
		"total_voting":      t.TotalVoting,
		"agree_ratio":       t.AgreeRatio,
		"winning_choice":    winning,
		"consensus_reached": t.ConsensusReached,
		"parse_failures":    t.ParseFailures,
	}
}

// String renders a one-line summary, used by logs and the CLI.
func (t VoteTally) String() string {
	decision := "failed"
	if t.ConsensusReached {
		decision = "passed"
	}
	return fmt.Sprintf("%s vote %s: %d agree / %d disagree / %d abstain (ratio %.2f)",
		t.Policy, decision, t.AgreeCount, t.DisagreeCount, t.AbstainCount, t.AgreeRatio)
}
