package vote

import (
	"github.com/zhouzirui/z-council/backend/internal/model/council"
)

// Machine tallies votes under one consensus policy. It holds no state besides
// the policy, so a Machine can be shared freely.
type Machine struct {
	policy council.ConsensusType
}

// NewMachine returns a Machine for policy. Unknown policies fall back to majority.
func NewMachine(policy council.ConsensusType) *Machine {
	if _, err := council.ParseConsensusType(string(policy)); err != nil {
		policy = council.Majority
	}
	return &Machine{policy: policy}
}

// Policy reports the consensus policy in use.
func (m *Machine) Policy() council.ConsensusType {
	return m.policy
}

// Tally 统计投票并按共识策略给出结论。
// Thresholds are compared with integer arithmetic and strict inequalities,
// so ties never pass and results are identical for identical inputs.
func (m *Machine) Tally(votes []council.Vote) council.VoteTally {
	tally := council.VoteTally{Policy: m.policy}

	for _, v := range votes {
		switch v.Choice {
		case council.Agree:
			tally.AgreeCount++
		case council.Disagree:
			tally.DisagreeCount++
		default:
			tally.AbstainCount++
		}
		if !v.ParseSuccess {
			tally.ParseFailures++
		}
	}

	agree, disagree := tally.AgreeCount, tally.DisagreeCount
	total := agree + disagree
	tally.TotalVoting = total
	if total > 0 {
		tally.AgreeRatio = float64(agree) / float64(total)
	}

	switch {
	case agree > disagree:
		choice := council.Agree
		tally.WinningChoice = &choice
	case disagree > agree:
		choice := council.Disagree
		tally.WinningChoice = &choice
	}

	if total == 0 {
		return tally
	}

	switch m.policy {
	case council.Unanimous:
		tally.ConsensusReached = disagree == 0 && agree >= 1
	case council.Supermajority:
		tally.ConsensusReached = agree*3 > total*2
	case council.Plurality:
		tally.ConsensusReached = agree > disagree
	default:
		tally.ConsensusReached = agree*2 > total
	}
	return tally
}
