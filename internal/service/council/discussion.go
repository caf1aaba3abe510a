package council

import (
	"strings"
	"unicode/utf8"
)

// maxPassRemainder bounds the short note allowed after a pass marker.
const maxPassRemainder = 200

// ResponseKind classifies one persona response within a round.
type ResponseKind int

const (
	ResponseContent ResponseKind = iota
	ResponsePass
)

// DiscussionState tracks round progression and pass responses for one run.
// Round 0 means the discussion has not started.
type DiscussionState struct {
	round      int
	passCount  int
	totalCount int
	passers    []string
}

// NewDiscussionState returns a state positioned before round 1.
func NewDiscussionState() *DiscussionState {
	return &DiscussionState{}
}

// Round is the current round number.
func (s *DiscussionState) Round() int {
	return s.round
}

// AdvanceRound moves to the next round and clears per-round tracking.
func (s *DiscussionState) AdvanceRound() int {
	s.round++
	s.passCount = 0
	s.totalCount = 0
	s.passers = nil
	return s.round
}

// RecordResponse classifies content and updates the round counters. It reports whether
// the response was a pass.
func (s *DiscussionState) RecordResponse(personaName, content string) bool {
	kind := ClassifyResponse(content)
	s.totalCount++
	if kind == ResponsePass {
		s.passCount++
		s.passers = append(s.passers, personaName)
	}
	return kind == ResponsePass
}

// PassRatioThisRound is passes over responses in the current round, or 0 before any response.
func (s *DiscussionState) PassRatioThisRound() float64 {
	if s.totalCount == 0 {
		return 0
	}
	return float64(s.passCount) / float64(s.totalCount)
}

// ShouldForceVote reports whether enough personas passed this round to skip to a vote.
func (s *DiscussionState) ShouldForceVote(threshold float64) bool {
	return s.totalCount > 0 && s.PassRatioThisRound() >= threshold
}

// Counts returns pass and total responses for the current round.
func (s *DiscussionState) Counts() (passes, total int) {
	return s.passCount, s.totalCount
}

// Passers lists the personas that passed in the current round, in speaking order.
func (s *DiscussionState) Passers() []string {
	return append([]string(nil), s.passers...)
}

// ClassifyResponse returns ResponsePass only for an explicit pass marker
// ("[PASS]" or a bare "PASS") followed by at most one short line.
// Empty or malformed content counts as content.
func ClassifyResponse(content string) ResponseKind {
	text := strings.TrimSpace(content)
	if text == "" {
		return ResponseContent
	}

	var rest string
	switch {
	case hasFoldPrefix(text, "[PASS]"):
		rest = text[len("[PASS]"):]
	case strings.EqualFold(text, "PASS"):
		return ResponsePass
	case hasFoldPrefix(text, "PASS") && len(text) > 4 && strings.ContainsRune(":.- \t", rune(text[4])):
		rest = text[4:]
	default:
		return ResponseContent
	}

	rest = strings.TrimSpace(strings.TrimLeft(rest, ":.- \t"))
	if strings.ContainsRune(rest, '\n') {
		return ResponseContent
	}
	if utf8.RuneCountInString(rest) > maxPassRemainder {
		return ResponseContent
	}
	return ResponsePass
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
