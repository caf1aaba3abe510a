package vote

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/zhouzirui/z-council/backend/internal/model/council"
)

// MaxReasoningRunes bounds the reasoning text kept on a parsed vote.
const MaxReasoningRunes = 500

// DefaultConfidence is used whenever a response carries no usable confidence.
const DefaultConfidence = 0.5

var (
	// [VOTE] AGREE / [CONFIDENCE] 0.8 / [REASONING] ...
	bracketVote       = regexp.MustCompile(`(?i)\[VOTE\]\s*:?\s*\**\s*(AGREE|DISAGREE|ABSTAIN)\b`)
	bracketConfidence = regexp.MustCompile(`(?i)\[CONFIDENCE\]\s*:?\s*\**\s*([0-9]*\.?[0-9]+)`)
	bracketReasoning  = regexp.MustCompile(`(?is)\[REASON(?:ING)?\]\s*:?\s*(.*?)(?:\n\s*\[(?:VOTE|CONFIDENCE)\]|$)`)

	// VOTE: AGREE / CONFIDENCE: 0.8 / REASON: ...
	colonVote       = regexp.MustCompile(`(?i)\bVOTE\**\s*:\s*\**\s*(AGREE|DISAGREE|ABSTAIN)\b`)
	colonConfidence = regexp.MustCompile(`(?i)\bCONFIDENCE\**\s*:\s*\**\s*([0-9]*\.?[0-9]+)`)
	colonReasoning  = regexp.MustCompile(`(?is)\bREASON(?:ING)?\**\s*:\s*\**\s*(.*?)(?:\n\s*\**\s*(?:VOTE|CONFIDENCE)\**\s*:|$)`)

	agreeToken    = regexp.MustCompile(`(?i)\bAGREE\b`)
	disagreeToken = regexp.MustCompile(`(?i)\bDISAGREE\b`)
)

type format struct {
	vote       *regexp.Regexp
	confidence *regexp.Regexp
	reasoning  *regexp.Regexp
}

// formats are tried in order; the first one whose vote pattern matches wins.
var formats = []format{
	{vote: bracketVote, confidence: bracketConfidence, reasoning: bracketReasoning},
	{vote: colonVote, confidence: colonConfidence, reasoning: colonReasoning},
}

// Parse 将一段自由文本投票回复解析为结构化投票。
// It is a pure function: the same input always yields the same Vote.
func Parse(personaName, response string) council.Vote {
	text := strings.TrimSpace(response)

	for _, f := range formats {
		if v, ok := parseFormat(f, personaName, text); ok {
			return v
		}
	}

	hasAgree := agreeToken.MatchString(text)
	hasDisagree := disagreeToken.MatchString(text)
	switch {
	case hasAgree && !hasDisagree:
		return council.Vote{
			PersonaName:  personaName,
			Choice:       council.Agree,
			Confidence:   DefaultConfidence,
			Reasoning:    truncate(text),
			ParseSuccess: true,
		}
	case hasDisagree && !hasAgree:
		return council.Vote{
			PersonaName:  personaName,
			Choice:       council.Disagree,
			Confidence:   DefaultConfidence,
			Reasoning:    truncate(text),
			ParseSuccess: true,
		}
	}

	// Neither token, or both: do not guess.
	return council.Vote{
		PersonaName:  personaName,
		Choice:       council.Abstain,
		Confidence:   DefaultConfidence,
		Reasoning:    truncate(text),
		ParseSuccess: false,
	}
}

func parseFormat(f format, personaName, text string) (council.Vote, bool) {
	m := f.vote.FindStringSubmatch(text)
	if m == nil {
		return council.Vote{}, false
	}
	choice, ok := council.ParseVoteChoice(m[1])
	if !ok {
		return council.Vote{}, false
	}

	confidence := DefaultConfidence
	if cm := f.confidence.FindStringSubmatch(text); cm != nil {
		confidence = parseConfidence(cm[1])
	}

	reasoning := text
	if rm := f.reasoning.FindStringSubmatch(text); rm != nil && strings.TrimSpace(rm[1]) != "" {
		reasoning = rm[1]
	}

	return council.Vote{
		PersonaName:  personaName,
		Choice:       choice,
		Confidence:   confidence,
		Reasoning:    truncate(reasoning),
		ParseSuccess: true,
	}, true
}

func parseConfidence(raw string) float64 {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 || value > 1 {
		return DefaultConfidence
	}
	return value
}

func truncate(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= MaxReasoningRunes {
		return text
	}
	return string(runes[:MaxReasoningRunes])
}
