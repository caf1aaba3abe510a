package council

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zhouzirui/z-council/backend/internal/metrics"
	model "github.com/zhouzirui/z-council/backend/internal/model/council"
	"github.com/zhouzirui/z-council/backend/internal/model/persona"
)

// Verdict is the moderator's view of the discussion after a round.
type Verdict struct {
	Reached       bool
	Position      string
	Summary       string
	Disagreements []string
}

type verdictPayload struct {
	Reached       bool     `json:"reached"`
	Position      *string  `json:"position"`
	Summary       string   `json:"summary"`
	Disagreements []string `json:"disagreements"`
}

// ParseVerdict decodes a moderator reply. Code fences and text around the JSON
// object are ignored.
func ParseVerdict(raw string) (Verdict, error) {
	trimmed := stripCodeFence(raw)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return Verdict{}, fmt.Errorf("missing json object")
	}

	payload := &verdictPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return Verdict{}, err
	}

	v := Verdict{
		Reached:       payload.Reached,
		Summary:       strings.TrimSpace(payload.Summary),
		Disagreements: payload.Disagreements,
	}
	if payload.Position != nil {
		v.Position = strings.TrimSpace(*payload.Position)
	}
	if v.Reached && v.Position == "" {
		v.Position = v.Summary
	}
	// a verdict without any position text cannot become final_consensus
	if v.Position == "" {
		v.Reached = false
	}
	return v, nil
}

func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(trimmed, '\n'); nl != -1 {
		// drop the language tag line, e.g. ```json
		trimmed = trimmed[nl+1:]
	}
	trimmed = strings.TrimSpace(trimmed)
	return strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
}

// undeterminedSummary stands in for a failed check so repeated failures count toward a stalemate.
const undeterminedSummary = "Unable to determine consensus"

// checkConsensus never fails: any transport or parse problem is a "not reached" verdict.
func (e *Engine) checkConsensus(ctx context.Context, req Request, personas []persona.Persona, history []model.Message) Verdict {
	if len(history) == 0 {
		return Verdict{}
	}

	moderator, err := e.providers.Default(ctx)
	if err != nil {
		metrics.ModeratorFailures.Inc()
		e.logger.Warn().Err(err).Msg("[moderator] no default provider, consensus treated as not reached")
		return Verdict{Summary: undeterminedSummary}
	}

	reply, err := moderator.Complete(ctx, consensusSystemPrompt, buildConsensusPrompt(req.Topic, req.Objective, personas, history))
	if err != nil {
		metrics.ModeratorFailures.Inc()
		e.logger.Warn().Err(err).Msg("[moderator] consensus check failed, treated as not reached")
		return Verdict{Summary: undeterminedSummary}
	}

	verdict, err := ParseVerdict(reply)
	if err != nil {
		metrics.ModeratorFailures.Inc()
		e.logger.Warn().Err(err).Str("reply", truncateForLog(reply)).Msg("[moderator] consensus output parse failed, treated as not reached")
		return Verdict{Summary: undeterminedSummary}
	}
	return verdict
}

// synthesizeProposal asks the moderator for the text the council votes on.
func (e *Engine) synthesizeProposal(ctx context.Context, req Request, history []model.Message, fallback string) (string, error) {
	moderator, err := e.providers.Default(ctx)
	if err != nil {
		return "", fmt.Errorf("proposal synthesis: %w", err)
	}

	reply, err := moderator.Complete(ctx, proposalSystemPrompt, buildProposalPrompt(req.Topic, req.Objective, history))
	if err != nil {
		return "", fmt.Errorf("proposal synthesis: %w", err)
	}

	proposal := strings.TrimSpace(reply)
	if proposal == "" {
		proposal = strings.TrimSpace(fallback)
	}
	if proposal == "" {
		return "", fmt.Errorf("proposal synthesis: moderator returned an empty proposal")
	}
	return proposal, nil
}

func truncateForLog(s string) string {
	const limit = 200
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
