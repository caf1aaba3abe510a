package council

import (
	"fmt"
	"strings"

	model "github.com/zhouzirui/z-council/backend/internal/model/council"
	"github.com/zhouzirui/z-council/backend/internal/model/persona"
)

// PromptInput is everything a discussion turn may see. Prompt assembly is a pure
// function of this value.
type PromptInput struct {
	Round          int
	Topic          string
	Objective      string
	InitialContext string
	History        []model.Message
	SameRound      []model.Message
	IsMediator     bool
}

// BuildDiscussionPrompt assembles the user prompt for one persona turn.
// Initial context is only shown in round 1; same-round messages are the ones
// emitted earlier in the current round.
func BuildDiscussionPrompt(in PromptInput) string {
	sections := []string{
		"TOPIC: " + in.Topic,
		"OBJECTIVE: " + in.Objective,
	}

	if in.Round == 1 && strings.TrimSpace(in.InitialContext) != "" {
		sections = append(sections, "CONTEXT: "+strings.TrimSpace(in.InitialContext))
	}

	if history := FormatHistory(in.History); history != "" {
		sections = append(sections, "PREVIOUS ROUNDS:\n"+history)
	}

	if len(in.SameRound) > 0 {
		lines := make([]string, 0, len(in.SameRound))
		for _, m := range in.SameRound {
			lines = append(lines, fmt.Sprintf("- %s: %s", speakerLabel(m), m.Content))
		}
		sections = append(sections, "THIS ROUND SO FAR:\n"+strings.Join(lines, "\n"))
	}

	var instruction string
	if in.IsMediator {
		instruction = fmt.Sprintf("Round %d is starting and you speak first. Frame the open questions, "+
			"summarize where the council stands, and invite the members to close the remaining gaps.", in.Round)
	} else {
		instruction = fmt.Sprintf("This is round %d. Contribute your perspective and work toward the objective. "+
			"Say so if you agree with the emerging position; if you disagree, explain why and offer an alternative. "+
			"If you have nothing new to add, reply with \"[PASS]\" followed by at most one short sentence.", in.Round)
	}
	sections = append(sections, instruction)

	return strings.Join(sections, "\n\n")
}

// FormatHistory renders prior messages grouped by round, in order.
func FormatHistory(history []model.Message) string {
	if len(history) == 0 {
		return ""
	}

	var b strings.Builder
	current := 0
	for _, m := range history {
		if m.Round != current {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "Round %d:", m.Round)
			current = m.Round
		}
		fmt.Fprintf(&b, "\n  - %s: %s", speakerLabel(m), m.Content)
	}
	return b.String()
}

func speakerLabel(m model.Message) string {
	if m.IsMediator {
		return m.PersonaName + " (mediator)"
	}
	return m.PersonaName
}

func participantNames(personas []persona.Persona) string {
	names := make([]string, 0, len(personas))
	for _, p := range personas {
		names = append(names, p.Name)
	}
	return strings.Join(names, ", ")
}

const consensusSystemPrompt = `You are an impartial moderator judging whether a council discussion has converged.
Decide whether the participants agree on a position that satisfies the objective.

Reply with a single JSON object and nothing else:
{"reached": true or false, "position": "the agreed position, or null", "summary": "one or two sentences on where the discussion stands", "disagreements": ["open points of disagreement"]}`

func buildConsensusPrompt(topic, objective string, personas []persona.Persona, history []model.Message) string {
	return fmt.Sprintf("Topic: %s\nObjective: %s\nParticipants: %s\n\nDiscussion:\n%s\n\nHas the council reached consensus?",
		topic, objective, participantNames(personas), FormatHistory(history))
}

const proposalSystemPrompt = `You are an impartial moderator. Condense the discussion into one proposal the council can vote on.
The proposal must reflect the position with the broadest support.
Reply with the proposal text only.`

func buildProposalPrompt(topic, objective string, history []model.Message) string {
	return fmt.Sprintf("Topic: %s\nObjective: %s\n\nDiscussion:\n%s\n\nWrite the proposal for the vote:",
		topic, objective, FormatHistory(history))
}

// BuildVotePrompt is the isolated prompt each voting persona receives.
func BuildVotePrompt(topic, objective, proposal string, history []model.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\nObjective: %s\n\n", topic, objective)
	if h := FormatHistory(history); h != "" {
		fmt.Fprintf(&b, "Discussion so far:\n%s\n\n", h)
	}
	fmt.Fprintf(&b, "The council will now vote on this proposal:\nPROPOSAL: %s\n\n", proposal)
	b.WriteString("Cast your vote from your own perspective. Use exactly this format:\n")
	b.WriteString("[VOTE] AGREE, DISAGREE or ABSTAIN\n")
	b.WriteString("[CONFIDENCE] a number between 0.0 and 1.0\n")
	b.WriteString("[REASONING] one or two sentences explaining your vote")
	return b.String()
}
