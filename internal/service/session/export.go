package session

import (
	"encoding/json"
	"fmt"
	"strings"

	model "github.com/zhouzirui/z-council/backend/internal/model/council"
)

// Format names an export rendering.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts "json", "markdown" and "md"; empty means JSON.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// Export renders rec in the requested format.
func Export(rec Record, format Format) ([]byte, error) {
	switch format {
	case FormatMarkdown:
		return []byte(ExportMarkdown(rec)), nil
	case FormatJSON, "":
		return ExportJSON(rec)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// ExportJSON returns the indented record, session fields included.
func ExportJSON(rec Record) ([]byte, error) {
	return json.MarshalIndent(rec, "", "  ")
}

// ExportMarkdown renders a human-readable transcript with vote tables.
func ExportMarkdown(rec Record) string {
	s := rec.Session
	var b strings.Builder

	fmt.Fprintf(&b, "# Council: %s\n\n", s.Topic)
	if s.Objective != "" {
		fmt.Fprintf(&b, "**Objective:** %s\n\n", s.Objective)
	}
	if rec.ID != "" {
		fmt.Fprintf(&b, "- Session: `%s`\n", rec.ID)
	}
	if !rec.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- Created: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	if rec.ConsensusType != "" {
		fmt.Fprintf(&b, "- Policy: %s\n", rec.ConsensusType)
	}
	fmt.Fprintf(&b, "- Rounds: %d\n\n", len(s.Rounds))

	b.WriteString("## Participants\n\n")
	for _, p := range s.Personas {
		line := fmt.Sprintf("- **%s** (%s)", p.Name, p.Role)
		if p.IsMediator {
			line += " _mediator_"
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")

	for _, r := range s.Rounds {
		fmt.Fprintf(&b, "## Round %d\n\n", r.Round)
		for _, m := range r.Messages {
			name := m.PersonaName
			if m.IsMediator {
				name += " (mediator)"
			}
			if m.IsPass {
				fmt.Fprintf(&b, "**%s:** _passed_\n\n", name)
				continue
			}
			fmt.Fprintf(&b, "**%s:** %s\n\n", name, m.Content)
		}
		if r.Proposal != nil {
			fmt.Fprintf(&b, "### Proposal\n\n%s\n\n", *r.Proposal)
		}
		if len(r.Votes) > 0 {
			writeVotes(&b, r.Votes)
		}
		if r.Tally != nil {
			fmt.Fprintf(&b, "_%s_\n\n", r.Tally.String())
		}
	}

	b.WriteString("## Outcome\n\n")
	switch {
	case s.ConsensusReached && s.FinalConsensus != nil:
		fmt.Fprintf(&b, "Consensus reached: %s\n", *s.FinalConsensus)
	case s.FinalConsensus != nil:
		fmt.Fprintf(&b, "No consensus. Last proposal: %s\n", *s.FinalConsensus)
	default:
		b.WriteString("No consensus.\n")
	}
	return b.String()
}

func writeVotes(b *strings.Builder, votes []model.Vote) {
	b.WriteString("| Persona | Vote | Confidence | Reasoning |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, v := range votes {
		choice := string(v.Choice)
		if !v.ParseSuccess {
			choice += " (unparsed)"
		}
		fmt.Fprintf(b, "| %s | %s | %.2f | %s |\n", v.PersonaName, choice, v.Confidence, tableCell(v.Reasoning))
	}
	b.WriteString("\n")
}

func tableCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.Join(strings.Fields(s), " ")
}
