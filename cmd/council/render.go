package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/zhouzirui/z-council/backend/internal/model/persona"
	"github.com/zhouzirui/z-council/backend/internal/service/session"
)

// renderMarkdown writes md through glamour, falling back to the raw text.
func renderMarkdown(out io.Writer, md string) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err == nil {
		if rendered, err := r.Render(md); err == nil {
			fmt.Fprint(out, rendered)
			return
		}
	}
	fmt.Fprint(out, md)
}

// outcomeMarkdown is the short form printed with --quiet.
func outcomeMarkdown(rec session.Record) string {
	s := rec.Session
	var b strings.Builder
	if s.ConsensusReached {
		b.WriteString("## [OK] CONSENSUS REACHED\n\n")
	} else {
		b.WriteString("## [!] NO CONSENSUS\n\n")
	}
	final := "No consensus"
	if s.FinalConsensus != nil {
		final = *s.FinalConsensus
	}
	fmt.Fprintf(&b, "**Final position:** %s\n\n", final)
	fmt.Fprintf(&b, "_%d rounds, session %s_\n", len(s.Rounds), rec.ID)
	return b.String()
}

func personasMarkdown(personas []persona.Persona) string {
	var b strings.Builder
	b.WriteString("# Personas\n\n")
	for _, p := range personas {
		fmt.Fprintf(&b, "## %s\n\n_%s_", p.Name, p.Role)
		if p.IsMediator {
			b.WriteString(" (mediator)")
		}
		b.WriteString("\n\n")
		if len(p.Expertise) > 0 {
			fmt.Fprintf(&b, "- **Expertise:** %s\n", strings.Join(p.Expertise, ", "))
		}
		if len(p.Traits) > 0 {
			fmt.Fprintf(&b, "- **Traits:** %s\n", strings.Join(p.Traits, ", "))
		}
		if p.Perspective != "" {
			fmt.Fprintf(&b, "- **Perspective:** %s\n", p.Perspective)
		}
		if p.Provider != "" {
			fmt.Fprintf(&b, "- **Provider:** %s\n", p.Provider)
		}
		b.WriteString("\n")
	}
	return b.String()
}
