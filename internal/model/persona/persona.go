package persona

import (
	"strings"

	"github.com/zhouzirui/z-council/backend/internal/config"
)

// Persona is a named viewpoint that drives one participant's prompts.
// It is treated as immutable once a session starts.
type Persona struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Role        string   `json:"role" yaml:"role"`
	Expertise   []string `json:"expertise" yaml:"expertise"`
	Traits      []string `json:"personality_traits" yaml:"personality_traits"`
	Perspective string   `json:"perspective" yaml:"perspective"`
	IsMediator  bool     `json:"is_mediator" yaml:"is_mediator"`

	// Provider names an entry in the providers table of the config file.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	// ProviderConfig overrides every other provider lookup for this persona.
	ProviderConfig *config.ProviderSettings `json:"provider_config,omitempty" yaml:"provider_config,omitempty"`
}

// SystemPrompt 生成该角色的系统提示词。
func (p Persona) SystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(p.Name)
	if p.Role != "" {
		b.WriteString(", ")
		b.WriteString(p.Role)
	}
	b.WriteString(".\n")

	if len(p.Expertise) > 0 {
		b.WriteString("Your expertise: ")
		b.WriteString(strings.Join(p.Expertise, ", "))
		b.WriteString(".\n")
	}
	if len(p.Traits) > 0 {
		b.WriteString("Your personality: ")
		b.WriteString(strings.Join(p.Traits, ", "))
		b.WriteString(".\n")
	}
	if p.Perspective != "" {
		b.WriteString("Your perspective: ")
		b.WriteString(p.Perspective)
		b.WriteString("\n")
	}

	b.WriteString("\nYou are participating in a council discussion. Stay in character, ")
	b.WriteString("engage with what others have said, and keep your contribution focused and concise.")
	return b.String()
}

// MediatorPrompt frames the persona as the neutral facilitator who opens every round.
func (p Persona) MediatorPrompt() string {
	return p.SystemPrompt() + "\n\nYou are the MEDIATOR of this council. Remain neutral, " +
		"facilitate the discussion, summarize where members agree and disagree, " +
		"and steer the group toward a decision the council can vote on. Do not push your own position."
}

// Clone returns a deep copy so callers can hand personas to a session without sharing slices.
func (p Persona) Clone() Persona {
	out := p
	out.Expertise = append([]string(nil), p.Expertise...)
	out.Traits = append([]string(nil), p.Traits...)
	if p.ProviderConfig != nil {
		settings := *p.ProviderConfig
		out.ProviderConfig = &settings
	}
	return out
}

// Slug turns a display name into an identifier.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Seed provides the built-in council; the first entry acts as mediator.
func Seed() []Persona {
	return []Persona{
		{
			ID:          "the-diplomat",
			Name:        "The Diplomat",
			Role:        "Consensus Builder",
			Expertise:   []string{"negotiation", "stakeholder alignment", "conflict resolution"},
			Traits:      []string{"empathetic", "balanced", "patient"},
			Perspective: "Looks for common ground and the option the whole group can commit to.",
			IsMediator:  true,
		},
		{
			ID:          "the-pragmatist",
			Name:        "The Pragmatist",
			Role:        "Practical Implementation Expert",
			Expertise:   []string{"project delivery", "resource planning", "risk management"},
			Traits:      []string{"realistic", "results-oriented", "efficient"},
			Perspective: "Asks what can actually be built with the time, people and budget available.",
		},
		{
			ID:          "the-innovator",
			Name:        "The Innovator",
			Role:        "Creative Solutions Architect",
			Expertise:   []string{"emerging technology", "design thinking", "product strategy"},
			Traits:      []string{"curious", "optimistic", "bold"},
			Perspective: "Pushes past the obvious answer toward options others have not considered.",
		},
		{
			ID:          "the-critic",
			Name:        "The Critic",
			Role:        "Devil's Advocate",
			Expertise:   []string{"failure analysis", "security review", "quality assurance"},
			Traits:      []string{"skeptical", "rigorous", "direct"},
			Perspective: "Finds the weak points in every proposal before reality does.",
		},
		{
			ID:          "the-specialist",
			Name:        "The Specialist",
			Role:        "Domain Expert",
			Expertise:   []string{"technical depth", "industry standards", "best practices"},
			Traits:      []string{"precise", "thorough", "evidence-driven"},
			Perspective: "Grounds the discussion in how the domain actually works.",
		},
	}
}

// Defaults returns the first n seed personas, clamped to the seed size.
func Defaults(n int) []Persona {
	seed := Seed()
	if n <= 0 || n > len(seed) {
		n = len(seed)
	}
	return seed[:n]
}
