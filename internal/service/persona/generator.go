package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	model "github.com/zhouzirui/z-council/backend/internal/model/persona"
	"github.com/zhouzirui/z-council/backend/internal/service/ai"
)

const (
	MinCount = 2
	MaxCount = 10
)

// Generator 根据话题让大模型设计一组讨论角色，失败时回退到内置角色。
type Generator struct {
	completer ai.Completer
	logger    zerolog.Logger
}

// NewGenerator creates a generator; a nil completer always yields the defaults.
func NewGenerator(completer ai.Completer, logger zerolog.Logger) *Generator {
	return &Generator{
		completer: completer,
		logger:    logger.With().Str("component", "persona-generator").Logger(),
	}
}

// ClampCount keeps count inside [MinCount, MaxCount].
func ClampCount(count int) int {
	if count < MinCount {
		return MinCount
	}
	if count > MaxCount {
		return MaxCount
	}
	return count
}

// Generate returns count personas for topic. The boolean reports whether the
// personas came from the model rather than the built-in fallback.
func (g *Generator) Generate(ctx context.Context, topic string, count int) ([]model.Persona, bool) {
	count = ClampCount(count)
	if g == nil || g.completer == nil {
		return model.Defaults(count), false
	}

	userPrompt := fmt.Sprintf("Create %d personas for a council discussing this topic:\n\nTopic: %s\n\nReply with the JSON array only.", count, topic)
	reply, err := g.completer.Complete(ctx, generatorSystemPrompt, userPrompt)
	if err != nil {
		g.logger.Warn().Err(err).Msg("[persona] generation failed, use defaults")
		return model.Defaults(count), false
	}

	personas, err := ParseGenerated(reply, count)
	if err != nil {
		g.logger.Warn().Err(err).Msg("[persona] generated output parse failed, use defaults")
		return model.Defaults(count), false
	}
	return personas, true
}

type generated struct {
	Name        string   `json:"name" yaml:"name"`
	Role        string   `json:"role" yaml:"role"`
	Expertise   []string `json:"expertise" yaml:"expertise"`
	Traits      []string `json:"personality_traits" yaml:"personality_traits"`
	Perspective string   `json:"perspective" yaml:"perspective"`
}

var listStart = regexp.MustCompile(`personas\s*=\s*\[`)

// ParseGenerated extracts the first balanced list from a model reply and decodes it.
// JSON is tried first, then YAML flow syntax, which also accepts single-quoted literals.
func ParseGenerated(reply string, limit int) ([]model.Persona, error) {
	start := -1
	if loc := listStart.FindStringIndex(reply); loc != nil {
		start = loc[1] - 1
	} else {
		start = strings.Index(reply, "[")
	}
	if start == -1 {
		return nil, fmt.Errorf("no list in reply")
	}

	end := matchBracket(reply, start)
	if end == -1 {
		return nil, fmt.Errorf("unbalanced list in reply")
	}
	raw := reply[start : end+1]

	var items []generated
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		if yerr := yaml.Unmarshal([]byte(raw), &items); yerr != nil {
			return nil, fmt.Errorf("decode personas: %w", err)
		}
	}

	personas := make([]model.Persona, 0, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			continue
		}
		p := model.Persona{
			ID:          model.Slug(name),
			Name:        name,
			Role:        strings.TrimSpace(item.Role),
			Expertise:   item.Expertise,
			Traits:      item.Traits,
			Perspective: strings.TrimSpace(item.Perspective),
		}
		if p.Role == "" {
			p.Role = "Participant"
		}
		personas = append(personas, p)
	}
	if len(personas) == 0 {
		return nil, fmt.Errorf("reply contained no usable personas")
	}
	if limit > 0 && len(personas) > limit {
		personas = personas[:limit]
	}
	if len(personas) > 1 {
		personas[0].IsMediator = true
	}
	return personas, nil
}

// matchBracket returns the index of the ']' closing the '[' at start, skipping
// brackets inside double-quoted strings.
func matchBracket(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

const generatorSystemPrompt = `You design discussion panels. Given a topic, create personas with clearly different, useful viewpoints.
The first persona is a neutral facilitator who will mediate the discussion.

Reply with a JSON array only, no prose, in this shape:
[
  {
    "name": "Name",
    "role": "Role title",
    "expertise": ["area", "area"],
    "personality_traits": ["trait", "trait"],
    "perspective": "One sentence describing their viewpoint"
  }
]`
