package persona

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCompleter struct {
	reply string
	err   error
	user  string
}

func (f *fixedCompleter) Complete(_ context.Context, _ string, user string) (string, error) {
	f.user = user
	return f.reply, f.err
}

func (f *fixedCompleter) TestConnection(context.Context) bool { return f.err == nil }

func TestGenerateFromJSON(t *testing.T) {
	completer := &fixedCompleter{reply: "Here you go:\n```json\n" + `[
  {"name": "Ops Lead", "role": "Facilitator", "expertise": ["on-call"], "personality_traits": ["calm"], "perspective": "Keep it running [always]."},
  {"name": "Security Architect", "role": "Reviewer", "expertise": ["threat modeling"], "personality_traits": ["strict"], "perspective": "Assume breach."},
  {"name": "Product Owner", "role": "Customer voice"}
]` + "\n```"}

	personas, generated := NewGenerator(completer, zerolog.Nop()).Generate(context.Background(), "Zero trust rollout", 3)
	require.True(t, generated)
	require.Len(t, personas, 3)
	assert.Contains(t, completer.user, "Zero trust rollout")
	assert.Contains(t, completer.user, "Create 3 personas")

	assert.Equal(t, "ops-lead", personas[0].ID)
	assert.True(t, personas[0].IsMediator)
	assert.False(t, personas[1].IsMediator)
	assert.Equal(t, "Keep it running [always].", personas[0].Perspective)
	assert.Equal(t, []string{"threat modeling"}, personas[1].Expertise)
}

func TestParseGeneratedAcceptsLiteralStyle(t *testing.T) {
	reply := `personas = [
    {'name': 'The Economist', 'role': 'Analyst', 'expertise': ['pricing'], 'personality_traits': ['dry'], 'perspective': 'Follow the money.'},
    {'name': 'The Engineer', 'role': 'Builder', 'expertise': ['systems'], 'personality_traits': ['practical'], 'perspective': 'Can we build it?'}
]`
	personas, err := ParseGenerated(reply, 5)
	require.NoError(t, err)
	require.Len(t, personas, 2)
	assert.Equal(t, "The Economist", personas[0].Name)
	assert.Equal(t, []string{"systems"}, personas[1].Expertise)
}

func TestParseGeneratedTruncatesAndDefaultsRole(t *testing.T) {
	personas, err := ParseGenerated(`[{"name":"A"},{"name":"B"},{"name":"C"}]`, 2)
	require.NoError(t, err)
	require.Len(t, personas, 2)
	assert.Equal(t, "Participant", personas[1].Role)
}

func TestParseGeneratedErrors(t *testing.T) {
	for _, reply := range []string{
		"no list at all",
		`[{"name": "unterminated"`,
		`[{"role": "nameless"}]`,
	} {
		_, err := ParseGenerated(reply, 3)
		assert.Error(t, err, reply)
	}
}

func TestGenerateFallsBackToDefaults(t *testing.T) {
	personas, generated := NewGenerator(&fixedCompleter{err: errors.New("down")}, zerolog.Nop()).Generate(context.Background(), "t", 4)
	assert.False(t, generated)
	assert.Len(t, personas, 4)

	personas, generated = NewGenerator(&fixedCompleter{reply: "I cannot help with that."}, zerolog.Nop()).Generate(context.Background(), "t", 3)
	assert.False(t, generated)
	assert.Len(t, personas, 3)

	personas, generated = NewGenerator(nil, zerolog.Nop()).Generate(context.Background(), "t", 1)
	assert.False(t, generated)
	assert.Len(t, personas, MinCount)
}

func TestClampCount(t *testing.T) {
	assert.Equal(t, MinCount, ClampCount(0))
	assert.Equal(t, 4, ClampCount(4))
	assert.Equal(t, MaxCount, ClampCount(99))
}
