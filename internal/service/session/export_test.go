package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/z-council/backend/internal/model/council"
)

func TestExportJSONKeepsSessionFieldNames(t *testing.T) {
	rec := NewRecord(sampleSession("Caching"), model.Majority, 3)
	data, err := ExportJSON(rec)
	require.NoError(t, err)

	var decoded struct {
		ID      string         `json:"id"`
		Session map[string]any `json:"session"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, rec.ID, decoded.ID)
	for _, key := range []string{"topic", "objective", "personas", "rounds", "final_consensus", "consensus_reached"} {
		assert.Contains(t, decoded.Session, key)
	}
}

func TestExportMarkdown(t *testing.T) {
	md := ExportMarkdown(NewRecord(sampleSession("Caching"), model.Majority, 3))

	assert.Contains(t, md, "# Council: Caching")
	assert.Contains(t, md, "**Objective:** Decide")
	assert.Contains(t, md, "- **The Diplomat** (")
	assert.Contains(t, md, "_mediator_")
	assert.Contains(t, md, "## Round 1")
	assert.Contains(t, md, "**The Diplomat (mediator):** Let's frame it.")
	assert.Contains(t, md, "**The Pragmatist:** _passed_")
	assert.Contains(t, md, "| The Pragmatist | AGREE | 0.90 | Cheap \\| fast |")
	assert.Contains(t, md, "| The Innovator | ABSTAIN (unparsed) | 0.50 | ? |")
	assert.Contains(t, md, "Consensus reached: Ship it")
}

func TestExportMarkdownWithoutConsensus(t *testing.T) {
	s := sampleSession("t")
	s.ConsensusReached = false
	s.FinalConsensus = nil
	assert.Contains(t, ExportMarkdown(Record{Session: s}), "No consensus.")

	s.FinalConsensus = model.StringPtr("maybe")
	assert.Contains(t, ExportMarkdown(Record{Session: s}), "No consensus. Last proposal: maybe")
}

func TestParseFormat(t *testing.T) {
	for raw, want := range map[string]Format{"": FormatJSON, "JSON": FormatJSON, "md": FormatMarkdown, "markdown": FormatMarkdown} {
		got, err := ParseFormat(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("pdf")
	assert.Error(t, err)
}
