package utils

import (
	"strings"
	"testing"

	"github.com/Cfomodz/easemail/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseVerdict(t *testing.T) {
	v, err := ParseVerdict("Sure! ```json\n{\"action\": \"defer\", \"confidence\": 0.8, \"rationale\": \"receipt\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "defer", v.Action)
	assert.InDelta(t, 0.8, v.Confidence, 1e-9)
	assert.Equal(t, "receipt", v.Rationale)
}

func TestParseVerdictAcceptsReasoningKey(t *testing.T) {
	v, err := ParseVerdict(`{"action": "trash", "confidence": 0.9, "reasoning": "promo", "suggested_rule": "trash shop.com"}`)
	require.NoError(t, err)
	assert.Equal(t, "promo", v.Rationale)
	assert.Equal(t, "trash shop.com", v.SuggestedRule)
}

func TestParseVerdictMalformed(t *testing.T) {
	for _, reply := range []string{"", "no json here", `{"action": `, `{"confidence": 0.5}`,
		`{"action": "discard", "rationale": "no score"}`, `{"action": "discard", "confidence": null}`} {
		_, err := ParseVerdict(reply)
		assert.ErrorIs(t, err, core.ErrMalformedReply, reply)
	}
}

func TestParseVerdictKeepsZeroConfidence(t *testing.T) {
	v, err := ParseVerdict(`{"action": "defer", "confidence": 0}`)
	require.NoError(t, err)
	assert.Zero(t, v.Confidence)
}

func TestTriagePrompt(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())
	prompt := tp.TriagePrompt(&core.ModelRequest{
		Item: &core.Item{Sender: "a@x.com", Subject: "Hello", Snippet: strings.Repeat("s", 50), HasUnsubscribe: true},
		Preferences: []core.Preference{
			{Kind: core.PatternDomain, Value: "x.com", Action: core.ActionDiscard, Confidence: 0.9},
		},
	}, 10)

	assert.Contains(t, prompt, "- Sender: a@x.com")
	assert.Contains(t, prompt, "- Has unsubscribe link: true")
	assert.Contains(t, prompt, "- domain:x.com -> discard (confidence: 0.90)")
	assert.Contains(t, prompt, "ssssssssss"+truncationMarker)
	assert.NotContains(t, prompt, strings.Repeat("s", 11))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())
	out := tp.TruncateText("héllo", 2)
	assert.Equal(t, "h"+truncationMarker, out)
	assert.Equal(t, "abc", tp.ProcessText("a\xffbc", 0))
}
