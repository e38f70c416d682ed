package utils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Cfomodz/easemail/internal/core"
)

// SystemPrompt is sent as the system message where a provider supports one
const SystemPrompt = "You are an email triage assistant. Respond only with JSON."

// TriagePrompt renders the classification request for one item. The
// snippet is passed through the text processor and cut to maxSnippet bytes.
func (tp *TextProcessor) TriagePrompt(req *core.ModelRequest, maxSnippet int) string {
	item := req.Item

	var prefs strings.Builder
	for _, p := range req.Preferences {
		fmt.Fprintf(&prefs, "- %s:%s -> %s (confidence: %.2f)\n", p.Kind, p.Value, p.Action, p.Confidence)
	}
	if prefs.Len() == 0 {
		prefs.WriteString("- none yet\n")
	}

	return fmt.Sprintf(`Classify this email into exactly one of three categories:
1. "discard" - marketing, spam, newsletters or notifications that can be safely ignored
2. "defer" - might matter but is not urgent; review later when the inbox is clean
3. "act_now" - needs a human response or action soon

Email:
- Sender: %s
- Subject: %s
- Snippet: %s
- Has unsubscribe link: %t

Learned preferences (strongest first):
%s
Respond only with a JSON object:
{"action": "discard|defer|act_now", "confidence": 0.0-1.0, "rationale": "brief explanation", "suggested_rule": "optional rule for similar emails"}`,
		item.Sender,
		item.Subject,
		tp.ProcessText(item.Snippet, maxSnippet),
		item.HasUnsubscribe,
		prefs.String(),
	)
}

type verdictReply struct {
	Action        string   `json:"action"`
	Confidence    *float64 `json:"confidence"`
	Rationale     string   `json:"rationale"`
	Reasoning     string   `json:"reasoning"`
	SuggestedRule string   `json:"suggested_rule"`
}

// ParseVerdict decodes a model reply, tolerating prose or code fences around
// the JSON object. Failures wrap core.ErrMalformedReply.
func ParseVerdict(text string) (*core.ModelVerdict, error) {
	raw := ExtractJSON(text)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object in reply", core.ErrMalformedReply)
	}

	var reply verdictReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrMalformedReply, err)
	}
	if reply.Action == "" {
		return nil, fmt.Errorf("%w: missing action", core.ErrMalformedReply)
	}
	if reply.Confidence == nil {
		return nil, fmt.Errorf("%w: missing confidence", core.ErrMalformedReply)
	}
	v := &core.ModelVerdict{
		Action:        reply.Action,
		Confidence:    *reply.Confidence,
		Rationale:     reply.Rationale,
		SuggestedRule: reply.SuggestedRule,
	}
	if v.Rationale == "" {
		v.Rationale = reply.Reasoning
	}
	return v, nil
}

// ExtractJSON returns the outermost {...} span of text, or "" if none
func ExtractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}
