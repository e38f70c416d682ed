package core

import (
	"fmt"
	"strings"
	"time"
)

// Action is a triage disposition or an operational action derived from one
type Action string

const (
	ActionDiscard Action = "discard"
	ActionDefer   Action = "defer"
	ActionActNow  Action = "act_now"

	ActionErasureRequest Action = "erasure_request"
	ActionMarkSpam       Action = "mark_spam"
	ActionBulkDiscard    Action = "bulk_discard"
)

// Dispositions lists the three base actions in display order
var Dispositions = []Action{ActionDiscard, ActionDefer, ActionActNow}

// Base returns the disposition an action is learned as.
func (a Action) Base() Action {
	switch a {
	case ActionErasureRequest, ActionMarkSpam, ActionBulkDiscard:
		return ActionDiscard
	}
	return a
}

// IsDisposition reports whether a is one of the three base actions
func (a Action) IsDisposition() bool {
	return a == ActionDiscard || a == ActionDefer || a == ActionActNow
}

// Spoken renders the action for a voice prompt
func (a Action) Spoken() string {
	return strings.ReplaceAll(string(a), "_", " ")
}

// ParseAction maps a free-form action name onto a base disposition.
// Mailbox-flavoured aliases are accepted since models tend to reply with them.
func ParseAction(s string) (Action, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "discard", "trash", "delete":
		return ActionDiscard, true
	case "defer", "revisit", "later":
		return ActionDefer, true
	case "act_now", "actnow", "action_needed", "action":
		return ActionActNow, true
	}
	return "", false
}

// Item is one inbound message awaiting triage. The core never mutates it.
type Item struct {
	ID              string
	ThreadID        string
	Sender          string
	Subject         string
	Snippet         string
	HasUnsubscribe  bool
	UnsubscribeLink string
	Labels          []string
	ReceivedAt      time.Time
}

// Domain returns the lower-cased part of the sender after the last '@'
func (i *Item) Domain() string {
	at := strings.LastIndexByte(i.Sender, '@')
	if at < 0 {
		return ""
	}
	return strings.ToLower(i.Sender[at+1:])
}

// Tier names the classifier stage (or operator) that produced a decision
type Tier string

const (
	TierLearned   Tier = "learned"
	TierModel     Tier = "model"
	TierHeuristic Tier = "heuristic"
	TierOperator  Tier = "operator"
)

// Decision is a proposed or confirmed disposition for one item
type Decision struct {
	ItemID        string
	Action        Action
	Confidence    float64
	Rationale     string
	Source        Tier
	SuggestedRule string
	Payload       *Payload
}

// Payload carries the data an operational action needs to be applied
type Payload struct {
	Erasure *ErasurePayload
	Bulk    *BulkPayload
}

// ErasurePayload accompanies erasure_request and mark_spam decisions
type ErasurePayload struct {
	Domain         string
	RequestCount   int
	RepeatOffender bool
	Draft          ErasureDraft
}

// ErasureDraft is a data erasure request addressed to a sender
type ErasureDraft struct {
	To        string
	Subject   string
	Body      string
	CreatedAt time.Time
}

// Message renders the draft as a plain-text RFC 822 message. from may be empty.
func (d ErasureDraft) Message(from string) []byte {
	var b strings.Builder
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	fmt.Fprintf(&b, "To: %s\r\n", d.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", d.Subject)
	if !d.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Date: %s\r\n", d.CreatedAt.Format(time.RFC1123Z))
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(strings.ReplaceAll(d.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// BulkPayload identifies the single-message threads a bulk discard targets
type BulkPayload struct {
	Sender  string
	Subject string
	ItemID  string
}

// ClassifiedItem pairs an item with its suggested decision
type ClassifiedItem struct {
	Item     *Item
	Decision *Decision
}

// PatternKind is the kind of item feature a preference matches on
type PatternKind string

const (
	PatternSender         PatternKind = "sender"
	PatternDomain         PatternKind = "domain"
	PatternSubjectKeyword PatternKind = "subject_keyword"
)

// ParsePatternKind maps a pattern kind name onto a PatternKind
func ParsePatternKind(s string) (PatternKind, bool) {
	switch k := PatternKind(strings.ToLower(strings.TrimSpace(s))); k {
	case PatternSender, PatternDomain, PatternSubjectKeyword:
		return k, true
	}
	return "", false
}

// NormalizePatternValue folds value the way the learner stores patterns of kind
func NormalizePatternValue(kind PatternKind, value string) string {
	value = strings.TrimSpace(value)
	if kind == PatternSubjectKeyword {
		return Fold(value)
	}
	return strings.ToLower(value)
}

// Preference is a learned pattern to action rule
type Preference struct {
	ID         int64
	Kind       PatternKind
	Value      string
	Action     Action
	Confidence float64
	UsageCount int
	CreatedAt  time.Time
}

// DecisionRecord is one row of the decision log
type DecisionRecord struct {
	ID         string
	ItemID     string
	Sender     string
	Subject    string
	Action     Action
	Rationale  string
	Confidence float64
	Auto       bool
	DecidedAt  time.Time
}

// DecisionCounts summarises the decision log
type DecisionCounts struct {
	Total    int
	Auto     int
	ByAction map[Action]int
}

// OptOutRecord is the ledger state for a sender domain after a request
type OptOutRecord struct {
	Domain         string
	RequestCount   int
	FirstRequest   time.Time
	LastRequest    time.Time
	RepeatOffender bool
}

// OptOutStats summarises the opt-out ledger
type OptOutStats struct {
	Domains         int
	RepeatOffenders int
	TotalRequests   int
}

// ModelRequest is what the external model tier sends to a model
type ModelRequest struct {
	Item        *Item
	Preferences []Preference
}

// ModelVerdict is the raw structured reply of an external model
type ModelVerdict struct {
	Action        string  `json:"action"`
	Confidence    float64 `json:"confidence"`
	Rationale     string  `json:"rationale"`
	SuggestedRule string  `json:"suggested_rule,omitempty"`
}
