package core

import (
	"context"
)

// PreferenceStore persists learned preferences and the decision log.
// Implementations wrap their failures with ErrStoreUnavailable.
type PreferenceStore interface {
	// Match returns every preference matching the item's sender, domain or subject tokens
	Match(ctx context.Context, item *Item) ([]Preference, error)

	// Reinforce inserts or strengthens the (kind, value, action) preference
	Reinforce(ctx context.Context, kind PatternKind, value string, action Action) (*Preference, error)

	// All returns preferences ordered by confidence then usage, both descending
	All(ctx context.Context) ([]Preference, error)

	// Set writes an operator-chosen preference with zero usage, replacing the
	// confidence and usage of an existing (kind, value, action) row
	Set(ctx context.Context, kind PatternKind, value string, action Action, confidence float64) (*Preference, error)

	// Delete removes the preference with id, or returns ErrPreferenceNotFound
	Delete(ctx context.Context, id int64) error

	// RecordDecision appends a confirmed decision to the log
	RecordDecision(ctx context.Context, rec *DecisionRecord) error

	// DecisionCounts summarises the decision log
	DecisionCounts(ctx context.Context) (*DecisionCounts, error)

	Close() error
}

// ExternalModel classifies an item given the learned preference context
type ExternalModel interface {
	Classify(ctx context.Context, req *ModelRequest) (*ModelVerdict, error)
}

// MessageRef identifies a message and the conversation it belongs to
type MessageRef struct {
	ID       string
	ThreadID string
}

// MailClient is the mail provider. Label arguments are label names.
type MailClient interface {
	List(ctx context.Context, query string, max int) ([]string, error)
	Get(ctx context.Context, id string) (*Item, error)
	Modify(ctx context.Context, id string, add, remove []string) error
	Trash(ctx context.Context, id string) error
	Search(ctx context.Context, query string, max int) ([]MessageRef, error)
	ThreadSize(ctx context.Context, threadID string) (int, error)
}

// DraftSink delivers erasure requests
type DraftSink interface {
	CreateDraft(ctx context.Context, draft ErasureDraft) error
}

// Unsubscriber follows an item's unsubscribe link
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, item *Item) error
}

// OptOutRegistry tracks opt-out requests per sender domain
type OptOutRegistry interface {
	// RecordRequest counts a request for the sender's domain. A registry that
	// counted the request but could not persist it returns the record and an error.
	RecordRequest(ctx context.Context, sender string) (*OptOutRecord, error)
	ErasureDraft(sender, subject string) ErasureDraft
	Stats(ctx context.Context) (*OptOutStats, error)
}

// SpeechBackend speaks text. Speak blocks until playback ends or ctx is done.
type SpeechBackend interface {
	Speak(ctx context.Context, text string) error
	Stop() error
}

// KeyReader reads one raw keypress
type KeyReader interface {
	ReadKey(ctx context.Context) (rune, error)
}

// Applier carries a confirmed decision out against the mail provider
type Applier interface {
	Apply(ctx context.Context, item *Item, d *Decision) error
}

// Console presents review state to the operator
type Console interface {
	ShowItem(pos, total int, item *Item, d *Decision)
	ShowAutoBatch(batch []ClassifiedItem, summary AutoSummary)
	Prompt(msg string)
	Notice(msg string)
	ShowStats(stats StatsSnapshot)
}
