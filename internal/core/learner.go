package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Pattern is one item feature a confirmed decision is learned under
type Pattern struct {
	Kind  PatternKind
	Value string
}

// LearningPatterns returns the sender, the domain and up to keywords subject tokens
func LearningPatterns(item *Item, keywords int) []Pattern {
	var out []Pattern
	if item.Sender != "" {
		out = append(out, Pattern{Kind: PatternSender, Value: item.Sender})
	}
	if d := item.Domain(); d != "" {
		out = append(out, Pattern{Kind: PatternDomain, Value: d})
	}
	for _, kw := range LearnableKeywords(item.Subject, keywords) {
		out = append(out, Pattern{Kind: PatternSubjectKeyword, Value: kw})
	}
	return out
}

// Learner applies the reinforcement rule to confirmed decisions
type Learner struct {
	store    PreferenceStore
	keywords int
	logger   *zap.Logger
}

// NewLearner creates a learner that reinforces up to keywords subject tokens per item
func NewLearner(store PreferenceStore, keywords int, logger *zap.Logger) *Learner {
	if keywords < 0 {
		keywords = 0
	}
	return &Learner{store: store, keywords: keywords, logger: logger}
}

// Learn reinforces every pattern of item under the decision's base action
// and logs the decision. Callers must only pass confirmed decisions.
func (l *Learner) Learn(ctx context.Context, item *Item, d *Decision, auto bool) error {
	if l.store == nil {
		return fmt.Errorf("learn %s: %w", item.ID, ErrStoreUnavailable)
	}

	action := d.Action.Base()
	for _, p := range LearningPatterns(item, l.keywords) {
		if _, err := l.store.Reinforce(ctx, p.Kind, p.Value, action); err != nil {
			// patterns reinforced before the failure are kept; the item is
			// not logged as learned
			return fmt.Errorf("learn %s: reinforce %s=%s: %w", item.ID, p.Kind, p.Value, err)
		}
	}

	rec := &DecisionRecord{
		ID:         NewID(time.Now()),
		ItemID:     item.ID,
		Sender:     item.Sender,
		Subject:    item.Subject,
		Action:     d.Action,
		Rationale:  d.Rationale,
		Confidence: d.Confidence,
		Auto:       auto,
		DecidedAt:  time.Now(),
	}
	if err := l.store.RecordDecision(ctx, rec); err != nil {
		return fmt.Errorf("learn %s: record decision: %w", item.ID, err)
	}
	l.logger.Debug("Learned from decision",
		zap.String("item_id", item.ID),
		zap.String("action", string(action)),
		zap.Bool("auto", auto))
	return nil
}
