package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Cfomodz/easemail/internal/metrics"
	"go.uber.org/zap"
)

// LearnedThreshold is the confidence a preference must exceed to decide an item
const LearnedThreshold = 0.7

// HeuristicRules are the keyword lists of the rule tier
type HeuristicRules struct {
	ImportantKeywords []string
	MarketingKeywords []string
}

// TierResult is the tagged outcome of one classifier tier. A nil Decision
// passes the item on to the next tier; Err is informational only.
type TierResult struct {
	Tier     Tier
	Decision *Decision
	Err      error
}

type tier func(ctx context.Context, item *Item) TierResult

// Classifier resolves a decision through an ordered chain of tiers:
// learned preference, external model when configured, then heuristics.
type Classifier struct {
	store        PreferenceStore
	model        ExternalModel
	rules        HeuristicRules
	modelTimeout time.Duration
	contextSize  int
	logger       *zap.Logger
	tiers        []tier
}

// ClassifierOption configures a Classifier
type ClassifierOption func(*Classifier)

// WithExternalModel engages a model tier ahead of the heuristics
func WithExternalModel(model ExternalModel, timeout time.Duration, contextSize int) ClassifierOption {
	return func(c *Classifier) {
		c.model = model
		c.modelTimeout = timeout
		c.contextSize = contextSize
	}
}

// NewClassifier creates a classifier
func NewClassifier(store PreferenceStore, rules HeuristicRules, logger *zap.Logger, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		store:        store,
		rules:        foldRules(rules),
		modelTimeout: 20 * time.Second,
		contextSize:  10,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.tiers = []tier{c.learnedTier}
	if c.model != nil {
		c.tiers = append(c.tiers, c.modelTier)
	}
	c.tiers = append(c.tiers, c.heuristicTier)
	return c
}

func foldRules(r HeuristicRules) HeuristicRules {
	fold := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, k := range in {
			if k = strings.TrimSpace(Fold(k)); k != "" {
				out = append(out, k)
			}
		}
		return out
	}
	return HeuristicRules{
		ImportantKeywords: fold(r.ImportantKeywords),
		MarketingKeywords: fold(r.MarketingKeywords),
	}
}

// Classify returns a decision for item. It never fails: tier errors are
// logged and the chain moves on.
func (c *Classifier) Classify(ctx context.Context, item *Item) *Decision {
	for _, t := range c.tiers {
		res := t(ctx, item)
		if res.Err != nil {
			c.logger.Warn("Classifier tier failed, falling back",
				zap.String("tier", string(res.Tier)),
				zap.String("item_id", item.ID),
				zap.Error(res.Err))
			metrics.TierFailuresTotal.WithLabelValues(string(res.Tier), failureReason(res.Err)).Inc()
		}
		if res.Decision != nil {
			metrics.ClassificationsTotal.WithLabelValues(string(res.Tier)).Inc()
			return res.Decision
		}
	}
	return &Decision{
		ItemID:     item.ID,
		Action:     ActionDefer,
		Confidence: 0.5,
		Rationale:  "uncertain classification, needs review",
		Source:     TierHeuristic,
	}
}

// ClassifyAll classifies items in order, stopping early if ctx is done
func (c *Classifier) ClassifyAll(ctx context.Context, items []*Item) ([]ClassifiedItem, error) {
	out := make([]ClassifiedItem, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out = append(out, ClassifiedItem{Item: item, Decision: c.Classify(ctx, item)})
	}
	return out, nil
}

func (c *Classifier) learnedTier(ctx context.Context, item *Item) TierResult {
	res := TierResult{Tier: TierLearned}
	if c.store == nil {
		return res
	}
	prefs, err := c.store.Match(ctx, item)
	if err != nil {
		res.Err = err
		return res
	}

	best, ok := bestPreference(prefs)
	if !ok || best.Confidence <= LearnedThreshold {
		return res
	}
	res.Decision = &Decision{
		ItemID:     item.ID,
		Action:     best.Action,
		Confidence: best.Confidence,
		Rationale:  fmt.Sprintf("learned preference: %s=%s", best.Kind, best.Value),
		Source:     TierLearned,
	}
	return res
}

func bestPreference(prefs []Preference) (Preference, bool) {
	var best Preference
	found := false
	for _, p := range prefs {
		if !found || p.Confidence > best.Confidence ||
			(p.Confidence == best.Confidence && p.UsageCount > best.UsageCount) {
			best = p
			found = true
		}
	}
	return best, found
}

func (c *Classifier) modelTier(ctx context.Context, item *Item) TierResult {
	res := TierResult{Tier: TierModel}

	req := &ModelRequest{Item: item}
	if c.store != nil {
		prefs, err := c.store.All(ctx)
		if err != nil {
			c.logger.Debug("Classifying without preference context", zap.Error(err))
		} else {
			if len(prefs) > c.contextSize {
				prefs = prefs[:c.contextSize]
			}
			req.Preferences = prefs
		}
	}

	mctx, cancel := context.WithTimeout(ctx, c.modelTimeout)
	defer cancel()

	start := time.Now()
	verdict, err := c.model.Classify(mctx, req)
	metrics.ModelLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, ErrMalformedReply) {
			res.Err = err
		} else {
			res.Err = fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		}
		return res
	}

	d, err := decisionFromVerdict(item, verdict)
	if err != nil {
		res.Err = err
		return res
	}
	res.Decision = d
	return res
}

func decisionFromVerdict(item *Item, v *ModelVerdict) (*Decision, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: empty verdict", ErrMalformedReply)
	}
	action, ok := ParseAction(v.Action)
	if !ok {
		return nil, fmt.Errorf("%w: unknown action %q", ErrMalformedReply, v.Action)
	}
	if math.IsNaN(v.Confidence) {
		return nil, fmt.Errorf("%w: confidence is not a number", ErrMalformedReply)
	}
	rationale := strings.TrimSpace(v.Rationale)
	if rationale == "" {
		rationale = "external model classification"
	}
	return &Decision{
		ItemID:        item.ID,
		Action:        action,
		Confidence:    math.Max(0, math.Min(1, v.Confidence)),
		Rationale:     rationale,
		Source:        TierModel,
		SuggestedRule: strings.TrimSpace(v.SuggestedRule),
	}, nil
}

func (c *Classifier) heuristicTier(_ context.Context, item *Item) TierResult {
	text := Fold(item.Subject + " " + item.Snippet)
	d := &Decision{ItemID: item.ID, Source: TierHeuristic}

	for _, kw := range c.rules.ImportantKeywords {
		if strings.Contains(text, kw) {
			d.Action = ActionActNow
			d.Confidence = 0.8
			d.Rationale = "contains important keywords"
			return TierResult{Tier: TierHeuristic, Decision: d}
		}
	}

	score := 0
	for _, kw := range c.rules.MarketingKeywords {
		if strings.Contains(text, kw) {
			score++
		}
	}
	if item.HasUnsubscribe || score >= 2 {
		d.Action = ActionDiscard
		d.Confidence = 0.7 + 0.1*float64(score)
		d.Rationale = "appears to be marketing/newsletter content"
		return TierResult{Tier: TierHeuristic, Decision: d}
	}

	d.Action = ActionDefer
	d.Confidence = 0.5
	d.Rationale = "uncertain classification, needs review"
	return TierResult{Tier: TierHeuristic, Decision: d}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrMalformedReply):
		return "malformed"
	case errors.Is(err, ErrModelUnavailable):
		return "unavailable"
	case errors.Is(err, ErrStoreUnavailable):
		return "store"
	default:
		return "other"
	}
}

// Close releases the external model's client, if it holds one
func (c *Classifier) Close() error {
	if closer, ok := c.model.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
