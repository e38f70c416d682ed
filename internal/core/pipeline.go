package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Cfomodz/easemail/internal/metrics"
	"go.uber.org/zap"
)

// VeryHighConfidence is the upper band shown in auto-batch summaries
const VeryHighConfidence = 0.95

// Announcer speaks suggestions while the operator decides
type Announcer interface {
	Announce(ctx context.Context, item *Item, d *Decision)
	AnnounceSummary(ctx context.Context, text string)
	Interrupt()
}

// AutoSummary describes a batch awaiting one confirmation
type AutoSummary struct {
	Total     int
	ByAction  map[Action]int
	VeryHigh  int
	High      int
	Threshold float64
}

// Spoken renders the summary for a voice prompt
func (s AutoSummary) Spoken() string {
	actions := make([]string, 0, len(s.ByAction))
	for a := range s.ByAction {
		actions = append(actions, string(a))
	}
	sort.Strings(actions)
	parts := make([]string, 0, len(actions))
	for _, a := range actions {
		parts = append(parts, fmt.Sprintf("%d %s", s.ByAction[Action(a)], Action(a).Spoken()))
	}
	return fmt.Sprintf("I'm confident about %d emails: %s. Apply them?", s.Total, strings.Join(parts, ", "))
}

// Summarize builds the auto-batch summary
func Summarize(batch []ClassifiedItem, threshold float64) AutoSummary {
	s := AutoSummary{Total: len(batch), ByAction: make(map[Action]int), Threshold: threshold}
	for _, ci := range batch {
		s.ByAction[ci.Decision.Action]++
		if ci.Decision.Confidence >= VeryHighConfidence {
			s.VeryHigh++
		} else {
			s.High++
		}
	}
	return s
}

// Partition splits a chunk into auto-applicable and manual-review items,
// preserving chunk order within each.
func Partition(chunk []ClassifiedItem, threshold float64) (auto, manual []ClassifiedItem) {
	for _, ci := range chunk {
		if ci.Decision.Confidence >= threshold {
			auto = append(auto, ci)
		} else {
			manual = append(manual, ci)
		}
	}
	return auto, manual
}

// Pipeline drives one chunk at a time through confirmation, learning and apply.
type Pipeline struct {
	learner   *Learner
	announcer Announcer
	keys      KeyReader
	console   Console
	applier   Applier
	optOut    OptOutRegistry
	session   *Session
	threshold float64
	logger    *zap.Logger
}

// NewPipeline creates a pipeline. optOut and applier may be nil.
func NewPipeline(
	learner *Learner,
	announcer Announcer,
	keys KeyReader,
	console Console,
	applier Applier,
	optOut OptOutRegistry,
	session *Session,
	threshold float64,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		learner:   learner,
		announcer: announcer,
		keys:      keys,
		console:   console,
		applier:   applier,
		optOut:    optOut,
		session:   session,
		threshold: threshold,
		logger:    logger,
	}
}

// ProcessChunk confirms, learns and applies every decision of an already
// classified chunk. It returns ErrQuit once the operator quits; decisions
// confirmed before that point have already been applied.
func (p *Pipeline) ProcessChunk(ctx context.Context, chunk []ClassifiedItem) error {
	auto, manual := Partition(chunk, p.threshold)

	if len(auto) > 0 {
		summary := Summarize(auto, p.threshold)
		p.console.ShowAutoBatch(auto, summary)
		p.announcer.AnnounceSummary(ctx, summary.Spoken())

		approved, err := p.confirmBatch(ctx, len(auto))
		if err != nil {
			return err
		}
		if approved {
			for _, ci := range auto {
				p.commit(ctx, ci.Item, ci.Decision, true)
			}
		} else {
			p.logger.Info("Auto batch rejected, reverting to manual review", zap.Int("items", len(auto)))
			manual = chunk
		}
	}

	for i, ci := range manual {
		d, err := p.review(ctx, i+1, len(manual), ci)
		if err != nil {
			return err
		}
		p.commit(ctx, ci.Item, d, false)
	}
	return nil
}

func (p *Pipeline) confirmBatch(ctx context.Context, n int) (bool, error) {
	defer p.announcer.Interrupt()
	for {
		p.console.Prompt(fmt.Sprintf("Apply these %d decisions? [y/n] ", n))
		r, err := p.keys.ReadKey(ctx)
		p.announcer.Interrupt()
		if err != nil {
			return false, err
		}
		switch ParseConfirmKey(r) {
		case KeyYes:
			return true, nil
		case KeyNo:
			return false, nil
		case KeyQuit:
			return false, ErrQuit
		default:
			p.console.Notice("Please press y or n.")
		}
	}
}

// review announces one item and blocks for the operator's keypress.
func (p *Pipeline) review(ctx context.Context, pos, total int, ci ClassifiedItem) (*Decision, error) {
	p.console.ShowItem(pos, total, ci.Item, ci.Decision)
	p.announcer.Announce(ctx, ci.Item, ci.Decision)
	defer p.announcer.Interrupt()

	rejected := false
	for {
		if rejected {
			p.console.Prompt("Choose: [9] discard [5] defer [1] act now [0] opt-out [-] bulk discard [q] quit ")
		} else {
			p.console.Prompt("[Enter] accept [Space] reject [9/5/1] discard/defer/act now [0] opt-out [-] bulk [q] quit ")
		}

		r, err := p.keys.ReadKey(ctx)
		p.announcer.Interrupt()
		if err != nil {
			return nil, err
		}

		cmd := ParseReviewKey(r)
		if action, ok := cmd.Action(); ok {
			return p.override(ci, action), nil
		}
		switch cmd {
		case KeyAccept:
			if rejected {
				p.console.Notice("Suggestion rejected; choose an action.")
				continue
			}
			accepted := *ci.Decision
			return &accepted, nil
		case KeyReject:
			rejected = true
		case KeyOptOut:
			return p.optOutDecision(ctx, ci.Item), nil
		case KeyBulkDiscard:
			return bulkDecision(ci.Item), nil
		case KeyQuit:
			return nil, ErrQuit
		default:
			p.console.Notice(fmt.Sprintf("%v %q", ErrInvalidKey, r))
		}
	}
}

func (p *Pipeline) override(ci ClassifiedItem, action Action) *Decision {
	if action == ci.Decision.Action {
		accepted := *ci.Decision
		return &accepted
	}
	return &Decision{
		ItemID:     ci.Item.ID,
		Action:     action,
		Confidence: 1.0,
		Rationale:  fmt.Sprintf("operator chose %s over %s", action.Spoken(), ci.Decision.Action.Spoken()),
		Source:     TierOperator,
	}
}

func (p *Pipeline) optOutDecision(ctx context.Context, item *Item) *Decision {
	if p.optOut == nil {
		return &Decision{
			ItemID:     item.ID,
			Action:     ActionDiscard,
			Confidence: 1.0,
			Rationale:  "opt-out requested but unavailable",
			Source:     TierOperator,
		}
	}

	rec, err := p.optOut.RecordRequest(ctx, item.Sender)
	if err != nil {
		p.logger.Warn("Failed to record opt-out request", zap.String("sender", item.Sender), zap.Error(err))
	}
	if rec == nil {
		rec = &OptOutRecord{Domain: item.Domain(), RequestCount: 1}
	}

	d := &Decision{
		ItemID:     item.ID,
		Action:     ActionErasureRequest,
		Confidence: 1.0,
		Rationale:  "data erasure requested",
		Source:     TierOperator,
		Payload: &Payload{Erasure: &ErasurePayload{
			Domain:         rec.Domain,
			RequestCount:   rec.RequestCount,
			RepeatOffender: rec.RepeatOffender,
			Draft:          p.optOut.ErasureDraft(item.Sender, item.Subject),
		}},
	}
	if rec.RepeatOffender {
		d.Action = ActionMarkSpam
		d.Rationale = fmt.Sprintf("repeat opt-out offender: %d requests to %s", rec.RequestCount, rec.Domain)
	}
	return d
}

func bulkDecision(item *Item) *Decision {
	return &Decision{
		ItemID:     item.ID,
		Action:     ActionBulkDiscard,
		Confidence: 1.0,
		Rationale:  "bulk discard of single-message threads with the same sender and subject",
		Source:     TierOperator,
		Payload: &Payload{Bulk: &BulkPayload{
			Sender:  item.Sender,
			Subject: item.Subject,
			ItemID:  item.ID,
		}},
	}
}

// commit learns, counts and applies a confirmed decision. Failures are per item.
func (p *Pipeline) commit(ctx context.Context, item *Item, d *Decision, auto bool) {
	if err := p.learner.Learn(ctx, item, d, auto); err != nil {
		metrics.LearningFailuresTotal.Inc()
		p.logger.Warn("Skipping learning for item",
			zap.String("item_id", item.ID),
			zap.Bool("store_unavailable", errors.Is(err, ErrStoreUnavailable)),
			zap.Error(err))
	}

	p.session.Stats.Record(d.Action, auto)
	mode := "manual"
	if auto {
		mode = "auto"
	}
	metrics.DecisionsTotal.WithLabelValues(string(d.Action), mode).Inc()

	if p.applier == nil {
		return
	}
	if err := p.applier.Apply(ctx, item, d); err != nil {
		metrics.ApplyFailuresTotal.WithLabelValues(string(d.Action)).Inc()
		p.logger.Error("Failed to apply decision",
			zap.String("item_id", item.ID),
			zap.String("action", string(d.Action)),
			zap.Error(err))
		p.console.Notice(fmt.Sprintf("Could not apply %s to %q", d.Action.Spoken(), item.Subject))
	}
}
