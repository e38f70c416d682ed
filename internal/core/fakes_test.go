package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

type prefKey struct {
	kind   PatternKind
	value  string
	action Action
}

type fakeStore struct {
	mu        sync.Mutex
	prefs     map[prefKey]*Preference
	decisions []*DecisionRecord
	matchErr  error
	writeErr  error
	// failReinforceAt fails the nth Reinforce call (1-based) when non-zero
	failReinforceAt int
	reinforceCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{prefs: make(map[prefKey]*Preference)}
}

func (s *fakeStore) Match(_ context.Context, item *Item) ([]Preference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.matchErr != nil {
		return nil, s.matchErr
	}
	tokens := make(map[string]bool)
	for _, t := range SubjectTokens(item.Subject) {
		tokens[t] = true
	}
	var out []Preference
	for k, p := range s.prefs {
		switch {
		case k.kind == PatternSender && k.value == item.Sender,
			k.kind == PatternDomain && k.value == item.Domain(),
			k.kind == PatternSubjectKeyword && tokens[k.value]:
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakeStore) Reinforce(_ context.Context, kind PatternKind, value string, action Action) (*Preference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	s.reinforceCalls++
	if s.reinforceCalls == s.failReinforceAt {
		return nil, ErrStoreUnavailable
	}
	k := prefKey{kind, value, action}
	p, ok := s.prefs[k]
	if !ok {
		p = &Preference{Kind: kind, Value: value, Action: action, Confidence: 0.6, UsageCount: 1, CreatedAt: time.Now()}
		s.prefs[k] = p
	} else {
		p.Confidence = min(1.0, p.Confidence+0.1)
		p.UsageCount++
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) set(kind PatternKind, value string, action Action, confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[prefKey{kind, value, action}] = &Preference{Kind: kind, Value: value, Action: action, Confidence: confidence, UsageCount: 1}
}

func (s *fakeStore) get(kind PatternKind, value string, action Action) (Preference, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prefs[prefKey{kind, value, action}]
	if !ok {
		return Preference{}, false
	}
	return *p, true
}

func (s *fakeStore) All(_ context.Context) ([]Preference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Preference
	for _, p := range s.prefs {
		out = append(out, *p)
	}
	return out, nil
}

func (s *fakeStore) Set(_ context.Context, kind PatternKind, value string, action Action, confidence float64) (*Preference, error) {
	s.set(kind, value, action, confidence)
	p, _ := s.get(kind, value, action)
	return &p, nil
}

func (s *fakeStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, p := range s.prefs {
		if p.ID == id {
			delete(s.prefs, k)
			return nil
		}
	}
	return ErrPreferenceNotFound
}

func (s *fakeStore) RecordDecision(_ context.Context, rec *DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.decisions = append(s.decisions, rec)
	return nil
}

func (s *fakeStore) DecisionCounts(_ context.Context) (*DecisionCounts, error) {
	return &DecisionCounts{}, nil
}

func (s *fakeStore) Close() error { return nil }

type fakeModel struct {
	mu      sync.Mutex
	verdict *ModelVerdict
	err     error
	delay   time.Duration
	calls   int
	lastReq *ModelRequest
}

func (m *fakeModel) Classify(ctx context.Context, req *ModelRequest) (*ModelVerdict, error) {
	m.mu.Lock()
	m.calls++
	m.lastReq = req
	m.mu.Unlock()
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	return m.verdict, m.err
}

// scriptedKeys returns keys in order, then blocks until ctx is done.
type scriptedKeys struct {
	mu   sync.Mutex
	keys []rune
}

func keysOf(s string) *scriptedKeys { return &scriptedKeys{keys: []rune(s)} }

func (k *scriptedKeys) ReadKey(ctx context.Context) (rune, error) {
	k.mu.Lock()
	if len(k.keys) > 0 {
		r := k.keys[0]
		k.keys = k.keys[1:]
		k.mu.Unlock()
		return r, nil
	}
	k.mu.Unlock()
	<-ctx.Done()
	return 0, ctx.Err()
}

type fakeConsole struct {
	mu      sync.Mutex
	shown   []*Decision
	batches []AutoSummary
	notices []string
}

func (c *fakeConsole) ShowItem(_, _ int, _ *Item, d *Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *d
	c.shown = append(c.shown, &cp)
}

func (c *fakeConsole) ShowAutoBatch(_ []ClassifiedItem, s AutoSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, s)
}

func (c *fakeConsole) Prompt(string) {}

func (c *fakeConsole) Notice(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, msg)
}

func (c *fakeConsole) ShowStats(StatsSnapshot) {}

type fakeAnnouncer struct {
	mu         sync.Mutex
	announced  int
	summaries  int
	interrupts int
}

func (a *fakeAnnouncer) Announce(context.Context, *Item, *Decision) {
	a.mu.Lock()
	a.announced++
	a.mu.Unlock()
}

func (a *fakeAnnouncer) AnnounceSummary(context.Context, string) {
	a.mu.Lock()
	a.summaries++
	a.mu.Unlock()
}

func (a *fakeAnnouncer) Interrupt() {
	a.mu.Lock()
	a.interrupts++
	a.mu.Unlock()
}

type appliedDecision struct {
	item     *Item
	decision *Decision
}

type fakeApplier struct {
	mu      sync.Mutex
	applied []appliedDecision
	failFor string
}

func (a *fakeApplier) Apply(_ context.Context, item *Item, d *Decision) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if item.ID == a.failFor {
		return errors.New("mail provider rejected the change")
	}
	a.applied = append(a.applied, appliedDecision{item: item, decision: d})
	return nil
}

type fakeOptOut struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	now      time.Time
	err      error
	saveErr  error
}

func (o *fakeOptOut) RecordRequest(_ context.Context, sender string) (*OptOutRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	domain := (&Item{Sender: sender}).Domain()
	o.requests[domain] = append(o.requests[domain], o.now)
	reqs := o.requests[domain]
	return &OptOutRecord{
		Domain:         domain,
		RequestCount:   len(reqs),
		FirstRequest:   reqs[0],
		LastRequest:    o.now,
		RepeatOffender: len(reqs) >= 2 && o.now.Sub(reqs[0]) >= 7*24*time.Hour,
	}, o.saveErr
}

func (o *fakeOptOut) ErasureDraft(sender, subject string) ErasureDraft {
	return ErasureDraft{To: sender, Subject: "Re: " + subject, Body: "erase"}
}

func (o *fakeOptOut) Stats(context.Context) (*OptOutStats, error) { return &OptOutStats{}, nil }

// countingClassifier wraps a Classifier and counts ClassifyAll item calls.
type countingClassifier struct {
	inner *Classifier
	mu    sync.Mutex
	calls int
}

func (c *countingClassifier) ClassifyAll(ctx context.Context, items []*Item) ([]ClassifiedItem, error) {
	c.mu.Lock()
	c.calls += len(items)
	c.mu.Unlock()
	return c.inner.ClassifyAll(ctx, items)
}

func (c *countingClassifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
