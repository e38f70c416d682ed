package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Cfomodz/easemail/internal/core"
	"go.uber.org/zap"
)

type patternKey struct {
	kind   core.PatternKind
	value  string
	action core.Action
}

// MemoryStore is an in-memory implementation of core.PreferenceStore.
// Everything it learns is lost when the process exits.
type MemoryStore struct {
	mu        sync.RWMutex
	prefs     map[patternKey]*core.Preference
	decisions []core.DecisionRecord
	nextID    int64
	logger    *zap.Logger
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		prefs:  make(map[patternKey]*core.Preference),
		logger: logger,
	}
}

// Match returns preferences for the item's sender, domain and subject tokens
func (s *MemoryStore) Match(_ context.Context, item *core.Item) ([]core.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := map[core.PatternKind]map[string]bool{
		core.PatternSender:         {item.Sender: item.Sender != ""},
		core.PatternDomain:         {item.Domain(): item.Domain() != ""},
		core.PatternSubjectKeyword: {},
	}
	for _, t := range core.SubjectTokens(item.Subject) {
		wanted[core.PatternSubjectKeyword][t] = true
	}

	var out []core.Preference
	for k, p := range s.prefs {
		if wanted[k.kind][k.value] {
			out = append(out, *p)
		}
	}
	return out, nil
}

// Reinforce creates or strengthens one preference
func (s *MemoryStore) Reinforce(_ context.Context, kind core.PatternKind, value string, action core.Action) (*core.Preference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := patternKey{kind: kind, value: value, action: action}
	p, ok := s.prefs[k]
	if !ok {
		s.nextID++
		p = &core.Preference{
			ID:         s.nextID,
			Kind:       kind,
			Value:      value,
			Action:     action,
			Confidence: initialConfidence,
			UsageCount: 1,
			CreatedAt:  time.Now().UTC(),
		}
		s.prefs[k] = p
	} else {
		p.Confidence = min(1.0, p.Confidence+reinforceIncrement)
		p.UsageCount++
	}
	cp := *p
	return &cp, nil
}

// Set writes an operator-chosen preference with zero usage
func (s *MemoryStore) Set(_ context.Context, kind core.PatternKind, value string, action core.Action, confidence float64) (*core.Preference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := patternKey{kind: kind, value: value, action: action}
	p, ok := s.prefs[k]
	if !ok {
		s.nextID++
		p = &core.Preference{
			ID:        s.nextID,
			Kind:      kind,
			Value:     value,
			Action:    action,
			CreatedAt: time.Now().UTC(),
		}
		s.prefs[k] = p
	}
	p.Confidence = confidence
	p.UsageCount = 0
	cp := *p
	return &cp, nil
}

// Delete removes the preference with id
func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, p := range s.prefs {
		if p.ID == id {
			delete(s.prefs, k)
			return nil
		}
	}
	return fmt.Errorf("delete preference %d: %w", id, core.ErrPreferenceNotFound)
}

// All lists every preference, strongest first
func (s *MemoryStore) All(_ context.Context) ([]core.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Preference, 0, len(s.prefs))
	for _, p := range s.prefs {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// RecordDecision appends to the decision log
func (s *MemoryStore) RecordDecision(_ context.Context, rec *core.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, *rec)
	return nil
}

// DecisionCounts summarises the decision log by action
func (s *MemoryStore) DecisionCounts(_ context.Context) (*core.DecisionCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := &core.DecisionCounts{ByAction: make(map[core.Action]int)}
	for _, d := range s.decisions {
		counts.Total++
		counts.ByAction[d.Action]++
		if d.Auto {
			counts.Auto++
		}
	}
	return counts, nil
}

// Close logs how much was learned; nothing is persisted
func (s *MemoryStore) Close() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.logger.Debug("Discarding in-memory preferences", zap.Int("preferences", len(s.prefs)), zap.Int("decisions", len(s.decisions)))
	return nil
}
