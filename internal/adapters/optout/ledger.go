package optout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Cfomodz/easemail/internal/core"
	"go.uber.org/zap"
)

const (
	replyPrefix   = "Re: "
	erasureSuffix = " - Data Erasure Request"
)

const erasureBody = `To whom it may concern,

Under Article 17 of the General Data Protection Regulation (GDPR) I request the immediate erasure of all personal data you hold about me. Any consent I may have given for processing that data is withdrawn.

If the data has been made public or shared, please take all reasonable steps to erase every link, copy or replication of it, including data from which information about me can be derived.

To identify me, use the email address your message was sent to.

Please confirm once the erasure is complete.
`

// entry is the persisted state for one sender domain
type entry struct {
	RequestCount int         `json:"request_count"`
	FirstRequest time.Time   `json:"first_request"`
	LastRequest  time.Time   `json:"last_request"`
	Senders      []string    `json:"senders,omitempty"`
	Requests     []time.Time `json:"requests"`
}

// Ledger is a JSON file recording opt-out requests per sender domain.
// A domain becomes a repeat offender once it has at least two requests
// spanning repeatAfter or more.
type Ledger struct {
	path        string
	repeatAfter time.Duration
	now         func() time.Time
	logger      *zap.Logger

	mu      sync.Mutex
	domains map[string]*entry
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger loads the ledger at path, starting empty if it does not exist
func NewLedger(path string, repeatAfter time.Duration, logger *zap.Logger, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		path:        path,
		repeatAfter: repeatAfter,
		now:         time.Now,
		logger:      logger,
		domains:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(l)
	}

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("read opt-out ledger: %w", err)
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &l.domains); err != nil {
			return nil, fmt.Errorf("parse opt-out ledger %s: %w", path, err)
		}
	}
	return l, nil
}

// RecordRequest counts an opt-out request against the sender's domain and
// persists the ledger.
func (l *Ledger) RecordRequest(_ context.Context, sender string) (*core.OptOutRecord, error) {
	domain := (&core.Item{Sender: strings.ToLower(sender)}).Domain()
	if domain == "" {
		domain = strings.ToLower(sender)
	}
	now := l.now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.domains[domain]
	if !ok {
		e = &entry{FirstRequest: now}
		l.domains[domain] = e
	}
	e.RequestCount++
	e.LastRequest = now
	e.Requests = append(e.Requests, now)
	if !contains(e.Senders, sender) {
		e.Senders = append(e.Senders, sender)
	}

	rec := l.record(domain, e)
	if err := l.save(); err != nil {
		return rec, fmt.Errorf("save opt-out ledger: %w", err)
	}
	l.logger.Info("Recorded opt-out request",
		zap.String("domain", domain),
		zap.Int("request_count", rec.RequestCount),
		zap.Bool("repeat_offender", rec.RepeatOffender))
	return rec, nil
}

func (l *Ledger) record(domain string, e *entry) *core.OptOutRecord {
	return &core.OptOutRecord{
		Domain:         domain,
		RequestCount:   e.RequestCount,
		FirstRequest:   e.FirstRequest,
		LastRequest:    e.LastRequest,
		RepeatOffender: e.RequestCount >= 2 && e.LastRequest.Sub(e.FirstRequest) >= l.repeatAfter,
	}
}

// ErasureDraft builds the erasure request addressed to sender
func (l *Ledger) ErasureDraft(sender, subject string) core.ErasureDraft {
	return core.ErasureDraft{
		To:        sender,
		Subject:   ErasureSubject(subject),
		Body:      erasureBody,
		CreatedAt: l.now(),
	}
}

// ErasureSubject replies to subject and marks it as an erasure request
// unless it already mentions one.
func ErasureSubject(subject string) string {
	s := strings.TrimSpace(subject)
	if !strings.HasPrefix(strings.ToLower(s), "re:") {
		s = replyPrefix + s
	}
	if !strings.Contains(strings.ToLower(s), "data erasure") {
		s += erasureSuffix
	}
	return s
}

// Stats summarises the ledger
func (l *Ledger) Stats(_ context.Context) (*core.OptOutStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := &core.OptOutStats{Domains: len(l.domains)}
	for domain, e := range l.domains {
		stats.TotalRequests += e.RequestCount
		if l.record(domain, e).RepeatOffender {
			stats.RepeatOffenders++
		}
	}
	return stats, nil
}

// save writes the ledger atomically. Callers hold l.mu.
func (l *Ledger) save() error {
	b, err := json.MarshalIndent(l.domains, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
