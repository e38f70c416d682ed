package core

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Session is the per-run context shared by the pipeline and scheduler
type Session struct {
	ID        string
	StartedAt time.Time
	Stats     *SessionStats
}

// NewSession starts a new run
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:        NewID(now),
		StartedAt: now,
		Stats:     NewSessionStats(),
	}
}

// NewID returns a time-ordered unique identifier
func NewID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// SessionStats counts confirmed decisions for one run
type SessionStats struct {
	mu          sync.Mutex
	processed   int
	autoDecided int
	byAction    map[Action]int
}

// StatsSnapshot is a copy of SessionStats for reporting
type StatsSnapshot struct {
	Processed      int
	AutoDecided    int
	ByAction       map[Action]int
	AutomationRate float64
}

// NewSessionStats creates zeroed counters
func NewSessionStats() *SessionStats {
	return &SessionStats{byAction: make(map[Action]int)}
}

// Record counts one confirmed decision
func (s *SessionStats) Record(action Action, auto bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	s.byAction[action]++
	if auto {
		s.autoDecided++
	}
}

// Snapshot copies the counters
func (s *SessionStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := StatsSnapshot{
		Processed:   s.processed,
		AutoDecided: s.autoDecided,
		ByAction:    make(map[Action]int, len(s.byAction)),
	}
	for a, n := range s.byAction {
		snap.ByAction[a] = n
	}
	if s.processed > 0 {
		snap.AutomationRate = float64(s.autoDecided) / float64(s.processed) * 100
	}
	return snap
}
