package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Cfomodz/easemail/internal/metrics"
	"go.uber.org/zap"
)

// SchedulerState is the lifecycle state of the background worker
type SchedulerState int32

const (
	StateIdle SchedulerState = iota
	StateBackgroundRunning
	StateStopping
)

func (s SchedulerState) String() string {
	switch s {
	case StateBackgroundRunning:
		return "background_running"
	case StateStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// ItemSource yields the next fetch chunk; an empty result ends the run
type ItemSource interface {
	Next(ctx context.Context, max int) ([]*Item, error)
}

// ChunkClassifier classifies a chunk in order
type ChunkClassifier interface {
	ClassifyAll(ctx context.Context, items []*Item) ([]ClassifiedItem, error)
}

// ChunkProcessor handles operator interaction for one classified chunk
type ChunkProcessor interface {
	ProcessChunk(ctx context.Context, chunk []ClassifiedItem) error
}

// SchedulerConfig sizes fetch and process chunks
type SchedulerConfig struct {
	FetchSize   int
	ChunkSize   int
	Background  bool
	JoinTimeout time.Duration
}

// PreparedChunk is a chunk classified ahead of review
type PreparedChunk struct {
	Index      int
	Classified []ClassifiedItem
}

// Scheduler overlaps classification of upcoming chunks with review of the
// current one. At most one background worker exists per fetch chunk.
type Scheduler struct {
	source     ItemSource
	classifier ChunkClassifier
	processor  ChunkProcessor
	announcer  Announcer
	cfg        SchedulerConfig
	logger     *zap.Logger
	state      atomic.Int32
}

// NewScheduler creates a scheduler. announcer may be nil.
func NewScheduler(
	source ItemSource,
	classifier ChunkClassifier,
	processor ChunkProcessor,
	announcer Announcer,
	cfg SchedulerConfig,
	logger *zap.Logger,
) *Scheduler {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 5
	}
	if cfg.FetchSize < cfg.ChunkSize {
		cfg.FetchSize = cfg.ChunkSize
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 2 * time.Second
	}
	return &Scheduler{
		source:     source,
		classifier: classifier,
		processor:  processor,
		announcer:  announcer,
		cfg:        cfg,
		logger:     logger,
	}
}

// State reports the worker lifecycle state
func (s *Scheduler) State() SchedulerState {
	return SchedulerState(s.state.Load())
}

// Run reviews fetch chunks until the source is exhausted, the operator
// quits (ErrQuit) or ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	defer func() {
		if s.announcer != nil {
			s.announcer.Interrupt()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		items, err := s.source.Next(ctx, s.cfg.FetchSize)
		if err != nil {
			return fmt.Errorf("fetch items: %w", err)
		}
		if len(items) == 0 {
			s.logger.Info("No more items to triage")
			return nil
		}
		s.logger.Debug("Fetched chunk", zap.Int("items", len(items)))
		if err := s.runFetchChunk(ctx, items); err != nil {
			return err
		}
	}
}

func (s *Scheduler) runFetchChunk(ctx context.Context, items []*Item) error {
	chunks := SplitChunks(items, s.cfg.ChunkSize)

	first, err := s.classifier.ClassifyAll(ctx, chunks[0])
	if err != nil {
		return err
	}

	var w *worker
	if s.cfg.Background && len(chunks) > 1 {
		w = s.startWorker(ctx, chunks)
		defer s.stopWorker(w)
	}

	ready := make(map[int][]ClassifiedItem)
	for k := range chunks {
		var classified []ClassifiedItem
		switch {
		case k == 0:
			classified = first
			metrics.ChunksTotal.WithLabelValues("sync").Inc()
		case w != nil && w.take(k, ready):
			classified = ready[k]
			delete(ready, k)
			metrics.ChunksTotal.WithLabelValues("prepared").Inc()
			s.logger.Debug("Using pre-classified chunk", zap.Int("chunk", k))
		default:
			classified, err = s.classifier.ClassifyAll(ctx, chunks[k])
			if err != nil {
				return err
			}
			metrics.ChunksTotal.WithLabelValues("inline").Inc()
		}

		if err := s.processor.ProcessChunk(ctx, classified); err != nil {
			return err
		}
	}
	return nil
}

// SplitChunks splits items into consecutive chunks of at most size items
func SplitChunks(items []*Item, size int) [][]*Item {
	var chunks [][]*Item
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// worker pre-classifies chunks 1..n-1 of a fetch chunk and hands each
// one to the foreground over ready.
type worker struct {
	ready  chan PreparedChunk
	stop   atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	claimed int
	current int
}

func (s *Scheduler) startWorker(parent context.Context, chunks [][]*Item) *worker {
	ctx, cancel := context.WithCancel(parent)
	w := &worker{
		ready:   make(chan PreparedChunk, len(chunks)),
		cancel:  cancel,
		done:    make(chan struct{}),
		current: -1,
	}
	s.state.Store(int32(StateBackgroundRunning))

	go func() {
		defer close(w.done)
		defer close(w.ready)
		for j := 1; j < len(chunks); j++ {
			if w.stop.Load() {
				return
			}
			if !w.begin(j) {
				continue
			}
			classified, err := s.classifier.ClassifyAll(ctx, chunks[j])
			if err != nil {
				s.logger.Debug("Background classification stopped", zap.Int("chunk", j), zap.Error(err))
				w.finish()
				return
			}
			w.ready <- PreparedChunk{Index: j, Classified: classified}
			w.finish()
		}
	}()
	return w
}

func (s *Scheduler) stopWorker(w *worker) {
	s.state.Store(int32(StateStopping))
	w.stop.Store(true)

	timer := time.NewTimer(s.cfg.JoinTimeout)
	defer timer.Stop()
	select {
	case <-w.done:
	case <-timer.C:
		metrics.WorkerJoinTimeouts.Inc()
		s.logger.Warn("Background worker did not stop in time", zap.Duration("timeout", s.cfg.JoinTimeout))
	}
	w.cancel()
	s.state.Store(int32(StateIdle))
}

// begin marks chunk j as in progress unless the foreground already claimed it
func (w *worker) begin(j int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if j <= w.claimed {
		return false
	}
	w.current = j
	return true
}

func (w *worker) finish() {
	w.mu.Lock()
	w.current = -1
	w.mu.Unlock()
}

// claim gives chunk k to the foreground. It reports whether the worker is
// classifying k right now, in which case the foreground should wait for it.
func (w *worker) claim(k int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == k {
		return true
	}
	if k > w.claimed {
		w.claimed = k
	}
	return false
}

// take moves published chunks into ready and reports whether chunk k is
// available, waiting only if the worker is mid-way through k.
func (w *worker) take(k int, ready map[int][]ClassifiedItem) bool {
	w.drain(ready)
	if _, ok := ready[k]; ok {
		return true
	}
	if !w.claim(k) {
		// k was either never begun or already published before finish
		w.drain(ready)
		_, ok := ready[k]
		return ok
	}
	for p := range w.ready {
		ready[p.Index] = p.Classified
		if p.Index >= k {
			break
		}
	}
	_, ok := ready[k]
	if !ok {
		w.claim(k)
	}
	return ok
}

func (w *worker) drain(ready map[int][]ClassifiedItem) {
	for {
		select {
		case p, ok := <-w.ready:
			if !ok {
				return
			}
			ready[p.Index] = p.Classified
		default:
			return
		}
	}
}

// IsQuit reports whether err ended a run at the operator's request
func IsQuit(err error) bool {
	return errors.Is(err, ErrQuit) || errors.Is(err, context.Canceled)
}
