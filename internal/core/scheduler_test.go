package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sliceSource struct {
	mu      sync.Mutex
	batches [][]*Item
}

func (s *sliceSource) Next(_ context.Context, _ int) ([]*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batches) == 0 {
		return nil, nil
	}
	next := s.batches[0]
	s.batches = s.batches[1:]
	return next, nil
}

func makeItems(prefix string, n int) []*Item {
	items := make([]*Item, n)
	for i := range items {
		items[i] = &Item{ID: fmt.Sprintf("%s%02d", prefix, i), Sender: "a@b.com", Subject: "hello"}
	}
	return items
}

type recordingProcessor struct {
	mu      sync.Mutex
	order   []string
	chunks  int
	onChunk func(index int) error
}

func (p *recordingProcessor) ProcessChunk(_ context.Context, chunk []ClassifiedItem) error {
	p.mu.Lock()
	index := p.chunks
	p.chunks++
	for _, ci := range chunk {
		p.order = append(p.order, ci.Item.ID)
	}
	p.mu.Unlock()
	if p.onChunk != nil {
		return p.onChunk(index)
	}
	return nil
}

func TestSplitChunks(t *testing.T) {
	chunks := SplitChunks(makeItems("m", 12), 5)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 5)
	assert.Len(t, chunks[2], 2)
	assert.Equal(t, "m10", chunks[2][0].ID)
}

func TestPreparedChunksAreNotReclassified(t *testing.T) {
	items := makeItems("m", 15)
	classifier := &countingClassifier{inner: newTestClassifier(newFakeStore())}
	proc := &recordingProcessor{}
	proc.onChunk = func(index int) error {
		if index == 0 {
			assert.Eventually(t, func() bool { return classifier.count() == 15 }, time.Second, 5*time.Millisecond)
		}
		return nil
	}

	s := NewScheduler(&sliceSource{batches: [][]*Item{items}}, classifier, proc, nil,
		SchedulerConfig{FetchSize: 15, ChunkSize: 5, Background: true, JoinTimeout: time.Second}, zap.NewNop())

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 15, classifier.count())
	assert.Equal(t, 3, proc.chunks)
	assert.Equal(t, StateIdle, s.State())
}

func TestChunksProcessedInFetchOrder(t *testing.T) {
	classifier := &countingClassifier{inner: newTestClassifier(newFakeStore())}
	proc := &recordingProcessor{}
	s := NewScheduler(&sliceSource{batches: [][]*Item{makeItems("a", 12), makeItems("b", 3)}}, classifier, proc, nil,
		SchedulerConfig{FetchSize: 12, ChunkSize: 5, Background: true}, zap.NewNop())

	require.NoError(t, s.Run(context.Background()))

	var want []string
	for _, it := range append(makeItems("a", 12), makeItems("b", 3)...) {
		want = append(want, it.ID)
	}
	assert.Equal(t, want, proc.order)
	assert.Equal(t, 15, classifier.count())
}

func TestForegroundClassifiesWithoutWorker(t *testing.T) {
	classifier := &countingClassifier{inner: newTestClassifier(newFakeStore())}
	proc := &recordingProcessor{}
	proc.onChunk = func(index int) error {
		if index == 0 {
			assert.Equal(t, 5, classifier.count())
		}
		return nil
	}
	s := NewScheduler(&sliceSource{batches: [][]*Item{makeItems("m", 10)}}, classifier, proc, nil,
		SchedulerConfig{FetchSize: 10, ChunkSize: 5}, zap.NewNop())

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 10, classifier.count())
	assert.Equal(t, 2, proc.chunks)
}

// blockingClassifier classifies the first call and blocks on every later one.
type blockingClassifier struct {
	inner *Classifier
	mu    sync.Mutex
	calls int
}

func (c *blockingClassifier) ClassifyAll(ctx context.Context, items []*Item) ([]ClassifiedItem, error) {
	c.mu.Lock()
	c.calls++
	first := c.calls == 1
	c.mu.Unlock()
	if first {
		return c.inner.ClassifyAll(ctx, items)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestQuitStopsWorker(t *testing.T) {
	classifier := &blockingClassifier{inner: newTestClassifier(newFakeStore())}
	announcer := &fakeAnnouncer{}
	proc := &recordingProcessor{onChunk: func(int) error { return ErrQuit }}
	s := NewScheduler(&sliceSource{batches: [][]*Item{makeItems("m", 15)}}, classifier, proc, announcer,
		SchedulerConfig{FetchSize: 15, ChunkSize: 5, Background: true, JoinTimeout: 20 * time.Millisecond}, zap.NewNop())

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrQuit)
	assert.True(t, IsQuit(err))
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 1, proc.chunks)
	assert.Equal(t, 1, announcer.interrupts)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewScheduler(&sliceSource{batches: [][]*Item{makeItems("m", 3)}}, &countingClassifier{inner: newTestClassifier(newFakeStore())},
		&recordingProcessor{}, nil, SchedulerConfig{ChunkSize: 5}, zap.NewNop())

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsQuit(err))
}

func TestSchedulerStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "background_running", StateBackgroundRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
}

// pacedClassifier delays each chunk and counts successful classifications
// per item. failOnce makes the first attempt at a chunk starting with that
// item ID fail.
type pacedClassifier struct {
	inner    *Classifier
	delay    func(first string) time.Duration
	failOnce string

	mu     sync.Mutex
	failed bool
	counts map[string]int
}

func (c *pacedClassifier) ClassifyAll(ctx context.Context, items []*Item) ([]ClassifiedItem, error) {
	c.mu.Lock()
	fail := !c.failed && items[0].ID == c.failOnce
	if fail {
		c.failed = true
	}
	c.mu.Unlock()

	select {
	case <-time.After(c.delay(items[0].ID)):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if fail {
		return nil, fmt.Errorf("model crashed on %s", items[0].ID)
	}

	out, err := c.inner.ClassifyAll(ctx, items)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	for _, it := range items {
		c.counts[it.ID]++
	}
	c.mu.Unlock()
	return out, nil
}

func TestHandoffClassifiesEachItemOnce(t *testing.T) {
	items := makeItems("m", 20)
	var want []string
	for _, it := range items {
		want = append(want, it.ID)
	}

	cases := []struct {
		name     string
		classify time.Duration
		review   time.Duration
		failOnce string
	}{
		{name: "operator faster than worker", classify: 15 * time.Millisecond},
		{name: "worker faster than operator", classify: time.Millisecond, review: 5 * time.Millisecond},
		{name: "comparable pace", classify: 3 * time.Millisecond, review: 3 * time.Millisecond},
		{name: "worker dies mid-chunk", classify: time.Millisecond, review: 20 * time.Millisecond, failOnce: "m06"},
	}
	for _, tc := range cases {
		for variant := 0; variant < 5; variant++ {
			t.Run(fmt.Sprintf("%s/%d", tc.name, variant), func(t *testing.T) {
				classifier := &pacedClassifier{
					inner:    newTestClassifier(newFakeStore()),
					failOnce: tc.failOnce,
					counts:   make(map[string]int),
					delay: func(first string) time.Duration {
						// stagger chunks so the worker and the operator meet at different points
						var n int
						fmt.Sscanf(first, "m%d", &n)
						return tc.classify + time.Duration((n+variant)%3)*time.Millisecond
					},
				}
				proc := &recordingProcessor{onChunk: func(int) error {
					time.Sleep(tc.review)
					return nil
				}}
				s := NewScheduler(&sliceSource{batches: [][]*Item{items}}, classifier, proc, nil,
					SchedulerConfig{FetchSize: 20, ChunkSize: 2, Background: true, JoinTimeout: time.Second}, zap.NewNop())

				require.NoError(t, s.Run(context.Background()))
				assert.Equal(t, want, proc.order)
				for _, id := range want {
					assert.Equal(t, 1, classifier.counts[id], id)
				}
				assert.Equal(t, StateIdle, s.State())
			})
		}
	}
}

func newTestWorker(chunks int) *worker {
	return &worker{
		ready:   make(chan PreparedChunk, chunks),
		done:    make(chan struct{}),
		cancel:  func() {},
		current: -1,
	}
}

func TestClaimBeforeBeginFallsBackInline(t *testing.T) {
	w := newTestWorker(4)
	ready := make(map[int][]ClassifiedItem)

	assert.False(t, w.take(2, ready))
	assert.False(t, w.begin(1))
	assert.False(t, w.begin(2))
	assert.True(t, w.begin(3))
}

func TestTakeWaitsForChunkInProgress(t *testing.T) {
	w := newTestWorker(4)
	require.True(t, w.begin(1))

	go func() {
		time.Sleep(20 * time.Millisecond)
		w.ready <- PreparedChunk{Index: 1, Classified: []ClassifiedItem{{Item: &Item{ID: "x"}}}}
		w.finish()
	}()

	ready := make(map[int][]ClassifiedItem)
	require.True(t, w.take(1, ready))
	require.Len(t, ready[1], 1)
	assert.Equal(t, "x", ready[1][0].Item.ID)
	assert.False(t, w.begin(1))
}

func TestTakeFallsBackWhenWorkerDies(t *testing.T) {
	w := newTestWorker(4)
	require.True(t, w.begin(2))

	go func() {
		time.Sleep(20 * time.Millisecond)
		w.finish()
		close(w.ready)
	}()

	ready := make(map[int][]ClassifiedItem)
	assert.False(t, w.take(2, ready))
	assert.Empty(t, ready)
	assert.False(t, w.begin(2))
}
