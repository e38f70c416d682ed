package core

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stageBackend records spoken text and holds the detail stage until stopped.
type stageBackend struct {
	mu      sync.Mutex
	spoken  []string
	stops   int
	holding chan struct{}
}

func newStageBackend() *stageBackend {
	return &stageBackend{holding: make(chan struct{}, 1)}
}

func (b *stageBackend) Speak(ctx context.Context, text string) error {
	b.mu.Lock()
	b.spoken = append(b.spoken, text)
	b.mu.Unlock()
	if strings.HasPrefix(text, "Email from") {
		b.holding <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (b *stageBackend) Stop() error {
	b.mu.Lock()
	b.stops++
	b.mu.Unlock()
	return nil
}

func (b *stageBackend) said() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.spoken...)
}

func testItem() (*Item, *Decision) {
	return &Item{ID: "1", Sender: "shop@store.com", Subject: "Weekly deals"},
		&Decision{Action: ActionDiscard, Confidence: 0.7, Rationale: "appears to be marketing/newsletter content"}
}

func TestNotifierStages(t *testing.T) {
	n := NewNotifier(nil, NotifierConfig{StagePause: 500 * time.Millisecond, DetailPause: time.Second}, zap.NewNop())
	item, d := testItem()

	stages := n.Stages(item, d)
	require.Len(t, stages, 3)
	assert.Equal(t, "Should I discard", stages[0].Text)
	assert.Equal(t, 500*time.Millisecond, stages[0].Pause)
	assert.Equal(t, "Email from shop@store.com. Subject: Weekly deals.", stages[1].Text)
	assert.Equal(t, time.Second, stages[1].Pause)
	assert.Equal(t, d.Rationale, stages[2].Text)

	d.Rationale = strings.Repeat("x", 100)
	assert.Len(t, n.Stages(item, d), 2)
}

func TestInterruptDuringDetailSkipsRationale(t *testing.T) {
	backend := newStageBackend()
	n := NewNotifier(backend, NotifierConfig{Enabled: true}, zap.NewNop())
	item, d := testItem()

	n.Announce(context.Background(), item, d)
	select {
	case <-backend.holding:
	case <-time.After(time.Second):
		t.Fatal("detail stage never started")
	}
	n.Interrupt()
	require.True(t, n.Wait(time.Second))

	spoken := backend.said()
	require.Len(t, spoken, 2)
	assert.Equal(t, "Should I discard", spoken[0])
	for _, s := range spoken {
		assert.NotContains(t, s, "marketing")
	}
	assert.Equal(t, 1, backend.stops)
}

func TestNotifierDisabledIsSilent(t *testing.T) {
	backend := newStageBackend()
	n := NewNotifier(backend, NotifierConfig{Enabled: false}, zap.NewNop())
	item, d := testItem()

	n.Announce(context.Background(), item, d)
	n.AnnounceSummary(context.Background(), "hello")
	n.Interrupt()
	assert.True(t, n.Wait(10*time.Millisecond))
	assert.Empty(t, backend.said())
	assert.Zero(t, backend.stops)
}

func TestSummarySpeaksOnce(t *testing.T) {
	backend := newStageBackend()
	n := NewNotifier(backend, NotifierConfig{Enabled: true}, zap.NewNop())

	n.AnnounceSummary(context.Background(), "I'm confident about 2 emails")
	require.True(t, n.Wait(time.Second))
	assert.Equal(t, []string{"I'm confident about 2 emails"}, backend.said())
	require.NoError(t, n.Close())
}

func TestCleanSpeechText(t *testing.T) {
	assert.Equal(t, "a at b.com and c", CleanSpeechText("a@b.com & c"))
	assert.Equal(t, "50 percent off", CleanSpeechText("50%   off"))
	assert.Equal(t, "bold text", CleanSpeechText("**bold**\n\ttext"))

	long := CleanSpeechText(strings.Repeat("word ", 200))
	assert.Equal(t, 500, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "..."))
}
