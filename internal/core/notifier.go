package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Cfomodz/easemail/internal/metrics"
	"go.uber.org/zap"
)

const (
	maxSpokenRationale = 100
	maxSpeechLength    = 500
)

// NotifierConfig controls spoken announcements
type NotifierConfig struct {
	Enabled     bool
	StagePause  time.Duration
	DetailPause time.Duration
}

// Stage is one segment of an announcement
type Stage struct {
	Text  string
	Pause time.Duration
}

// Notifier speaks staged announcements on a background goroutine. Every
// stage starts only after a locked check of the utterance context, and
// Interrupt cancels that context under the same lock, so no stage begins
// after Interrupt returns.
type Notifier struct {
	backend SpeechBackend
	cfg     NotifierConfig
	logger  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewNotifier creates a notifier. A nil backend disables speech.
func NewNotifier(backend SpeechBackend, cfg NotifierConfig, logger *zap.Logger) *Notifier {
	return &Notifier{backend: backend, cfg: cfg, logger: logger}
}

// Stages builds the three announcement segments for a suggestion
func (n *Notifier) Stages(item *Item, d *Decision) []Stage {
	stages := []Stage{
		{Text: fmt.Sprintf("Should I %s", d.Action.Spoken()), Pause: n.cfg.StagePause},
		{Text: fmt.Sprintf("Email from %s. Subject: %s.", item.Sender, item.Subject), Pause: n.cfg.DetailPause},
	}
	if r := strings.TrimSpace(d.Rationale); r != "" && utf8.RuneCountInString(r) < maxSpokenRationale {
		stages = append(stages, Stage{Text: r})
	}
	return stages
}

// Announce starts speaking a suggestion and returns immediately
func (n *Notifier) Announce(ctx context.Context, item *Item, d *Decision) {
	n.start(ctx, n.Stages(item, d))
}

// AnnounceSummary starts speaking a single-segment message
func (n *Notifier) AnnounceSummary(ctx context.Context, text string) {
	n.start(ctx, []Stage{{Text: text}})
}

func (n *Notifier) start(parent context.Context, stages []Stage) {
	if !n.cfg.Enabled || n.backend == nil {
		return
	}
	n.Interrupt()

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	n.mu.Lock()
	n.cancel = cancel
	n.done = done
	n.mu.Unlock()

	go n.run(ctx, stages, done)
}

func (n *Notifier) run(ctx context.Context, stages []Stage, done chan struct{}) {
	defer close(done)
	for i, st := range stages {
		if !n.mayStart(ctx) {
			return
		}
		if err := n.backend.Speak(ctx, CleanSpeechText(st.Text)); err != nil && ctx.Err() == nil {
			n.logger.Debug("Speech backend failed", zap.Int("stage", i+1), zap.Error(err))
		}
		if st.Pause <= 0 || i == len(stages)-1 {
			continue
		}
		timer := time.NewTimer(st.Pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (n *Notifier) mayStart(ctx context.Context) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return ctx.Err() == nil
}

// Interrupt stops the current utterance. Later stages of it never start.
func (n *Notifier) Interrupt() {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	var active bool
	if cancel != nil {
		select {
		case <-n.done:
		default:
			active = true
		}
		cancel()
	}
	n.mu.Unlock()

	if !active {
		return
	}
	metrics.NotificationsInterrupted.Inc()
	if err := n.backend.Stop(); err != nil {
		n.logger.Debug("Failed to stop speech backend", zap.Error(err))
	}
}

// Wait blocks until the current utterance ends or timeout elapses
func (n *Notifier) Wait(timeout time.Duration) bool {
	n.mu.Lock()
	done := n.done
	n.mu.Unlock()
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close interrupts any utterance and waits briefly for it to unwind
func (n *Notifier) Close() error {
	n.Interrupt()
	n.Wait(time.Second)
	return nil
}

var speechReplacer = strings.NewReplacer(
	"@", " at ",
	"#", " number ",
	"&", " and ",
	"%", " percent ",
	"$", " dollars ",
	"+", " plus ",
	"=", " equals ",
	"<", " ",
	">", " ",
	"|", " ",
	"_", " ",
	"*", "",
	"~", "",
	"^", "",
	"`", "",
)

// CleanSpeechText makes text suitable for a speech engine
func CleanSpeechText(text string) string {
	s := strings.Join(strings.Fields(speechReplacer.Replace(text)), " ")
	if utf8.RuneCountInString(s) > maxSpeechLength {
		runes := []rune(s)
		s = string(runes[:maxSpeechLength-3]) + "..."
	}
	return s
}
