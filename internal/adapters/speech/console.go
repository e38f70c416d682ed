package speech

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// ConsoleSpeaker prints announcements instead of speaking them
type ConsoleSpeaker struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSpeaker writes announcements to w
func NewConsoleSpeaker(w io.Writer) *ConsoleSpeaker {
	return &ConsoleSpeaker{w: w}
}

// Speak prints text
func (s *ConsoleSpeaker) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "[tts] %s\n", text)
	return err
}

// Stop is a no-op
func (s *ConsoleSpeaker) Stop() error { return nil }
