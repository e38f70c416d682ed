package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// CommandSpeaker speaks through a local program such as espeak or say,
// passing the text as the last argument.
type CommandSpeaker struct {
	name   string
	args   []string
	logger *zap.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewCommandSpeaker creates a speaker running name with args
func NewCommandSpeaker(name string, args []string, logger *zap.Logger) *CommandSpeaker {
	return &CommandSpeaker{name: name, args: args, logger: logger}
}

// ParseCommand splits a configured command line into program and arguments
func ParseCommand(line string) (string, []string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, errors.New("empty speech command")
	}
	return fields[0], fields[1:], nil
}

// Speak runs the program and waits for it to exit
func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, s.name, append(append([]string(nil), s.args...), text)...)

	s.mu.Lock()
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("start %s: %w", s.name, err)
	}
	s.cmd = cmd
	s.mu.Unlock()

	err := cmd.Wait()

	s.mu.Lock()
	if s.cmd == cmd {
		s.cmd = nil
	}
	s.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// Stop kills the running utterance, if any
func (s *CommandSpeaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	s.logger.Debug("Stopping speech command", zap.Int("pid", s.cmd.Process.Pid))
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
