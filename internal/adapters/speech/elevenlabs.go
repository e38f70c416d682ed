package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"
)

const (
	defaultElevenLabsURL = "https://api.elevenlabs.io"
	elevenLabsModel      = "eleven_flash_v2_5"
	streamChunkSize      = 4096
)

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// ElevenLabsSpeaker streams synthesized audio into a player program's stdin
type ElevenLabsSpeaker struct {
	apiKey  string
	voiceID string
	baseURL string
	player  string
	args    []string
	client  *http.Client
	logger  *zap.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewElevenLabsSpeaker creates a streaming speaker. baseURL may be empty.
func NewElevenLabsSpeaker(apiKey, voiceID, baseURL, player string, args []string, logger *zap.Logger) (*ElevenLabsSpeaker, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs API key is required")
	}
	if baseURL == "" {
		baseURL = defaultElevenLabsURL
	}
	return &ElevenLabsSpeaker{
		apiKey:  apiKey,
		voiceID: voiceID,
		baseURL: baseURL,
		player:  player,
		args:    args,
		client:  &http.Client{},
		logger:  logger,
	}, nil
}

// Speak requests audio for text and plays it as it arrives. Cancelling ctx
// stops both the download and the player between chunks.
func (s *ElevenLabsSpeaker) Speak(ctx context.Context, text string) error {
	body, err := json.Marshal(ttsRequest{
		Text:          text,
		ModelID:       elevenLabsModel,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.8},
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s/stream", s.baseURL, s.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("elevenlabs returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	cmd := exec.CommandContext(ctx, s.player, s.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	s.mu.Lock()
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("start player %s: %w", s.player, err)
	}
	s.cmd = cmd
	s.mu.Unlock()

	copyErr := s.stream(ctx, resp.Body, stdin)
	stdin.Close()
	waitErr := cmd.Wait()

	s.mu.Lock()
	if s.cmd == cmd {
		s.cmd = nil
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if copyErr != nil {
		return copyErr
	}
	return waitErr
}

func (s *ElevenLabsSpeaker) stream(ctx context.Context, src io.Reader, dst io.Writer) error {
	buf := make([]byte, streamChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write audio: %w", werr)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
	}
}

// Stop kills the player
func (s *ElevenLabsSpeaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
