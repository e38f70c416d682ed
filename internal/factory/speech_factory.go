package factory

import (
	"fmt"
	"io"

	"github.com/Cfomodz/easemail/internal/adapters/speech"
	"github.com/Cfomodz/easemail/internal/config"
	"github.com/Cfomodz/easemail/internal/core"
	"go.uber.org/zap"
)

// SpeechFactory creates the notifier and its speech backend
type SpeechFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewSpeechFactory creates a new speech factory
func NewSpeechFactory(cfg *config.Config, logger *zap.Logger) *SpeechFactory {
	return &SpeechFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateBackend creates the configured backend. console writes to w.
func (f *SpeechFactory) CreateBackend(w io.Writer) (core.SpeechBackend, error) {
	tts := f.cfg.GetTTS()
	switch tts.Provider {
	case "console", "":
		return speech.NewConsoleSpeaker(w), nil
	case "command":
		name, args, err := speech.ParseCommand(tts.Command)
		if err != nil {
			return nil, err
		}
		return speech.NewCommandSpeaker(name, args, f.logger), nil
	case "elevenlabs":
		player, args, err := speech.ParseCommand(tts.Player)
		if err != nil {
			return nil, err
		}
		return speech.NewElevenLabsSpeaker(tts.APIKey, tts.VoiceID, "", player, args, f.logger)
	default:
		return nil, fmt.Errorf("unsupported tts provider: %s", tts.Provider)
	}
}

// CreateNotifier creates the notifier. Disabled speech skips the backend.
func (f *SpeechFactory) CreateNotifier(w io.Writer) (*core.Notifier, error) {
	tts := f.cfg.GetTTS()
	cfg := core.NotifierConfig{
		Enabled:     tts.Enabled,
		StagePause:  tts.StagePause,
		DetailPause: tts.DetailPause,
	}
	if !tts.Enabled {
		return core.NewNotifier(nil, cfg, f.logger), nil
	}
	backend, err := f.CreateBackend(w)
	if err != nil {
		return nil, err
	}
	return core.NewNotifier(backend, cfg, f.logger), nil
}
