// Package feedback plays the session's audio cues: spoken countdown digits
// and short synthesized tones.
package feedback

import (
	"context"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/mhutchens/heycam/internal/config"
)

const speakTimeout = 4 * time.Second

// Sink plays cues without ever blocking the session event loop. Playback
// runs on its own goroutine; failures are logged and dropped. It implements
// session.Feedback.
type Sink struct {
	cfg    config.FeedbackConfig
	logger *slog.Logger

	// Serializes playback so overlapping cues do not garble each other.
	playMu sync.Mutex
}

func New(cfg config.FeedbackConfig, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sink{cfg: cfg, logger: logger}
}

// Speak runs the configured speech command with text appended as the final
// argument.
func (s *Sink) Speak(text string) {
	if len(s.cfg.SpeakArgv) == 0 || text == "" {
		return
	}

	argv := append(append([]string(nil), s.cfg.SpeakArgv...), text)
	go func() {
		s.playMu.Lock()
		defer s.playMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), speakTimeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		if err := cmd.Run(); err != nil {
			s.logger.Warn("speak command failed",
				"command", argv[0],
				"text", text,
				"error", err)
		}
	}()
}

// Tone synthesizes and plays a single sine cue.
func (s *Sink) Tone(frequencyHz float64, duration time.Duration) {
	if !s.cfg.SoundEnable {
		return
	}

	samples := synthesizeTone(toneSpec{
		frequencyHz: frequencyHz,
		duration:    duration,
		volume:      cueVolume,
	})
	if len(samples) == 0 {
		return
	}

	go func() {
		s.playMu.Lock()
		defer s.playMu.Unlock()

		if err := playSamples(samples); err != nil {
			s.logger.Warn("tone playback failed",
				"frequency_hz", frequencyHz,
				"error", err)
		}
	}()
}
