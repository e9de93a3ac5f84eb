package voice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mhutchens/heycam/internal/config"
	"github.com/mhutchens/heycam/internal/session"
)

// Supervisor keeps at most one live channel instance and replaces dead ones
// on Start. Restart policy (when to call Start after termination) belongs to
// the session controller; the supervisor only enforces single-instance
// ownership and idempotent starts.
type Supervisor struct {
	url         string
	dialTimeout time.Duration
	sink        session.VoiceSink
	logger      *slog.Logger

	mu            sync.Mutex
	current       *channel
	everConnected bool
}

// NewSupervisor builds a supervisor from engine config. The sink receives
// all recognition events.
func NewSupervisor(cfg config.EngineConfig, sink session.VoiceSink, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Supervisor{
		url:         strings.TrimSpace(cfg.URL),
		dialTimeout: cfg.DialTimeout,
		sink:        sink,
		logger:      logger,
	}
}

// Start implements session.VoiceSource. Starting while an instance is alive
// is a no-op; a terminated instance is discarded and replaced with a fresh
// one. An engine that was never reachable reports ErrVoiceUnsupported.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.url == "" {
		return fmt.Errorf("%w: no engine URL configured", session.ErrVoiceUnsupported)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.alive() {
		return nil
	}

	ch, err := dialChannel(ctx, s.url, s.dialTimeout, s.sink, s.logger)
	if err != nil {
		if !s.everConnected {
			return fmt.Errorf("%w: %v", session.ErrVoiceUnsupported, err)
		}
		return err
	}

	s.current = ch
	s.everConnected = true
	s.logger.Info("voice channel connected", "engine", s.url)
	return nil
}
