package session

import (
	"context"
	"errors"
)

// ErrVoiceUnsupported indicates no recognition engine is configured or
// reachable; recording via manual commands remains available.
var ErrVoiceUnsupported = errors.New("speech recognition engine unavailable")

// VoiceSource is the session-facing voice channel contract. Start is
// idempotent: starting an already-live channel is a no-op.
type VoiceSource interface {
	Start(context.Context) error
}

// VoiceSink receives recognition engine events. Terminated fires after
// every error and after natural engine timeout; the terminated instance
// is discarded and never reused.
type VoiceSink interface {
	VoiceResult(transcript string)
	VoiceError(code string)
	VoiceTerminated()
}

// noopVoice preserves session flow when no voice channel is wired.
type noopVoice struct{}

func (noopVoice) Start(context.Context) error { return nil }
