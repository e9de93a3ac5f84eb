// Package config resolves, defaults, and validates heycam runtime configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by heycam.
type Config struct {
	Engine    EngineConfig
	Capture   CaptureConfig
	Trigger   TriggerConfig
	Countdown CountdownConfig
	Store     StoreConfig
	Feedback  FeedbackConfig
	Platform  PlatformConfig
}

// EngineConfig locates the local speech-recognition engine endpoint.
// An empty URL disables voice triggers; manual record/stop keep working.
type EngineConfig struct {
	URL         string        `env:"HEYCAM_ENGINE_URL"`
	DialTimeout time.Duration `env:"HEYCAM_ENGINE_DIAL_TIMEOUT"`
}

// CaptureConfig controls device selection and the ffmpeg recording process.
type CaptureConfig struct {
	FFmpeg      string `env:"HEYCAM_FFMPEG"`
	VideoDevice string `env:"HEYCAM_VIDEO_DEVICE"`
	AudioSource string `env:"HEYCAM_AUDIO_SOURCE"`
	FrameRate   int    `env:"HEYCAM_FRAME_RATE"`
	ChunkSize   int    `env:"HEYCAM_CHUNK_SIZE"`
}

// TriggerConfig holds the two fixed voice trigger phrases.
type TriggerConfig struct {
	Start string `env:"HEYCAM_TRIGGER_START"`
	Stop  string `env:"HEYCAM_TRIGGER_STOP"`
}

// CountdownConfig controls the pre-recording countdown.
type CountdownConfig struct {
	Seconds int `env:"HEYCAM_COUNTDOWN_SECONDS"`
}

// StoreConfig locates the grant database.
type StoreConfig struct {
	DBPath string `env:"HEYCAM_GRANTS_DB"`
}

// FeedbackConfig controls audio cue and spoken-cue behavior. SpeakArgv is
// materialized from SpeakCmd during Load and is not set from the environment.
type FeedbackConfig struct {
	SoundEnable    bool     `env:"HEYCAM_SOUND"`
	SpeakCmd       string   `env:"HEYCAM_SPEAK_CMD"`
	SpeakArgv      []string
	StatusRevertMS int      `env:"HEYCAM_STATUS_REVERT_MS"`
}

// PlatformConfig carries the opaque platform hint used to classify
// voice-channel recovery behavior at construction time.
type PlatformConfig struct {
	Hint string `env:"HEYCAM_PLATFORM"`
}
