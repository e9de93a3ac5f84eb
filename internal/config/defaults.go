package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default returns the canonical runtime configuration used when no
// environment overrides are present.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			URL:         "ws://127.0.0.1:8765/listen",
			DialTimeout: 3 * time.Second,
		},
		Capture: CaptureConfig{
			FFmpeg:      "ffmpeg",
			VideoDevice: "/dev/video0",
			AudioSource: "default",
			FrameRate:   30,
			ChunkSize:   32 * 1024,
		},
		Trigger: TriggerConfig{
			Start: "start action",
			Stop:  "thank you",
		},
		Countdown: CountdownConfig{Seconds: 3},
		Store:     StoreConfig{DBPath: defaultDBPath()},
		Feedback: FeedbackConfig{
			SoundEnable:    true,
			SpeakCmd:       "espeak-ng",
			StatusRevertMS: 3000,
		},
		Platform: PlatformConfig{Hint: ""},
	}
}

// defaultDBPath selects XDG_STATE_HOME when available, otherwise ~/.local/state.
func defaultDBPath() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "heycam", "grants.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "heycam-grants.db")
	}
	return filepath.Join(home, ".local", "state", "heycam", "grants.db")
}
