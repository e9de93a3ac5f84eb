package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestLoadEnvOverlay(t *testing.T) {
	t.Setenv("HEYCAM_ENGINE_URL", "ws://localhost:9900/asr")
	t.Setenv("HEYCAM_TRIGGER_START", "lights camera")
	t.Setenv("HEYCAM_COUNTDOWN_SECONDS", "5")
	t.Setenv("HEYCAM_SPEAK_CMD", `espeak-ng -v "en-us"`)
	t.Setenv("HEYCAM_ENGINE_DIAL_TIMEOUT", "1s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:9900/asr", cfg.Engine.URL)
	require.Equal(t, time.Second, cfg.Engine.DialTimeout)
	require.Equal(t, "lights camera", cfg.Trigger.Start)
	require.Equal(t, 5, cfg.Countdown.Seconds)
	require.Equal(t, []string{"espeak-ng", "-v", "en-us"}, cfg.Feedback.SpeakArgv)

	// Untouched fields keep their defaults.
	require.Equal(t, "thank you", cfg.Trigger.Stop)
	require.Equal(t, "ffmpeg", cfg.Capture.FFmpeg)
}

func TestLoadRejectsInvalidOverlay(t *testing.T) {
	t.Setenv("HEYCAM_COUNTDOWN_SECONDS", "0")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "countdown seconds")
}

func TestValidateMatrix(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad engine scheme",
			mutate:  func(c *Config) { c.Engine.URL = "http://127.0.0.1:8765" },
			wantErr: "scheme must be ws or wss",
		},
		{
			name:    "empty engine URL allowed",
			mutate:  func(c *Config) { c.Engine.URL = "" },
			wantErr: "",
		},
		{
			name:    "empty video device",
			mutate:  func(c *Config) { c.Capture.VideoDevice = " " },
			wantErr: "video device is empty",
		},
		{
			name:    "tiny chunk size",
			mutate:  func(c *Config) { c.Capture.ChunkSize = 16 },
			wantErr: "chunk size",
		},
		{
			name:    "identical trigger phrases",
			mutate:  func(c *Config) { c.Trigger.Stop = "Start Action" },
			wantErr: "must differ",
		},
		{
			name:    "countdown too long",
			mutate:  func(c *Config) { c.Countdown.Seconds = 11 },
			wantErr: "countdown seconds",
		},
		{
			name:    "empty db path",
			mutate:  func(c *Config) { c.Store.DBPath = "" },
			wantErr: "grant database path",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := Validate(cfg)
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestParseArgvQuoting(t *testing.T) {
	argv, err := parseArgv(`say -r 180 'hello there'`)
	require.NoError(t, err)
	require.Equal(t, []string{"say", "-r", "180", "hello there"}, argv)

	_, err = parseArgv(`say "unterminated`)
	require.Error(t, err)

	argv, err = parseArgv("   ")
	require.NoError(t, err)
	require.Nil(t, argv)
}
