package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate rejects configurations that cannot produce a working session.
func Validate(cfg Config) error {
	if engineURL := strings.TrimSpace(cfg.Engine.URL); engineURL != "" {
		parsed, err := url.Parse(engineURL)
		if err != nil {
			return fmt.Errorf("engine URL %q: %w", engineURL, err)
		}
		if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
			return fmt.Errorf("engine URL %q: scheme must be ws or wss", engineURL)
		}
	}

	if strings.TrimSpace(cfg.Capture.FFmpeg) == "" {
		return fmt.Errorf("capture ffmpeg command is empty")
	}
	if strings.TrimSpace(cfg.Capture.VideoDevice) == "" {
		return fmt.Errorf("capture video device is empty")
	}
	if strings.TrimSpace(cfg.Capture.AudioSource) == "" {
		return fmt.Errorf("capture audio source is empty")
	}
	if cfg.Capture.FrameRate < 1 || cfg.Capture.FrameRate > 120 {
		return fmt.Errorf("capture frame rate %d out of range [1,120]", cfg.Capture.FrameRate)
	}
	if cfg.Capture.ChunkSize < 256 {
		return fmt.Errorf("capture chunk size %d below minimum 256", cfg.Capture.ChunkSize)
	}

	if strings.TrimSpace(cfg.Trigger.Start) == "" {
		return fmt.Errorf("start trigger phrase is empty")
	}
	if strings.TrimSpace(cfg.Trigger.Stop) == "" {
		return fmt.Errorf("stop trigger phrase is empty")
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Trigger.Start), strings.TrimSpace(cfg.Trigger.Stop)) {
		return fmt.Errorf("start and stop trigger phrases must differ")
	}

	if cfg.Countdown.Seconds < 1 || cfg.Countdown.Seconds > 10 {
		return fmt.Errorf("countdown seconds %d out of range [1,10]", cfg.Countdown.Seconds)
	}

	if strings.TrimSpace(cfg.Store.DBPath) == "" {
		return fmt.Errorf("grant database path is empty")
	}

	if cfg.Feedback.StatusRevertMS < 0 {
		return fmt.Errorf("status revert delay must not be negative")
	}

	return nil
}
