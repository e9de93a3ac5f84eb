package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Load materializes runtime configuration: canonical defaults overlaid with
// environment variables, then validated.
func Load() (Config, error) {
	cfg := Default()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}

	argv, err := parseArgv(cfg.Feedback.SpeakCmd)
	if err != nil {
		return Config{}, fmt.Errorf("parse speak command: %w", err)
	}
	cfg.Feedback.SpeakArgv = argv

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
