package app

import (
	"errors"

	intrnl "livecount/internal"
)

// RunClient launches the Bubble Tea watcher with the provided configuration.
func RunClient(cfg ClientConfig) error {
	if cfg.ServerURL == "" {
		return errors.New("server URL is required")
	}
	return intrnl.RunWatch(cfg.ServerURL)
}
