package app

import (
	"errors"

	intrnl "quadchat/internal"
)

// RunClient launches the Bubble Tea TUI with the provided configuration.
func RunClient(cfg ClientConfig) error {
	if cfg.ServerURL == "" {
		return errors.New("server URL is required")
	}
	sessionPath := cfg.SessionPath
	if sessionPath == "" {
		sessionPath = intrnl.DefaultSessionPath()
	}
	return intrnl.RunClient(cfg.ServerURL, cfg.DisplayName, sessionPath)
}
