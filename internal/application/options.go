package application

import (
	"log/slog"

	"github.com/takecian/vibe-flow/internal/terminal"
)

type StartOptions struct {
	ConfigDir string
	// DBDSN defaults to vibeflow.db inside ConfigDir.
	DBDSN     string
	LocalHost string
	LocalPort int
	TermName  string
	WebUI     WebUIOptions
	Logger    *slog.Logger
	// Spawner replaces the PTY spawner in tests.
	Spawner terminal.Spawner
}

type WebUIOptions struct {
	Mode        string
	DevProxyURL string
	DistDir     string
}
