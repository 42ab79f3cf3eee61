package global

import (
	"os"
	"path/filepath"
	"strings"
)

const configDirEnv = "VIBEFLOW_CONFIG_DIR"

// DefaultConfigDir returns $VIBEFLOW_CONFIG_DIR when set, else ~/.config/vibe-flow.
// A leading "~/" in the override is expanded against the home directory.
func DefaultConfigDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv(configDirEnv)); override != "" {
		if override != "~" && !strings.HasPrefix(override, "~/") {
			return filepath.Clean(override), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(override, "~"), "/")), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "vibe-flow"), nil
}
