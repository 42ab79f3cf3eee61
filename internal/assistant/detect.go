// Package assistant detects installed coding assistants and starts the configured one
// inside a task's terminal session.
package assistant

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/takecian/vibe-flow/internal/global"

	"golang.org/x/sys/unix"
)

// Availability is the detection result for one tool.
type Availability struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Installed   bool   `json:"installed"`
	Path        string `json:"path,omitempty"`
}

type Detector struct {
	homeDir func() (string, error)
	envPath func() string
}

func NewDetector() *Detector {
	return &Detector{
		homeDir: os.UserHomeDir,
		envPath: func() string { return os.Getenv("PATH") },
	}
}

// Detect reports every tool as installed when its command resolves on the search path,
// or when its config directory exists under the home directory.
func (d *Detector) Detect(ctx context.Context, tools []global.AssistantTool) []Availability {
	home, _ := d.homeDir()
	dirs := d.searchDirs(home)
	out := make([]Availability, 0, len(tools))
	for _, tool := range tools {
		if ctx.Err() != nil {
			break
		}
		item := Availability{ID: tool.ID, DisplayName: tool.DisplayName}
		if p, ok := lookPath(commandName(tool.Command), dirs); ok {
			item.Installed = true
			item.Path = p
		} else if home != "" && strings.TrimSpace(tool.ConfigDir) != "" {
			if info, err := os.Stat(filepath.Join(home, tool.ConfigDir)); err == nil && info.IsDir() {
				item.Installed = true
			}
		}
		out = append(out, item)
	}
	return out
}

// searchDirs puts the usual install locations ahead of PATH, since a server started
// from a GUI launcher often inherits a minimal PATH.
func (d *Detector) searchDirs(home string) []string {
	dirs := []string{"/opt/homebrew/bin", "/usr/local/bin", "/usr/bin", "/bin"}
	if home != "" {
		dirs = append(dirs, filepath.Join(home, ".local", "bin"), filepath.Join(home, "bin"))
	}
	dirs = append(dirs, filepath.SplitList(d.envPath())...)
	seen := map[string]bool{}
	out := dirs[:0]
	for _, dir := range dirs {
		if dir == "" || seen[dir] {
			continue
		}
		seen[dir] = true
		out = append(out, dir)
	}
	return out
}

func commandName(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func lookPath(name string, dirs []string) (string, bool) {
	if name == "" {
		return "", false
	}
	if strings.Contains(name, "/") {
		return name, isExecutable(name)
	}
	for _, dir := range dirs {
		p := filepath.Join(dir, name)
		if isExecutable(p) {
			return p, true
		}
	}
	return "", false
}

func isExecutable(p string) bool {
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return false
	}
	return unix.Access(p, unix.X_OK) == nil
}
