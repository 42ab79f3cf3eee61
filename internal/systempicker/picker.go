// Package systempicker opens the platform's native folder dialog.
package systempicker

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
)

// ErrCanceled means the operator closed the dialog without choosing a folder.
var ErrCanceled = errors.New("directory selection canceled")

var ErrUnsupported = errors.New("directory picker unsupported on this platform")

func buildPickCommand(goos string) (string, []string) {
	switch goos {
	case "darwin":
		return "osascript", []string{"-e", `POSIX path of (choose folder with prompt "Select a Git repository")`}
	case "linux":
		return "zenity", []string{"--file-selection", "--directory", "--title=Select a Git repository"}
	case "windows":
		return "powershell", []string{
			"-NoProfile",
			"-Command",
			"Add-Type -AssemblyName System.Windows.Forms; $d=New-Object System.Windows.Forms.FolderBrowserDialog; if($d.ShowDialog() -eq 'OK'){Write-Output $d.SelectedPath}",
		}
	default:
		return "", nil
	}
}

func PickDirectory(ctx context.Context) (string, error) {
	cmd, args := buildPickCommand(runtime.GOOS)
	if cmd == "" {
		return "", ErrUnsupported
	}
	out, err := exec.CommandContext(ctx, cmd, args...).Output()
	if err != nil {
		return "", classifyPickError(err)
	}
	return parseSelection(out)
}

// classifyPickError maps the dialog tools' cancel exits to ErrCanceled. osascript
// reports "User canceled." on stderr and zenity exits with status 1.
func classifyPickError(err error) error {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return err
	}
	if strings.Contains(string(exitErr.Stderr), "User canceled") || exitErr.ExitCode() == 1 {
		return ErrCanceled
	}
	return err
}

func parseSelection(out []byte) (string, error) {
	path := strings.TrimRight(strings.TrimSpace(string(out)), "/")
	if path == "" {
		return "", ErrCanceled
	}
	return path, nil
}
