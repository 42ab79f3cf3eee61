package worktree

import (
	"errors"
	"strings"
)

var (
	// ErrRepoNotConfigured means no repository root has been selected.
	ErrRepoNotConfigured = errors.New("repository path not configured")
	ErrInvalidTaskID     = errors.New("invalid task id")
	ErrBranchRequired    = errors.New("branch name is required")
	ErrInvalidBranch     = errors.New("invalid branch name")
)

// VcsError wraps a failed git invocation together with git's own diagnostic.
type VcsError struct {
	Op  string
	Err error
}

func (e *VcsError) Error() string {
	return "git " + e.Op + ": " + e.Err.Error()
}

func (e *VcsError) Unwrap() error {
	return e.Err
}

func vcsError(args []string, err error) error {
	op := strings.Join(args, " ")
	if len(args) > 2 {
		op = strings.Join(args[:2], " ")
	}
	return &VcsError{Op: op, Err: err}
}
