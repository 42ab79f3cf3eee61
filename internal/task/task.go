// Package task holds the task record shared by the store, the terminal sessions and
// the creation workflow.
package task

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "inprogress"
	StatusInReview   Status = "inreview"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

func ParseStatus(raw string) (Status, bool) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusTodo, StatusInProgress, StatusInReview, StatusDone, StatusCancelled:
		return s, true
	default:
		return "", false
	}
}

// LaunchStatus records how the assistant launch for a new task went.
type LaunchStatus string

const (
	LaunchNone     LaunchStatus = ""
	LaunchPending  LaunchStatus = "pending"
	LaunchLaunched LaunchStatus = "launched"
	LaunchFailed   LaunchStatus = "failed"
)

type Task struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Status       Status       `json:"status"`
	BranchName   string       `json:"branch_name"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	LaunchStatus LaunchStatus `json:"launch_status,omitempty"`
	LaunchError  string       `json:"launch_error,omitempty"`
}

// InProgress reports whether the task's context belongs in its terminal environment.
func (t Task) InProgress() bool {
	return t.Status == StatusInProgress
}

const branchSuffixLen = 8

// DefaultBranchName is the branch assigned to task id created at now. The id suffix
// keeps names distinct for tasks created within the same millisecond.
func DefaultBranchName(now time.Time, id string) string {
	suffix := strings.ReplaceAll(id, "-", "")
	if len(suffix) > branchSuffixLen {
		suffix = suffix[:branchSuffixLen]
	}
	if suffix == "" {
		return fmt.Sprintf("feature/task-%d", now.UnixMilli())
	}
	return fmt.Sprintf("feature/task-%d-%s", now.UnixMilli(), suffix)
}
