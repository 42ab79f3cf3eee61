package session

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrDirectoryUnavailable means the resolved working directory cannot be entered.
	ErrDirectoryUnavailable = errors.New("directory not accessible")
)

// SpawnError wraps a failure to start the terminal process itself.
type SpawnError struct {
	Key string
	Err error
}

func (e *SpawnError) Error() string {
	return "failed to spawn terminal process for " + e.Key + ": " + e.Err.Error()
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
