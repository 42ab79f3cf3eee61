package protocol

const (
	OpTerminalCreate  = "terminal.create"
	OpTerminalAttach  = "terminal.attach"
	OpTerminalInput   = "terminal.input"
	OpTerminalResize  = "terminal.resize"
	OpTerminalDestroy = "terminal.destroy"

	OpTerminalData     = "terminal.data"
	OpTerminalError    = "terminal.error"
	OpTerminalExit     = "terminal.exit"
	OpTerminalDetached = "terminal.detached"
)

const (
	CodeConfig               = "CONFIG_ERROR"
	CodeVCS                  = "VCS_ERROR"
	CodeDirectoryUnavailable = "DIRECTORY_UNAVAILABLE"
	CodeSpawn                = "SPAWN_ERROR"
	CodeSessionNotFound      = "SESSION_NOT_FOUND"
	CodeNotSessionOwner      = "NOT_SESSION_OWNER"
	CodeBadPayload           = "BAD_PAYLOAD"
	CodeUnknownOp            = "UNKNOWN_OP"
	CodeInternal             = "INTERNAL_ERROR"
)

type CreatePayload struct {
	TaskID string `json:"task_id,omitempty"`
	Cols   int    `json:"cols,omitempty"`
	Rows   int    `json:"rows,omitempty"`
}

// DataPayload carries raw terminal bytes; JSON encodes them as base64.
type DataPayload struct {
	Data []byte `json:"data"`
}

type ResizePayload struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

type ExitPayload struct {
	ExitCode int `json:"exit_code"`
}

type DetachedPayload struct {
	Reason string `json:"reason"`
}
