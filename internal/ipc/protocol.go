package ipc

// Commands understood by the owner process.
const (
	CommandStatus = "status"
	CommandStop   = "stop"
	CommandCancel = "cancel"
)

type Request struct {
	Command string `json:"command"`
}

type Response struct {
	OK        bool   `json:"ok"`
	SessionID string `json:"session_id,omitempty"`
	State     string `json:"state,omitempty"`
	Elapsed   int    `json:"elapsed_s,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}
