// Package ipc carries session commands between the CLI and the daemon over
// a single-owner unix socket. The protocol is one newline-delimited JSON
// request per connection, answered by one JSON response.
package ipc

// Commands a session owner understands. The transport rejects anything
// else before it reaches the session.
const (
	CommandStatus = "status"
	CommandRecord = "record"
	CommandStop   = "stop"
	CommandVoice  = "voice"
)

// ValidCommand reports whether cmd belongs to the session command set.
func ValidCommand(cmd string) bool {
	switch cmd {
	case CommandStatus, CommandRecord, CommandStop, CommandVoice:
		return true
	}
	return false
}

type Request struct {
	Command string `json:"command"`
}

type Response struct {
	OK        bool   `json:"ok"`
	State     string `json:"state,omitempty"`
	Status    string `json:"status,omitempty"`
	VoiceDown bool   `json:"voice_down,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}
