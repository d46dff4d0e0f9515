package model

import "fmt"

// ConnStatus is the coarse status value serialized to the boundary.
type ConnStatus string

const (
	StatusDisconnected ConnStatus = "disconnected"
	StatusConnecting   ConnStatus = "connecting"
	StatusConnected    ConnStatus = "connected"
	StatusReconnecting ConnStatus = "reconnecting"
	StatusError        ConnStatus = "error"
)

// ConnectionState is the full connection state machine value (spec §3):
// Disconnected, Connecting, Connected, Reconnecting(attempt), Error(message).
type ConnectionState struct {
	Status   ConnStatus
	Attempt  uint
	Message  string
}

func Disconnected() ConnectionState { return ConnectionState{Status: StatusDisconnected} }
func Connecting() ConnectionState   { return ConnectionState{Status: StatusConnecting} }
func Connected() ConnectionState    { return ConnectionState{Status: StatusConnected} }

func Reconnecting(attempt uint) ConnectionState {
	return ConnectionState{Status: StatusReconnecting, Attempt: attempt}
}

func ErrorState(message string) ConnectionState {
	return ConnectionState{Status: StatusError, Message: message}
}

// String renders a status line suitable for logs, e.g. "error: boom" or
// "reconnecting(3)".
func (s ConnectionState) String() string {
	switch s.Status {
	case StatusReconnecting:
		return fmt.Sprintf("reconnecting(%d)", s.Attempt)
	case StatusError:
		return fmt.Sprintf("error: %s", s.Message)
	default:
		return string(s.Status)
	}
}
