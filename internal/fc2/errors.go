package fc2

import (
	"errors"
	"fmt"
)

// Sentinel errors for session-level failure kinds.
var (
	// ErrNotOnline is returned when the channel is not currently broadcasting.
	ErrNotOnline = errors.New("live stream is currently not online")

	// ErrEmptyPlaylist is returned when the server never produced a valid
	// playlist over the control channel.
	ErrEmptyPlaylist = errors.New("server did not return a valid playlist")

	// ErrConnectionClosed is returned by calls that race against the control
	// channel ending without a server-supplied reason.
	ErrConnectionClosed = errors.New("websocket connection closed")
)

// Disconnection codes sent by the server in control_disconnection messages.
const (
	CodePaidProgram        = 4101
	CodeLoginRequired      = 4507
	CodeMultipleConnection = 4512
)

// DisconnectError is a server-initiated disconnection of the control channel.
// Known codes get dedicated sentinel values below; any other code is a
// generic server disconnect.
type DisconnectError struct {
	Code int
}

// Well-known disconnection reasons, usable with errors.Is.
var (
	ErrPaidProgram        = &DisconnectError{Code: CodePaidProgram}
	ErrLoginRequired      = &DisconnectError{Code: CodeLoginRequired}
	ErrMultipleConnection = &DisconnectError{Code: CodeMultipleConnection}
)

func (e *DisconnectError) Error() string {
	switch e.Code {
	case CodePaidProgram:
		return fmt.Sprintf("server disconnected with code %d: broadcast switched to a paid program", e.Code)
	case CodeLoginRequired:
		return fmt.Sprintf("server disconnected with code %d: login required", e.Code)
	case CodeMultipleConnection:
		return fmt.Sprintf("server disconnected with code %d: multiple connections to the same stream", e.Code)
	default:
		return fmt.Sprintf("server disconnected with code %d", e.Code)
	}
}

// Is reports code equality so errors.Is(err, ErrPaidProgram) works for any
// DisconnectError instance carrying the same code.
func (e *DisconnectError) Is(target error) bool {
	var d *DisconnectError
	if !errors.As(target, &d) {
		return false
	}
	return e.Code == d.Code
}
