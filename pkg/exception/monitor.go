package exception

import "github.com/yanun0323/errors"

// Monitor errors
var (
	// ErrRejected is returned when the terminal answers with success=false.
	ErrRejected = errors.New("monitor: command rejected")

	// ErrUnknownCommand is returned when a control command is not understood by the terminal.
	ErrUnknownCommand = errors.New("monitor: unknown command")

	// ErrUnexpectedData is returned when a response carries data of the wrong shape.
	ErrUnexpectedData = errors.New("monitor: unexpected response data")
)
