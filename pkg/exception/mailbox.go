package exception

import "github.com/yanun0323/errors"

// Mailbox errors
var (
	// ErrNotConnected is returned when a command is sent before Connect succeeded.
	ErrNotConnected = errors.New("mailbox: not connected")

	// ErrDirectoryNotFound is returned when no candidate data directory is usable.
	ErrDirectoryNotFound = errors.New("mailbox: directory not found")

	// ErrTimeout is returned when no response file appears before the deadline.
	ErrTimeout = errors.New("mailbox: response timeout")

	// ErrDecode is returned when a response is not valid JSON or misses required fields.
	ErrDecode = errors.New("mailbox: decode response")

	// ErrIO is returned when the primary command file cannot be written.
	ErrIO = errors.New("mailbox: io failure")

	// ErrNilChannel is returned when a nil channel receiver is used.
	ErrNilChannel = errors.New("mailbox: nil channel")

	// ErrEmptyCommand is returned when an empty command is sent.
	ErrEmptyCommand = errors.New("mailbox: empty command")

	// ErrInvalidFileName is returned when a mailbox file name is not a plain name.
	ErrInvalidFileName = errors.New("mailbox: invalid file name")
)
