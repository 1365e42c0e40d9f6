package errors

import (
	"errors"
	"fmt"
)

var (
	_ error = (*wrappedError)(nil)
	_ error = (*annotatedError)(nil)
)

func New(text string) error {
	return errors.New(text)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap prefixes err with text. errors.Is keeps matching the wrapped error.
func Wrap(err error, text string) error {
	if err == nil {
		return nil
	}

	if len(text) == 0 {
		return err
	}

	return &wrappedError{
		err: err,
		msg: text,
	}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return Wrap(err, fmt.Sprintf(format, args...))
}

// Annotate tags cause with a sentinel kind plus the operation and its subject,
// usually a file path.
// Both kind and cause match with errors.Is.
func Annotate(kind error, op, subject string, cause error) error {
	if kind == nil {
		return cause
	}

	return &annotatedError{
		kind:    kind,
		op:      op,
		subject: subject,
		cause:   cause,
	}
}

type wrappedError struct {
	err error
	msg string
}

const sep = ", err: "

func (err wrappedError) Error() string {
	if err.err == nil {
		return err.msg
	}

	return err.msg + sep + err.err.Error()
}

func (err wrappedError) Unwrap() error {
	if err.err == nil {
		return errors.New(err.msg)
	}

	return err.err
}

type annotatedError struct {
	kind    error
	op      string
	subject string
	cause   error
}

func (err annotatedError) Error() string {
	msg := err.kind.Error() + ": " + err.op
	if err.subject != "" {
		msg += " " + err.subject
	}
	if err.cause == nil {
		return msg
	}

	return msg + sep + err.cause.Error()
}

func (err annotatedError) Unwrap() []error {
	if err.cause == nil {
		return []error{err.kind}
	}

	return []error{err.kind, err.cause}
}
