package errors

import (
	"errors"
	"testing"
)

var (
	errWrapped = errors.New("wrapped error")
	errKind    = errors.New("mailbox: io failure")
)

func BenchmarkWrap(b *testing.B) {
	b.Run("wrap nil", func(b *testing.B) {
		for b.Loop() {
			err := Wrap(nil, "send GET_STATUS")
			_ = err
		}
	})

	b.Run("wrap error", func(b *testing.B) {
		for b.Loop() {
			err := Wrap(errWrapped, "send GET_STATUS")
			_ = err.Error()
		}
	})

	b.Run("new error", func(b *testing.B) {
		for b.Loop() {
			err := errors.New("send GET_STATUS")
			_ = err.Error()
		}
	})
}

func BenchmarkAnnotate(b *testing.B) {
	b.Run("annotate", func(b *testing.B) {
		for b.Loop() {
			err := Annotate(errKind, "write", "/tmp/QuantBrains_Command.txt", errWrapped)
			_ = err.Error()
		}
	})

	b.Run("is", func(b *testing.B) {
		err := Annotate(errKind, "write", "/tmp/QuantBrains_Command.txt", errWrapped)
		for b.Loop() {
			_ = Is(err, errKind)
		}
	})
}
