package errors

import (
	"io/fs"
	"testing"
)

func TestWrap(t *testing.T) {
	err := Wrap(errWrapped, "Hello, Wrapped!")
	if err.Error() != "Hello, Wrapped!, err: wrapped error" {
		t.Fatalf("error mismatch: %+v", err)
	}
	if !Is(err, errWrapped) {
		t.Fatalf("expected wrapped error to match")
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(nil, "ignored"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := Wrapf(nil, "ignored %d", 1); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestWrapf(t *testing.T) {
	err := Wrapf(errWrapped, "send %s", "GET_STATUS")
	if err.Error() != "send GET_STATUS, err: wrapped error" {
		t.Fatalf("error mismatch: %+v", err)
	}
}

func TestAnnotate(t *testing.T) {
	kind := New("mailbox: io failure")
	err := Annotate(kind, "write", "/tmp/cmd.txt", fs.ErrPermission)
	if err.Error() != "mailbox: io failure: write /tmp/cmd.txt, err: permission denied" {
		t.Fatalf("error mismatch: %+v", err)
	}
	if !Is(err, kind) {
		t.Fatalf("expected kind to match")
	}
	if !Is(err, fs.ErrPermission) {
		t.Fatalf("expected cause to match")
	}

	noCause := Annotate(kind, "mkdir", "/tmp", nil)
	if noCause.Error() != "mailbox: io failure: mkdir /tmp" {
		t.Fatalf("error mismatch: %+v", noCause)
	}
	if !Is(noCause, kind) {
		t.Fatalf("expected kind to match")
	}
}
