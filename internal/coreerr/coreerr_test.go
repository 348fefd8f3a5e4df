package coreerr

import (
	"errors"
	"testing"
)

func TestClassifiersMatchTheirOwnKind(t *testing.T) {
	cause := errors.New("boom")

	if !IsTransient(NewTransient("op", cause)) {
		t.Fatal("expected IsTransient to recognize a TransientError")
	}
	if !IsProtocolViolation(NewProtocolViolation("op", cause)) {
		t.Fatal("expected IsProtocolViolation to recognize a ProtocolViolationError")
	}
	if !IsFatal(NewFatal("op", cause)) {
		t.Fatal("expected IsFatal to recognize a FatalError")
	}
}

func TestClassifiersRejectOtherKinds(t *testing.T) {
	cause := errors.New("boom")
	if IsTransient(NewFatal("op", cause)) {
		t.Fatal("expected IsTransient to reject a FatalError")
	}
	if IsFatal(NewTransient("op", cause)) {
		t.Fatal("expected IsFatal to reject a TransientError")
	}
}

func TestIsRecognizesAnyKind(t *testing.T) {
	if !Is(NewRaceWarning("op", nil)) {
		t.Fatal("expected Is to recognize a RaceWarning")
	}
	if Is(errors.New("plain error")) {
		t.Fatal("expected Is to reject a plain error")
	}
}

func TestErrorStringsIncludeOpAndCause(t *testing.T) {
	err := NewTransient("start transcoder", errors.New("exit status 1"))
	if err.Error() != "transient error: start transcoder: exit status 1" {
		t.Fatalf("unexpected error string: %q", err.Error())
	}

	bare := NewFatal("invariant check", nil)
	if bare.Error() != "fatal error: invariant check" {
		t.Fatalf("unexpected error string for nil cause: %q", bare.Error())
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := NewProtocolViolation("op", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to see through to the wrapped cause")
	}
}
