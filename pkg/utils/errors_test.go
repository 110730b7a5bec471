package utils

import (
	"errors"
	"testing"
)

func TestWrap(t *testing.T) {
	if got := Wrap(nil, "context"); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}

	base := errors.New("boom")
	wrapped := Wrap(base, "context")
	if wrapped.Error() != "context: boom" {
		t.Fatalf("unexpected message: %q", wrapped.Error())
	}
	if !errors.Is(wrapped, base) {
		t.Fatalf("expected wrapped error to unwrap to base")
	}
}

func TestWrapIf(t *testing.T) {
	base := errors.New("boom")

	if got := WrapIf(false, base, "context"); got != base {
		t.Fatalf("expected unchanged error when cond is false, got %v", got)
	}

	wrapped := WrapIf(true, base, "context")
	if wrapped.Error() != "context: boom" {
		t.Fatalf("unexpected message: %q", wrapped.Error())
	}
	if !errors.Is(wrapped, base) {
		t.Fatalf("expected wrapped error to unwrap to base")
	}

	if got := WrapIf(true, nil, "context"); got != nil {
		t.Fatalf("expected nil to stay nil, got %v", got)
	}
}
