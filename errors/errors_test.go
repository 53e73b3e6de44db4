package errors

import (
	"strings"
	"testing"
)

func TestNewCarriesLocation(t *testing.T) {
	err := New("bad value %d", 7)
	if !strings.HasPrefix(err.Error(), "[errors_test.go:") {
		t.Fatalf("expected location prefix, got %q", err.Error())
	}
	if !strings.HasSuffix(err.Error(), "bad value 7") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "ignored") != nil {
		t.Fatal("wrapping nil must return nil")
	}

	base := Sentinel("boom")
	err := Wrapf(base, "while doing %s", "work")
	if !Is(err, base) {
		t.Fatal("wrapped error lost its cause")
	}
	if !strings.Contains(err.Error(), "while doing work: boom") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
