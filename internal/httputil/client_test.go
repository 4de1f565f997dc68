package httputil

import (
	"errors"
	"strings"
	"testing"
)

func TestReadAllWithLimit(t *testing.T) {
	body, truncated, err := ReadAllWithLimit(strings.NewReader("hello"), 10)
	if err != nil {
		t.Fatalf("ReadAllWithLimit() error = %v", err)
	}
	if truncated {
		t.Error("truncated = true, want false")
	}
	if string(body) != "hello" {
		t.Errorf("body = %q, want hello", body)
	}

	body, truncated, err = ReadAllWithLimit(strings.NewReader("hello world"), 5)
	if err != nil {
		t.Fatalf("ReadAllWithLimit() error = %v", err)
	}
	if !truncated {
		t.Error("truncated = false, want true")
	}
	if string(body) != "hello" {
		t.Errorf("body = %q, want hello", body)
	}

	if _, _, err := ReadAllWithLimit(strings.NewReader("x"), 0); err == nil {
		t.Error("expected error for non-positive limit")
	}
}

func TestReadAllStrict_TooLarge(t *testing.T) {
	_, err := ReadAllStrict(strings.NewReader("0123456789"), 4)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("ReadAllStrict() error = %v, want ErrBodyTooLarge", err)
	}
}
