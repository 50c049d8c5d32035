package transport

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestPermanentTagging(t *testing.T) {
	t.Parallel()
	base := errors.New("chat not found")

	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}
	err := Permanent(base)
	if !IsPermanent(err) {
		t.Fatal("expected IsPermanent")
	}
	if !errors.Is(err, base) {
		t.Fatal("tag should preserve the cause")
	}
	wrapped := fmt.Errorf("send failed: %w", err)
	if !IsPermanent(wrapped) {
		t.Fatal("IsPermanent should see through wrapping")
	}
	if IsPermanent(base) {
		t.Fatal("untagged error must not be permanent")
	}
}

func TestRetryAfterHint(t *testing.T) {
	t.Parallel()
	base := errors.New("too many requests")

	if RetryAfter(nil, time.Second) != nil {
		t.Fatal("RetryAfter(nil) should be nil")
	}
	err := RetryAfter(base, 3*time.Second)
	after, ok := RetryAfterHint(err)
	if !ok || after != 3*time.Second {
		t.Fatalf("expected 3s hint, got %v/%v", after, ok)
	}
	if _, ok := RetryAfterHint(base); ok {
		t.Fatal("untagged error should carry no hint")
	}
	wrapped := fmt.Errorf("send failed: %w", err)
	if after, ok := RetryAfterHint(wrapped); !ok || after != 3*time.Second {
		t.Fatal("hint should survive wrapping")
	}
}
