package telegram

import (
	"errors"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"fabrica/internal/transport"
	logx "fabrica/pkg/logx"
)

func discardLogger() logx.Logger { return logx.Nop() }

func TestClassifySendError(t *testing.T) {
	t.Parallel()

	t.Run("flood control carries retry hint", func(t *testing.T) {
		err := classifySendError(tele.FloodError{
			RetryAfter: 4,
		})
		after, ok := transport.RetryAfterHint(err)
		if !ok || after != 4*time.Second {
			t.Fatalf("expected 4s hint, got %v/%v", after, ok)
		}
		if transport.IsPermanent(err) {
			t.Fatal("flood control is not permanent")
		}
	})

	t.Run("forbidden is permanent", func(t *testing.T) {
		err := classifySendError(&tele.Error{Code: 403, Description: "bot was blocked"})
		if !transport.IsPermanent(err) {
			t.Fatal("403 should be permanent")
		}
	})

	t.Run("bad request is permanent", func(t *testing.T) {
		err := classifySendError(&tele.Error{Code: 400, Description: "chat not found"})
		if !transport.IsPermanent(err) {
			t.Fatal("400 should be permanent")
		}
	})

	t.Run("server error stays retryable", func(t *testing.T) {
		err := classifySendError(&tele.Error{Code: 502, Description: "bad gateway"})
		if transport.IsPermanent(err) {
			t.Fatal("5xx should be retryable")
		}
		if _, ok := transport.RetryAfterHint(err); ok {
			t.Fatal("5xx carries no hint")
		}
	})

	t.Run("plain error passes through", func(t *testing.T) {
		base := errors.New("connection reset")
		if got := classifySendError(base); got != base {
			t.Fatalf("expected passthrough, got %v", got)
		}
	})
}

func TestNewRejectsEmptyToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: "  "}, discardLogger()); err == nil {
		t.Fatal("expected error for empty token")
	}
}
