package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestSQLite(t *testing.T) Store {
	t.Helper()
	s, err := Open(Config{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "fabrica.db"),
		BusyTimeout: time.Second,
	}, logxNop())
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestSQLite(t)
	ctx := context.Background()

	if err := s.SetChannelMode(ctx, "c1", "on", "admin"); err != nil {
		t.Fatalf("SetChannelMode: %v", err)
	}
	if err := s.SetChannelMode(ctx, "c1", "silent", "admin"); err != nil {
		t.Fatalf("SetChannelMode upsert: %v", err)
	}
	mode, err := s.GetChannelMode(ctx, "c1")
	if err != nil || mode != "silent" {
		t.Fatalf("expected silent, got %q (%v)", mode, err)
	}

	if err := s.Subscribe(ctx, "c1", "u1", "hi"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := s.Subscribe(ctx, "c1", "u1", "hi"); err != nil {
		t.Fatalf("idempotent Subscribe: %v", err)
	}
	rows, err := s.ListChannelSubscriptions(ctx, "c1")
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected 1 subscription, got %d (%v)", len(rows), err)
	}

	if err := s.SetWatch(ctx, "c1", "github", "org/repo", "minimal"); err != nil {
		t.Fatalf("SetWatch: %v", err)
	}
	watches, err := s.ListWatches(ctx, "github", "org/repo")
	if err != nil || len(watches) != 1 || watches[0].Level != "minimal" {
		t.Fatalf("unexpected watches: %+v (%v)", watches, err)
	}

	if err := s.SetDebug(ctx, "c1", "u1", true); err != nil {
		t.Fatalf("SetDebug: %v", err)
	}
	on, err := s.GetDebug(ctx, "c1", "u1")
	if err != nil || !on {
		t.Fatalf("expected debug on, got %v (%v)", on, err)
	}
}

func TestSQLiteDedup(t *testing.T) {
	t.Parallel()
	s := openTestSQLite(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.PutDedup(ctx, "ev|dm|u1|hi", now.Add(time.Hour)); err != nil {
		t.Fatalf("PutDedup: %v", err)
	}
	if err := s.PutDedup(ctx, "old", now.Add(-time.Minute)); err != nil {
		t.Fatalf("PutDedup: %v", err)
	}

	until, ok, err := s.GetDedup(ctx, "ev|dm|u1|hi")
	if err != nil || !ok || !until.After(now) {
		t.Fatalf("expected live entry, got ok=%v until=%v err=%v", ok, until, err)
	}

	if err := s.PruneDedup(ctx); err != nil {
		t.Fatalf("PruneDedup: %v", err)
	}
	if _, ok, _ := s.GetDedup(ctx, "old"); ok {
		t.Fatal("expired entry should be pruned")
	}
	if _, ok, _ := s.GetDedup(ctx, "ev|dm|u1|hi"); !ok {
		t.Fatal("live entry should survive")
	}
}
