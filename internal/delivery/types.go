// Package delivery executes a plan against the messenger transport with
// bounded concurrency, per-target retry, and idempotent redelivery.
package delivery

import (
	"context"
	"time"

	"fabrica/internal/planner"
)

// Status is the terminal state of one target.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusDuplicate Status = "duplicate"
	StatusFatal     Status = "fatal_failure"
)

// Attempt is the per-target outcome in a report.
type Attempt struct {
	Target   planner.Target
	Status   Status
	Attempts int
	Duration time.Duration
	// Reason is set for fatal failures: "permanent", "retries_exhausted",
	// or "deadline_exceeded".
	Reason string
	Err    error
}

// Report aggregates one plan's delivery. Targets appear in plan order.
type Report struct {
	EventID  string
	Attempts []Attempt
}

// Failed counts fatal outcomes.
func (r Report) Failed() int {
	n := 0
	for _, a := range r.Attempts {
		if a.Status == StatusFatal {
			n++
		}
	}
	return n
}

// AllFailed reports whether nothing got through.
func (r Report) AllFailed() bool {
	return len(r.Attempts) > 0 && r.Failed() == len(r.Attempts)
}

// Config tunes retries and the per-destination-class gates.
type Config struct {
	// RetryMax is additional attempts after the first; 0 disables retry.
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	RetryJitter   float64

	// Per destination class. Broadcasts and DMs contend on separate gates so
	// a DM storm cannot starve channel posts.
	BroadcastConcurrency int
	BroadcastRatePerSec  int
	DMConcurrency        int
	DMRatePerSec         int

	// DedupTTL bounds how long a delivered (event, target) pair suppresses
	// redelivery. 0 means 24h.
	DedupTTL time.Duration
}

func (c *Config) Normalize() {
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 15 * time.Second
	}
	if c.RetryJitter <= 0 {
		c.RetryJitter = 0.2
	}
	if c.BroadcastConcurrency <= 0 {
		c.BroadcastConcurrency = 4
	}
	if c.BroadcastRatePerSec <= 0 {
		c.BroadcastRatePerSec = 10
	}
	if c.DMConcurrency <= 0 {
		c.DMConcurrency = 8
	}
	if c.DMRatePerSec <= 0 {
		c.DMRatePerSec = 20
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = 24 * time.Hour
	}
}

// DedupStore is the idempotency ledger, a subset of the storage API.
type DedupStore interface {
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
}
