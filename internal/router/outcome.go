package router

import "fabrica/internal/delivery"

// Outcome is the typed result of handling one inbound payload. It is a closed
// union: Delivered, Ignored, or Rejected.
type Outcome interface {
	outcome()
}

// Delivered means a plan was executed; the report holds per-target results,
// including any fatal failures.
type Delivered struct {
	Report delivery.Report
}

// Ignored means no action was needed: empty message, bot echo, unmatched
// watch level, or an event type we acknowledge but do not route.
type Ignored struct {
	Reason string
}

// Rejected is terminal and logged: invalid signature or an unclassifiable
// payload. Never retried.
type Rejected struct {
	Reason string
}

func (Delivered) outcome() {}
func (Ignored) outcome()   {}
func (Rejected) outcome()  {}
