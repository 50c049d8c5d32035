package delivery

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fabrica/internal/eventbus"
	"fabrica/internal/planner"
	"fabrica/internal/transport"
	logx "fabrica/pkg/logx"
)

// classGate bounds one destination class: a token-bucket rate plus a
// concurrency ceiling.
type classGate struct {
	limiter *rate.Limiter
	sem     chan struct{}
}

func newClassGate(ratePerSec, concurrency int) *classGate {
	return &classGate{
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		sem:     make(chan struct{}, concurrency),
	}
}

func (g *classGate) acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := g.limiter.Wait(ctx); err != nil {
		<-g.sem
		return err
	}
	return nil
}

func (g *classGate) release() { <-g.sem }

// DeliveryEvent is the bus payload for delivery lifecycle events.
type DeliveryEvent struct {
	EventID     string
	Kind        string
	Destination string
	Status      string
	Attempts    int
	Error       string
}

// Engine dispatches plan targets concurrently and isolates their failures.
type Engine struct {
	mu        sync.RWMutex
	cfg       Config
	broadcast *classGate
	dm        *classGate

	messenger transport.Messenger
	dedup     DedupStore
	bus       eventbus.Bus
	log       logx.Logger
}

func NewEngine(cfg Config, m transport.Messenger, dedup DedupStore, bus eventbus.Bus, log logx.Logger) *Engine {
	cfg.Normalize()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:       cfg,
		broadcast: newClassGate(cfg.BroadcastRatePerSec, cfg.BroadcastConcurrency),
		dm:        newClassGate(cfg.DMRatePerSec, cfg.DMConcurrency),
		messenger: m,
		dedup:     dedup,
		bus:       bus,
		log:       log.With(logx.String("comp", "delivery")),
	}
}

// Apply swaps retry settings and gates at runtime. In-flight deliveries keep
// the gates they already acquired.
func (e *Engine) Apply(cfg Config) {
	cfg.Normalize()
	e.mu.Lock()
	e.cfg = cfg
	e.broadcast = newClassGate(cfg.BroadcastRatePerSec, cfg.BroadcastConcurrency)
	e.dm = newClassGate(cfg.DMRatePerSec, cfg.DMConcurrency)
	e.mu.Unlock()
}

func (e *Engine) snapshot() (Config, *classGate, *classGate) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg, e.broadcast, e.dm
}

// Deliver runs every target of the plan to a terminal state. One target's
// failure never cancels a sibling. The caller's ctx deadline bounds the whole
// call; targets unresolved at expiry report fatal deadline_exceeded.
func (e *Engine) Deliver(ctx context.Context, plan planner.Plan) Report {
	report := Report{EventID: plan.EventID, Attempts: make([]Attempt, len(plan.Targets))}
	if len(plan.Targets) == 0 {
		return report
	}

	cfg, bGate, dGate := e.snapshot()

	var wg sync.WaitGroup
	for i, t := range plan.Targets {
		wg.Add(1)
		go func(i int, t planner.Target) {
			defer wg.Done()
			gate := bGate
			if t.Kind == planner.KindDirectMessage {
				gate = dGate
			}
			report.Attempts[i] = e.deliverOne(ctx, cfg, gate, plan.EventID, t)
		}(i, t)
	}
	wg.Wait()

	for _, a := range report.Attempts {
		e.publish(plan.EventID, a)
	}
	return report
}

func (e *Engine) deliverOne(ctx context.Context, cfg Config, gate *classGate, eventID string, t planner.Target) Attempt {
	start := time.Now()
	a := Attempt{Target: t}

	key := dedupKey(eventID, t)
	if until, ok, err := e.dedup.GetDedup(ctx, key); err == nil && ok && until.After(time.Now()) {
		a.Status = StatusDuplicate
		a.Duration = time.Since(start)
		return a
	}

	if err := gate.acquire(ctx); err != nil {
		a.Status = StatusFatal
		a.Reason = "deadline_exceeded"
		a.Err = err
		a.Duration = time.Since(start)
		return a
	}
	defer gate.release()

	maxAttempts := 1 + cfg.RetryMax
	var err error
attemptLoop:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		a.Attempts = attempt
		err = e.send(ctx, t)
		if err == nil {
			break
		}
		if transport.IsPermanent(err) {
			a.Reason = "permanent"
			break
		}
		if attempt >= maxAttempts {
			a.Reason = "retries_exhausted"
			break
		}

		hint, hasHint := transport.RetryAfterHint(err)
		delay := retryDelay(cfg, attempt, hint, hasHint)
		e.log.Debug("delivery retry scheduled",
			logx.String("event", eventID),
			logx.String("dest", t.Destination),
			logx.Int("attempt", attempt+1),
			logx.Duration("delay", delay),
			logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			err = ctx.Err()
			a.Reason = "deadline_exceeded"
			break attemptLoop
		case <-tmr.C:
		}
	}

	a.Duration = time.Since(start)
	if err != nil {
		a.Status = StatusFatal
		a.Err = err
		return a
	}

	a.Status = StatusSuccess
	a.Reason = ""
	// Ledger write is best-effort: losing it risks a duplicate send, never a
	// lost one.
	if err := e.dedup.PutDedup(context.WithoutCancel(ctx), key, time.Now().Add(cfg.DedupTTL)); err != nil {
		e.log.Warn("dedup ledger write failed", logx.String("key", key), logx.Err(err))
	}
	return a
}

func (e *Engine) send(ctx context.Context, t planner.Target) error {
	switch t.Kind {
	case planner.KindDirectMessage:
		return e.messenger.SendDM(ctx, t.Destination, t.Payload)
	default:
		return e.messenger.PostToChannel(ctx, t.Destination, t.Payload)
	}
}

func (e *Engine) publish(eventID string, a Attempt) {
	if e.bus == nil {
		return
	}
	typ := eventbus.TypeDeliverySent
	switch a.Status {
	case StatusFatal:
		typ = eventbus.TypeDeliveryFailed
	case StatusDuplicate:
		typ = eventbus.TypeDeliveryDuplicate
	}
	data := DeliveryEvent{
		EventID:     eventID,
		Kind:        string(a.Target.Kind),
		Destination: a.Target.Destination,
		Status:      string(a.Status),
		Attempts:    a.Attempts,
	}
	if a.Err != nil {
		data.Error = a.Err.Error()
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

func dedupKey(eventID string, t planner.Target) string {
	return eventID + "|" + t.Key()
}
