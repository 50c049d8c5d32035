// Package router wires classification, planning, and delivery into one
// handle-per-payload pipeline. Every inbound payload yields a typed Outcome;
// nothing downstream of ingestion panics or raises.
package router

import (
	"context"
	"errors"
	"time"

	"fabrica/internal/delivery"
	"fabrica/internal/event"
	"fabrica/internal/eventbus"
	"fabrica/internal/planner"
	"fabrica/internal/routing"
	logx "fabrica/pkg/logx"
)

type Config struct {
	// HandleTimeout bounds one handle call end to end, including retries.
	// 0 means 60s.
	HandleTimeout time.Duration
}

func (c *Config) Normalize() {
	if c.HandleTimeout <= 0 {
		c.HandleTimeout = 60 * time.Second
	}
}

type Router struct {
	cfg        Config
	classifier *event.Classifier
	table      *routing.Table
	planner    *planner.Planner
	engine     *delivery.Engine
	bus        eventbus.Bus
	log        logx.Logger
}

func New(cfg Config, cl *event.Classifier, table *routing.Table, pl *planner.Planner, eng *delivery.Engine, bus eventbus.Bus, log logx.Logger) *Router {
	cfg.Normalize()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		cfg:        cfg,
		classifier: cl,
		table:      table,
		planner:    pl,
		engine:     eng,
		bus:        bus,
		log:        log.With(logx.String("comp", "router")),
	}
}

// HandleChat routes one inbound chat message.
func (r *Router) HandleChat(ctx context.Context, p event.ChatPayload) Outcome {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.HandleTimeout)
	defer cancel()

	ev, err := r.classifier.ClassifyChat(p)
	if err != nil {
		return r.classificationOutcome(err)
	}
	msg := ev.(event.ChatMessage)

	snap, err := r.table.ChannelSnapshot(ctx, msg.ChannelID)
	if err != nil {
		r.log.Error("routing snapshot failed", logx.String("channel", msg.ChannelID), logx.Err(err))
		return Rejected{Reason: "routing unavailable"}
	}

	r.published(eventbus.TypeEventClassified, msg.ID)
	plan := r.planner.PlanChat(ctx, msg, snap)
	return r.execute(ctx, plan)
}

// HandleWebhook routes one inbound tracker webhook.
func (r *Router) HandleWebhook(ctx context.Context, p event.WebhookPayload) Outcome {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.HandleTimeout)
	defer cancel()

	ev, err := r.classifier.ClassifyWebhook(p)
	if err != nil {
		return r.classificationOutcome(err)
	}
	act := ev.(event.ExternalActivity)

	snap, err := r.table.ActivitySnapshot(ctx, act.Source, act.ProjectOrRepo)
	if err != nil {
		r.log.Error("routing snapshot failed",
			logx.String("source", string(act.Source)),
			logx.String("project", act.ProjectOrRepo),
			logx.Err(err))
		return Rejected{Reason: "routing unavailable"}
	}

	r.published(eventbus.TypeEventClassified, act.ID)
	plan := r.planner.PlanActivity(ctx, act, snap)
	return r.execute(ctx, plan)
}

func (r *Router) classificationOutcome(err error) Outcome {
	switch {
	case errors.Is(err, event.ErrIgnored):
		r.published(eventbus.TypeEventIgnored, "")
		return Ignored{Reason: err.Error()}
	case errors.Is(err, event.ErrUnrecognizedEvent):
		r.published(eventbus.TypeEventIgnored, "")
		return Ignored{Reason: err.Error()}
	case errors.Is(err, event.ErrInvalidSignature):
		r.log.Warn("webhook rejected", logx.Err(err))
		r.published(eventbus.TypeEventRejected, "")
		return Rejected{Reason: "invalid signature"}
	default:
		r.log.Warn("classification failed", logx.Err(err))
		r.published(eventbus.TypeEventRejected, "")
		return Rejected{Reason: err.Error()}
	}
}

func (r *Router) execute(ctx context.Context, plan planner.Plan) Outcome {
	if plan.Empty() {
		return Ignored{Reason: "no matching targets"}
	}
	report := r.engine.Deliver(ctx, plan)
	if failed := report.Failed(); failed > 0 {
		r.log.Warn("delivery completed with failures",
			logx.String("event", plan.EventID),
			logx.Int("targets", len(report.Attempts)),
			logx.Int("failed", failed))
	}
	return Delivered{Report: report}
}

func (r *Router) published(typ, eventID string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Data: eventID})
}
