// Package planner turns a classified event plus a routing snapshot into a
// delivery plan: the concrete list of targets and rendered payloads.
//
// Planning never fails an event outright. Translation trouble degrades the
// payload to the original text with a marker; the plan is still produced.
package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"fabrica/internal/event"
	"fabrica/internal/langdetect"
	"fabrica/internal/routing"
	"fabrica/internal/translate"
	logx "fabrica/pkg/logx"
)

// TargetKind distinguishes the two delivery surfaces.
type TargetKind string

const (
	KindChannelBroadcast TargetKind = "channel_broadcast"
	KindDirectMessage    TargetKind = "direct_message"
)

// Target is one deliverable unit. Destination is a channel ID for broadcasts
// and a user ID for direct messages.
type Target struct {
	Kind        TargetKind
	Destination string
	Payload     string
	Language    string
	// Degraded marks payloads that fell back to the original text because
	// translation was unavailable.
	Degraded bool
}

// Key identifies the target within its event for idempotent redelivery.
func (t Target) Key() string {
	return string(t.Kind) + "|" + t.Destination + "|" + t.Language
}

// Plan is the full fan-out for one event. Targets are in deterministic order.
type Plan struct {
	EventID string
	Targets []Target
}

func (p Plan) Empty() bool { return len(p.Targets) == 0 }

type Config struct {
	// TransparentDetail controls what transparent mode posts to the channel
	// when default-language messages are fanned out as DMs: false posts a
	// presence indicator only, true includes the languages served.
	TransparentDetail bool

	// SimilarityGuard drops a broadcast when the translation is nearly
	// identical to the input, which signals the detector misfired on a
	// default-language message. 0 disables the guard.
	SimilarityGuard float64
}

type Planner struct {
	mu         sync.RWMutex
	cfg        Config
	translator translate.Translator
	log        logx.Logger
}

func New(cfg Config, tr translate.Translator, log logx.Logger) *Planner {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.SimilarityGuard == 0 {
		cfg.SimilarityGuard = 0.85
	}
	return &Planner{cfg: cfg, translator: tr, log: log.With(logx.String("comp", "planner"))}
}

// Apply swaps planner settings at runtime.
func (p *Planner) Apply(cfg Config) {
	if cfg.SimilarityGuard == 0 {
		cfg.SimilarityGuard = 0.85
	}
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

func (p *Planner) config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// PlanChat computes the fan-out for a chat message against the channel
// snapshot captured at classification time.
func (p *Planner) PlanChat(ctx context.Context, msg event.ChatMessage, snap routing.ChannelSnapshot) Plan {
	plan := Plan{EventID: msg.ID}
	if snap.Mode == routing.ModeOff {
		return plan
	}

	defaultLang := snap.DefaultLanguage
	lang := msg.DetectedLanguage

	if lang != langdetect.Unknown && lang != defaultLang {
		if t, ok := p.broadcastTranslated(ctx, msg, snap); ok {
			plan.Targets = append(plan.Targets, t)
		}
		return plan
	}

	// Default-language (or undetectable) message: DM fan-out to subscribers.
	plan.Targets = append(plan.Targets, p.fanOutDMs(ctx, msg, snap)...)

	if snap.Mode == routing.ModeTransparent && len(plan.Targets) > 0 {
		plan.Targets = append(plan.Targets, Target{
			Kind:        KindChannelBroadcast,
			Destination: snap.ChannelID,
			Payload:     p.transparentNotice(plan.Targets),
			Language:    defaultLang,
		})
	}

	sortTargets(plan.Targets)
	return plan
}

// broadcastTranslated renders the non-default-language broadcast. It returns
// ok=false only when the similarity guard decides the detection was wrong.
func (p *Planner) broadcastTranslated(ctx context.Context, msg event.ChatMessage, snap routing.ChannelSnapshot) (Target, bool) {
	t := Target{
		Kind:        KindChannelBroadcast,
		Destination: snap.ChannelID,
		Language:    snap.DefaultLanguage,
	}

	translated, err := p.translator.Translate(ctx, msg.Text, msg.DetectedLanguage, snap.DefaultLanguage)
	if err != nil {
		p.log.Warn("translation failed, degrading to original text",
			logx.String("event", msg.ID),
			logx.String("from", msg.DetectedLanguage),
			logx.Err(err))
		t.Payload = renderUntranslated(msg.Text, msg.DetectedLanguage)
		t.Degraded = true
		return t, true
	}

	if guard := p.config().SimilarityGuard; guard > 0 && similarity(msg.Text, translated) > guard {
		p.log.Debug("translation nearly identical to input, treating as misdetection",
			logx.String("event", msg.ID),
			logx.String("detected", msg.DetectedLanguage))
		return Target{}, false
	}

	switch snap.Mode {
	case routing.ModeSilent:
		t.Payload = translated
	default:
		t.Payload = renderTranslated(translated, msg.DetectedLanguage, snap.DefaultLanguage)
	}
	return t, true
}

// fanOutDMs translates the default-language message once per requested
// language, then emits one DM target per subscriber.
func (p *Planner) fanOutDMs(ctx context.Context, msg event.ChatMessage, snap routing.ChannelSnapshot) []Target {
	recipients := make([]routing.Subscription, 0, len(snap.Subscriptions))
	for _, sub := range snap.Subscriptions {
		if sub.Language == snap.DefaultLanguage {
			continue
		}
		if sub.UserID == msg.AuthorID && !snap.DebugUsers[msg.AuthorID] {
			continue
		}
		recipients = append(recipients, sub)
	}
	if len(recipients) == 0 {
		return nil
	}

	// One backend call per distinct language regardless of subscriber count.
	type rendered struct {
		text     string
		degraded bool
	}
	byLang := map[string]rendered{}
	for _, sub := range recipients {
		if _, done := byLang[sub.Language]; done {
			continue
		}
		translated, err := p.translator.Translate(ctx, msg.Text, snap.DefaultLanguage, sub.Language)
		if err != nil {
			p.log.Warn("subscriber translation failed, degrading",
				logx.String("event", msg.ID),
				logx.String("to", sub.Language),
				logx.Err(err))
			byLang[sub.Language] = rendered{text: renderUntranslated(msg.Text, snap.DefaultLanguage), degraded: true}
			continue
		}
		byLang[sub.Language] = rendered{text: translated}
	}

	out := make([]Target, 0, len(recipients))
	for _, sub := range recipients {
		r := byLang[sub.Language]
		out = append(out, Target{
			Kind:        KindDirectMessage,
			Destination: sub.UserID,
			Payload:     renderDM(r.text, snap.ChannelID, msg.AuthorID),
			Language:    sub.Language,
			Degraded:    r.degraded,
		})
	}
	return out
}

func (p *Planner) transparentNotice(dms []Target) string {
	if !p.config().TransparentDetail {
		return "Translations delivered to subscribers."
	}
	langs := map[string]struct{}{}
	for _, t := range dms {
		if t.Kind == KindDirectMessage {
			langs[t.Language] = struct{}{}
		}
	}
	names := make([]string, 0, len(langs))
	for code := range langs {
		names = append(names, langdetect.Name(code))
	}
	sort.Strings(names)
	return fmt.Sprintf("Translations delivered to subscribers: %s.", strings.Join(names, ", "))
}

// PlanActivity computes the broadcast set for an external tracker event.
// At most one target per channel; level filtering is per channel.
func (p *Planner) PlanActivity(_ context.Context, act event.ExternalActivity, snap routing.ActivitySnapshot) Plan {
	plan := Plan{EventID: act.ID}
	min := routing.MinLevelForKind(act.Kind)

	summary := renderActivity(act)
	seen := map[string]bool{}
	for _, w := range snap.Watches {
		if seen[w.ChannelID] {
			continue
		}
		seen[w.ChannelID] = true
		if !w.Level.Includes(min) {
			continue
		}
		plan.Targets = append(plan.Targets, Target{
			Kind:        KindChannelBroadcast,
			Destination: w.ChannelID,
			Payload:     summary,
		})
	}
	sortTargets(plan.Targets)
	return plan
}

// sortTargets orders targets deterministically: broadcasts first, then DMs,
// each sorted by destination and language.
func sortTargets(ts []Target) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Kind != ts[j].Kind {
			return ts[i].Kind == KindChannelBroadcast
		}
		if ts[i].Destination != ts[j].Destination {
			return ts[i].Destination < ts[j].Destination
		}
		return ts[i].Language < ts[j].Language
	})
}

// similarity is a normalized edit-distance ratio in [0,1]. 1 means equal.
func similarity(a, b string) float64 {
	ar, br := []rune(strings.ToLower(strings.TrimSpace(a))), []rune(strings.ToLower(strings.TrimSpace(b)))
	if len(ar) == 0 && len(br) == 0 {
		return 1
	}
	longest := len(ar)
	if len(br) > longest {
		longest = len(br)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(editDistance(ar, br))/float64(longest)
}

func editDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = minOf(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func minOf(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
