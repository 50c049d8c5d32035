package routing

import (
	"context"
	"fmt"
	"strings"

	"fabrica/internal/event"
	"fabrica/internal/storage"
	logx "fabrica/pkg/logx"
)

// Config is the static part of the routing table. Everything else lives in
// the store and is mutated through admin commands.
type Config struct {
	// DefaultLanguage is the assumed channel language when no override exists.
	DefaultLanguage string
	// ChannelLanguages overrides the default per channel ID.
	ChannelLanguages map[string]string
}

func (c *Config) Normalize() {
	c.DefaultLanguage = strings.ToLower(strings.TrimSpace(c.DefaultLanguage))
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = "en"
	}
	for k, v := range c.ChannelLanguages {
		c.ChannelLanguages[k] = strings.ToLower(strings.TrimSpace(v))
	}
}

// Table resolves routing snapshots and applies admin mutations.
type Table struct {
	cfg   Config
	store storage.Store
	log   logx.Logger
}

func NewTable(cfg Config, store storage.Store, log logx.Logger) *Table {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg.Normalize()
	return &Table{cfg: cfg, store: store, log: log.With(logx.String("comp", "routing"))}
}

// DefaultLanguage returns the configured language for a channel.
func (t *Table) DefaultLanguage(channelID string) string {
	if lang, ok := t.cfg.ChannelLanguages[channelID]; ok && lang != "" {
		return lang
	}
	return t.cfg.DefaultLanguage
}

// ChannelSnapshot captures everything planning needs for one chat channel.
// The snapshot is immutable; later admin changes do not affect it.
func (t *Table) ChannelSnapshot(ctx context.Context, channelID string) (ChannelSnapshot, error) {
	snap := ChannelSnapshot{
		ChannelID:       channelID,
		Mode:            ModeOff,
		DefaultLanguage: t.DefaultLanguage(channelID),
		DebugUsers:      map[string]bool{},
	}

	mode, err := t.store.GetChannelMode(ctx, channelID)
	if err != nil {
		return snap, fmt.Errorf("load channel mode: %w", err)
	}
	snap.Mode = ParseMode(mode)
	if snap.Mode == ModeOff {
		// Nothing downstream reads subscriptions for an off channel.
		return snap, nil
	}

	rows, err := t.store.ListChannelSubscriptions(ctx, channelID)
	if err != nil {
		return snap, fmt.Errorf("load subscriptions: %w", err)
	}
	subs := make([]Subscription, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, Subscription{UserID: r.UserID, Language: r.Language})
		debug, err := t.store.GetDebug(ctx, channelID, r.UserID)
		if err != nil {
			return snap, fmt.Errorf("load debug flag: %w", err)
		}
		if debug {
			snap.DebugUsers[r.UserID] = true
		}
	}
	snap.Subscriptions = normalizeSubscriptions(subs)
	return snap, nil
}

// ActivitySnapshot captures the watches relevant to one tracker event.
func (t *Table) ActivitySnapshot(ctx context.Context, source event.Source, project string) (ActivitySnapshot, error) {
	rows, err := t.store.ListWatches(ctx, string(source), project)
	if err != nil {
		return ActivitySnapshot{}, fmt.Errorf("load watches: %w", err)
	}
	ws := make([]Watch, 0, len(rows))
	for _, r := range rows {
		ws = append(ws, Watch{
			ChannelID: r.ChannelID,
			Source:    event.Source(r.Source),
			Project:   r.Project,
			Level:     ParseWatchLevel(r.Level),
		})
	}
	return ActivitySnapshot{Watches: normalizeWatches(ws)}, nil
}

// ---- admin mutations ----

func (t *Table) SetChannelMode(ctx context.Context, channelID string, mode Mode, setBy string) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid mode %q", mode)
	}
	if err := t.store.SetChannelMode(ctx, channelID, string(mode), setBy); err != nil {
		return err
	}
	t.log.Info("channel mode changed",
		logx.String("channel", channelID),
		logx.String("mode", string(mode)),
		logx.String("by", setBy))
	return nil
}

func (t *Table) Subscribe(ctx context.Context, channelID, userID, language string) error {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return fmt.Errorf("language is required")
	}
	return t.store.Subscribe(ctx, channelID, userID, language)
}

func (t *Table) Unsubscribe(ctx context.Context, channelID, userID, language string) error {
	return t.store.Unsubscribe(ctx, channelID, userID, strings.ToLower(strings.TrimSpace(language)))
}

func (t *Table) SetWatch(ctx context.Context, channelID string, source event.Source, project string, level WatchLevel) error {
	if level == LevelOff {
		return t.store.RemoveWatch(ctx, channelID, string(source), project)
	}
	return t.store.SetWatch(ctx, channelID, string(source), project, string(level))
}

func (t *Table) RemoveWatch(ctx context.Context, channelID string, source event.Source, project string) error {
	return t.store.RemoveWatch(ctx, channelID, string(source), project)
}

func (t *Table) SetDebug(ctx context.Context, channelID, userID string, enabled bool) error {
	return t.store.SetDebug(ctx, channelID, userID, enabled)
}
