// Package routing holds the per-channel and per-user delivery configuration:
// translation modes, subscriptions, and watch levels.
//
// Reads hand out immutable snapshots captured at classification time; planning
// never observes a half-applied admin change.
package routing

import (
	"sort"
	"strings"

	"fabrica/internal/event"
)

// Mode is a channel's translation mode.
type Mode string

const (
	ModeOff         Mode = "off"
	ModeSilent      Mode = "silent"
	ModeOn          Mode = "on"
	ModeTransparent Mode = "transparent"
)

// ParseMode normalizes raw input; anything unknown maps to off.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSilent:
		return ModeSilent
	case ModeOn:
		return ModeOn
	case ModeTransparent:
		return ModeTransparent
	default:
		return ModeOff
	}
}

func (m Mode) Valid() bool {
	switch m {
	case ModeOff, ModeSilent, ModeOn, ModeTransparent:
		return true
	}
	return false
}

// WatchLevel is a verbosity filter for external activity.
// Levels are strictly ordered: off < minimal < important < all.
type WatchLevel string

const (
	LevelOff       WatchLevel = "off"
	LevelMinimal   WatchLevel = "minimal"
	LevelImportant WatchLevel = "important"
	LevelAll       WatchLevel = "all"
)

func ParseWatchLevel(s string) WatchLevel {
	switch WatchLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LevelMinimal:
		return LevelMinimal
	case LevelImportant:
		return LevelImportant
	case LevelAll:
		return LevelAll
	default:
		return LevelOff
	}
}

func (l WatchLevel) rank() int {
	switch l {
	case LevelMinimal:
		return 1
	case LevelImportant:
		return 2
	case LevelAll:
		return 3
	default:
		return 0
	}
}

// Includes reports whether a channel configured at level l should receive an
// event that requires at least level min. off includes nothing.
func (l WatchLevel) Includes(min WatchLevel) bool {
	if l.rank() == 0 {
		return false
	}
	return l.rank() >= min.rank()
}

// MinLevelForKind maps an activity kind to the least verbose watch level that
// still receives it. Unknown kinds only surface at "all".
func MinLevelForKind(k event.Kind) WatchLevel {
	switch k {
	case event.KindRelease, event.KindPRMerged:
		return LevelMinimal
	case event.KindPROpened, event.KindPRClosed, event.KindMilestone:
		return LevelImportant
	default:
		return LevelAll
	}
}

// Subscription says "deliver DMs in this language to this user".
type Subscription struct {
	UserID   string
	Language string
}

// Watch binds a channel to a tracker project or repository at a level.
type Watch struct {
	ChannelID string
	Source    event.Source
	Project   string
	Level     WatchLevel
}

// ChannelSnapshot is the routing view for one chat channel, captured once per
// event. Subscriptions are deduplicated and sorted for deterministic planning.
type ChannelSnapshot struct {
	ChannelID       string
	Mode            Mode
	DefaultLanguage string
	Subscriptions   []Subscription
	DebugUsers      map[string]bool
}

// ActivitySnapshot is the routing view for one external activity event.
// Watches are level != off only, at most one per channel.
type ActivitySnapshot struct {
	Watches []Watch
}

// normalizeSubscriptions dedupes (user, language) pairs and orders them.
func normalizeSubscriptions(subs []Subscription) []Subscription {
	seen := make(map[Subscription]struct{}, len(subs))
	out := make([]Subscription, 0, len(subs))
	for _, s := range subs {
		s.Language = strings.ToLower(strings.TrimSpace(s.Language))
		if s.UserID == "" || s.Language == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Language < out[j].Language
	})
	return out
}

// normalizeWatches drops off-level rows and keeps one watch per channel
// (highest level wins if duplicates slipped in).
func normalizeWatches(ws []Watch) []Watch {
	best := make(map[string]Watch, len(ws))
	for _, w := range ws {
		if w.Level.rank() == 0 {
			continue
		}
		if cur, ok := best[w.ChannelID]; !ok || w.Level.rank() > cur.Level.rank() {
			best[w.ChannelID] = w
		}
	}
	out := make([]Watch, 0, len(best))
	for _, w := range best {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}
