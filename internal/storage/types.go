package storage

import (
	"time"
)

// Config configures storage.
//
// Driver values:
//   - "memory": dependency-free in-process backend (lost on restart)
//   - "sqlite": SQLite database file
//
// If Driver is empty, "memory" is used.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// SubscriptionRow is one (channel, user, language) subscription.
type SubscriptionRow struct {
	ChannelID string
	UserID    string
	Language  string
}

// WatchRow binds a channel to a tracker project/repo at a watch level.
type WatchRow struct {
	ChannelID string
	Source    string
	Project   string
	Level     string
}
