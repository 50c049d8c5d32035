package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "fabrica/pkg/logx"
)

// Store is the persistence API behind the routing table and the delivery
// engine's idempotency ledger.
//
// Mode/subscription/watch writes are owned by the command-handling side;
// the routing core only reads them.
type Store interface {
	GetChannelMode(ctx context.Context, channelID string) (string, error)
	SetChannelMode(ctx context.Context, channelID, mode, setBy string) error

	ListChannelSubscriptions(ctx context.Context, channelID string) ([]SubscriptionRow, error)
	ListUserSubscriptions(ctx context.Context, userID string) ([]SubscriptionRow, error)
	Subscribe(ctx context.Context, channelID, userID, language string) error
	Unsubscribe(ctx context.Context, channelID, userID, language string) error

	ListWatches(ctx context.Context, source, project string) ([]WatchRow, error)
	SetWatch(ctx context.Context, channelID, source, project, level string) error
	RemoveWatch(ctx context.Context, channelID, source, project string) error

	GetDebug(ctx context.Context, channelID, userID string) (bool, error)
	SetDebug(ctx context.Context, channelID, userID string, enabled bool) error

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	PruneDedup(ctx context.Context) error

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
