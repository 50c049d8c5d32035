package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "fabrica/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) GetChannelMode(ctx context.Context, channelID string) (string, error) {
	var mode string
	err := s.db.QueryRowContext(ctx,
		`SELECT mode FROM channel_modes WHERE channel_id = ?`, channelID).Scan(&mode)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return mode, nil
}

func (s *sqliteStore) SetChannelMode(ctx context.Context, channelID, mode, setBy string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_modes(channel_id, mode, set_by, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(channel_id) DO UPDATE SET mode=excluded.mode, set_by=excluded.set_by, updated_at=excluded.updated_at`,
		channelID, mode, setBy, time.Now().Format(time.RFC3339Nano))
	return err
}

func (s *sqliteStore) ListChannelSubscriptions(ctx context.Context, channelID string) ([]SubscriptionRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, user_id, language FROM subscriptions WHERE channel_id = ? ORDER BY user_id, language`,
		channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (s *sqliteStore) ListUserSubscriptions(ctx context.Context, userID string) ([]SubscriptionRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, user_id, language FROM subscriptions WHERE user_id = ? ORDER BY channel_id, language`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func scanSubscriptions(rows *sql.Rows) ([]SubscriptionRow, error) {
	var out []SubscriptionRow
	for rows.Next() {
		var r SubscriptionRow
		if err := rows.Scan(&r.ChannelID, &r.UserID, &r.Language); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Subscribe is idempotent: re-subscribing to the same language is a no-op.
func (s *sqliteStore) Subscribe(ctx context.Context, channelID, userID, language string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions(channel_id, user_id, language, created_at) VALUES(?,?,?,?)
		 ON CONFLICT(channel_id, user_id, language) DO NOTHING`,
		channelID, userID, language, time.Now().Format(time.RFC3339Nano))
	return err
}

func (s *sqliteStore) Unsubscribe(ctx context.Context, channelID, userID, language string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE channel_id = ? AND user_id = ? AND language = ?`,
		channelID, userID, language)
	return err
}

func (s *sqliteStore) ListWatches(ctx context.Context, source, project string) ([]WatchRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, source, project, level FROM watches WHERE source = ? AND project = ? ORDER BY channel_id`,
		source, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WatchRow
	for rows.Next() {
		var r WatchRow
		if err := rows.Scan(&r.ChannelID, &r.Source, &r.Project, &r.Level); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SetWatch(ctx context.Context, channelID, source, project, level string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watches(channel_id, source, project, level, updated_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(channel_id, source, project) DO UPDATE SET level=excluded.level, updated_at=excluded.updated_at`,
		channelID, source, project, level, time.Now().Format(time.RFC3339Nano))
	return err
}

func (s *sqliteStore) RemoveWatch(ctx context.Context, channelID, source, project string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM watches WHERE channel_id = ? AND source = ? AND project = ?`,
		channelID, source, project)
	return err
}

func (s *sqliteStore) GetDebug(ctx context.Context, channelID, userID string) (bool, error) {
	var enabled int
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled FROM debug_modes WHERE channel_id = ? AND user_id = ?`,
		channelID, userID).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return enabled != 0, nil
}

func (s *sqliteStore) SetDebug(ctx context.Context, channelID, userID string, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO debug_modes(channel_id, user_id, enabled) VALUES(?,?,?)
		 ON CONFLICT(channel_id, user_id) DO UPDATE SET enabled=excluded.enabled`,
		channelID, userID, v)
	return err
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until=excluded.until`,
		key, until.UnixMilli())
	return err
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (s *sqliteStore) PruneDedup(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE until < ?`, time.Now().UnixMilli())
	return err
}
