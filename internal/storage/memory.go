package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryStore is the dependency-free backend. It backs tests and setups that
// can tolerate losing routing state on restart.
type memoryStore struct {
	mu sync.RWMutex

	modes map[string]string              // channel_id -> mode
	subs  map[SubscriptionRow]struct{}   // set of (channel, user, language)
	watch map[[3]string]string           // (channel, source, project) -> level
	debug map[[2]string]bool             // (channel, user) -> enabled
	dedup map[string]time.Time           // key -> suppress until
}

func NewMemory() Store {
	return &memoryStore{
		modes: map[string]string{},
		subs:  map[SubscriptionRow]struct{}{},
		watch: map[[3]string]string{},
		debug: map[[2]string]bool{},
		dedup: map[string]time.Time{},
	}
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) GetChannelMode(_ context.Context, channelID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modes[channelID], nil
}

func (s *memoryStore) SetChannelMode(_ context.Context, channelID, mode, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes[channelID] = mode
	return nil
}

func (s *memoryStore) ListChannelSubscriptions(_ context.Context, channelID string) ([]SubscriptionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SubscriptionRow
	for r := range s.subs {
		if r.ChannelID == channelID {
			out = append(out, r)
		}
	}
	sortSubs(out)
	return out, nil
}

func (s *memoryStore) ListUserSubscriptions(_ context.Context, userID string) ([]SubscriptionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SubscriptionRow
	for r := range s.subs {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sortSubs(out)
	return out, nil
}

func sortSubs(rows []SubscriptionRow) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ChannelID != b.ChannelID {
			return a.ChannelID < b.ChannelID
		}
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.Language < b.Language
	})
}

func (s *memoryStore) Subscribe(_ context.Context, channelID, userID, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[SubscriptionRow{ChannelID: channelID, UserID: userID, Language: language}] = struct{}{}
	return nil
}

func (s *memoryStore) Unsubscribe(_ context.Context, channelID, userID, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, SubscriptionRow{ChannelID: channelID, UserID: userID, Language: language})
	return nil
}

func (s *memoryStore) ListWatches(_ context.Context, source, project string) ([]WatchRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []WatchRow
	for k, level := range s.watch {
		if k[1] == source && k[2] == project {
			out = append(out, WatchRow{ChannelID: k[0], Source: k[1], Project: k[2], Level: level})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out, nil
}

func (s *memoryStore) SetWatch(_ context.Context, channelID, source, project, level string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watch[[3]string{channelID, source, project}] = level
	return nil
}

func (s *memoryStore) RemoveWatch(_ context.Context, channelID, source, project string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watch, [3]string{channelID, source, project})
	return nil
}

func (s *memoryStore) GetDebug(_ context.Context, channelID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.debug[[2]string{channelID, userID}], nil
}

func (s *memoryStore) SetDebug(_ context.Context, channelID, userID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enabled {
		s.debug[[2]string{channelID, userID}] = true
	} else {
		delete(s.debug, [2]string{channelID, userID})
	}
	return nil
}

func (s *memoryStore) PutDedup(_ context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dedup[key] = until
	return nil
}

func (s *memoryStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	until, ok := s.dedup[key]
	return until, ok, nil
}

func (s *memoryStore) PruneDedup(_ context.Context) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, until := range s.dedup {
		if until.Before(now) {
			delete(s.dedup, k)
		}
	}
	return nil
}
