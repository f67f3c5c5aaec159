package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/redis/go-redis/v9"
)

// Snapshot is the persisted form of a cache.
type Snapshot struct {
	UserID  string          `json:"user_id"`
	Entries []EntrySnapshot `json:"entries"`
}

// EntrySnapshot is the persisted form of one conversation.
type EntrySnapshot struct {
	Key      Key               `json:"key"`
	Messages []*domain.Message `json:"messages"`
	Unread   bool              `json:"unread"`
	LastSeen time.Time         `json:"last_seen"`
}

// SnapshotStore persists cache snapshots per user.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	// Load returns false when no snapshot exists for userID.
	Load(ctx context.Context, userID string) (Snapshot, bool, error)
}

// Snapshot captures the current cache state.
func (c *Cache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{UserID: c.selfID, Entries: make([]EntrySnapshot, 0, len(c.entries))}
	for key, e := range c.entries {
		snap.Entries = append(snap.Entries, EntrySnapshot{
			Key:      key,
			Messages: e.snapshot(),
			Unread:   e.unread,
			LastSeen: e.lastSeen,
		})
	}
	return snap
}

// Restore replaces the cache state with snap.
func (c *Cache) Restore(snap Snapshot) error {
	if snap.UserID != c.selfID {
		return fmt.Errorf("snapshot belongs to user %q, cache to %q", snap.UserID, c.selfID)
	}

	entries := make(map[Key]*entry, len(snap.Entries))
	for _, es := range snap.Entries {
		e := newEntry()
		for _, msg := range es.Messages {
			e.add(msg)
		}
		e.unread = es.Unread
		e.lastSeen = es.LastSeen
		entries[es.Key] = e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
	return nil
}

// SaveTo writes a snapshot of the cache to store.
func (c *Cache) SaveTo(ctx context.Context, store SnapshotStore) error {
	return store.Save(ctx, c.Snapshot())
}

// LoadFrom restores the cache from store. It reports whether a snapshot was found.
func (c *Cache) LoadFrom(ctx context.Context, store SnapshotStore) (bool, error) {
	snap, found, err := store.Load(ctx, c.selfID)
	if err != nil || !found {
		return false, err
	}
	if err := c.Restore(snap); err != nil {
		return false, err
	}
	return true, nil
}

// RedisSnapshotStore keeps snapshots in Redis as JSON values.
type RedisSnapshotStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSnapshotStore creates a snapshot store. A zero ttl keeps snapshots
// until they are overwritten.
func NewRedisSnapshotStore(client *redis.Client, prefix string, ttl time.Duration) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSnapshotStore) key(userID string) string {
	return s.prefix + userID
}

// Save stores snap under its user id.
func (s *RedisSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot marshal error: %w", err)
	}
	if err := s.client.Set(ctx, s.key(snap.UserID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("snapshot set error: %w", err)
	}
	return nil
}

// Load reads the snapshot of userID.
func (s *RedisSnapshotStore) Load(ctx context.Context, userID string) (Snapshot, bool, error) {
	data, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("snapshot get error: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("snapshot unmarshal error: %w", err)
	}
	return snap, true, nil
}

// Delete removes the snapshot of userID.
func (s *RedisSnapshotStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("snapshot delete error: %w", err)
	}
	return nil
}
