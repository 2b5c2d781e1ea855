package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sibusisongondo/Tdone/internal/viewer"
)

const defaultViewerStateTTL = 30 * 24 * time.Hour

// RedisViewerStateStore keeps per-reader viewer state as JSON with a sliding TTL.
type RedisViewerStateStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisViewerStateStore builds a Redis-backed viewer state store.
func NewRedisViewerStateStore(addr, password string, ttl time.Duration) *RedisViewerStateStore {
	if ttl <= 0 {
		ttl = defaultViewerStateTTL
	}
	return &RedisViewerStateStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: "magazine:viewer",
		ttl:    ttl,
	}
}

// LoadViewerState returns the saved state, or false when none exists.
func (s *RedisViewerStateStore) LoadViewerState(ctx context.Context, userID, magazineID string) (viewer.State, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	raw, err := s.client.Get(ctx, s.key(userID, magazineID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return viewer.State{}, false, nil
	}
	if err != nil {
		return viewer.State{}, false, err
	}
	var st viewer.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return viewer.State{}, false, fmt.Errorf("decode viewer state: %w", err)
	}
	return st, true, nil
}

// SaveViewerState writes the state and refreshes its TTL.
func (s *RedisViewerStateStore) SaveViewerState(ctx context.Context, userID, magazineID string, state viewer.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.client.Set(ctx, s.key(userID, magazineID), raw, s.ttl).Err()
}

// Close releases the Redis connection pool.
func (s *RedisViewerStateStore) Close() error {
	return s.client.Close()
}

func (s *RedisViewerStateStore) key(userID, magazineID string) string {
	return s.prefix + ":" + userID + ":" + magazineID
}
