// Package session holds the per-user staged reward between the moment a
// button click hits the subscription gate and the moment membership is
// confirmed. The redemption flow passes the staged value in and out
// explicitly; this package only persists it under a TTL.
//
// Two backends are provided: an in-memory map for single-process
// deployments and Redis for anything that needs to survive restarts.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-magnet-bot/internal/domain"
)

// StagedReward is the reward a user has clicked for but not yet unlocked.
// It stays staged until the subscription check passes, the TTL lapses, or a
// later click replaces it.
type StagedReward struct {
	Link string            `json:"link"`
	Kind domain.RewardKind `json:"kind"`
}

// Store persists staged rewards keyed by Telegram user id.
//
// Get returns (nil, nil) when nothing is staged; an error only signals a
// backend failure. Put replaces any previous value and restarts the TTL.
type Store interface {
	Get(ctx context.Context, telegramID int64) (*StagedReward, error)
	Put(ctx context.Context, telegramID int64, r StagedReward) error
	Clear(ctx context.Context, telegramID int64) error
}

// MemoryStore is a mutex-guarded map with per-entry expiry. Expired entries
// are dropped lazily on access.
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	data map[int64]memoryEntry
}

type memoryEntry struct {
	reward    StagedReward
	expiresAt time.Time
}

// NewMemoryStore builds an in-memory store with the given TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:  ttl,
		data: make(map[int64]memoryEntry),
	}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, telegramID int64) (*StagedReward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.data[telegramID]
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(m.data, telegramID)
		return nil, nil
	}
	r := entry.reward
	return &r, nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, telegramID int64, r StagedReward) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[telegramID] = memoryEntry{
		reward:    r,
		expiresAt: time.Now().Add(m.ttl),
	}
	return nil
}

// Clear implements Store.
func (m *MemoryStore) Clear(_ context.Context, telegramID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, telegramID)
	return nil
}

// Len reports how many entries are held, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// RedisStore persists staged rewards as JSON values with a server-side TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func redisKey(telegramID int64) string {
	return fmt.Sprintf("magnet:staged:%d", telegramID)
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, telegramID int64) (*StagedReward, error) {
	raw, err := r.client.Get(ctx, redisKey(telegramID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var reward StagedReward
	if err := json.Unmarshal(raw, &reward); err != nil {
		return nil, err
	}
	return &reward, nil
}

// Put implements Store.
func (r *RedisStore) Put(ctx context.Context, telegramID int64, reward StagedReward) error {
	raw, err := json.Marshal(reward)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisKey(telegramID), raw, r.ttl).Err()
}

// Clear implements Store.
func (r *RedisStore) Clear(ctx context.Context, telegramID int64) error {
	return r.client.Del(ctx, redisKey(telegramID)).Err()
}

// Close releases the underlying Redis connection.
func (r *RedisStore) Close() error { return r.client.Close() }

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
