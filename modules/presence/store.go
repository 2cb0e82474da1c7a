// Package presence keeps last-known user status in Redis so the REST
// layer can answer "is this user online" without touching the hub.
// Written by the real-time layer, read by everyone else.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Statuses a client may report. Disconnects always record offline.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusOffline = "offline"
)

// StatusStore records user presence with a TTL so crashed processes
// cannot leave users online forever.
type StatusStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Config holds presence store configuration.
type Config struct {
	RedisAddr string
	Prefix    string
	TTL       time.Duration
}

// DefaultConfig returns the default presence store configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr: "localhost:6379",
		Prefix:    "presence:",
		TTL:       10 * time.Minute,
	}
}

// NewStatusStore creates a new status store.
func NewStatusStore(client *redis.Client, prefix string, ttl time.Duration) *StatusStore {
	return &StatusStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// SetStatus records the user's current status.
func (s *StatusStore) SetStatus(ctx context.Context, userID, status string) error {
	if err := s.client.Set(ctx, s.prefix+userID, status, s.ttl).Err(); err != nil {
		return fmt.Errorf("presence set error: %w", err)
	}
	return nil
}

// GetStatus returns the user's last-known status, defaulting to offline
// when nothing is recorded or the record has expired.
func (s *StatusStore) GetStatus(ctx context.Context, userID string) (string, error) {
	status, err := s.client.Get(ctx, s.prefix+userID).Result()
	if err != nil {
		if err == redis.Nil {
			return StatusOffline, nil
		}
		return "", fmt.Errorf("presence get error: %w", err)
	}
	return status, nil
}
