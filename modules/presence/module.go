package presence

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-monolith/mono"
	"github.com/redis/go-redis/v9"
)

// Module owns the Redis client backing the status store.
type Module struct {
	client *redis.Client
	store  *StatusStore
	config Config
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new presence module. The Redis address is read
// from the REDIS_ADDR environment variable.
func NewModule() *Module {
	config := DefaultConfig()
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.RedisAddr = addr
	}
	return &Module{
		config: config,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "presence"
}

// Start connects to Redis and prepares the status store.
func (m *Module) Start(ctx context.Context) error {
	m.client = redis.NewClient(&redis.Options{
		Addr: m.config.RedisAddr,
	})
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	m.store = NewStatusStore(m.client, m.config.Prefix, m.config.TTL)
	log.Println("[presence] Module started - status store connected")
	return nil
}

// Stop closes the Redis client.
func (m *Module) Stop(_ context.Context) error {
	if m.client != nil {
		_ = m.client.Close()
	}
	log.Println("[presence] Module stopped")
	return nil
}

// Health pings Redis.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.client == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "redis client not initialized",
		}
	}

	if err := m.client.Ping(ctx).Err(); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("redis ping failed: %v", err),
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
	}
}

// Store returns the status store for injection into the real-time module.
func (m *Module) Store() *StatusStore {
	return m.store
}
