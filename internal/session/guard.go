package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	backend "github.com/redis/go-redis/v9"
)

var (
	// ErrSessionActive is returned when another session holds the training.
	ErrSessionActive = errors.New("a session is already active for this training")
	// ErrNotActive is returned when the caller does not hold the training.
	ErrNotActive = errors.New("no active session")
)

// ActiveGuard ensures at most one active session per training id.
type ActiveGuard interface {
	Acquire(ctx context.Context, trainingID, sessionID string) error
	Release(ctx context.Context, trainingID, sessionID string) error
	Holder(ctx context.Context, trainingID string) (string, error)
}

// MemoryGuard is the in-process guard used when no Redis is configured.
type MemoryGuard struct {
	mu      sync.Mutex
	holders map[string]string
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{holders: make(map[string]string)}
}

func (g *MemoryGuard) Acquire(ctx context.Context, trainingID, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.holders[trainingID]; ok && cur != sessionID {
		return ErrSessionActive
	}
	g.holders[trainingID] = sessionID
	return nil
}

func (g *MemoryGuard) Release(ctx context.Context, trainingID, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holders[trainingID] != sessionID {
		return ErrNotActive
	}
	delete(g.holders, trainingID)
	return nil
}

func (g *MemoryGuard) Holder(ctx context.Context, trainingID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holders[trainingID], nil
}

// releaseScript deletes the key only if it still holds the caller's session id.
var releaseScript = backend.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard shares the active-session slot between trainer instances.
// The key expires after the TTL so a crashed instance cannot hold it forever.
type RedisGuard struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type GuardOption func(*RedisGuard)

func WithGuardTTL(ttl time.Duration) GuardOption {
	return func(g *RedisGuard) {
		g.ttl = ttl
	}
}

func WithGuardPrefix(prefix string) GuardOption {
	return func(g *RedisGuard) {
		g.prefix = prefix
	}
}

func NewRedisGuard(addr, password string, opts ...GuardOption) *RedisGuard {
	return NewRedisGuardFromClient(backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
	}), opts...)
}

func NewRedisGuardFromClient(client *backend.Client, opts ...GuardOption) *RedisGuard {
	g := &RedisGuard{
		client: client,
		prefix: "trainer:active:",
		ttl:    2 * time.Hour,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *RedisGuard) key(trainingID string) string {
	return g.prefix + trainingID
}

func (g *RedisGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

func (g *RedisGuard) Close() error {
	return g.client.Close()
}

func (g *RedisGuard) Acquire(ctx context.Context, trainingID, sessionID string) error {
	ok, err := g.client.SetNX(ctx, g.key(trainingID), sessionID, g.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire session guard: %w", err)
	}
	if ok {
		return nil
	}

	cur, err := g.client.Get(ctx, g.key(trainingID)).Result()
	if err != nil && !errors.Is(err, backend.Nil) {
		return fmt.Errorf("read session guard: %w", err)
	}
	if cur != sessionID {
		return ErrSessionActive
	}
	// Re-acquiring our own slot extends it.
	return g.client.Expire(ctx, g.key(trainingID), g.ttl).Err()
}

func (g *RedisGuard) Release(ctx context.Context, trainingID, sessionID string) error {
	n, err := releaseScript.Run(ctx, g.client, []string{g.key(trainingID)}, sessionID).Int()
	if err != nil {
		return fmt.Errorf("release session guard: %w", err)
	}
	if n == 0 {
		return ErrNotActive
	}
	return nil
}

func (g *RedisGuard) Holder(ctx context.Context, trainingID string) (string, error) {
	cur, err := g.client.Get(ctx, g.key(trainingID)).Result()
	if errors.Is(err, backend.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session guard: %w", err)
	}
	return cur, nil
}
