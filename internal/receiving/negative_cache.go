package receiving

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultNegativeTTL = 5 * time.Minute

// NegativeCache remembers codes confirmed to have no destination.
type NegativeCache interface {
	Has(ctx context.Context, code string) bool
	Put(ctx context.Context, code string)
	Forget(ctx context.Context, code string)
}

// MemoryNegativeCache expires entries after ttl; expired entries are dropped
// on read.
type MemoryNegativeCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]time.Time
}

func NewMemoryNegativeCache(ttl time.Duration) *MemoryNegativeCache {
	if ttl <= 0 {
		ttl = DefaultNegativeTTL
	}
	return &MemoryNegativeCache{ttl: ttl, now: time.Now, entries: make(map[string]time.Time)}
}

func (m *MemoryNegativeCache) Has(_ context.Context, code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	at, ok := m.entries[code]
	if !ok {
		return false
	}
	if m.now().Sub(at) >= m.ttl {
		delete(m.entries, code)
		return false
	}
	return true
}

func (m *MemoryNegativeCache) Put(_ context.Context, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[code] = m.now()
}

func (m *MemoryNegativeCache) Forget(_ context.Context, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, code)
}

// RedisNegativeCache shares negative results between devices of one tenant.
// Redis errors read as a miss so resolution is retried.
type RedisNegativeCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisNegativeCache(rdb *redis.Client, tenant string, ttl time.Duration, log *zap.Logger) *RedisNegativeCache {
	if ttl <= 0 {
		ttl = DefaultNegativeTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisNegativeCache{rdb: rdb, prefix: "receiving:neg:" + tenant + ":", ttl: ttl, log: log}
}

func (r *RedisNegativeCache) Has(ctx context.Context, code string) bool {
	n, err := r.rdb.Exists(ctx, r.prefix+code).Result()
	if err != nil {
		r.log.Warn("negative cache read failed", zap.String("code", code), zap.Error(err))
		return false
	}
	return n > 0
}

func (r *RedisNegativeCache) Put(ctx context.Context, code string) {
	if err := r.rdb.Set(ctx, r.prefix+code, 1, r.ttl).Err(); err != nil {
		r.log.Warn("negative cache write failed", zap.String("code", code), zap.Error(err))
	}
}

func (r *RedisNegativeCache) Forget(ctx context.Context, code string) {
	if err := r.rdb.Del(ctx, r.prefix+code).Err(); err != nil {
		r.log.Warn("negative cache delete failed", zap.String("code", code), zap.Error(err))
	}
}
