package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/types"
)

// taskKeyPrefix namespaces cached task records in Redis.
const taskKeyPrefix = "taskmesh:task:"

// CacheConfig configures the Redis status cache.
type CacheConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	// TTL bounds how stale a cached status may get.
	TTL          time.Duration `yaml:"ttl" json:"ttl"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" json:"min_idle_conns"`
}

// DefaultCacheConfig returns the default cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Addr:         "localhost:6379",
		TTL:          30 * time.Second,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// CachedTaskStore fronts a task store with a Redis read-through cache so
// status polling does not hit the backing store on every call. Writes go
// through to the inner store first; cache failures are logged and never
// surface to the caller.
type CachedTaskStore struct {
	inner  types.TaskStore
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedTaskStore connects to Redis and wraps inner. Fails when Redis is
// unreachable; callers that can live without the cache should fall back to
// the inner store directly.
func NewCachedTaskStore(cfg CacheConfig, inner types.TaskStore, logger *zap.Logger) (*CachedTaskStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultCacheConfig().TTL
	}
	logger = logger.With(zap.String("component", "task_cache"))
	logger.Info("task cache connected", zap.String("addr", cfg.Addr), zap.Duration("ttl", ttl))
	return &CachedTaskStore{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Save writes through to the inner store and refreshes the cache entry.
func (s *CachedTaskStore) Save(ctx context.Context, rec *types.TaskExecutionRecord) error {
	if err := s.inner.Save(ctx, rec); err != nil {
		return err
	}
	s.put(ctx, rec)
	return nil
}

// Load serves from the cache when possible, falling back to the inner store
// and repopulating the cache on a miss.
func (s *CachedTaskStore) Load(ctx context.Context, taskID string) (*types.TaskExecutionRecord, error) {
	raw, err := s.client.Get(ctx, taskKeyPrefix+taskID).Bytes()
	if err == nil {
		var rec types.TaskExecutionRecord
		if uerr := json.Unmarshal(raw, &rec); uerr == nil {
			return &rec, nil
		}
		// Corrupt entry: drop it and fall through to the inner store.
		s.client.Del(ctx, taskKeyPrefix+taskID)
	} else if err != redis.Nil {
		s.logger.Warn("cache read failed", zap.String("task_id", taskID), zap.Error(err))
	}

	rec, err := s.inner.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	s.put(ctx, rec)
	return rec, nil
}

// put refreshes one cache entry, logging failures.
func (s *CachedTaskStore) put(ctx context.Context, rec *types.TaskExecutionRecord) {
	raw, err := json.Marshal(rec)
	if err != nil {
		s.logger.Warn("cache marshal failed", zap.String("task_id", rec.TaskID), zap.Error(err))
		return
	}
	if err := s.client.Set(ctx, taskKeyPrefix+rec.TaskID, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("cache write failed", zap.String("task_id", rec.TaskID), zap.Error(err))
	}
}

// Close releases the Redis connection. The inner store is left open.
func (s *CachedTaskStore) Close() error {
	return s.client.Close()
}
