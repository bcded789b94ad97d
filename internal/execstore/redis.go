package execstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unicon/grader-go/internal/metrics"
	"github.com/unicon/grader-go/pkg/types"
)

// RedisStore implements Store backed by redis. Records are stored as
// JSON values under a key prefix; finished records carry the TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds redis connection configuration.
type RedisConfig struct {
	// URL is the redis connection URL (redis://host:port/db).
	URL      string
	Password string
	DB       int

	// Prefix for all keys (default "grader:executions").
	Prefix string

	// TTL for finished executions (default 7 days).
	TTL time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		URL:          "redis://localhost:6379/0",
		Prefix:       "grader:executions",
		TTL:          7 * 24 * time.Hour,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}
	defaults := DefaultRedisConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = defaults.Prefix
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}, nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":" + id
}

func (s *RedisStore) write(ctx context.Context, rec *types.ExecutionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal execution %s: %w", rec.ID, err)
	}
	ttl := time.Duration(0)
	switch rec.Status {
	case types.ExecutionStatusCompleted, types.ExecutionStatusFailed:
		ttl = s.ttl
	}
	if err := s.client.Set(ctx, s.key(rec.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("store execution %s: %w", rec.ID, err)
	}
	return nil
}

func (s *RedisStore) Create(ctx context.Context, rec *types.ExecutionRecord) error {
	if err := s.write(ctx, rec); err != nil {
		metrics.StoreOperations.WithLabelValues("create", "error").Inc()
		return err
	}
	metrics.StoreOperations.WithLabelValues("create", "success").Inc()
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*types.ExecutionRecord, error) {
	payload, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		metrics.StoreOperations.WithLabelValues("get", "error").Inc()
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load execution %s: %w", id, err)
	}
	var rec types.ExecutionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		metrics.StoreOperations.WithLabelValues("get", "error").Inc()
		return nil, fmt.Errorf("decode execution %s: %w", id, err)
	}
	metrics.StoreOperations.WithLabelValues("get", "success").Inc()
	return &rec, nil
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.client.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(s.prefix)+1:])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan executions: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) Update(ctx context.Context, rec *types.ExecutionRecord) error {
	exists, err := s.client.Exists(ctx, s.key(rec.ID)).Result()
	if err != nil {
		metrics.StoreOperations.WithLabelValues("update", "error").Inc()
		return fmt.Errorf("check execution %s: %w", rec.ID, err)
	}
	if exists == 0 {
		metrics.StoreOperations.WithLabelValues("update", "error").Inc()
		return ErrNotFound
	}
	if err := s.write(ctx, rec); err != nil {
		metrics.StoreOperations.WithLabelValues("update", "error").Inc()
		return err
	}
	metrics.StoreOperations.WithLabelValues("update", "success").Inc()
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
