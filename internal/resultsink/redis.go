package resultsink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unicon/grader-go/pkg/types"
)

// RedisSink publishes verdicts on a redis pub/sub channel. Subscribers
// that are offline miss messages; the execution store remains the source
// of truth.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// RedisSinkConfig holds configuration for the redis sink.
type RedisSinkConfig struct {
	URL      string
	Password string
	DB       int

	// Channel is the pub/sub channel (default "grader:verdicts").
	Channel string
}

// DefaultRedisSinkConfig returns sensible defaults.
func DefaultRedisSinkConfig() *RedisSinkConfig {
	return &RedisSinkConfig{
		URL:     "redis://localhost:6379/0",
		Channel: "grader:verdicts",
	}
}

// NewRedisSink connects to redis and verifies the connection.
func NewRedisSink(cfg *RedisSinkConfig) (*RedisSink, error) {
	if cfg == nil {
		cfg = DefaultRedisSinkConfig()
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

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisSink{client: client, channel: cfg.Channel}, nil
}

func (s *RedisSink) Publish(ctx context.Context, verdict *types.JobVerdict) error {
	payload, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("marshal verdict %s: %w", verdict.ExecutionID, err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish verdict %s: %w", verdict.ExecutionID, err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
