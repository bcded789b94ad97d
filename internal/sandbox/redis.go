package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unicon/grader-go/internal/metrics"
	"github.com/unicon/grader-go/pkg/types"
)

// RedisConfig holds configuration for the queue-backed sandbox client.
type RedisConfig struct {
	// URL is the redis connection URL (redis://host:port/db).
	URL      string
	Password string
	DB       int

	// RequestQueue is the list the sandbox workers consume from.
	RequestQueue string

	// ReplyPrefix prefixes the per-request reply list key.
	ReplyPrefix string

	// ReplyGrace extends the wait beyond the request's own time limit to
	// absorb queueing and transport latency.
	ReplyGrace time.Duration
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		URL:          "redis://localhost:6379",
		RequestQueue: "grader:sandbox:requests",
		ReplyPrefix:  "grader:sandbox:reply:",
		ReplyGrace:   5 * time.Second,
	}
}

// RedisRunner dispatches sandbox requests over a redis list and blocks on
// a per-request reply list, correlating by request ID. The asynchronous
// queue is hidden behind a synchronous, deadline-bound call.
type RedisRunner struct {
	client *redis.Client
	cfg    *RedisConfig
	logger *slog.Logger
}

// NewRedisRunner connects to redis and verifies the connection.
func NewRedisRunner(cfg *RedisConfig, logger *slog.Logger) (*RedisRunner, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}
	if logger == nil {
		logger = slog.Default()
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
		return nil, fmt.Errorf("ping redis: %w: %v", ErrUnavailable, err)
	}

	return &RedisRunner{client: client, cfg: cfg, logger: logger}, nil
}

// Run enqueues the request and blocks for the correlated reply.
func (r *RedisRunner) Run(ctx context.Context, req *types.RunnerRequest) (*types.RunnerResponse, error) {
	start := time.Now()
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal sandbox request: %w", err)
	}

	if err := r.client.LPush(ctx, r.cfg.RequestQueue, payload).Err(); err != nil {
		metrics.SandboxRequestsTotal.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("enqueue sandbox request: %w: %v", ErrUnavailable, err)
	}

	wait := replyWait(ctx, req.TimeLimitSecs, r.cfg.ReplyGrace)
	if wait <= 0 {
		metrics.SandboxRequestsTotal.WithLabelValues("timeout").Inc()
		return nil, fmt.Errorf("%w: deadline already expired", ErrTimeout)
	}

	replyKey := r.cfg.ReplyPrefix + req.ID
	reply, err := r.client.BRPop(ctx, wait, replyKey).Result()
	if err != nil {
		if err == redis.Nil || ctx.Err() != nil {
			metrics.SandboxRequestsTotal.WithLabelValues("timeout").Inc()
			r.logger.Warn("sandbox reply timed out",
				slog.String("request_id", req.ID),
				slog.Duration("waited", time.Since(start)))
			return nil, fmt.Errorf("%w: no reply for request %s", ErrTimeout, req.ID)
		}
		metrics.SandboxRequestsTotal.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("await sandbox reply: %w: %v", ErrUnavailable, err)
	}

	// BRPop returns [key, value].
	resp, err := decodeReply(req.ID, []byte(reply[1]))
	if err != nil {
		metrics.SandboxRequestsTotal.WithLabelValues("malformed").Inc()
		return nil, err
	}

	metrics.SandboxRequestsTotal.WithLabelValues(string(resp.Status)).Inc()
	metrics.SandboxLatency.Observe(time.Since(start).Seconds())
	return resp, nil
}

// replyWait bounds the blocking reply read: the request's own time limit
// plus transport grace, clamped to the caller's deadline. A non-positive
// result means the deadline has already passed.
func replyWait(ctx context.Context, timeLimitSecs int, grace time.Duration) time.Duration {
	wait := time.Duration(timeLimitSecs)*time.Second + grace
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < wait {
			wait = until
		}
	}
	return wait
}

// decodeReply parses a sandbox reply and verifies it answers the request
// it was popped for. Replies without an ID are accepted for compatibility
// with older workers.
func decodeReply(requestID string, payload []byte) (*types.RunnerResponse, error) {
	var resp types.RunnerResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decode sandbox reply: %w", err)
	}
	if resp.ID != "" && resp.ID != requestID {
		return nil, fmt.Errorf("sandbox reply correlation mismatch: got %s want %s", resp.ID, requestID)
	}
	return &resp, nil
}

// Close releases the redis connection.
func (r *RedisRunner) Close() error {
	return r.client.Close()
}
