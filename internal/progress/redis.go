package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"shotline/internal/config"
	"shotline/internal/logging"
	"shotline/internal/stage"
)

// DefaultChannel is used when [progress] redis_channel is empty.
const DefaultChannel = "shotline:progress"

// Event is the JSON document published for every progress update.
type Event struct {
	JobID   string    `json:"job_id"`
	StageID string    `json:"stage_id,omitempty"`
	Status  string    `json:"status,omitempty"`
	Percent float64   `json:"percent"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// Client is the subset of the Redis client used for publishing.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisPublisher publishes progress events to a Redis pub/sub channel.
type RedisPublisher struct {
	client  Client
	channel string
	logger  *slog.Logger
	warned  atomic.Bool
	now     func() time.Time
}

// NewRedisPublisher connects to the configured Redis server. It returns nil
// without error when no address is configured.
func NewRedisPublisher(ctx context.Context, cfg config.Progress, logger *slog.Logger) (*RedisPublisher, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, nil
	}
	opts := &redis.Options{
		Addr:         addr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		if parsed.Password == "" {
			parsed.Password = cfg.RedisPassword
		}
		if parsed.DB == 0 {
			parsed.DB = cfg.RedisDB
		}
		opts = parsed
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisPublisherWithClient(client, cfg.RedisChannel, logger), nil
}

// NewRedisPublisherWithClient wraps an existing client.
func NewRedisPublisherWithClient(client Client, channel string, logger *slog.Logger) *RedisPublisher {
	if strings.TrimSpace(channel) == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logging.NewComponentLogger(logger, "progress.redis"),
		now:     time.Now,
	}
}

// Channel returns the pub/sub channel name.
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// Sink returns a ProgressFunc publishing updates for jobID. A nil publisher
// yields a nil sink, which Fanout skips.
func (p *RedisPublisher) Sink(ctx context.Context, jobID string) stage.ProgressFunc {
	if p == nil {
		return nil
	}
	return func(update stage.ProgressUpdate) {
		p.publish(ctx, Event{
			JobID:   jobID,
			StageID: update.StageID,
			Status:  update.Status,
			Percent: update.Percent,
			Message: update.Message,
			Time:    p.now().UTC(),
		})
	}
}

func (p *RedisPublisher) publish(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		if p.warned.CompareAndSwap(false, true) {
			logging.WarnWithContext(p.logger, "failed to publish progress", "progress_publish_failed",
				logging.String("channel", p.channel),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check [progress] redis_addr and server availability"),
				logging.String(logging.FieldImpact, "live progress subscribers miss updates"),
			)
		}
	}
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
