package redisstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/domain/entity"
)

// Config holds the Redis connection and stream settings
type Config struct {
	Addr     string
	Password string
	DB       int

	// Stream is the key notifications are appended to
	Stream string

	// MaxLen caps the stream length (approximate trimming). Zero disables trimming.
	MaxLen int64
}

// NewClient creates a Redis client from cfg
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Publisher appends notifications to a Redis stream for downstream channels (chat, email, push)
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewPublisher creates a new stream publisher
func NewPublisher(client *redis.Client, cfg Config, logger *zap.Logger) *Publisher {
	stream := cfg.Stream
	if stream == "" {
		stream = "hr:notifications"
	}
	return &Publisher{
		client: client,
		stream: stream,
		maxLen: cfg.MaxLen,
		logger: logger,
	}
}

// Publish adds one stream entry per notification. The data field carries the
// notification as JSON; the other fields allow routing without decoding it.
func (p *Publisher) Publish(ctx context.Context, n *entity.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"notification_id": n.ID,
			"user_id":         n.UserID,
			"title":           n.Title,
			"data":            string(payload),
			"timestamp":       time.Now().Unix(),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish notification to stream %s: %w", p.stream, err)
	}

	p.logger.Debug("Notification published",
		zap.String("stream", p.stream),
		zap.String("entry_id", id),
		zap.String("notification_id", n.ID))
	return nil
}

// Ping checks the Redis connection
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (p *Publisher) Close() error {
	return p.client.Close()
}

var _ port.NotificationPublisher = (*Publisher)(nil)
