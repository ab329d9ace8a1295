package redisstream

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/hr-requests/internal/domain/entity"
)

func setupTestPublisher(t *testing.T, cfg Config) (*miniredis.Miniredis, *redis.Client, *Publisher) {
	mr := miniredis.RunT(t)
	cfg.Addr = mr.Addr()
	client := NewClient(cfg)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client, NewPublisher(client, cfg, zap.NewNop())
}

func TestPublisher_Publish(t *testing.T) {
	_, client, publisher := setupTestPublisher(t, Config{Stream: "test:notifications"})
	ctx := context.Background()

	n := &entity.Notification{
		ID:      "n-1",
		UserID:  "u-rh",
		Title:   "Action needed: request 20240501-0001",
		Message: "Request 20240501-0001 awaits action from RH",
		Link:    "/requests/req-1",
		Data:    map[string]string{"request_id": "req-1"},
	}
	require.NoError(t, publisher.Publish(ctx, n))

	entries, err := client.XRange(ctx, "test:notifications", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	values := entries[0].Values
	assert.Equal(t, "n-1", values["notification_id"])
	assert.Equal(t, "u-rh", values["user_id"])

	var decoded entity.Notification
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &decoded))
	assert.Equal(t, n.Link, decoded.Link)
	assert.Equal(t, "req-1", decoded.Data["request_id"])
}

func TestPublisher_DefaultStream(t *testing.T) {
	_, client, publisher := setupTestPublisher(t, Config{})
	ctx := context.Background()

	require.NoError(t, publisher.Publish(ctx, &entity.Notification{ID: "n-1", UserID: "u-1"}))

	n, err := client.XLen(ctx, "hr:notifications").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPublisher_ServerDown(t *testing.T) {
	mr, _, publisher := setupTestPublisher(t, Config{})
	mr.Close()

	err := publisher.Publish(context.Background(), &entity.Notification{ID: "n-1"})
	assert.Error(t, err)
	assert.Error(t, publisher.Ping(context.Background()))
}
