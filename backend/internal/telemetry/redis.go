package telemetry

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"arksync/backend/pkg/utils"
)

// LatestKey is the hash holding the last reading of every sensor.
const LatestKey = "arksync:latest"

// RedisClient is the subset of *redis.Client the sink uses.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisSink publishes readings on a channel and keeps the latest one per
// sensor in a hash. State changes go to "<channel>:state".
type RedisSink struct {
	client  RedisClient
	channel string
}

func NewRedisSink(client RedisClient, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) PublishReading(ctx context.Context, r Reading) error {
	payload, err := utils.ToJSON(r)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}

	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", s.channel, err)
	}

	if err := s.client.HSet(ctx, LatestKey, r.SerialNumber, payload).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", LatestKey, err)
	}

	return nil
}

func (s *RedisSink) PublishState(ctx context.Context, c StateChange) error {
	payload, err := utils.ToJSON(c)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	channel := s.channel + ":state"
	if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}

	if c.State == StateRemoved {
		if err := s.client.HDel(ctx, LatestKey, c.SerialNumber).Err(); err != nil {
			return fmt.Errorf("redis hdel %s: %w", LatestKey, err)
		}
	}

	return nil
}

// Ping checks the connection for the health endpoint.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
