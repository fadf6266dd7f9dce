// Package notify dispatches "prize credited" events. Delivery is fire and
// forget: contest finalization never waits on it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	"trailsbuddy.com/quiz-contest/internal/logger"
)

// PrizeCredited is published once per winner after a contest is finalized.
type PrizeCredited struct {
	UserID        int64  `json:"userId"`
	Amount        int64  `json:"amount"`
	ContestID     string `json:"contestId"`
	Title         string `json:"title"`
	TransactionID string `json:"transactionId,omitempty"`
}

type Notifier interface {
	PrizeCredited(ctx context.Context, event PrizeCredited) error
	Close() error
}

// publisher is the slice of *redis.Client used here.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

type redisNotifier struct {
	client  publisher
	channel string
}

// NewRedisNotifier connects to redisURL and publishes events on channel.
func NewRedisNotifier(ctx context.Context, redisURL, channel string) (Notifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.MaintNotificationsConfig = &maintnotifications.Config{
		Mode: maintnotifications.ModeDisabled,
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &redisNotifier{client: client, channel: channel}, nil
}

func (n *redisNotifier) PrizeCredited(ctx context.Context, event PrizeCredited) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}
	return nil
}

func (n *redisNotifier) Close() error {
	return n.client.Close()
}

type logNotifier struct {
	log *logger.Logger
}

// NewLogNotifier is used when no Redis URL is configured.
func NewLogNotifier(log *logger.Logger) Notifier {
	return &logNotifier{log: log}
}

func (n *logNotifier) PrizeCredited(_ context.Context, event PrizeCredited) error {
	n.log.WithUserID(event.UserID).
		WithField("contest_id", event.ContestID).
		WithField("amount", event.Amount).
		Info("Prize credited")
	return nil
}

func (n *logNotifier) Close() error { return nil }
