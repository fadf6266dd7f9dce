package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailsbuddy.com/quiz-contest/internal/logger"
)

type fakePublisher struct {
	channel string
	payload []byte
	err     error
	closed  bool
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func TestRedisNotifierPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	n := &redisNotifier{client: pub, channel: "prize-credited"}

	err := n.PrizeCredited(context.Background(), PrizeCredited{UserID: 7, Amount: 250, ContestID: "c1", Title: "Friday quiz"})
	require.NoError(t, err)
	assert.Equal(t, "prize-credited", pub.channel)

	var got PrizeCredited
	require.NoError(t, json.Unmarshal(pub.payload, &got))
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, int64(250), got.Amount)
	assert.Equal(t, "c1", got.ContestID)

	require.NoError(t, n.Close())
	assert.True(t, pub.closed)
}

func TestRedisNotifierWrapsPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	n := &redisNotifier{client: pub, channel: "prize-credited"}

	err := n.PrizeCredited(context.Background(), PrizeCredited{UserID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish to Redis")
}

func TestLogNotifierWritesEntry(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(logger.NewWithOutput("quiz-contest", "info", &buf))

	require.NoError(t, n.PrizeCredited(context.Background(), PrizeCredited{UserID: 3, Amount: 40, ContestID: "c9"}))
	assert.Contains(t, buf.String(), `"message":"Prize credited"`)
	assert.Contains(t, buf.String(), `"contest_id":"c9"`)
}
