package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// 端口 1 上没有服务，连接立即被拒绝
func unreachable() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
}

func TestPublishFallsBackToLocalHub(t *testing.T) {
	rdb := unreachable()
	defer rdb.Close()
	feed := NewChangeFeed(rdb, zap.NewNop())

	events, stop := feed.Listen("posts")
	defer stop()

	feed.Publish(context.Background(), "posts")
	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("local listener not notified")
	}
}

func TestSessionRepositoryUnavailable(t *testing.T) {
	rdb := unreachable()
	defer rdb.Close()
	repo := NewSessionRepository(rdb)
	ctx := context.Background()

	assert.True(t, errors.Is(repo.Save(ctx, "u1", "tok"), ErrRedisUnavailable))
	require.Error(t, repo.Check(ctx, "u1", "tok"))
}
