package redis

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"Lee_Social/internal/repository/docstore"
)

const ChangeChannelPrefix = "docstore:changed:"

// ChangeFeed 多实例部署时用 Redis pub/sub 广播集合变更，
// 每个实例把收到的消息转发给本地 Hub。
type ChangeFeed struct {
	rdb   *redis.Client
	local *docstore.Hub
	log   *zap.Logger
}

func NewChangeFeed(rdb *redis.Client, log *zap.Logger) *ChangeFeed {
	return &ChangeFeed{rdb: rdb, local: docstore.NewHub(), log: log}
}

// Publish 发布失败只记录日志，订阅方会在下一次变更时追上
func (f *ChangeFeed) Publish(ctx context.Context, collection string) {
	if err := f.rdb.Publish(ctx, ChangeChannelPrefix+collection, "1").Err(); err != nil {
		f.log.Warn("publish change failed", zap.String("collection", collection), zap.Error(err))
		// 至少保证本实例的订阅能收到
		f.local.Notify(collection)
	}
}

func (f *ChangeFeed) Listen(collection string) (<-chan struct{}, func()) {
	return f.local.Listen(collection)
}

// Run 阻塞直到 ctx 结束
func (f *ChangeFeed) Run(ctx context.Context) error {
	sub := f.rdb.PSubscribe(ctx, ChangeChannelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			f.local.Notify(strings.TrimPrefix(msg.Channel, ChangeChannelPrefix))
		}
	}
}
