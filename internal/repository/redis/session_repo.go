package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrTokenMismatch    = errors.New("token mismatch")
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const (
	SessionTokenPrefix = "login:user:token:"
	SessionTTL         = 30 * time.Minute
)

// SessionRepository 令牌白名单：登出或被踢下线后即使 JWT 未过期也拒绝
type SessionRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSessionRepository(rdb *redis.Client) *SessionRepository {
	return &SessionRepository{rdb: rdb, ttl: SessionTTL}
}

func (r *SessionRepository) Save(ctx context.Context, userID, token string) error {
	if err := r.rdb.Set(ctx, SessionTokenPrefix+userID, token, r.ttl).Err(); err != nil {
		return ErrRedisUnavailable
	}
	return nil
}

// Check 令牌一致则顺延过期时间
func (r *SessionRepository) Check(ctx context.Context, userID, token string) error {
	key := SessionTokenPrefix + userID
	stored, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrTokenNotFound
	}
	if err != nil {
		return ErrRedisUnavailable
	}
	if stored != token {
		return ErrTokenMismatch
	}
	_ = r.rdb.Expire(ctx, key, r.ttl).Err()
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, userID string) error {
	if err := r.rdb.Del(ctx, SessionTokenPrefix+userID).Err(); err != nil {
		return ErrRedisUnavailable
	}
	return nil
}
