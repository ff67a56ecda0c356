package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	eventKeyPrefix = "pixelpanel:stripe-event:"
	// DefaultEventTTL - Stripe 자동 재전송 기간(3일)을 덮는 보관 기간
	DefaultEventTTL = 72 * time.Hour
)

// EventLog - 처리 중이거나 처리 완료된 웹훅 이벤트 기록
type EventLog interface {
	// Claim - 처음 보는 이벤트면 true
	Claim(ctx context.Context, eventID string) (bool, error)
	// Release - 처리 실패 시 재전송을 다시 받을 수 있도록 기록 삭제
	Release(ctx context.Context, eventID string) error
}

// RedisEventLog - SETNX 기반 이벤트 중복 제거
type RedisEventLog struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisEventLog(rdb *redis.Client, ttl time.Duration) *RedisEventLog {
	if ttl <= 0 {
		ttl = DefaultEventTTL
	}
	return &RedisEventLog{rdb: rdb, ttl: ttl}
}

func (l *RedisEventLog) Claim(ctx context.Context, eventID string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, eventKeyPrefix+eventID, time.Now().Unix(), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (l *RedisEventLog) Release(ctx context.Context, eventID string) error {
	if err := l.rdb.Del(ctx, eventKeyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
