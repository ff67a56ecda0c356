package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "pixelpanel:panel-context:"

// RedisContextStore - Redis에 세션별 마지막 패널 컨텍스트 저장
type RedisContextStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisContextStore(rdb *redis.Client, ttl time.Duration) *RedisContextStore {
	return &RedisContextStore{rdb: rdb, ttl: ttl}
}

// Load - 저장된 컨텍스트 조회 (없으면 nil, nil)
func (s *RedisContextStore) Load(ctx context.Context, userID, sessionID string) (*PanelContext, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(userID, sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeSessionContext(raw)
}

// Save - 컨텍스트 저장 (TTL 갱신)
func (s *RedisContextStore) Save(ctx context.Context, userID, sessionID string, panelCtx PanelContext) error {
	raw, err := json.Marshal(panelCtx)
	if err != nil {
		return fmt.Errorf("failed to encode panel context: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(userID, sessionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// sessionKey - pixelpanel:panel-context:{userID}:{sessionID}
func sessionKey(userID, sessionID string) string {
	return sessionKeyPrefix + userID + ":" + sessionID
}

func decodeSessionContext(raw []byte) (*PanelContext, error) {
	var panelCtx PanelContext
	if err := json.Unmarshal(raw, &panelCtx); err != nil {
		return nil, fmt.Errorf("failed to decode panel context: %w", err)
	}
	if panelCtx.Prompt == "" || panelCtx.ImageData == "" {
		return nil, nil
	}
	return &panelCtx, nil
}
