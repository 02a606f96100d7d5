package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storyteller-server/internal/model"
)

// Compile-time check to ensure redisShareRepository implements ShareRepository
var _ ShareRepository = (*redisShareRepository)(nil)

type redisShareRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisShareRepository creates a new Redis-backed ShareRepository.
func NewRedisShareRepository(client *redis.Client, logger *zap.Logger) ShareRepository {
	return &redisShareRepository{
		client: client,
		logger: logger.Named("RedisShareRepo"),
	}
}

func shareKey(token string) string {
	return fmt.Sprintf("share_token:%s", token)
}

func storyTokensKey(storyID uuid.UUID) string {
	return fmt.Sprintf("story_share_tokens:%s", storyID)
}

// SaveToken stores token -> storyID with a TTL and records the token in a
// per-story set so tokens can be revoked when the story is deleted.
func (r *redisShareRepository) SaveToken(ctx context.Context, token string, storyID uuid.UUID, ttl time.Duration) error {
	pipe := r.client.Pipeline()
	pipe.Set(ctx, shareKey(token), storyID.String(), ttl)
	pipe.SAdd(ctx, storyTokensKey(storyID), token)
	pipe.Expire(ctx, storyTokensKey(storyID), ttl)

	r.logger.Debug("Saving share token",
		zap.String("storyID", storyID.String()),
		zap.Duration("ttl", ttl))

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to save share token in redis", zap.Error(err), zap.String("storyID", storyID.String()))
		return fmt.Errorf("failed to save share token in redis: %w", err)
	}
	return nil
}

// ResolveToken returns the story ID a share token points at.
func (r *redisShareRepository) ResolveToken(ctx context.Context, token string) (uuid.UUID, error) {
	val, err := r.client.Get(ctx, shareKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.UUID{}, model.ErrShareNotFound
		}
		r.logger.Error("Failed to resolve share token", zap.Error(err))
		return uuid.UUID{}, fmt.Errorf("failed to resolve share token: %w", err)
	}

	storyID, err := uuid.Parse(val)
	if err != nil {
		r.logger.Error("Share token points at invalid story id", zap.String("value", val), zap.Error(err))
		return uuid.UUID{}, model.ErrShareNotFound
	}
	return storyID, nil
}

// RevokeTokens removes all share tokens issued for a story.
func (r *redisShareRepository) RevokeTokens(ctx context.Context, storyID uuid.UUID) error {
	setKey := storyTokensKey(storyID)
	tokens, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to list share tokens for story: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, token := range tokens {
		keys = append(keys, shareKey(token))
	}
	keys = append(keys, setKey)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to revoke share tokens: %w", err)
	}
	r.logger.Info("Share tokens revoked", zap.String("storyID", storyID.String()), zap.Int("count", len(tokens)))
	return nil
}
