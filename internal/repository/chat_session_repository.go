package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

const (
	chatSessionPrefix = "chat:session:"
	chatSessionIndex  = "chat:sessions:lru"
)

// ChatSessionRepository keeps chat sessions in Redis. Each session is a JSON string with
// an idle TTL; a sorted set scored by last access time bounds the number of live sessions.
type ChatSessionRepository struct {
	client *redis.Client
	prefix string
}

// NewChatSessionRepository constructs a ChatSessionRepository with keys under prefix.
func NewChatSessionRepository(client *redis.Client, prefix string) *ChatSessionRepository {
	return &ChatSessionRepository{client: client, prefix: prefix}
}

func (r *ChatSessionRepository) key(id string) string {
	return r.prefix + chatSessionPrefix + id
}

func (r *ChatSessionRepository) index() string {
	return r.prefix + chatSessionIndex
}

// Save writes session, refreshing its TTL and LRU position.
func (r *ChatSessionRepository) Save(ctx context.Context, session *models.ChatSession, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal chat session: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(session.ID), payload, ttl)
	pipe.ZAdd(ctx, r.index(), redis.Z{Score: float64(session.LastSeenAt.UnixMilli()), Member: session.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save chat session: %w", err)
	}
	return nil
}

// Get loads a session, returning appErrors.ErrCacheMiss when it expired or was evicted.
func (r *ChatSessionRepository) Get(ctx context.Context, id string) (*models.ChatSession, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("get chat session: %w", err)
	}
	var session models.ChatSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal chat session: %w", err)
	}
	return &session, nil
}

// Evict drops index entries idle for longer than ttl and then removes the least recently
// used sessions until at most maxSessions remain. It returns the number evicted by the
// size bound.
func (r *ChatSessionRepository) Evict(ctx context.Context, maxSessions int, ttl time.Duration, now time.Time) (int, error) {
	cutoff := strconv.FormatInt(now.Add(-ttl).UnixMilli(), 10)
	if err := r.client.ZRemRangeByScore(ctx, r.index(), "-inf", "("+cutoff).Err(); err != nil {
		return 0, fmt.Errorf("prune chat session index: %w", err)
	}
	count, err := r.client.ZCard(ctx, r.index()).Result()
	if err != nil {
		return 0, fmt.Errorf("count chat sessions: %w", err)
	}
	excess := count - int64(maxSessions)
	if maxSessions <= 0 || excess <= 0 {
		return 0, nil
	}
	oldest, err := r.client.ZRange(ctx, r.index(), 0, excess-1).Result()
	if err != nil {
		return 0, fmt.Errorf("list oldest chat sessions: %w", err)
	}
	keys := make([]string, len(oldest))
	members := make([]interface{}, len(oldest))
	for i, id := range oldest {
		keys[i] = r.key(id)
		members[i] = id
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, r.index(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("evict chat sessions: %w", err)
	}
	return len(oldest), nil
}
