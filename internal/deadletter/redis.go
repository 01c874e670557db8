package deadletter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/storyforge/storyforge/internal/scheduler"
)

const (
	// dlqFailedKey is a zset scored by failure time, member=story id.
	dlqFailedKey = "storyforge:dlq:failed"
	// dlqEntryKeyFmt holds per-story failure metadata as a hash.
	dlqEntryKeyFmt = "storyforge:dlq:story:%s"
)

// RedisSink publishes dead letters to Redis: a scored set for ordering
// and browsing, plus one hash per story with the failure metadata and
// serialized error history. Replay tooling reads and removes entries
// manually; the scheduler only ever writes.
type RedisSink struct {
	rdb *redis.Client
}

// NewRedisSink creates a sink backed by the given Redis client.
func NewRedisSink(rdb *redis.Client) *RedisSink {
	return &RedisSink{rdb: rdb}
}

// PublishDeadLetter writes the entry in a single pipeline.
func (s *RedisSink) PublishDeadLetter(ctx context.Context, dl scheduler.DeadLetter) error {
	history, err := json.Marshal(dl.ErrorHistory)
	if err != nil {
		return fmt.Errorf("marshal error history for %s: %w", dl.StoryID, err)
	}

	entryKey := fmt.Sprintf(dlqEntryKeyFmt, dl.StoryID)
	lastError := ""
	if n := len(dl.ErrorHistory); n > 0 {
		lastError = dl.ErrorHistory[n-1].Err
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, dlqFailedKey, redis.Z{Score: float64(dl.FailedAt.Unix()), Member: dl.StoryID})
	pipe.HSet(ctx, entryKey, map[string]interface{}{
		"story_id":      dl.StoryID,
		"stage":         dl.Stage.String(),
		"failed_at":     dl.FailedAt.Unix(),
		"attempts":      len(dl.ErrorHistory),
		"last_error":    lastError,
		"error_history": string(history),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write dead letter for %s: %w", dl.StoryID, err)
	}
	return nil
}

// List returns the story ids currently dead-lettered, oldest first.
func (s *RedisSink) List(ctx context.Context, limit int64) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.rdb.ZRangeByScore(ctx, dlqFailedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "+inf",
		Count: limit,
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return ids, nil
}
