package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/flowstudio/workflow"
)

const defaultKeyPrefix = "flowstudio:"

// RedisStore keeps each definition as a JSON string, a summary hash for
// listings and a sorted set ordered by update time.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisStore creates a store on an existing client. The store owns the
// client and closes it on Close.
func NewRedisStore(client redis.UniversalClient, keyPrefix string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix + "workflow:",
		logger:    logger.With(zap.String("component", "graph_store"), zap.String("backend", "redis")),
	}
}

// docKey returns the Redis key for a definition document
func (s *RedisStore) docKey(id string) string {
	return s.keyPrefix + "doc:" + id
}

// summaryKey returns the Redis key of the summary hash
func (s *RedisStore) summaryKey() string {
	return s.keyPrefix + "summary"
}

// indexKey returns the Redis key of the update-time index
func (s *RedisStore) indexKey() string {
	return s.keyPrefix + "index"
}

// Save implements GraphStore.
func (s *RedisStore) Save(ctx context.Context, def *workflow.Definition) error {
	stored, err := prepare(def)
	if err != nil {
		return err
	}
	data, err := encode(stored)
	if err != nil {
		return err
	}
	sum, err := json.Marshal(summarize(stored))
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	score := float64(stored.Metadata.UpdatedAt.UnixNano())
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.docKey(stored.ID), data, 0)
		pipe.HSet(ctx, s.summaryKey(), stored.ID, sum)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: score, Member: stored.ID})
		return nil
	})
	if err != nil {
		s.logger.Error("save workflow failed", zap.String("workflow_id", stored.ID), zap.Error(err))
		return fmt.Errorf("failed to save workflow %s: %w", stored.ID, err)
	}
	return nil
}

// Get implements GraphStore.
func (s *RedisStore) Get(ctx context.Context, id string) (*workflow.Definition, error) {
	data, err := s.client.Get(ctx, s.docKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow %s: %w", id, err)
	}
	return decode(data)
}

// List implements GraphStore.
func (s *RedisStore) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	start := int64(0)
	if opts.Offset > 0 {
		start = int64(opts.Offset)
	}
	stop := int64(-1)
	if opts.Limit > 0 {
		stop = start + int64(opts.Limit) - 1
	}

	// Members with equal scores come back in reverse lexical order; the
	// result is re-sorted below so ties read by ascending id.
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	if len(ids) == 0 {
		return []Summary{}, nil
	}

	raw, err := s.client.HMGet(ctx, s.summaryKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow summaries: %w", err)
	}
	out := make([]Summary, 0, len(ids))
	for i, v := range raw {
		str, ok := v.(string)
		if !ok {
			s.logger.Warn("workflow summary missing", zap.String("workflow_id", ids[i]))
			continue
		}
		var sum Summary
		if err := json.Unmarshal([]byte(str), &sum); err != nil {
			s.logger.Warn("workflow summary unreadable", zap.String("workflow_id", ids[i]), zap.Error(err))
			continue
		}
		out = append(out, sum)
	}
	sortSummaries(out)
	return out, nil
}

// Delete implements GraphStore.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.docKey(id))
		pipe.HDel(ctx, s.summaryKey(), id)
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping implements GraphStore.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements GraphStore.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
