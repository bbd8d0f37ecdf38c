package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/text2sql/internal/core/error"
	logx "github.com/Chative-core-poc-v1/text2sql/pkg/logger"
)

// RedisCheckpointStore keeps one JSON checkpoint and one message list per thread.
// Saves are optimistic: WATCH on the checkpoint key rejects a stale version.
type RedisCheckpointStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisCheckpointStore(rdb redis.UniversalClient, ttl time.Duration) *RedisCheckpointStore {
	return &RedisCheckpointStore{rdb: rdb, ttl: ttl}
}

func (r *RedisCheckpointStore) checkpointKey(threadID string) string {
	return fmt.Sprintf("text2sql:thread:%s:checkpoint", threadID)
}

func (r *RedisCheckpointStore) messagesKey(threadID string) string {
	return fmt.Sprintf("text2sql:thread:%s:messages", threadID)
}

func (r *RedisCheckpointStore) Load(ctx context.Context, threadID string) (*model.Checkpoint, error) {
	key := r.checkpointKey(threadID)
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errx.ThreadNotFound(threadID)
	}
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to load checkpoint from redis")
		return nil, errx.WrapRedis(err)
	}
	rec, err := decodeCheckpoint(b)
	if err != nil {
		return nil, errx.WithKind(errx.KindPersistence, err, errx.RedisErrorMessage)
	}

	cp := rec.Checkpoint
	if rec.MessageCount == 0 {
		return &cp, nil
	}
	mkey := r.messagesKey(threadID)
	rows, err := r.rdb.LRange(ctx, mkey, 0, int64(rec.MessageCount-1)).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", mkey).Msg("failed to load thread messages from redis")
		return nil, errx.WrapRedis(err)
	}
	cp.State.Messages = make([]*schema.Message, 0, len(rows))
	for i, s := range rows {
		m, err := decodeMessage([]byte(s))
		if err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Int("index", i).Msg("failed to unmarshal message")
			return nil, errx.WithKind(errx.KindPersistence, fmt.Errorf("unmarshal message at index %d: %w", i, err), errx.RedisErrorMessage)
		}
		cp.State.Messages = append(cp.State.Messages, m)
	}
	return &cp, nil
}

func (r *RedisCheckpointStore) Save(ctx context.Context, cp *model.Checkpoint, appended []*schema.Message) error {
	threadID := cp.State.ThreadID
	key, mkey := r.checkpointKey(threadID), r.messagesKey(threadID)

	body, err := encodeCheckpoint(cp)
	if err != nil {
		return errx.WithKind(errx.KindPersistence, err, errx.RedisErrorMessage)
	}
	msgs, err := encodeMessages(appended)
	if err != nil {
		return errx.WithKind(errx.KindPersistence, err, errx.RedisErrorMessage)
	}

	var stored int64
	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			stored = 0
		case err != nil:
			return err
		default:
			rec, err := decodeCheckpoint(b)
			if err != nil {
				return err
			}
			stored = rec.Version
		}
		if cp.Version != stored+1 {
			return errx.CheckpointConflict(threadID, stored, cp.Version)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, body, r.ttl)
			if len(msgs) > 0 {
				values := make([]any, len(msgs))
				for i, m := range msgs {
					values[i] = m
				}
				pipe.RPush(ctx, mkey, values...)
			}
			// extend TTL on touch
			if r.ttl > 0 {
				pipe.Expire(ctx, mkey, r.ttl)
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errx.KindOf(err) == errx.KindPersistence {
			return err
		}
		logx.Error().Err(err).Str("key", key).Int64("version", cp.Version).Msg("failed to save checkpoint to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisCheckpointStore) Delete(ctx context.Context, threadID string) error {
	if err := r.rdb.Del(ctx, r.checkpointKey(threadID), r.messagesKey(threadID)).Err(); err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to delete thread from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.CheckpointStore = (*RedisCheckpointStore)(nil)
