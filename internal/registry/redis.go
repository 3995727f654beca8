package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pageforge/api/internal/model"
)

// RedisRegistry stores job records as JSON in Redis with per-status index
// sets. Writes go through WATCH/MULTI so the version check and the write are
// atomic against concurrent callers.
type RedisRegistry struct {
	redis *redis.Client
}

func NewRedisRegistry(redisClient *redis.Client) *RedisRegistry {
	return &RedisRegistry{redis: redisClient}
}

func jobKey(id string) string {
	return fmt.Sprintf("job:%s", id)
}

func statusKey(status model.JobStatus) string {
	return fmt.Sprintf("jobs:status:%s", status)
}

func (r *RedisRegistry) Create(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	ok, err := r.redis.SetNX(ctx, jobKey(job.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrExists
	}
	return r.redis.SAdd(ctx, statusKey(job.Status), job.ID).Err()
}

func (r *RedisRegistry) Get(ctx context.Context, id string) (*model.Job, error) {
	data, err := r.redis.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Update writes the record only if the stored version is exactly one behind
// job.Version. Retries a few times when the WATCH is broken by an unrelated
// concurrent write; a genuine version mismatch returns ErrConflict.
func (r *RedisRegistry) Update(ctx context.Context, job *model.Job) error {
	key := jobKey(job.ID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return ErrNotFound
			}
			return err
		}

		var stored model.Job
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}
		if stored.Version != job.Version-1 {
			return ErrConflict
		}

		newData, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newData, 0)
			if stored.Status != job.Status {
				pipe.SRem(ctx, statusKey(stored.Status), job.ID)
				pipe.SAdd(ctx, statusKey(job.Status), job.ID)
			}
			return nil
		})
		return err
	}

	for i := 0; i < 3; i++ {
		err := r.redis.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		return err
	}
	return ErrConflict
}

func (r *RedisRegistry) ListByStatus(ctx context.Context, status model.JobStatus) ([]string, error) {
	return r.redis.SMembers(ctx, statusKey(status)).Result()
}
