package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/intervue/internal/config"
	"github.com/stemsi/intervue/internal/model"
)

// ArchiveQueue is the Redis list feeding the archive worker.
type ArchiveQueue struct {
	rdb *redis.Client
}

// NewArchiveQueue creates a new ArchiveQueue.
func NewArchiveQueue(rdb *redis.Client) *ArchiveQueue {
	return &ArchiveQueue{rdb: rdb}
}

// Push appends records to the queue in one round trip.
func (q *ArchiveQueue) Push(ctx context.Context, records ...model.ArchiveRecord) error {
	if len(records) == 0 {
		return nil
	}
	pipe := q.rdb.Pipeline()
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal archive record %s: %w", rec.InterviewID, err)
		}
		pipe.RPush(ctx, config.WorkerKey.ArchiveQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push archive records: %w", err)
	}
	return nil
}

// Len returns the number of queued records.
func (q *ArchiveQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, config.WorkerKey.ArchiveQueue).Result()
}

// Pop blocks up to timeout for the next raw record. It returns redis.Nil when
// the queue stayed empty.
func (q *ArchiveQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	result, err := q.rdb.BLPop(ctx, timeout, config.WorkerKey.ArchiveQueue).Result()
	if err != nil {
		return "", err
	}
	if len(result) < 2 {
		return "", redis.Nil
	}
	return result[1], nil
}
