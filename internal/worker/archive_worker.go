package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stemsi/intervue/internal/repository"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ArchiveStore persists archive records.
type ArchiveStore interface {
	InsertBatch(ctx context.Context, batch []model.ArchiveRecord) error
	Insert(ctx context.Context, rec *model.ArchiveRecord) error
}

// ArchiveWorker drains the archive queue into the transcript database.
type ArchiveWorker struct {
	store ArchiveStore
	queue *repository.ArchiveQueue
	log   zerolog.Logger

	// requeueDelay pauses the loop after records were pushed back.
	requeueDelay time.Duration
}

func NewArchiveWorker(store ArchiveStore, queue *repository.ArchiveQueue, log zerolog.Logger) *ArchiveWorker {
	return &ArchiveWorker{
		store:        store,
		queue:        queue,
		log:          log.With().Str("component", "archive_worker").Logger(),
		requeueDelay: 2 * time.Second,
	}
}

func (w *ArchiveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ArchiveWorker started")

	buffer := make([]model.ArchiveRecord, 0, BatchSize)
	lastFlushTime := time.Now()

	// Redis outages back off up to 30s between polls.
	redisBackoff := backoff.NewExponentialBackOff()
	redisBackoff.InitialInterval = 500 * time.Millisecond
	redisBackoff.MaxInterval = 30 * time.Second
	redisBackoff.MaxElapsedTime = 0

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlushTime = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		raw, err := w.queue.Pop(ctx, PollTimeout)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			wait := redisBackoff.NextBackOff()
			w.log.Error().Err(err).Dur("retry_in", wait).Msg("Redis connection error")
			sleepCtx(ctx, wait)
			continue
		}
		redisBackoff.Reset()

		var rec model.ArchiveRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			// Malformed payloads can never succeed.
			w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed archive record")
			continue
		}
		if len(buffer) == 0 {
			lastFlushTime = time.Now()
		}
		buffer = append(buffer, rec)
	}
}

// flushSafe attempts bulk insert, then row-by-row insert, then requeue.
func (w *ArchiveWorker) flushSafe(ctx context.Context, batch []model.ArchiveRecord) {
	err := w.store.InsertBatch(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Archived batch")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk archive failed, attempting row-by-row recovery")
	w.fallbackInsert(ctx, batch)
}

func (w *ArchiveWorker) fallbackInsert(ctx context.Context, batch []model.ArchiveRecord) {
	var requeue []model.ArchiveRecord

	for i := range batch {
		rec := &batch[i]
		err := w.store.Insert(ctx, rec)
		if err == nil {
			continue
		}
		if repository.IsPermanent(err) {
			w.log.Error().Err(err).Str("interview_id", rec.InterviewID).Msg("Dropping unarchivable record")
			continue
		}
		w.log.Error().Err(err).Str("interview_id", rec.InterviewID).Msg("Archive insert failed, requeueing")
		requeue = append(requeue, *rec)
	}

	if len(requeue) > 0 {
		w.requeue(requeue)
	}
}

func (w *ArchiveWorker) requeue(items []model.ArchiveRecord) {
	// The worker context may already be cancelled during shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.queue.Push(ctx, items...); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue archive records. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed records back to Redis")
	time.Sleep(w.requeueDelay)
}

func (w *ArchiveWorker) shutdown(buffer []model.ArchiveRecord) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
