package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

const (
	SubmissionBatchSize    = 50
	SubmissionBatchTimeout = 2 * time.Second
	SubmissionPollTimeout  = 1 * time.Second
)

// SubmissionStore persists graded submissions.
type SubmissionStore interface {
	BulkInsert(ctx context.Context, batch []model.Submission) error
	Insert(ctx context.Context, s *model.Submission) error
}

// SubmissionWorker moves accepted submissions from the Redis queue into
// PostgreSQL.
type SubmissionWorker struct {
	store SubmissionStore
	rdb   *redis.Client
	log   zerolog.Logger

	batchSize    int
	batchTimeout time.Duration
	pollTimeout  time.Duration
}

func NewSubmissionWorker(store SubmissionStore, rdb *redis.Client, log zerolog.Logger) *SubmissionWorker {
	return &SubmissionWorker{
		store:        store,
		rdb:          rdb,
		log:          log.With().Str("component", "submission_worker").Logger(),
		batchSize:    SubmissionBatchSize,
		batchTimeout: SubmissionBatchTimeout,
		pollTimeout:  SubmissionPollTimeout,
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

// Start blocks until ctx is cancelled, then flushes what it holds.
func (w *SubmissionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("SubmissionWorker started")

	batch := make([]model.Submission, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, w.pollTimeout, config.WorkerKey.PersistSubmissionsQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
					time.Sleep(w.pollTimeout)
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var s model.Submission
			if err := json.Unmarshal([]byte(item[1]), &s); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, s)
		}
	}
}

// ----------------------------------------------------------------
// Batch insert with per-item fallback
// ----------------------------------------------------------------

func (w *SubmissionWorker) flushSafe(ctx context.Context, batch []model.Submission) {
	if len(batch) == 0 {
		return
	}

	err := w.store.BulkInsert(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Submissions persisted")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("bulk insert failed, using fallback")

	for i := range batch {
		s := &batch[i]
		if err := w.store.Insert(ctx, s); err != nil {
			w.log.Error().Err(err).
				Str("submission_id", s.ID.String()).
				Msg("single insert failed, requeueing")
			w.requeue(s)
		}
	}
}

// requeue pushes to the back of the queue so a poisoned item cannot block
// the head.
func (w *SubmissionWorker) requeue(s *model.Submission) {
	raw, err := json.Marshal(s)
	if err != nil {
		w.log.Error().Err(err).Msg("marshal for requeue failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.rdb.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, raw).Err(); err != nil {
		w.log.Error().Err(err).Str("submission_id", s.ID.String()).Msg("requeue failed, submission lost from queue")
	}
}
