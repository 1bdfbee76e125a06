package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/veriloglab/judge-backend/internal/config"
	"github.com/veriloglab/judge-backend/internal/model"
	"github.com/veriloglab/judge-backend/internal/scoring"
)

const (
	ReconcilePollTimeout = 1 * time.Second
	ReconcileMaxAttempts = 5
	ReconcileBackoff     = 500 * time.Millisecond
)

// RedisReconcileQueue pushes scoring jobs onto the reconcile list.
type RedisReconcileQueue struct {
	rdb *redis.Client
}

// NewRedisReconcileQueue creates a new RedisReconcileQueue.
func NewRedisReconcileQueue(rdb *redis.Client) *RedisReconcileQueue {
	return &RedisReconcileQueue{rdb: rdb}
}

// Enqueue appends a job to the reconcile queue.
func (q *RedisReconcileQueue) Enqueue(ctx context.Context, job model.ScoringJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, config.WorkerKey.ScoringReconcileQueue, raw).Err()
}

// ScoreReplayer is implemented by scoring.Engine.
type ScoreReplayer interface {
	Record(ctx context.Context, userID, problemID uuid.UUID, verdict model.Verdict, at time.Time) ([]*model.ContestParticipant, error)
	Replay(ctx context.Context, contest *model.Contest, userID, problemID uuid.UUID, verdict model.Verdict, at time.Time) (*model.ContestParticipant, bool, error)
}

// ContestLoader loads a contest by id.
type ContestLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Contest, error)
}

// ReconcileWorker consumes scoring_reconcile_queue and re-applies verdicts
// whose contest scoring failed at submit time. Jobs that keep failing are
// moved to the dead letter list.
type ReconcileWorker struct {
	rdb      *redis.Client
	scores   ScoreReplayer
	contests ContestLoader
	backoff  time.Duration
	log      zerolog.Logger
}

// NewReconcileWorker creates a new ReconcileWorker.
func NewReconcileWorker(rdb *redis.Client, scores ScoreReplayer, contests ContestLoader, log zerolog.Logger) *ReconcileWorker {
	return &ReconcileWorker{
		rdb:      rdb,
		scores:   scores,
		contests: contests,
		backoff:  ReconcileBackoff,
		log:      log.With().Str("component", "reconcile_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *ReconcileWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *ReconcileWorker) processNext(ctx context.Context) {
	item, err := w.rdb.BLPop(ctx, ReconcilePollTimeout, config.WorkerKey.ScoringReconcileQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(item) < 2 {
		return
	}

	var job model.ScoringJob
	if err := json.Unmarshal([]byte(item[1]), &job); err != nil {
		w.log.Error().Err(err).Msg("Invalid JSON payload")
		return
	}
	w.handle(ctx, &job)
}

// handle processes one job and requeues or dead-letters it on failure.
func (w *ReconcileWorker) handle(ctx context.Context, job *model.ScoringJob) {
	log := w.log.With().
		Str("submission_id", job.SubmissionID.String()).
		Str("user_id", job.UserID.String()).
		Logger()

	err := w.Process(ctx, job)
	if err == nil {
		log.Info().Int("attempts", job.Attempts+1).Msg("Scoring reconciled")
		return
	}

	job.Attempts++
	job.LastError = err.Error()
	raw, merr := json.Marshal(job)
	if merr != nil {
		log.Error().Err(merr).Msg("Failed to encode scoring job")
		return
	}

	if job.Attempts >= ReconcileMaxAttempts {
		log.Error().Err(err).Int("attempts", job.Attempts).Msg("Scoring reconciliation failed, moving to dead letter")
		if perr := w.rdb.RPush(context.WithoutCancel(ctx), config.WorkerKey.ScoringDeadLetter, raw).Err(); perr != nil {
			log.Error().Err(perr).Msg("Failed to dead-letter scoring job")
		}
		return
	}

	log.Warn().Err(err).Int("attempts", job.Attempts).Msg("Scoring reconciliation failed, requeueing")
	select {
	case <-ctx.Done():
	case <-time.After(w.backoff * time.Duration(job.Attempts)):
	}
	if perr := w.rdb.RPush(context.WithoutCancel(ctx), config.WorkerKey.ScoringReconcileQueue, raw).Err(); perr != nil {
		log.Error().Err(perr).Msg("Failed to requeue scoring job")
	}
}

// Process re-applies a job once. On partial failure job.ContestIDs is
// narrowed to the contests that still need the verdict.
func (w *ReconcileWorker) Process(ctx context.Context, job *model.ScoringJob) error {
	if len(job.ContestIDs) == 0 {
		_, err := w.scores.Record(ctx, job.UserID, job.ProblemID, job.Verdict, job.At)
		var recErr *scoring.RecordError
		if errors.As(err, &recErr) {
			job.ContestIDs = recErr.Failed
		}
		return err
	}

	var (
		remaining []uuid.UUID
		errs      []error
	)
	for _, id := range job.ContestIDs {
		if err := w.replay(ctx, id, job); err != nil {
			remaining = append(remaining, id)
			errs = append(errs, fmt.Errorf("contest %s: %w", id, err))
		}
	}
	job.ContestIDs = remaining
	return errors.Join(errs...)
}

// replay applies the job to one contest. Outcomes that can never succeed are
// logged and treated as done.
func (w *ReconcileWorker) replay(ctx context.Context, contestID uuid.UUID, job *model.ScoringJob) error {
	contest, err := w.contests.GetByID(ctx, contestID)
	if errors.Is(err, pgx.ErrNoRows) {
		w.log.Warn().Str("contest_id", contestID.String()).Msg("Contest vanished, dropping scoring job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load contest: %w", err)
	}

	_, _, err = w.scores.Replay(ctx, contest, job.UserID, job.ProblemID, job.Verdict, job.At)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, scoring.ErrNotRegistered),
		errors.Is(err, scoring.ErrContestNotLive),
		errors.Is(err, scoring.ErrProblemNotInContest),
		errors.Is(err, scoring.ErrInvalidVerdict):
		w.log.Warn().Err(err).Str("contest_id", contestID.String()).Msg("Scoring job no longer applies")
		return nil
	default:
		return err
	}
}
