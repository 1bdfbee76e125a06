package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriloglab/judge-backend/internal/config"
	"github.com/veriloglab/judge-backend/internal/model"
	"github.com/veriloglab/judge-backend/internal/scoring"
	"github.com/veriloglab/judge-backend/internal/scoring/scoringtest"
)

var (
	start   = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	problem = uuid.MustParse("00000000-0000-0000-0000-00000000c0de")
)

type contestTable map[uuid.UUID]*model.Contest

func (t contestTable) GetByID(_ context.Context, id uuid.UUID) (*model.Contest, error) {
	c, ok := t[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (t contestTable) FindLiveByProblem(_ context.Context, problemID uuid.UUID, at time.Time) ([]*model.Contest, error) {
	var out []*model.Contest
	for _, c := range t {
		if _, ok := c.PointsFor(problemID); ok && c.IsLive(at) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

type brokenLoader struct{ contestTable }

func (brokenLoader) GetByID(context.Context, uuid.UUID) (*model.Contest, error) {
	return nil, errors.New("connection refused")
}

func newContest(status model.ContestStatus) *model.Contest {
	return &model.Contest{
		ID:        uuid.New(),
		Status:    status,
		StartTime: start,
		EndTime:   start.Add(2 * time.Hour),
		Problems:  []model.ContestProblem{{ProblemID: problem, Points: 40}},
	}
}

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestReconcileReplaysFailedContestAfterItEnded(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()

	c := newContest(model.ContestStatusEnded)
	store := scoringtest.NewMemoryStore()
	user := uuid.New()
	_, err := store.Register(c.ID, user, start)
	require.NoError(t, err)

	table := contestTable{c.ID: c}
	engine := scoring.NewEngine(store, table, nil, zerolog.Nop())
	w := NewReconcileWorker(rdb, engine, table, zerolog.Nop())

	job := model.ScoringJob{
		SubmissionID: uuid.New(),
		UserID:       user,
		ProblemID:    problem,
		Verdict:      model.VerdictAccepted,
		ContestIDs:   []uuid.UUID{c.ID},
		At:           start.Add(30 * time.Minute),
	}
	require.NoError(t, NewRedisReconcileQueue(rdb).Enqueue(ctx, job))

	w.processNext(ctx)

	p, ok := store.Get(c.ID, user)
	require.True(t, ok)
	assert.Equal(t, 40, p.Score)
	assert.Equal(t, 1, p.Problems[problem].Attempts)

	n, err := rdb.LLen(ctx, config.WorkerKey.ScoringReconcileQueue).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReconcileWithoutContestsRecordsFromScratch(t *testing.T) {
	c := newContest(model.ContestStatusActive)
	store := scoringtest.NewMemoryStore()
	user := uuid.New()
	_, _ = store.Register(c.ID, user, start)

	table := contestTable{c.ID: c}
	engine := scoring.NewEngine(store, table, nil, zerolog.Nop())
	w := NewReconcileWorker(setupRedis(t), engine, table, zerolog.Nop())

	job := &model.ScoringJob{UserID: user, ProblemID: problem, Verdict: model.VerdictRejected, At: start.Add(time.Minute)}
	require.NoError(t, w.Process(context.Background(), job))

	p, _ := store.Get(c.ID, user)
	assert.Equal(t, model.Cell{Verdict: model.VerdictRejected, Attempts: 1}, p.Problems[problem])
}

func TestReconcileDropsJobsThatNoLongerApply(t *testing.T) {
	c := newContest(model.ContestStatusActive)
	table := contestTable{c.ID: c}
	engine := scoring.NewEngine(scoringtest.NewMemoryStore(), table, nil, zerolog.Nop())
	w := NewReconcileWorker(setupRedis(t), engine, table, zerolog.Nop())

	job := &model.ScoringJob{
		UserID:     uuid.New(),
		ProblemID:  problem,
		Verdict:    model.VerdictAccepted,
		ContestIDs: []uuid.UUID{c.ID, uuid.New()},
		At:         start.Add(time.Minute),
	}
	require.NoError(t, w.Process(context.Background(), job))
	assert.Empty(t, job.ContestIDs)
}

func TestReconcileDeadLettersAfterMaxAttempts(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()

	c := newContest(model.ContestStatusActive)
	table := contestTable{c.ID: c}
	engine := scoring.NewEngine(scoringtest.NewMemoryStore(), table, nil, zerolog.Nop())
	w := NewReconcileWorker(rdb, engine, brokenLoader{table}, zerolog.Nop())
	w.backoff = 0

	job := model.ScoringJob{
		SubmissionID: uuid.New(),
		UserID:       uuid.New(),
		ProblemID:    problem,
		Verdict:      model.VerdictAccepted,
		ContestIDs:   []uuid.UUID{c.ID},
		At:           start,
	}
	require.NoError(t, NewRedisReconcileQueue(rdb).Enqueue(ctx, job))

	for i := 0; i < ReconcileMaxAttempts; i++ {
		w.processNext(ctx)
	}

	queued, err := rdb.LLen(ctx, config.WorkerKey.ScoringReconcileQueue).Result()
	require.NoError(t, err)
	assert.Zero(t, queued)

	dead, err := rdb.LRange(ctx, config.WorkerKey.ScoringDeadLetter, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, dead, 1)

	var got model.ScoringJob
	require.NoError(t, json.Unmarshal([]byte(dead[0]), &got))
	assert.Equal(t, ReconcileMaxAttempts, got.Attempts)
	assert.Equal(t, []uuid.UUID{c.ID}, got.ContestIDs)
	assert.Contains(t, got.LastError, "connection refused")
}

func TestReconcileSkipsGarbage(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()
	require.NoError(t, rdb.RPush(ctx, config.WorkerKey.ScoringReconcileQueue, "{not json").Err())

	w := NewReconcileWorker(rdb, nil, contestTable{}, zerolog.Nop())
	w.processNext(ctx)

	n, _ := rdb.LLen(ctx, config.WorkerKey.ScoringDeadLetter).Result()
	assert.Zero(t, n)
}
