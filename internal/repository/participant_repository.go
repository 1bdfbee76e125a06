package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veriloglab/judge-backend/internal/model"
	"github.com/veriloglab/judge-backend/internal/scoring"
)

// maxCASAttempts bounds the optimistic retry loop in Mutate.
const maxCASAttempts = 5

// ParticipantRepository stores contest participants. Updates go through a
// compare-and-swap on the version column.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

func scanParticipant(row rowScanner) (*model.ContestParticipant, error) {
	p := &model.ContestParticipant{}
	var problems []byte
	if err := row.Scan(&p.ContestID, &p.UserID, &p.Score, &p.FinishTime, &problems, &p.Version, &p.RegisteredAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(problems, &p.Problems); err != nil {
		return nil, fmt.Errorf("decode participant cells: %w", err)
	}
	return p, nil
}

// Register creates an empty participant record.
func (r *ParticipantRepository) Register(ctx context.Context, contestID, userID uuid.UUID) (*model.ContestParticipant, error) {
	p, err := scanParticipant(r.pool.QueryRow(ctx,
		`INSERT INTO contest_participants (contest_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT (contest_id, user_id) DO NOTHING
		 RETURNING contest_id, user_id, score, finish_time, problems, version, registered_at`,
		contestID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, scoring.ErrAlreadyRegistered
	}
	return p, err
}

// Get retrieves one participant.
func (r *ParticipantRepository) Get(ctx context.Context, contestID, userID uuid.UUID) (*model.ContestParticipant, error) {
	p, err := scanParticipant(r.pool.QueryRow(ctx,
		`SELECT contest_id, user_id, score, finish_time, problems, version, registered_at
		 FROM contest_participants
		 WHERE contest_id = $1 AND user_id = $2`, contestID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, scoring.ErrNotRegistered
	}
	return p, err
}

// Mutate applies fn with optimistic concurrency. A lost race re-reads the row
// and re-applies fn; a failed swap has written nothing.
func (r *ParticipantRepository) Mutate(ctx context.Context, contestID, userID uuid.UUID, fn scoring.MutateFunc) (*model.ContestParticipant, bool, error) {
	return compareAndSwap(ctx, maxCASAttempts,
		func(ctx context.Context) (*model.ContestParticipant, error) {
			return r.Get(ctx, contestID, userID)
		},
		fn,
		r.swap,
	)
}

func (r *ParticipantRepository) swap(ctx context.Context, next *model.ContestParticipant, expected int64) (bool, error) {
	problems, err := json.Marshal(next.Problems)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE contest_participants
		 SET score = $1, finish_time = $2, problems = $3::jsonb, version = version + 1
		 WHERE contest_id = $4 AND user_id = $5 AND version = $6`,
		next.Score, next.FinishTime, string(problems), next.ContestID, next.UserID, expected)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

type loadFunc func(ctx context.Context) (*model.ContestParticipant, error)

type swapFunc func(ctx context.Context, next *model.ContestParticipant, expected int64) (bool, error)

func compareAndSwap(ctx context.Context, attempts int, load loadFunc, fn scoring.MutateFunc, swap swapFunc) (*model.ContestParticipant, bool, error) {
	for i := 0; i < attempts; i++ {
		cur, err := load(ctx)
		if err != nil {
			return nil, false, err
		}

		next := cur.Clone()
		changed, err := fn(next)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return cur, false, nil
		}

		ok, err := swap(ctx, next, cur.Version)
		if err != nil {
			return nil, false, err
		}
		if ok {
			next.Version = cur.Version + 1
			return next, true, nil
		}
	}
	return nil, false, scoring.ErrConflict
}

// Leaderboard returns the contest standings: score descending, then earlier
// finish time, participants without a solve last.
func (r *ParticipantRepository) Leaderboard(ctx context.Context, contestID uuid.UUID, limit int) ([]model.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT cp.user_id, COALESCE(u.username, ''), COALESCE(u.display_name, ''),
		        cp.score, cp.finish_time, cp.problems
		 FROM contest_participants cp
		 LEFT JOIN users u ON u.id = cp.user_id
		 WHERE cp.contest_id = $1
		 ORDER BY cp.score DESC, cp.finish_time ASC NULLS LAST, cp.registered_at ASC
		 LIMIT $2`, contestID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.LeaderboardEntry{}
	for rows.Next() {
		var (
			e        model.LeaderboardEntry
			problems []byte
		)
		if err := rows.Scan(&e.UserID, &e.Username, &e.DisplayName, &e.Score, &e.FinishTime, &problems); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(problems, &e.Problems); err != nil {
			return nil, fmt.Errorf("decode participant cells: %w", err)
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
