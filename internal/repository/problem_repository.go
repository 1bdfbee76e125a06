package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veriloglab/judge-backend/internal/model"
)

// ProblemRepository handles problem data access.
type ProblemRepository struct {
	pool *pgxpool.Pool
}

// NewProblemRepository creates a new ProblemRepository.
func NewProblemRepository(pool *pgxpool.Pool) *ProblemRepository {
	return &ProblemRepository{pool: pool}
}

// GetByID retrieves a problem including its testbench.
func (r *ProblemRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Problem, error) {
	p := &model.Problem{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, testbench, points, total_attempts, total_solved
		 FROM problems WHERE id = $1`, id,
	).Scan(&p.ID, &p.Title, &p.Testbench, &p.Points, &p.TotalAttempts, &p.TotalSolved)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create inserts a problem.
func (r *ProblemRepository) Create(ctx context.Context, p *model.Problem) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO problems (title, testbench, points) VALUES ($1, $2, $3) RETURNING id`,
		p.Title, p.Testbench, p.Points,
	).Scan(&p.ID)
}

// IncrementCounters bumps the attempt counter and, for a solve, the solved counter.
func (r *ProblemRepository) IncrementCounters(ctx context.Context, id uuid.UUID, solved bool) error {
	solvedDelta := 0
	if solved {
		solvedDelta = 1
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE problems
		 SET total_attempts = total_attempts + 1, total_solved = total_solved + $1
		 WHERE id = $2`, solvedDelta, id)
	return err
}

// StageRepository handles learning stage data access.
type StageRepository struct {
	pool *pgxpool.Pool
}

// NewStageRepository creates a new StageRepository.
func NewStageRepository(pool *pgxpool.Pool) *StageRepository {
	return &StageRepository{pool: pool}
}

// GetByID retrieves a stage including its testbench.
func (r *StageRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Stage, error) {
	s := &model.Stage{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, testbench FROM stages WHERE id = $1`, id,
	).Scan(&s.ID, &s.Title, &s.Testbench)
	if err != nil {
		return nil, err
	}
	return s, nil
}
