package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veriloglab/judge-backend/internal/model"
)

const contestColumns = `id, title, description, problems, start_time, end_time, status, created_by, created_at`

// ContestRepository handles contest data access.
type ContestRepository struct {
	pool *pgxpool.Pool
}

// NewContestRepository creates a new ContestRepository.
func NewContestRepository(pool *pgxpool.Pool) *ContestRepository {
	return &ContestRepository{pool: pool}
}

func scanContest(row rowScanner) (*model.Contest, error) {
	c := &model.Contest{}
	var problems []byte
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &problems, &c.StartTime, &c.EndTime, &c.Status, &c.CreatedBy, &c.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(problems, &c.Problems); err != nil {
		return nil, fmt.Errorf("decode contest %s problems: %w", c.ID, err)
	}
	return c, nil
}

// Create inserts a contest. Its initial status follows the clock.
func (r *ContestRepository) Create(ctx context.Context, c *model.Contest) error {
	problems, err := json.Marshal(c.Problems)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO contests (title, description, problems, start_time, end_time, status, created_by)
		 VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		c.Title, c.Description, string(problems), c.StartTime, c.EndTime, c.Status, c.CreatedBy,
	).Scan(&c.ID, &c.CreatedAt)
}

// GetByID retrieves a contest.
func (r *ContestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Contest, error) {
	return scanContest(r.pool.QueryRow(ctx,
		`SELECT `+contestColumns+` FROM contests WHERE id = $1`, id))
}

// List returns a page of contests, most recent start first.
func (r *ContestRepository) List(ctx context.Context, page, perPage int) ([]model.Contest, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM contests`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+contestColumns+`
		 FROM contests
		 ORDER BY start_time DESC
		 LIMIT $1 OFFSET $2`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	contests := []model.Contest{}
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, 0, err
		}
		contests = append(contests, *c)
	}
	return contests, total, rows.Err()
}

// FindLiveByProblem lists active contests containing the problem whose
// window includes at.
func (r *ContestRepository) FindLiveByProblem(ctx context.Context, problemID uuid.UUID, at time.Time) ([]*model.Contest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+contestColumns+`
		 FROM contests
		 WHERE status = 'active'
		   AND start_time <= $2 AND end_time >= $2
		   AND problems @> jsonb_build_array(jsonb_build_object('problem_id', $1::text))`,
		problemID.String(), at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contests []*model.Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, err
		}
		contests = append(contests, c)
	}
	return contests, rows.Err()
}

// ListDue returns contests whose stored status lags behind the clock.
func (r *ContestRepository) ListDue(ctx context.Context, now time.Time) ([]*model.Contest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+contestColumns+`
		 FROM contests
		 WHERE (status = 'upcoming' AND start_time <= $1)
		    OR (status = 'active' AND end_time < $1)
		 ORDER BY start_time`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contests []*model.Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, err
		}
		contests = append(contests, c)
	}
	return contests, rows.Err()
}

// UpdateStatus moves a contest from one status to another. It reports false
// when another instance already moved it.
func (r *ContestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.ContestStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE contests SET status = $1 WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
