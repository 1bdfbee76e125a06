package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veriloglab/judge-backend/internal/model"
)

// UserRepository holds the judge's view of users: their points and solved set.
// Accounts themselves are owned by the auth service.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Ensure creates the points row for a user the first time they are seen.
func (r *UserRepository) Ensure(ctx context.Context, id uuid.UUID, username string) error {
	if username == "" {
		username = id.String()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, username, display_name)
		 VALUES ($1, $2, $2)
		 ON CONFLICT DO NOTHING`, id, username)
	return err
}

// AwardOnce adds points and records the solve, unless the problem is already
// in the user's solved set. It reports whether anything changed.
func (r *UserRepository) AwardOnce(ctx context.Context, userID, problemID uuid.UUID, points int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET total_points = total_points + $3,
		     solved_problems = array_append(solved_problems, $2)
		 WHERE id = $1 AND NOT ($2 = ANY (solved_problems))`,
		userID, problemID, points)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RevokeOnce undoes AwardOnce. It is a no-op when the problem is not in the
// solved set.
func (r *UserRepository) RevokeOnce(ctx context.Context, userID, problemID uuid.UUID, points int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET total_points = GREATEST(total_points - $3, 0),
		     solved_problems = array_remove(solved_problems, $2)
		 WHERE id = $1 AND $2 = ANY (solved_problems)`,
		userID, problemID, points)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Top returns the global leaderboard.
func (r *UserRepository) Top(ctx context.Context, limit int) ([]model.UserStanding, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, username, display_name, total_points, cardinality(solved_problems)
		 FROM users
		 ORDER BY total_points DESC, username ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	standings := []model.UserStanding{}
	for rows.Next() {
		var u model.UserStanding
		if err := rows.Scan(&u.UserID, &u.Username, &u.DisplayName, &u.TotalPoints, &u.SolvedProblems); err != nil {
			return nil, err
		}
		u.Rank = len(standings) + 1
		standings = append(standings, u)
	}
	return standings, rows.Err()
}
