package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veriloglab/judge-backend/internal/model"
)

const submissionColumns = `id, author_id, problem_id, source_code, verdict, points_earned, raw_output,
	reviewer_id, review_notes, reviewed_at, judged_at, created_at`

// SubmissionRepository handles submission data access.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*model.Submission, error) {
	s := &model.Submission{}
	err := row.Scan(&s.ID, &s.AuthorID, &s.ProblemID, &s.SourceCode, &s.Verdict, &s.PointsEarned, &s.RawOutput,
		&s.ReviewerID, &s.ReviewNotes, &s.ReviewedAt, &s.JudgedAt, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CreatePending inserts a submission in the pending state.
func (r *SubmissionRepository) CreatePending(ctx context.Context, s *model.Submission) error {
	s.Verdict = model.VerdictPending
	return r.pool.QueryRow(ctx,
		`INSERT INTO submissions (author_id, problem_id, source_code, verdict)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		s.AuthorID, s.ProblemID, s.SourceCode, model.VerdictPending,
	).Scan(&s.ID, &s.CreatedAt)
}

// Finalize records the judged outcome. It only succeeds once per submission:
// the second call finds no pending row and reports false.
func (r *SubmissionRepository) Finalize(ctx context.Context, id uuid.UUID, verdict model.Verdict, points int, rawOutput string, judgedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE submissions
		 SET verdict = $1, points_earned = $2, raw_output = $3, judged_at = $4
		 WHERE id = $5 AND verdict = 'pending'`,
		verdict, points, rawOutput, judgedAt, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DiscardPending removes a submission that was never judged.
func (r *SubmissionRepository) DiscardPending(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM submissions WHERE id = $1 AND verdict = 'pending'`, id)
	return err
}

// Review applies a manual override. A submission can be reviewed once.
func (r *SubmissionRepository) Review(ctx context.Context, id, reviewerID uuid.UUID, verdict model.Verdict, points int, notes string, at time.Time) (*model.Submission, error) {
	return scanSubmission(r.pool.QueryRow(ctx,
		`UPDATE submissions
		 SET verdict = $1, points_earned = $2, reviewer_id = $3, review_notes = NULLIF($4, ''), reviewed_at = $5
		 WHERE id = $6 AND reviewer_id IS NULL AND verdict <> 'pending'
		 RETURNING `+submissionColumns,
		verdict, points, reviewerID, notes, at, id))
}

// GetByID retrieves a single submission.
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	return scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
}

// ListByAuthor returns a page of a user's submissions, newest first.
func (r *SubmissionRepository) ListByAuthor(ctx context.Context, authorID uuid.UUID, page, perPage int) ([]model.Submission, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE author_id = $1`, authorID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+`
		 FROM submissions
		 WHERE author_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		authorID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	subs := []model.Submission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		subs = append(subs, *s)
	}
	return subs, total, rows.Err()
}

// HasOtherAccepted reports whether the author has an accepted submission for
// the problem other than exclude.
func (r *SubmissionRepository) HasOtherAccepted(ctx context.Context, authorID, problemID, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM submissions
		   WHERE author_id = $1 AND problem_id = $2 AND verdict = 'accepted' AND id <> $3
		 )`, authorID, problemID, exclude,
	).Scan(&exists)
	return exists, err
}
