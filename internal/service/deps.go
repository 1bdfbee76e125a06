package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/veriloglab/judge-backend/internal/events"
	"github.com/veriloglab/judge-backend/internal/model"
	"github.com/veriloglab/judge-backend/internal/sandbox"
)

// The interfaces below are satisfied by the repository, sandbox, scoring,
// worker and events packages.

type Judge interface {
	Run(ctx context.Context, req sandbox.Request) *sandbox.Result
}

type ProblemStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Problem, error)
	IncrementCounters(ctx context.Context, id uuid.UUID, solved bool) error
}

type StageStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Stage, error)
}

type SubmissionStore interface {
	CreatePending(ctx context.Context, s *model.Submission) error
	Finalize(ctx context.Context, id uuid.UUID, verdict model.Verdict, points int, rawOutput string, judgedAt time.Time) (bool, error)
	DiscardPending(ctx context.Context, id uuid.UUID) error
	Review(ctx context.Context, id, reviewerID uuid.UUID, verdict model.Verdict, points int, notes string, at time.Time) (*model.Submission, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	ListByAuthor(ctx context.Context, authorID uuid.UUID, page, perPage int) ([]model.Submission, int64, error)
	HasOtherAccepted(ctx context.Context, authorID, problemID, exclude uuid.UUID) (bool, error)
}

type UserPointsStore interface {
	Ensure(ctx context.Context, id uuid.UUID, username string) error
	AwardOnce(ctx context.Context, userID, problemID uuid.UUID, points int) (bool, error)
	RevokeOnce(ctx context.Context, userID, problemID uuid.UUID, points int) (bool, error)
	Top(ctx context.Context, limit int) ([]model.UserStanding, error)
}

type ScoreRecorder interface {
	Record(ctx context.Context, userID, problemID uuid.UUID, verdict model.Verdict, at time.Time) ([]*model.ContestParticipant, error)
}

type ReconcileQueue interface {
	Enqueue(ctx context.Context, job model.ScoringJob) error
}

type JudgedPublisher interface {
	PublishJudged(ctx context.Context, ev events.SubmissionJudgedEvent) error
}

type ContestStore interface {
	Create(ctx context.Context, c *model.Contest) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Contest, error)
	List(ctx context.Context, page, perPage int) ([]model.Contest, int64, error)
}

type ParticipantStore interface {
	Register(ctx context.Context, contestID, userID uuid.UUID) (*model.ContestParticipant, error)
	Get(ctx context.Context, contestID, userID uuid.UUID) (*model.ContestParticipant, error)
	Leaderboard(ctx context.Context, contestID uuid.UUID, limit int) ([]model.LeaderboardEntry, error)
}
