package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/veriloglab/judge-backend/internal/model"
)

// ContestService handles contest administration, registration and standings.
type ContestService struct {
	contests     ContestStore
	participants ParticipantStore
	problems     ProblemStore
	users        UserPointsStore
	now          func() time.Time
	log          zerolog.Logger
}

// NewContestService creates a new ContestService.
func NewContestService(contests ContestStore, participants ParticipantStore, problems ProblemStore, users UserPointsStore, log zerolog.Logger) *ContestService {
	return &ContestService{
		contests:     contests,
		participants: participants,
		problems:     problems,
		users:        users,
		now:          time.Now,
		log:          log.With().Str("component", "contest_service").Logger(),
	}
}

// Create validates the problem set and stores a new contest.
func (s *ContestService) Create(ctx context.Context, adminID uuid.UUID, req model.CreateContestRequest) (*model.Contest, error) {
	seen := make(map[uuid.UUID]struct{}, len(req.Problems))
	for _, p := range req.Problems {
		if _, dup := seen[p.ProblemID]; dup {
			return nil, ErrDuplicateProblem
		}
		seen[p.ProblemID] = struct{}{}

		if _, err := s.problems.GetByID(ctx, p.ProblemID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s", ErrProblemNotFound, p.ProblemID)
			}
			return nil, fmt.Errorf("load problem: %w", err)
		}
	}

	c := &model.Contest{
		Title:       req.Title,
		Description: req.Description,
		Problems:    req.Problems,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		CreatedBy:   &adminID,
	}
	c.Status = c.StatusAt(s.now())

	if err := s.contests.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create contest: %w", err)
	}
	s.log.Info().Str("contest_id", c.ID.String()).Str("status", string(c.Status)).Msg("Contest created")
	return c, nil
}

// Get returns a contest.
func (s *ContestService) Get(ctx context.Context, id uuid.UUID) (*model.Contest, error) {
	c, err := s.contests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	return c, nil
}

// List returns a page of contests.
func (s *ContestService) List(ctx context.Context, page, perPage int) ([]model.Contest, int64, error) {
	return s.contests.List(ctx, page, perPage)
}

// Register enrolls a user. Registration stays open until the contest ends.
func (s *ContestService) Register(ctx context.Context, contestID, userID uuid.UUID, username string) (*model.ContestParticipant, error) {
	c, err := s.Get(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if c.Status == model.ContestStatusEnded || c.StatusAt(s.now()) == model.ContestStatusEnded {
		return nil, ErrContestEnded
	}
	if err := s.users.Ensure(ctx, userID, username); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return s.participants.Register(ctx, contestID, userID)
}

// Participant returns a user's own record in a contest.
func (s *ContestService) Participant(ctx context.Context, contestID, userID uuid.UUID) (*model.ContestParticipant, error) {
	return s.participants.Get(ctx, contestID, userID)
}

// Leaderboard returns the contest standings.
func (s *ContestService) Leaderboard(ctx context.Context, contestID uuid.UUID, limit int) ([]model.LeaderboardEntry, error) {
	if _, err := s.Get(ctx, contestID); err != nil {
		return nil, err
	}
	return s.participants.Leaderboard(ctx, contestID, limit)
}

// GlobalLeaderboard ranks users by total points.
func (s *ContestService) GlobalLeaderboard(ctx context.Context, limit int) ([]model.UserStanding, error) {
	return s.users.Top(ctx, limit)
}
