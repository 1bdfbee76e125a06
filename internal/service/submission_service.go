package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/veriloglab/judge-backend/internal/events"
	"github.com/veriloglab/judge-backend/internal/metrics"
	"github.com/veriloglab/judge-backend/internal/model"
	"github.com/veriloglab/judge-backend/internal/sandbox"
	"github.com/veriloglab/judge-backend/internal/scoring"
	"github.com/veriloglab/judge-backend/internal/verdict"
)

// SubmissionService judges submissions and keeps every score derived from
// them up to date.
type SubmissionService struct {
	judge       Judge
	classifier  *verdict.Classifier
	problems    ProblemStore
	submissions SubmissionStore
	users       UserPointsStore
	scores      ScoreRecorder
	reconcile   ReconcileQueue
	publisher   JudgedPublisher
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// SubmissionDeps groups the collaborators of SubmissionService. Publisher is optional.
type SubmissionDeps struct {
	Judge       Judge
	Classifier  *verdict.Classifier
	Problems    ProblemStore
	Submissions SubmissionStore
	Users       UserPointsStore
	Scores      ScoreRecorder
	Reconcile   ReconcileQueue
	Publisher   JudgedPublisher
	Metrics     *metrics.Metrics
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(deps SubmissionDeps, log zerolog.Logger) *SubmissionService {
	return &SubmissionService{
		judge:       deps.Judge,
		classifier:  deps.Classifier,
		problems:    deps.Problems,
		submissions: deps.Submissions,
		users:       deps.Users,
		scores:      deps.Scores,
		reconcile:   deps.Reconcile,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		log:         log.With().Str("component", "submission_service").Logger(),
	}
}

// Submit judges source against the problem's hidden testbench.
//
// The submission row is written as pending before the sandbox runs and
// finalized exactly once afterwards. Judging runs detached from ctx so a
// client disconnect cannot strand a pending row. Contest scoring follows the
// finalize step; when it fails the verdict is queued for reconciliation.
func (s *SubmissionService) Submit(ctx context.Context, userID uuid.UUID, username string, req model.SubmitRequest) (*model.SubmitResponse, error) {
	problem, err := s.problems.GetByID(ctx, req.ProblemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProblemNotFound
		}
		return nil, fmt.Errorf("load problem: %w", err)
	}
	if strings.TrimSpace(problem.Testbench) == "" {
		return nil, ErrMissingTestbench
	}

	if err := s.users.Ensure(ctx, userID, username); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	sub := &model.Submission{AuthorID: userID, ProblemID: problem.ID, SourceCode: req.SourceCode}
	if err := s.submissions.CreatePending(ctx, sub); err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}

	jctx := context.WithoutCancel(ctx)
	log := s.log.With().
		Str("submission_id", sub.ID.String()).
		Str("user_id", userID.String()).
		Str("problem_id", problem.ID.String()).
		Logger()

	res := s.judge.Run(jctx, sandbox.Request{Source: req.SourceCode, Testbench: problem.Testbench})
	if res.Busy {
		// Overload is not an attempt: nothing is counted or scored.
		if err := s.submissions.DiscardPending(jctx, sub.ID); err != nil {
			log.Error().Err(err).Msg("Failed to discard pending submission")
		}
		return nil, ErrJudgeBusy
	}
	v := s.classifier.ClassifyResult(res)
	s.metrics.IncVerdict(string(v))
	if res.Kind == sandbox.KindSystemError {
		log.Error().Str("output", res.Output).Msg("Sandbox system error")
	}

	points := 0
	if v == model.VerdictAccepted {
		points = problem.Points
	}

	judgedAt := time.Now()
	finalized, err := s.submissions.Finalize(jctx, sub.ID, v, points, res.Output, judgedAt)
	if err != nil {
		return nil, fmt.Errorf("finalize submission: %w", err)
	}
	if !finalized {
		log.Warn().Msg("Submission was already finalized")
	}

	resp := &model.SubmitResponse{
		SubmissionID: sub.ID,
		Verdict:      v,
		RawOutput:    res.Output,
		PointsEarned: points,
	}
	if !finalized {
		return resp, nil
	}

	if err := s.problems.IncrementCounters(jctx, problem.ID, v == model.VerdictAccepted); err != nil {
		log.Error().Err(err).Msg("Failed to update problem counters")
	}
	if v == model.VerdictAccepted {
		if _, err := s.users.AwardOnce(jctx, userID, problem.ID, problem.Points); err != nil {
			log.Error().Err(err).Msg("Failed to award points")
		}
	}

	contestIDs := s.recordScore(jctx, log, sub, v)

	if s.publisher != nil {
		err := s.publisher.PublishJudged(jctx, events.SubmissionJudgedEvent{
			SubmissionID: sub.ID.String(),
			UserID:       userID.String(),
			ProblemID:    problem.ID.String(),
			ContestIDs:   contestIDs,
			Verdict:      string(v),
			Points:       points,
			Kind:         string(res.Kind),
			DurationMs:   res.Duration.Milliseconds(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to publish judged event")
		}
	}

	log.Info().Str("verdict", string(v)).Dur("duration", res.Duration).Msg("Submission judged")
	return resp, nil
}

// recordScore applies the verdict to live contests. Scoring is sequenced
// after the submission is persisted, so a failure here leaves a gap that is
// logged and queued instead of being returned to the submitter.
func (s *SubmissionService) recordScore(ctx context.Context, log zerolog.Logger, sub *model.Submission, v model.Verdict) []string {
	updated, err := s.scores.Record(ctx, sub.AuthorID, sub.ProblemID, v, sub.CreatedAt)

	ids := make([]string, 0, len(updated))
	for _, p := range updated {
		ids = append(ids, p.ContestID.String())
	}
	if err == nil {
		return ids
	}

	s.metrics.IncReconcileGap()
	log.Error().Err(err).Str("verdict", string(v)).Msg("Reconciliation gap: contest scoring failed")

	job := model.ScoringJob{
		SubmissionID: sub.ID,
		UserID:       sub.AuthorID,
		ProblemID:    sub.ProblemID,
		Verdict:      v,
		At:           sub.CreatedAt,
		LastError:    err.Error(),
	}
	var recErr *scoring.RecordError
	if errors.As(err, &recErr) {
		job.ContestIDs = recErr.Failed
	}
	if qerr := s.reconcile.Enqueue(ctx, job); qerr != nil {
		log.Error().Err(qerr).Msg("Failed to enqueue scoring reconciliation")
	}
	return ids
}

// History returns a page of a user's submissions.
func (s *SubmissionService) History(ctx context.Context, userID uuid.UUID, page, perPage int) ([]model.Submission, int64, error) {
	return s.submissions.ListByAuthor(ctx, userID, page, perPage)
}

// Review overrides the verdict of a judged submission once and recomputes the
// author's totals idempotently. Contest cells are not touched.
func (s *SubmissionService) Review(ctx context.Context, reviewerID, submissionID uuid.UUID, req model.ReviewRequest) (*model.Submission, error) {
	cur, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("load submission: %w", err)
	}
	if cur.ReviewerID != nil {
		return nil, ErrAlreadyReviewed
	}
	if cur.Verdict == model.VerdictPending {
		return nil, ErrNotJudged
	}

	problem, err := s.problems.GetByID(ctx, cur.ProblemID)
	if err != nil {
		return nil, fmt.Errorf("load problem: %w", err)
	}
	points := 0
	if req.Verdict == model.VerdictAccepted {
		points = problem.Points
	}

	updated, err := s.submissions.Review(ctx, submissionID, reviewerID, req.Verdict, points, req.Notes, time.Now())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlreadyReviewed
		}
		return nil, fmt.Errorf("review submission: %w", err)
	}

	log := s.log.With().
		Str("submission_id", submissionID.String()).
		Str("reviewer_id", reviewerID.String()).
		Logger()

	switch {
	case req.Verdict == model.VerdictAccepted:
		if _, err := s.users.AwardOnce(ctx, cur.AuthorID, cur.ProblemID, problem.Points); err != nil {
			log.Error().Err(err).Msg("Failed to award points after review")
		}
	case cur.Verdict == model.VerdictAccepted:
		other, err := s.submissions.HasOtherAccepted(ctx, cur.AuthorID, cur.ProblemID, cur.ID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to check other accepted submissions")
			break
		}
		if !other {
			if _, err := s.users.RevokeOnce(ctx, cur.AuthorID, cur.ProblemID, problem.Points); err != nil {
				log.Error().Err(err).Msg("Failed to revoke points after review")
			}
		}
	}

	log.Info().Str("from", string(cur.Verdict)).Str("to", string(req.Verdict)).Msg("Submission reviewed")
	return updated, nil
}
