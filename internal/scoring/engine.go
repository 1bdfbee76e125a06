// Package scoring applies judged verdicts to contest participants.
//
// Each (contest, user, problem) cell moves unattempted → {accepted, rejected},
// may be re-attempted after a rejection and never leaves accepted. Updates to
// one participant are serialized by the ParticipantStore.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/veriloglab/judge-backend/internal/metrics"
	"github.com/veriloglab/judge-backend/internal/model"
)

var (
	ErrContestNotLive      = errors.New("contest is not live")
	ErrProblemNotInContest = errors.New("problem is not part of the contest")
	ErrNotRegistered       = errors.New("user is not registered for the contest")
	ErrAlreadyRegistered   = errors.New("user is already registered for the contest")
	ErrInvalidVerdict      = errors.New("verdict cannot be scored")
	ErrConflict            = errors.New("participant update conflict")
)

// MutateFunc edits a private copy of a participant and reports whether it changed.
type MutateFunc func(p *model.ContestParticipant) (bool, error)

// ParticipantStore performs the atomic read-modify-write of one participant.
// Implementations return ErrNotRegistered when no record exists and
// ErrConflict when the write could not be applied after retrying.
type ParticipantStore interface {
	Mutate(ctx context.Context, contestID, userID uuid.UUID, fn MutateFunc) (*model.ContestParticipant, bool, error)
}

// ContestFinder lists contests containing a problem that are live at a time.
type ContestFinder interface {
	FindLiveByProblem(ctx context.Context, problemID uuid.UUID, at time.Time) ([]*model.Contest, error)
}

// Publisher receives every scoring change.
type Publisher interface {
	Publish(ctx context.Context, contestID uuid.UUID, update *model.ParticipantUpdate) error
}

// Engine is the contest scoring state machine.
type Engine struct {
	store      ParticipantStore
	contests   ContestFinder
	publishers []Publisher
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewEngine creates an Engine. Publishers are called in order after every change.
func NewEngine(store ParticipantStore, contests ContestFinder, m *metrics.Metrics, log zerolog.Logger, publishers ...Publisher) *Engine {
	return &Engine{
		store:      store,
		contests:   contests,
		publishers: publishers,
		metrics:    m,
		log:        log.With().Str("component", "scoring_engine").Logger(),
	}
}

// ApplyVerdict scores one verdict for a user in a contest. The bool result is
// false when the call was a no-op because the cell was already accepted.
func (e *Engine) ApplyVerdict(ctx context.Context, contest *model.Contest, userID, problemID uuid.UUID, verdict model.Verdict, now time.Time) (*model.ContestParticipant, bool, error) {
	if !contest.IsLive(now) {
		return nil, false, ErrContestNotLive
	}
	return e.apply(ctx, contest, userID, problemID, verdict, now)
}

// Replay re-applies a verdict that was judged while the contest was live but
// could not be stored at the time. Only the contest window is checked, since
// the contest may have ended since.
func (e *Engine) Replay(ctx context.Context, contest *model.Contest, userID, problemID uuid.UUID, verdict model.Verdict, at time.Time) (*model.ContestParticipant, bool, error) {
	if at.Before(contest.StartTime) || at.After(contest.EndTime) {
		return nil, false, ErrContestNotLive
	}
	return e.apply(ctx, contest, userID, problemID, verdict, at)
}

func (e *Engine) apply(ctx context.Context, contest *model.Contest, userID, problemID uuid.UUID, verdict model.Verdict, now time.Time) (*model.ContestParticipant, bool, error) {
	if !verdict.Final() {
		return nil, false, ErrInvalidVerdict
	}
	points, ok := contest.PointsFor(problemID)
	if !ok {
		return nil, false, ErrProblemNotInContest
	}

	p, changed, err := e.store.Mutate(ctx, contest.ID, userID, func(p *model.ContestParticipant) (bool, error) {
		return applyCell(p, problemID, verdict, points, now), nil
	})
	if err != nil {
		e.metrics.IncScoring("error")
		return nil, false, err
	}
	if !changed {
		e.metrics.IncScoring("noop")
		return p, false, nil
	}

	e.metrics.IncScoring("applied")
	e.log.Debug().
		Str("contest_id", contest.ID.String()).
		Str("user_id", userID.String()).
		Str("problem_id", problemID.String()).
		Str("verdict", string(verdict)).
		Int("score", p.Score).
		Msg("Participant updated")

	e.publish(ctx, p)
	return p, true, nil
}

// RecordError lists the contests a verdict could not be applied to.
type RecordError struct {
	Failed []uuid.UUID
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("scoring failed for %d contest(s): %v", len(e.Failed), e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Record applies a verdict to every live contest that contains the problem
// and that the user is registered for. It returns the changed participants.
// When some contests fail the error is a *RecordError naming them; the
// others have been applied.
func (e *Engine) Record(ctx context.Context, userID, problemID uuid.UUID, verdict model.Verdict, at time.Time) ([]*model.ContestParticipant, error) {
	contests, err := e.contests.FindLiveByProblem(ctx, problemID, at)
	if err != nil {
		return nil, fmt.Errorf("find live contests: %w", err)
	}

	var (
		updated []*model.ContestParticipant
		failed  []uuid.UUID
		errs    []error
	)
	for _, c := range contests {
		p, changed, err := e.ApplyVerdict(ctx, c, userID, problemID, verdict, at)
		switch {
		case errors.Is(err, ErrNotRegistered), errors.Is(err, ErrContestNotLive):
			continue
		case err != nil:
			failed = append(failed, c.ID)
			errs = append(errs, fmt.Errorf("contest %s: %w", c.ID, err))
		case changed:
			updated = append(updated, p)
		}
	}
	if len(failed) > 0 {
		return updated, &RecordError{Failed: failed, Err: errors.Join(errs...)}
	}
	return updated, nil
}

func (e *Engine) publish(ctx context.Context, p *model.ContestParticipant) {
	update := &model.ParticipantUpdate{
		ContestID:   p.ContestID,
		UserID:      p.UserID,
		Score:       p.Score,
		Participant: p,
	}
	for _, pub := range e.publishers {
		if err := pub.Publish(ctx, p.ContestID, update); err != nil {
			e.log.Warn().Err(err).
				Str("contest_id", p.ContestID.String()).
				Str("user_id", p.UserID.String()).
				Msg("Failed to publish participant update")
		}
	}
}

// applyCell moves one cell and reports whether anything changed.
func applyCell(p *model.ContestParticipant, problemID uuid.UUID, verdict model.Verdict, points int, now time.Time) bool {
	if p.Problems == nil {
		p.Problems = make(model.Cells)
	}
	cell := p.Problems[problemID]
	if cell.Verdict == model.VerdictAccepted {
		return false
	}

	cell.Attempts++
	cell.Verdict = verdict
	if verdict == model.VerdictAccepted {
		solved := now
		cell.SolvedAt = &solved
		p.Score += points
		finish := now
		p.FinishTime = &finish
	}
	p.Problems[problemID] = cell
	return true
}
