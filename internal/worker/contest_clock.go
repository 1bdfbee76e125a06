package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/veriloglab/judge-backend/internal/broadcast"
	"github.com/veriloglab/judge-backend/internal/model"
)

// ContestStatusStore is the contest repository surface the clock needs.
type ContestStatusStore interface {
	ListDue(ctx context.Context, now time.Time) ([]*model.Contest, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.ContestStatus) (bool, error)
}

// EventBroadcaster pushes a contest event to live subscribers.
type EventBroadcaster interface {
	PublishEvent(ctx context.Context, contestID uuid.UUID, event string, data any) error
}

// StatusAnnouncer records status transitions on the event stream.
type StatusAnnouncer interface {
	PublishContestStatus(ctx context.Context, contest *model.Contest, status model.ContestStatus) error
}

type contestStatusPayload struct {
	Title     string              `json:"title"`
	Status    model.ContestStatus `json:"status"`
	StartTime time.Time           `json:"start_time"`
	EndTime   time.Time           `json:"end_time"`
}

// ContestClock moves stored contest statuses along with the wall clock and
// announces each transition. Transitions are compare-and-set, so several
// instances can run the clock at once and only one announces.
type ContestClock struct {
	contests  ContestStatusStore
	broadcast EventBroadcaster
	announcer StatusAnnouncer
	interval  time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewContestClock creates a new ContestClock. announcer may be nil.
func NewContestClock(contests ContestStatusStore, b EventBroadcaster, announcer StatusAnnouncer, interval time.Duration, log zerolog.Logger) *ContestClock {
	return &ContestClock{
		contests:  contests,
		broadcast: b,
		announcer: announcer,
		interval:  interval,
		now:       time.Now,
		log:       log.With().Str("component", "contest_clock").Logger(),
	}
}

// Start ticks until ctx is cancelled. Call in a goroutine.
func (c *ContestClock) Start(ctx context.Context) {
	c.log.Info().Dur("interval", c.interval).Msg("Worker started")

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick applies every due transition once and returns how many it made.
func (c *ContestClock) Tick(ctx context.Context) int {
	now := c.now()
	due, err := c.contests.ListDue(ctx, now)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Error().Err(err).Msg("Failed to list due contests")
		}
		return 0
	}

	moved := 0
	for _, contest := range due {
		to := contest.StatusAt(now)
		if to == contest.Status {
			continue
		}
		ok, err := c.contests.UpdateStatus(ctx, contest.ID, contest.Status, to)
		if err != nil {
			c.log.Error().Err(err).Str("contest_id", contest.ID.String()).Msg("Failed to update contest status")
			continue
		}
		if !ok {
			continue
		}
		from := contest.Status
		contest.Status = to
		moved++

		c.log.Info().
			Str("contest_id", contest.ID.String()).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("Contest status changed")
		c.announce(ctx, contest)
	}
	return moved
}

func (c *ContestClock) announce(ctx context.Context, contest *model.Contest) {
	event := broadcast.EventContestStarted
	if contest.Status == model.ContestStatusEnded {
		event = broadcast.EventContestEnded
	}
	payload := contestStatusPayload{
		Title:     contest.Title,
		Status:    contest.Status,
		StartTime: contest.StartTime,
		EndTime:   contest.EndTime,
	}
	if err := c.broadcast.PublishEvent(ctx, contest.ID, event, payload); err != nil {
		c.log.Warn().Err(err).Str("contest_id", contest.ID.String()).Msg("Failed to broadcast contest event")
	}
	if c.announcer != nil {
		if err := c.announcer.PublishContestStatus(ctx, contest, contest.Status); err != nil {
			c.log.Warn().Err(err).Str("contest_id", contest.ID.String()).Msg("Failed to publish contest status")
		}
	}
}
