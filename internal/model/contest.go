package model

import (
	"time"

	"github.com/google/uuid"
)

// ContestStatus enumerates the possible states of a contest.
type ContestStatus string

const (
	ContestStatusUpcoming ContestStatus = "upcoming"
	ContestStatusActive   ContestStatus = "active"
	ContestStatusEnded    ContestStatus = "ended"
)

// ContestProblem is one entry of a contest's problem set.
type ContestProblem struct {
	ProblemID uuid.UUID `json:"problem_id" binding:"required"`
	Points    int       `json:"points" binding:"required,min=1,max=10000"`
}

// Contest represents a timed competition over a fixed problem set.
type Contest struct {
	ID          uuid.UUID        `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Problems    []ContestProblem `json:"problems"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	Status      ContestStatus    `json:"status"`
	CreatedBy   *uuid.UUID       `json:"created_by,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// IsLive reports whether verdicts at time t count towards the contest.
// Both window bounds are inclusive.
func (c *Contest) IsLive(t time.Time) bool {
	return c.Status == ContestStatusActive && !t.Before(c.StartTime) && !t.After(c.EndTime)
}

// PointsFor returns the point value of a problem in this contest.
func (c *Contest) PointsFor(problemID uuid.UUID) (int, bool) {
	for _, p := range c.Problems {
		if p.ProblemID == problemID {
			return p.Points, true
		}
	}
	return 0, false
}

// StatusAt derives the clock status of the contest at time t.
func (c *Contest) StatusAt(t time.Time) ContestStatus {
	switch {
	case t.Before(c.StartTime):
		return ContestStatusUpcoming
	case t.After(c.EndTime):
		return ContestStatusEnded
	default:
		return ContestStatusActive
	}
}

// CreateContestRequest is the payload for creating a contest.
type CreateContestRequest struct {
	Title       string           `json:"title" binding:"required,notblank,min=3,max=255"`
	Description string           `json:"description" binding:"omitempty,max=5000"`
	Problems    []ContestProblem `json:"problems" binding:"required,min=1,dive"`
	StartTime   time.Time        `json:"start_time" binding:"required"`
	EndTime     time.Time        `json:"end_time" binding:"required,gtfield=StartTime"`
}
