package model

import (
	"time"

	"github.com/google/uuid"
)

// ScoringJob is a verdict whose contest scoring failed after the submission
// was persisted. The reconcile worker re-applies it. ContestIDs names the
// contests that failed; when empty the verdict is recorded from scratch.
type ScoringJob struct {
	SubmissionID uuid.UUID   `json:"submission_id"`
	UserID       uuid.UUID   `json:"user_id"`
	ProblemID    uuid.UUID   `json:"problem_id"`
	Verdict      Verdict     `json:"verdict"`
	ContestIDs   []uuid.UUID `json:"contest_ids,omitempty"`
	At           time.Time   `json:"at"`
	Attempts     int         `json:"attempts"`
	LastError    string      `json:"last_error,omitempty"`
}
