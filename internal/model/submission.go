package model

import (
	"time"

	"github.com/google/uuid"
)

// Verdict is the judged outcome of a submission or a contest cell.
type Verdict string

const (
	VerdictPending  Verdict = "pending"
	VerdictAccepted Verdict = "accepted"
	VerdictRejected Verdict = "rejected"
)

// Final reports whether v is a judged outcome.
func (v Verdict) Final() bool {
	return v == VerdictAccepted || v == VerdictRejected
}

// Submission represents one learner attempt at a problem.
type Submission struct {
	ID           uuid.UUID  `json:"id"`
	AuthorID     uuid.UUID  `json:"author_id"`
	ProblemID    uuid.UUID  `json:"problem_id"`
	SourceCode   string     `json:"source_code"`
	Verdict      Verdict    `json:"verdict"`
	PointsEarned int        `json:"points_earned"`
	RawOutput    string     `json:"raw_output"`
	ReviewerID   *uuid.UUID `json:"reviewer_id,omitempty"`
	ReviewNotes  *string    `json:"review_notes,omitempty"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
	JudgedAt     *time.Time `json:"judged_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// SubmitRequest is the payload for judging a solution.
type SubmitRequest struct {
	ProblemID  uuid.UUID `json:"problem_id" binding:"required"`
	SourceCode string    `json:"source_code" binding:"required,notblank,max=65536"`
}

// SubmitResponse is returned once a submission has been judged.
type SubmitResponse struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	Verdict      Verdict   `json:"verdict"`
	RawOutput    string    `json:"raw_output"`
	PointsEarned int       `json:"points_earned"`
}

// ReviewRequest is the payload for a manual verdict override.
type ReviewRequest struct {
	Verdict Verdict `json:"verdict" binding:"required,oneof=accepted rejected"`
	Notes   string  `json:"notes" binding:"omitempty,max=2000"`
}
