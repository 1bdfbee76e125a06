package model

import (
	"github.com/google/uuid"
)

// UserStanding is the points view of a user kept by the judge.
type UserStanding struct {
	Rank           int       `json:"rank"`
	UserID         uuid.UUID `json:"user_id"`
	Username       string    `json:"username"`
	DisplayName    string    `json:"display_name"`
	TotalPoints    int       `json:"total_points"`
	SolvedProblems int       `json:"solved_problems"`
}
