package model

import (
	"github.com/google/uuid"
)

// Problem is a judged exercise. The testbench never leaves the server.
type Problem struct {
	ID            uuid.UUID `json:"id"`
	Title         string    `json:"title"`
	Testbench     string    `json:"-"`
	Points        int       `json:"points"`
	TotalAttempts int       `json:"total_attempts"`
	TotalSolved   int       `json:"total_solved"`
}

// Stage is a learning stage that ships its own testbench for interactive runs.
type Stage struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Testbench string    `json:"-"`
}

// SimulateRequest runs source against an inline testbench or a stored one.
// Exactly one of Testbench, StageID or ProblemID is expected.
type SimulateRequest struct {
	SourceCode string     `json:"source_code" binding:"required,notblank,max=65536"`
	Testbench  string     `json:"testbench" binding:"omitempty,max=65536"`
	StageID    *uuid.UUID `json:"stage_id" binding:"omitempty"`
	ProblemID  *uuid.UUID `json:"problem_id" binding:"omitempty"`
}

// SimulationStatus is the coarse outcome of an interactive run.
type SimulationStatus string

const (
	SimulationSuccess SimulationStatus = "success"
	SimulationError   SimulationStatus = "error"
)
