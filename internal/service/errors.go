package service

import (
	"errors"

	"github.com/veriloglab/judge-backend/internal/scoring"
)

var (
	ErrMissingTestbench   = errors.New("no testbench is configured")
	ErrProblemNotFound    = errors.New("problem not found")
	ErrStageNotFound      = errors.New("stage not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrNotJudged          = errors.New("submission has not been judged yet")
	ErrAlreadyReviewed    = errors.New("submission has already been reviewed")
	ErrContestNotFound    = errors.New("contest not found")
	ErrContestEnded       = errors.New("contest has ended")
	ErrDuplicateProblem   = errors.New("problem listed more than once")
	ErrJudgeBusy          = errors.New("judge queue is full")

	ErrAlreadyRegistered = scoring.ErrAlreadyRegistered
	ErrNotRegistered     = scoring.ErrNotRegistered
)
