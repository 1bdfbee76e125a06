package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/veriloglab/judge-backend/internal/model"
	"github.com/veriloglab/judge-backend/internal/sandbox"
	"github.com/veriloglab/judge-backend/internal/waveform"
)

// SimulationResult is the outcome of an interactive run.
type SimulationResult struct {
	Status     model.SimulationStatus `json:"status"`
	Output     string                 `json:"output"`
	Kind       sandbox.Kind           `json:"kind,omitempty"`
	Trace      string                 `json:"trace,omitempty"`
	Waveform   *waveform.Trace        `json:"waveform,omitempty"`
	DurationMs int64                  `json:"duration_ms"`
}

// SimulationService runs source interactively. Nothing is persisted.
type SimulationService struct {
	judge    Judge
	problems ProblemStore
	stages   StageStore
	log      zerolog.Logger
}

// NewSimulationService creates a new SimulationService.
func NewSimulationService(judge Judge, problems ProblemStore, stages StageStore, log zerolog.Logger) *SimulationService {
	return &SimulationService{
		judge:    judge,
		problems: problems,
		stages:   stages,
		log:      log.With().Str("component", "simulation_service").Logger(),
	}
}

// Simulate compiles and runs the source with a trace and decodes the dump.
func (s *SimulationService) Simulate(ctx context.Context, req model.SimulateRequest) (*SimulationResult, error) {
	tb, err := s.resolveTestbench(ctx, req)
	if err != nil {
		return nil, err
	}

	res := s.judge.Run(ctx, sandbox.Request{Source: req.SourceCode, Testbench: tb, WantTrace: true})
	if res.Busy {
		return nil, ErrJudgeBusy
	}
	if res.Kind == sandbox.KindSystemError {
		s.log.Error().Str("output", res.Output).Msg("Sandbox system error")
	}

	out := &SimulationResult{
		Status:     model.SimulationError,
		Output:     res.Output,
		Kind:       res.Kind,
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.OK {
		out.Status = model.SimulationSuccess
	}
	if len(res.Trace) > 0 {
		out.Trace = string(res.Trace)
		out.Waveform = waveform.Decode(out.Trace)
	}
	return out, nil
}

// resolveTestbench prefers an inline testbench, then the stage's, then the problem's.
func (s *SimulationService) resolveTestbench(ctx context.Context, req model.SimulateRequest) (string, error) {
	var tb string
	switch {
	case strings.TrimSpace(req.Testbench) != "":
		tb = req.Testbench
	case req.StageID != nil:
		stage, err := s.stages.GetByID(ctx, *req.StageID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return "", ErrStageNotFound
			}
			return "", fmt.Errorf("load stage: %w", err)
		}
		tb = stage.Testbench
	case req.ProblemID != nil:
		problem, err := s.problems.GetByID(ctx, *req.ProblemID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return "", ErrProblemNotFound
			}
			return "", fmt.Errorf("load problem: %w", err)
		}
		tb = problem.Testbench
	}
	if strings.TrimSpace(tb) == "" {
		return "", ErrMissingTestbench
	}
	return tb, nil
}
