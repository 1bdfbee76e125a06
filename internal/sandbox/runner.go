// Package sandbox compiles and simulates untrusted Verilog against a trusted
// testbench in a throwaway scratch directory.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/veriloglab/judge-backend/internal/metrics"
)

// Kind classifies a failed run. The zero value means success.
type Kind string

const (
	KindNone         Kind = ""
	KindCompileError Kind = "compile_error"
	KindRuntimeError Kind = "runtime_error"
	KindSystemError  Kind = "system_error"
	KindTimeoutError Kind = "timeout_error"
)

// DefaultFailureMarker is the substring testbenches print to signal a
// failed check.
const DefaultFailureMarker = "FAIL"

const (
	dutFile   = "dut.v"
	tbFile    = "tb.v"
	imageFile = "out.vvp"
	traceFile = "wave.vcd"
)

// ToolchainLocator resolves the compiler and simulator executables.
type ToolchainLocator interface {
	Compiler() string
	Simulator() string
}

// Toolchain is a fixed pair of executables.
type Toolchain struct {
	CompilerPath  string
	SimulatorPath string
}

func (t Toolchain) Compiler() string  { return t.CompilerPath }
func (t Toolchain) Simulator() string { return t.SimulatorPath }

// SplitFlags splits extra compiler flags using shell quoting rules.
func SplitFlags(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	return shlex.Split(s)
}

// Options configures a Runner.
type Options struct {
	Toolchain     ToolchainLocator
	CompilerFlags []string
	// ScratchDir is the parent of every per-run directory.
	ScratchDir      string
	Workers         int
	QueueTimeout    time.Duration
	CompileTimeout  time.Duration
	SimulateTimeout time.Duration
	MaxOutputBytes  int
	MaxTraceBytes   int64
	// FailureMarker is watched for in the simulator's full output, including
	// the part past MaxOutputBytes. Empty means DefaultFailureMarker.
	FailureMarker string
}

// Request is one compile-and-simulate job.
type Request struct {
	Source    string
	Testbench string
	// WantTrace asks for the VCD dump to be collected, injecting a dump
	// directive when the testbench does not produce one.
	WantTrace bool
}

// Result is the outcome of a run. Output is safe to show to the submitter.
type Result struct {
	OK       bool
	Output   string
	Trace    []byte
	Kind     Kind
	Duration time.Duration
	// MarkerSeen is set when the failure marker appeared anywhere in the
	// simulator's stdout or stderr, even where Output was truncated.
	MarkerSeen bool
	// Busy is set when the run was refused at admission.
	Busy bool
}

// Runner executes jobs with bounded concurrency.
type Runner struct {
	opts    Options
	sem     *semaphore.Weighted
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewRunner creates the scratch root and returns a ready Runner.
func NewRunner(opts Options, m *metrics.Metrics, log zerolog.Logger) (*Runner, error) {
	if opts.Toolchain == nil {
		return nil, errors.New("sandbox: toolchain locator is required")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = 64 * 1024
	}
	if opts.FailureMarker == "" {
		opts.FailureMarker = DefaultFailureMarker
	}
	if err := os.MkdirAll(opts.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("sandbox: create scratch root: %w", err)
	}
	return &Runner{
		opts:    opts,
		sem:     semaphore.NewWeighted(int64(opts.Workers)),
		metrics: m,
		log:     log.With().Str("component", "sandbox").Logger(),
	}, nil
}

// Run compiles req.Source with req.Testbench and simulates the result.
// Every failure is reported through the Result; Run never returns an error.
func (r *Runner) Run(ctx context.Context, req Request) *Result {
	start := time.Now()
	res := r.run(ctx, req)
	res.Duration = time.Since(start)
	r.metrics.IncRun(string(res.Kind))
	return res
}

func (r *Runner) run(ctx context.Context, req Request) *Result {
	if err := r.admit(ctx); err != nil {
		r.log.Warn().Err(err).Msg("Admission rejected")
		res := systemError("judge queue is full")
		res.Busy = true
		return res
	}
	defer r.sem.Release(1)

	r.metrics.AddInFlight(1)
	defer r.metrics.AddInFlight(-1)

	dir, err := r.newScratchDir()
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to create scratch directory")
		return systemError("could not prepare workspace")
	}

	defer r.cleanup(dir)

	plan := planTrace(req.Testbench, dir, req.WantTrace)

	if err := os.WriteFile(filepath.Join(dir, dutFile), []byte(req.Source), 0o600); err != nil {
		r.log.Error().Err(err).Str("dir", dir).Msg("Failed to write source")
		return systemError("could not prepare workspace")
	}
	if err := os.WriteFile(filepath.Join(dir, tbFile), []byte(plan.Testbench), 0o600); err != nil {
		r.log.Error().Err(err).Str("dir", dir).Msg("Failed to write testbench")
		return systemError("could not prepare workspace")
	}

	args := append([]string{}, r.opts.CompilerFlags...)
	args = append(args, "-o", imageFile, tbFile, dutFile)
	compiled := r.exec(ctx, "compile", r.opts.CompileTimeout, dir, r.opts.Toolchain.Compiler(), args...)
	switch {
	case compiled.timedOut:
		return timeoutError("compile", r.opts.CompileTimeout)
	case compiled.err != nil:
		detail := compiled.stderr
		if detail == "" {
			detail = compiled.stdout
		}
		if detail == "" {
			detail = compiled.err.Error()
		}
		return &Result{Kind: KindCompileError, Output: "Compilation Error:\n" + detail}
	}

	simulated := r.exec(ctx, "simulate", r.opts.SimulateTimeout, dir, r.opts.Toolchain.Simulator(), imageFile)
	switch {
	case simulated.timedOut:
		return timeoutError("simulate", r.opts.SimulateTimeout)
	case simulated.err != nil:
		var exitErr *exec.ExitError
		if !errors.As(simulated.err, &exitErr) {
			r.log.Error().Err(simulated.err).Str("simulator", r.opts.Toolchain.Simulator()).Msg("Failed to launch simulator")
			return systemError("simulator unavailable")
		}
		detail := simulated.stderr
		if detail == "" {
			detail = exitErr.Error()
		}
		return &Result{Kind: KindRuntimeError, Output: "Runtime Error:\n" + detail}
	}

	res := &Result{OK: true, Output: simulated.stdout, MarkerSeen: simulated.markerSeen}
	if simulated.stderr != "" {
		res.Output += "\nStderr:\n" + simulated.stderr
	}

	if req.WantTrace {
		trace, err := r.readTrace(dir, plan.Expected)
		if err != nil {
			r.log.Error().Err(err).Str("dir", dir).Msg("Failed to collect trace")
			return systemError(err.Error())
		}
		res.Trace = trace
	}
	return res
}

func (r *Runner) admit(ctx context.Context) error {
	waitStart := time.Now()
	defer func() { r.metrics.ObserveQueueWait(time.Since(waitStart)) }()

	if r.opts.QueueTimeout <= 0 {
		return r.sem.Acquire(ctx, 1)
	}
	qctx, cancel := context.WithTimeout(ctx, r.opts.QueueTimeout)
	defer cancel()
	return r.sem.Acquire(qctx, 1)
}

func (r *Runner) newScratchDir() (string, error) {
	name := fmt.Sprintf("run_%d_%s", time.Now().UnixNano(), uuid.NewString()[:8])
	dir := filepath.Join(r.opts.ScratchDir, name)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

type stageOutput struct {
	stdout     string
	stderr     string
	err        error
	timedOut   bool
	markerSeen bool
}

func (r *Runner) exec(ctx context.Context, stage string, limit time.Duration, dir, name string, args ...string) stageOutput {
	sctx := ctx
	if limit > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	stdout := newLimitedBuffer(r.opts.MaxOutputBytes, r.opts.FailureMarker)
	stderr := newLimitedBuffer(r.opts.MaxOutputBytes, r.opts.FailureMarker)

	cmd := exec.CommandContext(sctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second
	configureProcess(cmd)

	start := time.Now()
	err := cmd.Run()
	r.metrics.ObserveStage(stage, time.Since(start))

	out := stageOutput{
		stdout:     stdout.String(),
		stderr:     stderr.String(),
		err:        err,
		markerSeen: stdout.MarkerSeen() || stderr.MarkerSeen(),
	}
	if err != nil && errors.Is(sctx.Err(), context.DeadlineExceeded) {
		out.timedOut = true
	}
	return out
}

// readTrace loads the dump at expected, falling back to the runner's own
// trace file. Only regular files inside dir are read.
func (r *Runner) readTrace(dir, expected string) ([]byte, error) {
	own := filepath.Join(dir, traceFile)
	for _, path := range []string{expected, own} {
		if !within(dir, path) {
			r.log.Warn().Str("path", path).Msg("Ignoring trace outside the run directory")
			continue
		}
		info, err := os.Lstat(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat trace: %w", err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if r.opts.MaxTraceBytes > 0 && info.Size() > r.opts.MaxTraceBytes {
			return nil, fmt.Errorf("trace exceeds %d bytes", r.opts.MaxTraceBytes)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read trace: %w", err)
		}
		return data, nil
	}
	return nil, nil
}

func (r *Runner) cleanup(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		r.log.Warn().Err(err).Str("path", dir).Msg("Failed to remove run directory")
	}
}

func systemError(msg string) *Result {
	return &Result{Kind: KindSystemError, Output: "System Error:\n" + msg}
}

func timeoutError(stage string, limit time.Duration) *Result {
	return &Result{Kind: KindTimeoutError, Output: fmt.Sprintf("Timeout Error:\n%s exceeded %s", stage, limit)}
}
