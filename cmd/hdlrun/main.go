// Command hdlrun drives the judge toolchain from a terminal: run a design
// against a testbench, decode a VCD file, or check a scenario file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/veriloglab/judge-backend/internal/behave"
	"github.com/veriloglab/judge-backend/internal/config"
	"github.com/veriloglab/judge-backend/internal/logger"
	"github.com/veriloglab/judge-backend/internal/model"
	"github.com/veriloglab/judge-backend/internal/sandbox"
	"github.com/veriloglab/judge-backend/internal/verdict"
	"github.com/veriloglab/judge-backend/internal/waveform"
)

var (
	green = color.New(color.FgGreen, color.Bold).SprintFunc()
	red   = color.New(color.FgRed, color.Bold).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "hdlrun",
		Usage: "compile and simulate Verilog the way the judge does",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "zerolog level"},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "judge one design against a testbench",
				ArgsUsage: "<design.v>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tb", Required: true, Usage: "testbench file"},
					&cli.StringFlag{Name: "trace", Usage: "write the VCD dump to this file"},
				},
				Action: runAction,
			},
			{
				Name:      "decode",
				Usage:     "decode a VCD file into JSON",
				ArgsUsage: "<trace.vcd>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "signal", Usage: "print only this signal"},
				},
				Action: decodeAction,
			},
			{
				Name:      "check",
				Usage:     "check a TOML scenario file against the toolchain",
				ArgsUsage: "<scenarios.toml>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "parallel", Value: 2, Usage: "scenarios run at once"},
				},
				Action: checkAction,
			},
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, red("error:"), err)
		os.Exit(1)
	}
}

func newLogger(cmd *cli.Command) zerolog.Logger {
	return logger.SetupWriter(os.Stderr, cmd.String("log-level"), "pretty")
}

// newJudge builds a runner from the same environment the server reads.
func newJudge(cfg *config.Config, workers int, log zerolog.Logger) (*sandbox.Runner, error) {
	flags, err := sandbox.SplitFlags(cfg.IverilogFlags)
	if err != nil {
		return nil, fmt.Errorf("IVERILOG_FLAGS: %w", err)
	}
	return sandbox.NewRunner(sandbox.Options{
		Toolchain:       sandbox.Toolchain{CompilerPath: cfg.IverilogPath, SimulatorPath: cfg.VVPPath},
		CompilerFlags:   flags,
		ScratchDir:      cfg.ScratchDir,
		Workers:         workers,
		QueueTimeout:    cfg.JudgeQueueTimeout,
		CompileTimeout:  cfg.CompileTimeout,
		SimulateTimeout: cfg.SimulateTimeout,
		MaxOutputBytes:  cfg.MaxOutputBytes,
		MaxTraceBytes:   cfg.MaxTraceBytes,
		FailureMarker:   cfg.FailureMarker,
	}, nil, log)
}

func argFile(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("expected exactly one file argument, see --help")
	}
	return cmd.Args().First(), nil
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	path, err := argFile(cmd)
	if err != nil {
		return err
	}
	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tb, err := os.ReadFile(cmd.String("tb"))
	if err != nil {
		return err
	}

	cfg := config.Load()
	judge, err := newJudge(cfg, 1, newLogger(cmd))
	if err != nil {
		return err
	}

	tracePath := cmd.String("trace")
	res := judge.Run(ctx, sandbox.Request{Source: string(source), Testbench: string(tb), WantTrace: tracePath != ""})
	v := verdict.New(cfg.FailureMarker).ClassifyResult(res)

	fmt.Print(res.Output)
	if tracePath != "" && len(res.Trace) > 0 {
		if err := os.WriteFile(tracePath, res.Trace, 0o644); err != nil {
			return err
		}
	}

	label := green(string(v))
	if v != model.VerdictAccepted {
		label = red(string(v))
	}
	detail := res.Duration.Round(time.Millisecond).String()
	if res.Kind != sandbox.KindNone {
		detail += ", " + string(res.Kind)
	}
	fmt.Printf("%s %s\n", label, faint("("+detail+")"))

	if v != model.VerdictAccepted {
		return cli.Exit("", 2)
	}
	return nil
}

func decodeAction(_ context.Context, cmd *cli.Command) error {
	path, err := argFile(cmd)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	trace := waveform.Decode(string(data))
	var out any = trace
	if name := cmd.String("signal"); name != "" {
		sig, ok := trace.Signal(name)
		if !ok {
			return fmt.Errorf("signal %q not in trace", name)
		}
		out = sig
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func checkAction(ctx context.Context, cmd *cli.Command) error {
	path, err := argFile(cmd)
	if err != nil {
		return err
	}
	cases, err := behave.Load(path)
	if err != nil {
		return err
	}

	cfg := config.Load()
	parallel := cmd.Int("parallel")
	judge, err := newJudge(cfg, parallel, newLogger(cmd))
	if err != nil {
		return err
	}

	outcomes, err := behave.Check(ctx, judge, verdict.New(cfg.FailureMarker), cases, parallel)
	if err != nil {
		return err
	}

	failed := 0
	for _, o := range outcomes {
		if o.Passed() {
			fmt.Printf("%s %s %s\n", green("PASS"), o.Case.Name, faint(o.Result.Duration.Round(time.Millisecond).String()))
			continue
		}
		failed++
		fmt.Printf("%s %s\n", red("FAIL"), o.Case.Name)
		for _, f := range o.Failures {
			fmt.Printf("     %s\n", f)
		}
	}

	fmt.Printf("\n%d passed, %d failed\n", len(outcomes)-failed, failed)
	if failed > 0 {
		return errors.New("scenario check failed")
	}
	return nil
}
