// Package behave loads TOML smoke scenarios and checks them against a judge.
//
// A scenario file looks like:
//
//	[[modules]]
//	id = "adder_tb"
//	source = "module tb; ... endmodule"
//
//	[[scenarios]]
//	description = "half adder passes"
//	source = "module dut(...); ... endmodule"
//	testbench_id = "adder_tb"
//
//	[scenarios.expect]
//	verdict = "accepted"
//	signals = ["sum"]
package behave

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/sync/errgroup"

	"github.com/veriloglab/judge-backend/internal/model"
	"github.com/veriloglab/judge-backend/internal/sandbox"
	"github.com/veriloglab/judge-backend/internal/verdict"
	"github.com/veriloglab/judge-backend/internal/waveform"
)

// Expect is what a scenario must produce.
type Expect struct {
	Verdict        model.Verdict `toml:"verdict"`
	Kind           sandbox.Kind  `toml:"kind"`
	OutputContains []string      `toml:"output_contains"`
	// Signals must all appear in the decoded trace.
	Signals []string `toml:"signals"`
}

type specModule struct {
	ID     string `toml:"id"`
	Source string `toml:"source"`
}

type specScenario struct {
	Description string `toml:"description"`
	Source      string `toml:"source"`
	Testbench   string `toml:"testbench"`
	TestbenchID string `toml:"testbench_id"`
	Expect      Expect `toml:"expect"`
}

type specRoot struct {
	Modules   []specModule   `toml:"modules"`
	Scenarios []specScenario `toml:"scenarios"`
}

// Case is a runnable scenario.
type Case struct {
	Name    string
	Request sandbox.Request
	Expect  Expect
}

// Load reads and parses a scenario file.
func Load(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	return Parse(data)
}

// Parse converts TOML scenario text into cases.
func Parse(data []byte) ([]Case, error) {
	var root specRoot
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse TOML: %w", err)
	}

	modules := make(map[string]string, len(root.Modules))
	for _, m := range root.Modules {
		if m.ID == "" {
			return nil, fmt.Errorf("module without id")
		}
		if _, dup := modules[m.ID]; dup {
			return nil, fmt.Errorf("duplicate module id %q", m.ID)
		}
		modules[m.ID] = m.Source
	}

	cases := make([]Case, 0, len(root.Scenarios))
	for i, s := range root.Scenarios {
		name := s.Description
		if name == "" {
			name = fmt.Sprintf("scenario #%d", i+1)
		}

		tb := s.Testbench
		if s.TestbenchID != "" {
			if tb != "" {
				return nil, fmt.Errorf("%s: testbench and testbench_id are exclusive", name)
			}
			src, ok := modules[s.TestbenchID]
			if !ok {
				return nil, fmt.Errorf("%s: unknown module id %q", name, s.TestbenchID)
			}
			tb = src
		}
		if strings.TrimSpace(s.Source) == "" || strings.TrimSpace(tb) == "" {
			return nil, fmt.Errorf("%s: source and testbench are required", name)
		}
		if !s.Expect.Verdict.Final() {
			return nil, fmt.Errorf("%s: expect.verdict must be accepted or rejected", name)
		}

		cases = append(cases, Case{
			Name: name,
			Request: sandbox.Request{
				Source:    s.Source,
				Testbench: tb,
				WantTrace: len(s.Expect.Signals) > 0,
			},
			Expect: s.Expect,
		})
	}
	return cases, nil
}

// Judge runs one request.
type Judge interface {
	Run(ctx context.Context, req sandbox.Request) *sandbox.Result
}

// Outcome is the result of checking one case.
type Outcome struct {
	Case     Case
	Verdict  model.Verdict
	Result   *sandbox.Result
	Failures []string
}

// Passed reports whether every expectation held.
func (o *Outcome) Passed() bool { return len(o.Failures) == 0 }

// Check runs every case with at most parallel in flight and returns the
// outcomes in case order.
func Check(ctx context.Context, judge Judge, classifier *verdict.Classifier, cases []Case, parallel int) ([]Outcome, error) {
	if parallel < 1 {
		parallel = 1
	}
	out := make([]Outcome, len(cases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i := range cases {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := judge.Run(gctx, cases[i].Request)
			out[i] = evaluate(cases[i], res, classifier.ClassifyResult(res))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func evaluate(c Case, res *sandbox.Result, v model.Verdict) Outcome {
	o := Outcome{Case: c, Verdict: v, Result: res}
	if v != c.Expect.Verdict {
		o.Failures = append(o.Failures, fmt.Sprintf("verdict %s, want %s", v, c.Expect.Verdict))
	}
	if c.Expect.Kind != sandbox.KindNone && res.Kind != c.Expect.Kind {
		o.Failures = append(o.Failures, fmt.Sprintf("kind %q, want %q", res.Kind, c.Expect.Kind))
	}
	for _, want := range c.Expect.OutputContains {
		if !strings.Contains(res.Output, want) {
			o.Failures = append(o.Failures, fmt.Sprintf("output lacks %q", want))
		}
	}
	if len(c.Expect.Signals) > 0 {
		trace := waveform.Decode(string(res.Trace))
		for _, name := range c.Expect.Signals {
			if _, ok := trace.Signal(name); !ok {
				o.Failures = append(o.Failures, fmt.Sprintf("trace lacks signal %q", name))
			}
		}
	}
	return o
}
