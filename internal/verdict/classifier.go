// Package verdict turns a sandbox outcome into a pass/fail verdict.
package verdict

import (
	"strings"

	"github.com/veriloglab/judge-backend/internal/model"
	"github.com/veriloglab/judge-backend/internal/sandbox"
)

// DefaultMarker is the substring testbenches print to signal a failed check.
const DefaultMarker = sandbox.DefaultFailureMarker

// Classifier applies the failure-marker heuristic.
type Classifier struct {
	marker string
}

// New returns a Classifier. An empty marker falls back to DefaultMarker.
func New(marker string) *Classifier {
	if marker == "" {
		marker = DefaultMarker
	}
	return &Classifier{marker: marker}
}

// Classify rejects failed runs and runs whose output contains the marker.
// The match is a case-sensitive substring test.
func (c *Classifier) Classify(ok bool, output string) model.Verdict {
	if !ok || strings.Contains(output, c.marker) {
		return model.VerdictRejected
	}
	return model.VerdictAccepted
}

// ClassifyResult is Classify for a sandbox result. A marker the runner saw
// past the captured output still rejects the run.
func (c *Classifier) ClassifyResult(res *sandbox.Result) model.Verdict {
	return c.Classify(res.OK && !res.MarkerSeen, res.Output)
}
