package sandbox

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// defaultDumpName is where the simulator writes a dump when the testbench
// calls $dumpvars without naming a file.
const defaultDumpName = "dump.vcd"

var (
	dumpfilePattern = regexp.MustCompile(`\$dumpfile\s*\(\s*["']([^"']+)["']\s*\)`)
	dumpvarsPattern = regexp.MustCompile(`\$dumpvars\b`)
)

// tracePlan says where the trace will land and what testbench to compile.
type tracePlan struct {
	Testbench string
	// Expected is the absolute path the simulator will dump to. It always
	// lies inside the scratch directory.
	Expected string
}

func planTrace(testbench, dir string, wantTrace bool) tracePlan {
	own := filepath.Join(dir, traceFile)

	// Dump targets that escape the scratch directory are redirected to the
	// runner's own trace file.
	expected := ""
	rewritten := dumpfilePattern.ReplaceAllStringFunc(testbench, func(call string) string {
		target := resolveDump(dumpfilePattern.FindStringSubmatch(call)[1], dir)
		if !within(dir, target) {
			target = own
			call = dumpfileCall(own)
		}
		if expected == "" {
			expected = target
		}
		return call
	})
	if expected != "" {
		return tracePlan{Testbench: rewritten, Expected: expected}
	}

	if dumpvarsPattern.MatchString(testbench) {
		return tracePlan{Testbench: testbench, Expected: filepath.Join(dir, defaultDumpName)}
	}

	if !wantTrace {
		return tracePlan{Testbench: testbench, Expected: own}
	}
	return tracePlan{Testbench: injectDump(testbench, own), Expected: own}
}

func resolveDump(name, dir string) string {
	if !filepath.IsAbs(name) {
		name = filepath.Join(dir, name)
	}
	return filepath.Clean(name)
}

func dumpfileCall(path string) string {
	quoted := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(path)
	return fmt.Sprintf("$dumpfile(\"%s\")", quoted)
}

// injectDump adds a dump block before the last endmodule, or at the end of
// the text when there is none.
func injectDump(testbench, path string) string {
	block := fmt.Sprintf("\ninitial begin\n  %s;\n  $dumpvars(0);\nend\n", dumpfileCall(path))

	idx := strings.LastIndex(testbench, "endmodule")
	if idx < 0 {
		return testbench + block
	}
	return testbench[:idx] + block + testbench[idx:]
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
