package sandbox

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanTraceRelativeDumpfile(t *testing.T) {
	dir := filepath.Join("/scratch", "run_1")
	tb := `initial begin $dumpfile( "sub/w.vcd" ); $dumpvars(0, tb); end`

	p := planTrace(tb, dir, true)

	assert.Equal(t, tb, p.Testbench)
	assert.Equal(t, filepath.Join(dir, "sub", "w.vcd"), p.Expected)
}

func TestPlanTraceRedirectsEscapingDumpfile(t *testing.T) {
	dir := filepath.Join("/scratch", "run_1")
	own := filepath.Join(dir, traceFile)

	for _, tb := range []string{
		`$dumpfile("../leak.vcd");`,
		`$dumpfile('/var/tmp/x.vcd');`,
		`$dumpfile( "sub/../../../etc/passwd" );`,
	} {
		p := planTrace(tb, dir, false)
		assert.Equal(t, own, p.Expected, tb)
		assert.Equal(t, `$dumpfile("`+own+`");`, p.Testbench, tb)
	}
}

func TestPlanTraceRedirectsEveryEscapingCall(t *testing.T) {
	dir := filepath.Join("/scratch", "run_1")
	tb := `$dumpfile("a.vcd"); $dumpfile("/etc/x");`

	p := planTrace(tb, dir, true)

	assert.Equal(t, filepath.Join(dir, "a.vcd"), p.Expected)
	assert.Equal(t, `$dumpfile("a.vcd"); $dumpfile("`+filepath.Join(dir, traceFile)+`");`, p.Testbench)
	assert.NotContains(t, p.Testbench, "/etc/x")
}

func TestPlanTraceDumpvarsOnly(t *testing.T) {
	dir := "/scratch/run_2"
	p := planTrace("initial $dumpvars;", dir, true)

	assert.Equal(t, filepath.Join(dir, defaultDumpName), p.Expected)
	assert.Equal(t, "initial $dumpvars;", p.Testbench)
}

func TestPlanTraceInjectsBeforeLastEndmodule(t *testing.T) {
	dir := "/scratch/run_3"
	tb := "module a; endmodule\nmodule tb;\nendmodule\n"

	p := planTrace(tb, dir, true)

	assert.Equal(t, filepath.Join(dir, traceFile), p.Expected)
	idx := strings.Index(p.Testbench, "$dumpfile(\""+p.Expected+"\")")
	assert.Greater(t, idx, strings.Index(p.Testbench, "module tb;"))
	assert.True(t, strings.HasSuffix(p.Testbench, "end\nendmodule\n"))
	assert.Contains(t, p.Testbench, "$dumpvars(0);")
}

func TestPlanTraceAppendsWithoutEndmodule(t *testing.T) {
	p := planTrace("`include \"x.v\"", "/scratch/run_4", true)
	assert.True(t, strings.HasPrefix(p.Testbench, "`include \"x.v\"\ninitial begin"))
}

func TestPlanTraceNoInjectionWithoutWant(t *testing.T) {
	p := planTrace(plainTestbench, "/scratch/run_5", false)
	assert.Equal(t, plainTestbench, p.Testbench)
}
