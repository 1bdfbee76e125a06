package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompiler concatenates the testbench and the design into the image so
// the fake simulator can react to markers in either file.
const fakeCompiler = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
if grep -q COMPILE_FAIL dut.v; then
  echo "dut.v:1: syntax error" >&2
  exit 1
fi
cat tb.v dut.v > "$out"
`

const fakeSimulator = `#!/bin/sh
img="$1"
if grep -q SIM_HANG "$img"; then
  sleep 5
fi
if grep -q SIM_CRASH "$img"; then
  echo "segfault in simulation" >&2
  exit 2
fi
dump=$(sed -n 's/.*\$dumpfile("\([^"]*\)").*/\1/p' "$img" | head -n 1)
if [ -z "$dump" ] && grep -q '\$dumpvars' "$img"; then
  dump="dump.vcd"
fi
if [ -n "$dump" ]; then
  printf '$var wire 1 ! clk $end\n$enddefinitions $end\n#0\n0!\n#5\n1!\n' > "$dump"
fi
if grep -q SIM_FLOOD "$img"; then
  head -c 70000 /dev/zero | tr '\0' 'x'
  echo "FAIL: count mismatch"
  exit 0
fi
if grep -q SIM_FAIL "$img"; then
  echo "FAIL: count mismatch"
  exit 0
fi
if grep -q SIM_WARN "$img"; then
  echo "warning: implicit net" >&2
fi
echo "PASS"
`

const plainTestbench = "module tb;\n  counter dut();\nendmodule\n"

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func newTestRunner(t *testing.T, tweak func(*Options)) (*Runner, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake toolchain needs a POSIX shell")
	}
	bin := t.TempDir()
	scratch := t.TempDir()

	opts := Options{
		Toolchain: Toolchain{
			CompilerPath:  writeScript(t, bin, "iverilog", fakeCompiler),
			SimulatorPath: writeScript(t, bin, "vvp", fakeSimulator),
		},
		ScratchDir:      scratch,
		Workers:         2,
		QueueTimeout:    time.Second,
		CompileTimeout:  5 * time.Second,
		SimulateTimeout: 5 * time.Second,
		MaxOutputBytes:  4096,
		MaxTraceBytes:   1 << 20,
	}
	if tweak != nil {
		tweak(&opts)
	}
	r, err := NewRunner(opts, nil, zerolog.Nop())
	require.NoError(t, err)
	return r, scratch
}

func assertScratchEmpty(t *testing.T, scratch string) {
	t.Helper()
	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "run directories must be removed")
}

func TestRunSuccess(t *testing.T) {
	r, scratch := newTestRunner(t, nil)

	res := r.Run(context.Background(), Request{Source: "module counter; endmodule", Testbench: plainTestbench})

	assert.True(t, res.OK)
	assert.Equal(t, KindNone, res.Kind)
	assert.Equal(t, "PASS\n", res.Output)
	assert.False(t, res.MarkerSeen)
	assert.Nil(t, res.Trace)
	assertScratchEmpty(t, scratch)
}

func TestRunSuccessAppendsStderr(t *testing.T) {
	r, scratch := newTestRunner(t, nil)

	res := r.Run(context.Background(), Request{Source: "// SIM_WARN\nmodule counter; endmodule", Testbench: plainTestbench})

	assert.True(t, res.OK)
	assert.Equal(t, "PASS\n\nStderr:\nwarning: implicit net\n", res.Output)
	assertScratchEmpty(t, scratch)
}

func TestRunFailureMarkerStillSucceeds(t *testing.T) {
	r, _ := newTestRunner(t, nil)

	res := r.Run(context.Background(), Request{Source: "// SIM_FAIL", Testbench: plainTestbench})

	assert.True(t, res.OK)
	assert.True(t, res.MarkerSeen)
	assert.Contains(t, res.Output, "FAIL: count mismatch")
}

func TestRunSeesMarkerPastOutputCap(t *testing.T) {
	r, scratch := newTestRunner(t, nil)

	res := r.Run(context.Background(), Request{Source: "// SIM_FLOOD", Testbench: plainTestbench})

	require.True(t, res.OK)
	assert.NotContains(t, res.Output, "FAIL")
	assert.True(t, strings.HasSuffix(res.Output, truncatedNote))
	assert.True(t, res.MarkerSeen)
	assertScratchEmpty(t, scratch)
}

func TestRunCompileError(t *testing.T) {
	r, scratch := newTestRunner(t, nil)

	res := r.Run(context.Background(), Request{Source: "COMPILE_FAIL", Testbench: plainTestbench})

	assert.False(t, res.OK)
	assert.Equal(t, KindCompileError, res.Kind)
	assert.Equal(t, "Compilation Error:\ndut.v:1: syntax error\n", res.Output)
	assertScratchEmpty(t, scratch)
}

func TestRunMissingCompilerIsCompileError(t *testing.T) {
	r, scratch := newTestRunner(t, func(o *Options) {
		o.Toolchain = Toolchain{CompilerPath: "/nonexistent/iverilog", SimulatorPath: "vvp"}
	})

	res := r.Run(context.Background(), Request{Source: "x", Testbench: plainTestbench})

	assert.Equal(t, KindCompileError, res.Kind)
	assert.True(t, strings.HasPrefix(res.Output, "Compilation Error:\n"))
	assertScratchEmpty(t, scratch)
}

func TestRunRuntimeError(t *testing.T) {
	r, scratch := newTestRunner(t, nil)

	res := r.Run(context.Background(), Request{Source: "// SIM_CRASH", Testbench: plainTestbench})

	assert.False(t, res.OK)
	assert.Equal(t, KindRuntimeError, res.Kind)
	assert.Equal(t, "Runtime Error:\nsegfault in simulation\n", res.Output)
	assertScratchEmpty(t, scratch)
}

func TestRunMissingSimulatorIsSystemError(t *testing.T) {
	r, scratch := newTestRunner(t, nil)
	r.opts.Toolchain = Toolchain{
		CompilerPath:  r.opts.Toolchain.Compiler(),
		SimulatorPath: "/nonexistent/vvp",
	}

	res := r.Run(context.Background(), Request{Source: "x", Testbench: plainTestbench})

	assert.Equal(t, KindSystemError, res.Kind)
	assert.Equal(t, "System Error:\nsimulator unavailable", res.Output)
	assertScratchEmpty(t, scratch)
}

func TestRunSimulateTimeout(t *testing.T) {
	r, scratch := newTestRunner(t, func(o *Options) { o.SimulateTimeout = 200 * time.Millisecond })

	start := time.Now()
	res := r.Run(context.Background(), Request{Source: "// SIM_HANG", Testbench: plainTestbench})

	assert.Less(t, time.Since(start), 4*time.Second)
	assert.False(t, res.OK)
	assert.Equal(t, KindTimeoutError, res.Kind)
	assert.Equal(t, "Timeout Error:\nsimulate exceeded 200ms", res.Output)
	assertScratchEmpty(t, scratch)
}

func TestRunInjectsDumpWhenTraceWanted(t *testing.T) {
	r, scratch := newTestRunner(t, nil)

	res := r.Run(context.Background(), Request{Source: "x", Testbench: plainTestbench, WantTrace: true})

	require.True(t, res.OK)
	assert.Contains(t, string(res.Trace), "$enddefinitions")
	assertScratchEmpty(t, scratch)
}

func TestRunUsesRelativeDumpfile(t *testing.T) {
	r, scratch := newTestRunner(t, nil)
	tb := "module tb;\ninitial begin $dumpfile(\"my.vcd\"); $dumpvars(0, tb); end\nendmodule\n"

	res := r.Run(context.Background(), Request{Source: "x", Testbench: tb, WantTrace: true})

	require.True(t, res.OK)
	assert.NotEmpty(t, res.Trace)
	assertScratchEmpty(t, scratch)
}

func TestRunUsesDefaultDumpName(t *testing.T) {
	r, scratch := newTestRunner(t, nil)
	tb := "module tb;\ninitial $dumpvars;\nendmodule\n"

	res := r.Run(context.Background(), Request{Source: "x", Testbench: tb, WantTrace: true})

	require.True(t, res.OK)
	assert.NotEmpty(t, res.Trace)
	assertScratchEmpty(t, scratch)
}

func TestRunNeverReadsOrRemovesAbsoluteDumpOutsideScratch(t *testing.T) {
	r, scratch := newTestRunner(t, nil)
	secret := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("TOP-SECRET"), 0o600))
	tb := "module tb;\ninitial $dumpfile(\"" + secret + "\");\nendmodule\n"

	res := r.Run(context.Background(), Request{Source: "x", Testbench: tb, WantTrace: true})

	require.True(t, res.OK)
	assert.NotContains(t, string(res.Trace), "TOP-SECRET")
	assert.Contains(t, string(res.Trace), "$enddefinitions")
	data, err := os.ReadFile(secret)
	require.NoError(t, err, "file outside the scratch root must survive")
	assert.Equal(t, "TOP-SECRET", string(data))
	assertScratchEmpty(t, scratch)
}

func TestRunNeverRemovesRelativeDumpOutsideScratch(t *testing.T) {
	r, scratch := newTestRunner(t, nil)
	victim := filepath.Join(filepath.Dir(scratch), "victim")
	require.NoError(t, os.MkdirAll(filepath.Join(victim, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(victim, "nested", "keep.txt"), []byte("keep"), 0o600))
	tb := "module tb;\ninitial $dumpfile(\"../../victim\");\nendmodule\n"

	res := r.Run(context.Background(), Request{Source: "x", Testbench: tb, WantTrace: true})

	require.True(t, res.OK)
	_, err := os.Stat(filepath.Join(victim, "nested", "keep.txt"))
	assert.NoError(t, err, "directory tree outside the scratch root must survive")
	assertScratchEmpty(t, scratch)
}

func TestRunRejectsOversizedTrace(t *testing.T) {
	r, scratch := newTestRunner(t, func(o *Options) { o.MaxTraceBytes = 8 })

	res := r.Run(context.Background(), Request{Source: "x", Testbench: plainTestbench, WantTrace: true})

	assert.Equal(t, KindSystemError, res.Kind)
	assert.Contains(t, res.Output, "trace exceeds 8 bytes")
	assertScratchEmpty(t, scratch)
}

func TestRunQueueFull(t *testing.T) {
	r, scratch := newTestRunner(t, func(o *Options) {
		o.Workers = 1
		o.QueueTimeout = 50 * time.Millisecond
	})
	require.NoError(t, r.sem.Acquire(context.Background(), 1))
	defer r.sem.Release(1)

	res := r.Run(context.Background(), Request{Source: "x", Testbench: plainTestbench})

	assert.Equal(t, KindSystemError, res.Kind)
	assert.Equal(t, "System Error:\njudge queue is full", res.Output)
	assert.True(t, res.Busy)
	assertScratchEmpty(t, scratch)
}

func TestRunConcurrentRunsAreIsolated(t *testing.T) {
	r, scratch := newTestRunner(t, func(o *Options) { o.Workers = 4 })

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			src := "x"
			if i%2 == 1 {
				src = "// SIM_FAIL"
			}
			results[i] = r.Run(context.Background(), Request{Source: src, Testbench: plainTestbench, WantTrace: true})
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		require.True(t, res.OK, "run %d", i)
		assert.Equal(t, i%2 == 1, strings.Contains(res.Output, "FAIL"), "run %d", i)
		assert.NotEmpty(t, res.Trace)
	}
	assertScratchEmpty(t, scratch)
}

func TestLimitedBufferTruncates(t *testing.T) {
	b := newLimitedBuffer(4, "")
	n, err := b.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	_, _ = b.Write([]byte("gh"))
	assert.Equal(t, "abcd"+truncatedNote, b.String())
	assert.False(t, b.MarkerSeen())
}

func TestLimitedBufferFindsMarkerPastLimit(t *testing.T) {
	b := newLimitedBuffer(4, "FAIL")
	_, _ = b.Write([]byte("abcdefgh"))
	assert.False(t, b.MarkerSeen())

	for _, chunk := range []string{"..FA", "I", "L!"} {
		_, _ = b.Write([]byte(chunk))
	}

	assert.True(t, b.MarkerSeen())
	assert.Equal(t, "abcd"+truncatedNote, b.String())
}

func TestLimitedBufferIgnoresBrokenMarker(t *testing.T) {
	b := newLimitedBuffer(100, "FAIL")
	for _, chunk := range []string{"FA", "IX", "L", "FAI"} {
		_, _ = b.Write([]byte(chunk))
	}
	assert.False(t, b.MarkerSeen())
}

func TestSplitFlags(t *testing.T) {
	flags, err := SplitFlags(`-g2012 -D "WIDTH=8" -I 'inc dir'`)
	require.NoError(t, err)
	assert.Equal(t, []string{"-g2012", "-D", "WIDTH=8", "-I", "inc dir"}, flags)

	flags, err = SplitFlags("")
	require.NoError(t, err)
	assert.Empty(t, flags)
}
