// Package waveform decodes Value Change Dump (VCD) traces into per-signal timelines.
package waveform

import (
	"strconv"
	"strings"
)

// initialValue seeds every timeline at time zero.
const initialValue = "x"

// Change is a single value assertion on a signal.
type Change struct {
	Time  int64  `json:"time"`
	Value string `json:"value"`
}

// Signal is a declared variable and its ordered value changes.
type Signal struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	BitWidth int      `json:"bit_width"`
	Code     string   `json:"code"`
	Changes  []Change `json:"changes"`
}

// Last returns the most recent change of the signal.
func (s *Signal) Last() Change {
	return s.Changes[len(s.Changes)-1]
}

// Trace is a decoded dump. Signals keep declaration order.
type Trace struct {
	EndTime int64    `json:"end_time"`
	Signals []Signal `json:"signals"`
}

// Signal finds a signal by name.
func (t *Trace) Signal(name string) (*Signal, bool) {
	for i := range t.Signals {
		if t.Signals[i].Name == name {
			return &t.Signals[i], true
		}
	}
	return nil, false
}

// Decode parses a VCD document. It never fails: malformed declarations are
// skipped and unrecognised value lines are ignored.
func Decode(text string) *Trace {
	var (
		signals  []*Signal
		byCode   = make(map[string][]*Signal)
		inHeader = true
		now      int64
		endTime  int64
	)

	// Lines are unbounded: a wide vector may span megabytes.
	for raw := range strings.Lines(text) {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if inHeader {
			if strings.HasPrefix(line, "$enddefinitions") {
				inHeader = false
				continue
			}
			if sig, ok := parseVar(line); ok {
				signals = append(signals, sig)
				byCode[sig.Code] = append(byCode[sig.Code], sig)
			}
			continue
		}

		switch {
		case line[0] == '#':
			t, err := strconv.ParseInt(line[1:], 10, 64)
			if err != nil || t < 0 {
				continue
			}
			now = t
			if t > endTime {
				endTime = t
			}
		case line[0] == '$':
			// $dumpvars, $dumpon, $end and friends carry no data of their own.
		case line[0] == 'b' || line[0] == 'B':
			fields := strings.Fields(line)
			if len(fields) != 2 || len(fields[0]) < 2 {
				continue
			}
			record(byCode[fields[1]], now, fields[0][1:])
		default:
			if len(line) < 2 || !isScalar(line[0]) {
				continue
			}
			record(byCode[line[1:]], now, strings.ToLower(line[:1]))
		}
	}

	out := &Trace{EndTime: endTime, Signals: make([]Signal, 0, len(signals))}
	for _, sig := range signals {
		if last := sig.Last(); last.Time < endTime {
			sig.Changes = append(sig.Changes, Change{Time: endTime, Value: last.Value})
		}
		out.Signals = append(out.Signals, *sig)
	}
	return out
}

// parseVar reads "$var <type> <width> <code> <name> [range] $end".
func parseVar(line string) (*Signal, bool) {
	if !strings.HasPrefix(line, "$var") {
		return nil, false
	}
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[4] == "$end" {
		return nil, false
	}
	width, err := strconv.Atoi(fields[2])
	if err != nil || width < 0 {
		width = 0
	}
	return &Signal{
		Name:     fields[4],
		Type:     fields[1],
		BitWidth: width,
		Code:     fields[3],
		Changes:  []Change{{Time: 0, Value: initialValue}},
	}, true
}

func record(targets []*Signal, t int64, value string) {
	for _, sig := range targets {
		sig.Changes = append(sig.Changes, Change{Time: t, Value: value})
	}
}

func isScalar(c byte) bool {
	switch c {
	case '0', '1', 'x', 'z', 'X', 'Z':
		return true
	}
	return false
}
