package sandbox

import "bytes"

const truncatedNote = "\n... output truncated"

// limitedBuffer keeps the first limit bytes written to it and discards the
// rest, still reporting full writes so the child never sees EPIPE. Every
// byte, kept or not, is scanned for the marker.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool

	marker []byte
	// tail holds the last len(marker)-1 bytes so a marker split across
	// writes is still found.
	tail []byte
	seen bool
}

func newLimitedBuffer(limit int, marker string) *limitedBuffer {
	return &limitedBuffer{limit: limit, marker: []byte(marker)}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.scan(p)

	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *limitedBuffer) scan(p []byte) {
	if b.seen || len(b.marker) == 0 || len(p) == 0 {
		return
	}
	keep := len(b.marker) - 1

	joint := make([]byte, 0, len(b.tail)+min(len(p), keep))
	joint = append(append(joint, b.tail...), p[:min(len(p), keep)]...)
	if bytes.Contains(joint, b.marker) || bytes.Contains(p, b.marker) {
		b.seen = true
		b.tail = nil
		return
	}

	if len(p) >= keep {
		b.tail = append(b.tail[:0], p[len(p)-keep:]...)
		return
	}
	b.tail = append(b.tail, p...)
	if len(b.tail) > keep {
		b.tail = append([]byte(nil), b.tail[len(b.tail)-keep:]...)
	}
}

// MarkerSeen reports whether the marker occurred anywhere in the stream.
func (b *limitedBuffer) MarkerSeen() bool { return b.seen }

func (b *limitedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + truncatedNote
	}
	return b.buf.String()
}
