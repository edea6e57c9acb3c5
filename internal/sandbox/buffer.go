package sandbox

import (
	"bytes"
	"io"
)

// limitedBuffer accepts all writes but retains at most maxBytes,
// recording whether anything was dropped.
type limitedBuffer struct {
	buf       bytes.Buffer
	maxBytes  int
	truncated bool
}

func newLimitedBuffer(max int) *limitedBuffer {
	return &limitedBuffer{maxBytes: max}
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if l.maxBytes <= 0 {
		l.truncated = true
		return len(p), nil
	}
	remaining := l.maxBytes - l.buf.Len()
	if remaining <= 0 {
		l.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		l.truncated = true
		_, _ = l.buf.Write(p[:remaining])
		return len(p), nil
	}
	_, err := l.buf.Write(p)
	return len(p), err
}

func (l *limitedBuffer) String() string {
	return l.buf.String()
}

func (l *limitedBuffer) Truncated() bool {
	return l.truncated
}

var _ io.Writer = (*limitedBuffer)(nil)
