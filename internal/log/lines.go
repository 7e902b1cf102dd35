package log

import (
	"bytes"
	"sync"
)

// DefaultMaxLine bounds a single forwarded line. Longer lines are cut, never buffered whole.
const DefaultMaxLine = 64 * 1024

const truncatedMark = " [truncated]"

// LineWriter splits a child process's output into lines and hands each to fn.
// Set it as exec.Cmd.Stdout or Stderr: every Write is accepted in full, so the
// child never blocks on a pipe nobody reads. A line longer than max is passed
// on cut to max bytes with a marker, and the rest of it is dropped.
type LineWriter struct {
	fn  func(line string)
	max int

	mu       sync.Mutex
	buf      []byte
	skipping bool
}

// NewLineWriter returns a LineWriter. max <= 0 means DefaultMaxLine.
func NewLineWriter(maxLine int, fn func(line string)) *LineWriter {
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}
	return &LineWriter{fn: fn, max: maxLine}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			w.appendPartial(p)
			break
		}
		w.appendPartial(p[:i])
		w.emit()
		p = p[i+1:]
	}
	return n, nil
}

// Flush emits a trailing line that had no newline. Call it after the process exits.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 || w.skipping {
		w.emit()
	}
}

func (w *LineWriter) appendPartial(p []byte) {
	if w.skipping {
		return
	}
	if room := w.max - len(w.buf); len(p) > room {
		w.buf = append(w.buf, p[:room]...)
		w.buf = append(w.buf, truncatedMark...)
		w.skipping = true
		return
	}
	w.buf = append(w.buf, p...)
}

func (w *LineWriter) emit() {
	line := string(bytes.TrimSuffix(w.buf, []byte{'\r'}))
	w.buf = w.buf[:0]
	w.skipping = false
	w.fn(line)
}
