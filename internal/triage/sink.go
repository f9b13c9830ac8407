package triage

import (
	"fmt"
	"io"
	"sync"
)

// Sink receives the human-readable progress log of a run.
type Sink interface {
	Log(line string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(line string)

func (f SinkFunc) Log(line string) { f(line) }

// Discard drops every line.
var Discard Sink = SinkFunc(func(string) {})

func logf(s Sink, format string, args ...any) {
	s.Log(fmt.Sprintf(format, args...))
}

// ChanSink forwards lines to a channel so a UI loop can consume them on its
// own goroutine. Log blocks until the consumer receives or the sink is closed.
type ChanSink struct {
	lines  chan string
	done   chan struct{}
	closed sync.Once
}

// NewChanSink returns a sink with the given channel buffer.
func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{
		lines: make(chan string, buffer),
		done:  make(chan struct{}),
	}
}

// Log sends line unless the sink has been closed.
func (s *ChanSink) Log(line string) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.lines <- line:
	case <-s.done:
	}
}

// Lines is the receive side.
func (s *ChanSink) Lines() <-chan string {
	return s.lines
}

// Close stops delivery. Lines already buffered stay readable; the channel
// itself is never closed so a late Log cannot panic.
func (s *ChanSink) Close() {
	s.closed.Do(func() { close(s.done) })
}

// WriterSink writes one line per Log call to w.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink returns a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Log(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, line+"\n")
}

// MultiSink fans each line out to several sinks.
type MultiSink []Sink

func (m MultiSink) Log(line string) {
	for _, s := range m {
		s.Log(line)
	}
}
