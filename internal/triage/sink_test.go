package triage

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChanSink_DeliversInOrder(t *testing.T) {
	s := NewChanSink(4)
	s.Log("a")
	s.Log("b")

	assert.Equal(t, "a", <-s.Lines())
	assert.Equal(t, "b", <-s.Lines())
}

func TestChanSink_CloseUnblocksProducer(t *testing.T) {
	s := NewChanSink(0)
	done := make(chan struct{})
	go func() {
		s.Log("nobody is listening")
		close(done)
	}()

	s.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Log still blocked after Close")
	}

	s.Close()
	s.Log("after close is dropped")
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSink(&buf)
	s.Log("one")
	s.Log("two")
	assert.Equal(t, "one\ntwo\n", buf.String())
}

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	MultiSink{a, b, Discard}.Log("x")
	assert.Equal(t, "x", a.text())
	assert.Equal(t, "x", b.text())
}
