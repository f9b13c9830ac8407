package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/rejectfewer/internal/triage"
)

func TestNewServerContext_RequiresPipeline(t *testing.T) {
	_, err := NewServerContext(context.Background(), Dependencies{})
	assert.Error(t, err)

	sc := newTestContext(t, &stubGateway{}, nil)
	_, err = NewServerContext(context.Background(), Dependencies{Orchestrator: sc.Orchestrator()})
	assert.Error(t, err, "handle is required")
}

func TestServerContext_RunTriageRemembersLastRun(t *testing.T) {
	history := newTestHistory(t)
	sc := newTestContext(t, &stubGateway{records: testRecords()}, history)

	_, ok := sc.LastRun()
	assert.False(t, ok)

	var lines []string
	summary, err := sc.RunTriage(context.Background(), triage.SinkFunc(func(l string) { lines = append(lines, l) }))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Completed)
	assert.Zero(t, summary.Trashed)

	last, ok := sc.LastRun()
	require.True(t, ok)
	assert.Equal(t, summary.RunID, last.RunID)
	assert.Contains(t, lines, "--- Starting Email Rejection Processor ---")

	runs, err := history.Runs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].ID)
}

func TestServerContext_Shutdown(t *testing.T) {
	gw := &stubGateway{records: testRecords()}
	sc := newTestContext(t, gw, nil)

	require.NoError(t, sc.Shutdown())
	require.NoError(t, sc.Shutdown(), "second shutdown is a no-op")
	assert.True(t, sc.IsShutdown())
	assert.Error(t, sc.Context().Err())
	assert.False(t, sc.Handle().Connected())

	_, err := sc.RunTriage(context.Background(), nil)
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestServerContext_ShutdownCancelsRun(t *testing.T) {
	gw := &stubGateway{records: testRecords(), block: make(chan struct{})}
	sc := newTestContext(t, gw, nil)

	done := make(chan error, 1)
	go func() {
		_, err := sc.RunTriage(context.Background(), nil)
		done <- err
	}()
	require.Eventually(t, sc.Orchestrator().Running, testWait, testTick)

	require.NoError(t, sc.Shutdown())
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
}
