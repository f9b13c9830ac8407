package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemorySessionService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemorySessionService()

	state := map[string]any{"message_id": "m1"}
	sess, err := svc.Create(ctx, "analyze_m1", state)
	require.NoError(t, err)
	assert.Equal(t, "m1", sess.String("message_id"))

	state["message_id"] = "changed"
	assert.Equal(t, "m1", sess.String("message_id"), "state is copied on create")

	_, err = svc.Create(ctx, "analyze_m1", nil)
	assert.True(t, errors.Is(err, ErrSessionExists))

	got, err := svc.Get(ctx, "analyze_m1")
	require.NoError(t, err)
	assert.Same(t, sess, got)
	assert.Equal(t, 1, svc.Count())

	require.NoError(t, svc.Delete(ctx, "analyze_m1"))
	assert.Equal(t, 0, svc.Count())

	_, err = svc.Get(ctx, "analyze_m1")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	assert.True(t, errors.Is(svc.Delete(ctx, "analyze_m1"), ErrSessionNotFound))
}

func TestSession_State(t *testing.T) {
	sess, err := NewInMemorySessionService().Create(context.Background(), "s", nil)
	require.NoError(t, err)

	assert.Equal(t, "", sess.String("missing"))
	sess.Set("n", 3)
	assert.Equal(t, "", sess.String("n"), "non-string values read as empty")

	assert.True(t, sess.SetIfAbsent("once", true))
	assert.False(t, sess.SetIfAbsent("once", true))
	v, ok := sess.Value("once")
	assert.True(t, ok)
	assert.Equal(t, true, v)
}

func TestSessionContext(t *testing.T) {
	_, ok := SessionFromContext(context.Background())
	assert.False(t, ok)

	sess := &Session{ID: "x", state: map[string]any{}}
	got, ok := SessionFromContext(ContextWithSession(context.Background(), sess))
	assert.True(t, ok)
	assert.Same(t, sess, got)
}
