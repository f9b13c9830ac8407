package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, map[string]any) (any, error) { return nil, nil }

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(Tool{Name: "b"}, noop))
	require.NoError(t, r.Register(Tool{Name: "a", Description: "first"}, noop))

	err := r.Register(Tool{Name: "a"}, noop)
	assert.True(t, errors.Is(err, ErrToolExists))

	err = r.Register(Tool{}, noop)
	assert.True(t, errors.Is(err, ErrInvalidTool))

	err = r.Register(Tool{Name: "c"}, nil)
	assert.True(t, errors.Is(err, ErrInvalidTool))

	tools := r.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, "a", tools[0].Name)
	assert.Equal(t, "b", tools[1].Name)
	assert.Equal(t, "object", tools[1].Parameters["type"], "missing schema gets an empty object schema")
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{Name: "x"}, func(context.Context, map[string]any) (any, error) {
		return "ok", nil
	}))

	h, err := r.Lookup("x")
	require.NoError(t, err)
	out, err := h(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	_, err = r.Lookup("y")
	assert.True(t, errors.Is(err, ErrToolNotFound))
}
