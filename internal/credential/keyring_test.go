package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RoundTrip(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring(nil))

	_, err := s.Get(APIKeyName)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Set(APIKeyName, "secret"))
	got, err := s.Get(APIKeyName)
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	require.NoError(t, s.Set(APIKeyName, "rotated"))
	got, err = s.Get(APIKeyName)
	require.NoError(t, err)
	assert.Equal(t, "rotated", got)

	require.NoError(t, s.Delete(APIKeyName))
	_, err = s.Get(APIKeyName)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_DeleteMissing(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring(nil))
	assert.NoError(t, s.Delete("never-set"))
}
