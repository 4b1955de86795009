package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := HashWithCost("revenda123", 4)
	require.NoError(t, err)

	assert.NotEqual(t, "revenda123", hash)
	assert.True(t, Verify("revenda123", hash))
	assert.False(t, Verify("revenda124", hash))
	assert.False(t, Verify("revenda123", "not-a-hash"))
}

func TestValid(t *testing.T) {
	assert.False(t, Valid("1234567"))
	assert.True(t, Valid("12345678"))
}

func TestTemporary(t *testing.T) {
	a, err := Temporary(10)
	require.NoError(t, err)
	b, err := Temporary(10)
	require.NoError(t, err)

	assert.Len(t, a, 10)
	assert.NotEqual(t, a, b)
	assert.True(t, Valid(a))
	assert.NotContains(t, a, "0")
	assert.NotContains(t, a, "l")

	short, err := Temporary(3)
	require.NoError(t, err)
	assert.Len(t, short, MinLength)
}
