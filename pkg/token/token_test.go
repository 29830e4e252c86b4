package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSessionID(t *testing.T) {
	a, err := GenerateSessionID()
	require.NoError(t, err)
	b, err := GenerateSessionID()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.True(t, IsSessionID(a))
	assert.False(t, IsSessionID("short"))
	assert.False(t, IsSessionID(a[:63]+"z"))
}

func TestGenerateHex_RejectsNonPositive(t *testing.T) {
	_, err := GenerateHex(0)
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("secret", "secret"))
	assert.False(t, Equal("secret", "Secret"))
	assert.False(t, Equal("secret", ""))
}
