package auth

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionToken_FormatAndEntropy(t *testing.T) {
	token, err := NewSessionToken()
	require.NoError(t, err)

	// 32 random bytes as lowercase hex
	assert.Len(t, token, 64)
	decoded, err := hex.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, decoded, 32)
}

func TestNewSessionToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := NewSessionToken()
		require.NoError(t, err)
		assert.False(t, seen[token])
		seen[token] = true
	}
}
