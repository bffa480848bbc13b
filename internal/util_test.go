package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAccessToken(t *testing.T) {
	token, err := GenerateAccessToken()
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	other, err := GenerateAccessToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other, "two generated tokens must differ")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "****", MaskSecret(""))
	assert.Equal(t, "****", MaskSecret("abcd"))
	assert.Equal(t, "****-123", MaskSecret("k-123"))
	assert.NotContains(t, MaskSecret("super-secret-value"), "super")
}
