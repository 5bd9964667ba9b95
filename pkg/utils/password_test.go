package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hashed, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret!", hashed)
	assert.True(t, CheckPassword("s3cret!", hashed))
	assert.False(t, CheckPassword("other", hashed))
}

func TestHashPasswordTooShort(t *testing.T) {
	_, err := HashPassword("abc")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}
