package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndVerify(t *testing.T) {
	h, err := New("s3cret-password")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-password", h)
	assert.True(t, Verify("s3cret-password", h))
	assert.False(t, Verify("wrong-password", h))
}

func TestVerify_EmptyHash_IsFalseNotError(t *testing.T) {
	assert.False(t, Verify("anything", ""))
}

func TestNew_DistinctSalts(t *testing.T) {
	h1, err := New("042817")
	require.NoError(t, err)
	h2, err := New("042817")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
	assert.True(t, Verify("042817", h1))
	assert.True(t, Verify("042817", h2))
}
