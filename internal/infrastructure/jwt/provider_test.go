package jwtinfra

import (
	"errors"
	"testing"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	p, err := NewProvider("test-secret", time.Hour)
	require.NoError(t, err)

	token, err := p.Sign("acc1", "alice@example.com")
	require.NoError(t, err)

	claims, err := p.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "acc1", claims.AccountID)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestVerify_Expired(t *testing.T) {
	p, err := NewProvider("test-secret", -time.Minute)
	require.NoError(t, err)

	token, err := p.Sign("acc1", "alice@example.com")
	require.NoError(t, err)

	_, err = p.Verify(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	assert.Contains(t, err.Error(), "expired")
}

func TestVerify_WrongSecret(t *testing.T) {
	p1, err := NewProvider("secret-one", time.Hour)
	require.NoError(t, err)
	p2, err := NewProvider("secret-two", time.Hour)
	require.NoError(t, err)

	token, err := p1.Sign("acc1", "alice@example.com")
	require.NoError(t, err)

	_, err = p2.Verify(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestVerify_Garbage(t *testing.T) {
	p, err := NewProvider("test-secret", time.Hour)
	require.NoError(t, err)
	_, err = p.Verify("not-a-token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestNewProvider_EmptySecret(t *testing.T) {
	_, err := NewProvider("", time.Hour)
	assert.Error(t, err)
}
