package jwtauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewService("secret", "caresignal-test")

	token, err := svc.GenerateToken("scheduler-1", "service", time.Minute)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "scheduler-1", claims.CallerID)
	assert.Equal(t, "service", claims.Role)
}

func TestExpiredToken(t *testing.T) {
	svc := NewService("secret", "caresignal-test")

	token, err := svc.GenerateToken("scheduler-1", "service", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestWrongSigningKey(t *testing.T) {
	issuer := NewService("secret-a", "caresignal-test")
	verifier := NewService("secret-b", "caresignal-test")

	token, err := issuer.GenerateToken("scheduler-1", "service", time.Minute)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestGarbageToken(t *testing.T) {
	svc := NewService("secret", "caresignal-test")
	_, err := svc.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
