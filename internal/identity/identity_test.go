package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestVerifyValidToken(t *testing.T) {
	verifier := NewJWTVerifier("test-secret")

	userID, err := verifier.Verify(context.Background(), signToken(t, "test-secret", "user-a"))

	require.NoError(t, err)
	assert.Equal(t, "user-a", userID)
}

func TestVerifyWrongSecret(t *testing.T) {
	verifier := NewJWTVerifier("test-secret")

	_, err := verifier.Verify(context.Background(), signToken(t, "other-secret", "user-a"))

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyEmptySubject(t *testing.T) {
	verifier := NewJWTVerifier("test-secret")

	_, err := verifier.Verify(context.Background(), signToken(t, "test-secret", ""))

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyExpiredToken(t *testing.T) {
	verifier := NewJWTVerifier("test-secret")
	claims := jwt.RegisteredClaims{
		Subject:   "user-a",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyGarbage(t *testing.T) {
	verifier := NewJWTVerifier("test-secret")

	_, err := verifier.Verify(context.Background(), "not-a-token")

	assert.ErrorIs(t, err, ErrInvalidToken)
}
