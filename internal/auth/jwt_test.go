package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *TokenService {
	return NewTokenService("test-secret-key-for-session-tokens", 15*time.Minute)
}

func TestIssueAndVerify(t *testing.T) {
	svc := newTestService()

	token, expiresAt, err := svc.Issue("user-123", "test@example.com", RoleCustomer)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "test@example.com", claims.Email)
	assert.Equal(t, RoleCustomer, claims.Role)
	assert.Equal(t, "user-123", claims.Subject)
}

func TestVerify_Garbage(t *testing.T) {
	svc := newTestService()

	claims, err := svc.Verify("not-a-token")

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}

func TestVerify_WrongSecret(t *testing.T) {
	issuer := NewTokenService("secret-one", 15*time.Minute)
	verifier := NewTokenService("secret-two", 15*time.Minute)

	token, _, err := issuer.Issue("user-123", "test@example.com", RoleAdmin)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Expired(t *testing.T) {
	svc := NewTokenService("test-secret", 1*time.Millisecond)

	token, _, err := svc.Issue("user-123", "test@example.com", RoleCustomer)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestClaims_IsStaff(t *testing.T) {
	assert.False(t, (&Claims{Role: RoleCustomer}).IsStaff())
	assert.True(t, (&Claims{Role: RoleModerator}).IsStaff())
	assert.True(t, (&Claims{Role: RoleAdmin}).IsStaff())
	assert.False(t, (&Claims{}).IsStaff())
}
