package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager("test-secret", "storefront", time.Hour)
	require.NoError(t, err)
	return m
}

func TestIssueAndValidate(t *testing.T) {
	m := newTestManager(t)

	token, exp, err := m.Issue("u-1", "alice", "customer")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "customer", claims.Role)
}

func TestValidateToken_Expired(t *testing.T) {
	m := newTestManager(t)

	token, _, err := m.IssueWithTTL("u-1", "alice", "customer", -time.Minute)
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateToken_Invalid(t *testing.T) {
	m := newTestManager(t)
	other, err := NewManager("another-secret", "storefront", time.Hour)
	require.NoError(t, err)

	foreign, _, err := other.Issue("u-1", "alice", "customer")
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u-1", Type: TokenTypeAccess})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"wrong secret": foreign,
		"alg none":     unsigned,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := m.ValidateToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestValidateToken_SubjectFallback(t *testing.T) {
	m := newTestManager(t)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "storefront",
			Subject:   "u-9",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		Type: TokenTypeAccess,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	got, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-9", got.UserID)
}

func TestNewManager_EmptySecret(t *testing.T) {
	_, err := NewManager("", "storefront", time.Hour)
	assert.ErrorIs(t, err, ErrEmptySecret)
}
