package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
)

const testSecret = "test-secret-at-least-32-bytes-long!!"

func TestTokenManager_IssueAndVerify(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour)

	token, err := m.Issue("42", "ada@example.com")
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "42", claims.Subject)
}

func TestTokenManager_WrongSecret(t *testing.T) {
	token, err := NewTokenManager("another-secret-another-secret-xx", time.Hour).Issue("42", "")
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_Expired(t *testing.T) {
	m := NewTokenManager(testSecret, time.Minute)
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err := m.Issue("42", "")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenManager_RejectsOtherAlgorithms(t *testing.T) {
	claims := &Claims{UserID: "42", RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsForeignIssuer(t *testing.T) {
	claims := &Claims{UserID: "42", RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_SubjectFallback(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer, Subject: "7"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	got, err := NewTokenManager(testSecret, time.Hour).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "7", got.UserID)
}

func TestTokenManager_Identity(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour)

	id, err := m.Identity("")
	require.NoError(t, err)
	assert.Equal(t, domain.Guest, id)

	token, err := m.Issue("u1", "")
	require.NoError(t, err)
	id, err = m.Identity(token)
	require.NoError(t, err)
	assert.Equal(t, domain.Authenticated("u1"), id)

	_, err = m.Identity("not-a-jwt")
	assert.Error(t, err)
}

func TestTokenManager_Validator(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour)
	token, err := m.Issue("u1", "u1@example.com")
	require.NoError(t, err)

	claims, err := m.Validator()(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "u1@example.com", claims.Email)

	_, err = m.Validator()("garbage")
	assert.Error(t, err)
}
