package pkg

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	v := NewTokenVerifier("k1")
	tok, err := v.Issue("u1", time.Minute)
	require.NoError(t, err)

	claims, err := v.ParseAccess(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "access", claims.Subject)
}

func TestParseRejectsForeignOrBrokenTokens(t *testing.T) {
	v := NewTokenVerifier("k1")
	other, err := NewTokenVerifier("k2").Issue("u1", time.Minute)
	require.NoError(t, err)

	_, err = v.ParseAccess(other)
	assert.Error(t, err)
	_, err = v.ParseAccess("not.a.token")
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.ParseAccess(raw)
	assert.Error(t, err)
}

func TestParseExpired(t *testing.T) {
	v := NewTokenVerifier("k1")
	past := time.Now().Add(-time.Hour)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Minute)),
		},
	}).SignedString([]byte("k1"))
	require.NoError(t, err)

	_, err = v.ParseAccess(tok)
	assert.True(t, errors.Is(err, ErrTokenExpired))
}

func TestParseRequiresUserID(t *testing.T) {
	v := NewTokenVerifier("k1")
	tok, err := v.Issue("", time.Minute)
	require.NoError(t, err)
	_, err = v.ParseAccess(tok)
	assert.True(t, errors.Is(err, ErrTokenParseFailure))
}
