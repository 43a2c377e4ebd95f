package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	a := NewJWTAuthenticator("s3cret", "goldvault", "goldvault")

	tok, err := a.GenerateToken("user-1", time.Hour)
	require.NoError(t, err)

	parsed, err := a.ValidateAccessToken(tok)
	require.NoError(t, err)
	sub, err := Subject(parsed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestValidateRejects(t *testing.T) {
	a := NewJWTAuthenticator("s3cret", "goldvault", "goldvault")

	expired, err := a.GenerateToken("user-1", -time.Minute)
	require.NoError(t, err)
	_, err = a.ValidateAccessToken(expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	other, err := NewJWTAuthenticator("other", "goldvault", "goldvault").GenerateToken("user-1", time.Hour)
	require.NoError(t, err)
	_, err = a.ValidateAccessToken(other)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	wrongIss, err := NewJWTAuthenticator("s3cret", "goldvault", "someone-else").GenerateToken("user-1", time.Hour)
	require.NoError(t, err)
	_, err = a.ValidateAccessToken(wrongIss)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1", "iss": "goldvault", "aud": "goldvault"})
	s, err := noExp.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = a.ValidateAccessToken(s)
	assert.Error(t, err)
}
