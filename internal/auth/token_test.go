package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("s3cret", time.Hour)

	raw, err := iss.Issue("user-1", "ADMIN")
	require.NoError(t, err)

	claims, err := Parse(raw, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "ADMIN", claims.Role)
}

func TestParse_Rejects(t *testing.T) {
	iss := NewIssuer("s3cret", time.Hour)
	valid, err := iss.Issue("user-1", "")
	require.NoError(t, err)

	expiredIss := NewIssuer("s3cret", time.Hour)
	expiredIss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiredIss.Issue("user-1", "")
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := map[string]struct {
		raw    string
		secret string
	}{
		"wrong secret": {valid, "other"},
		"expired":      {expired, "s3cret"},
		"garbage":      {"not-a-jwt", "s3cret"},
		"no subject":   {noSubject, "s3cret"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(tt.raw, tt.secret)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestParse_RejectsNoneAlgorithm(t *testing.T) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = Parse(raw, "s3cret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
