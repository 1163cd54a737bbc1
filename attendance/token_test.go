package attendance

import (
	"testing"
	"time"

	"sattva/globals"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinTokenRoundTrip(t *testing.T) {
	globals.JwtSecret = []byte("test-secret")

	token, err := IssueJoinToken("bk_1", "u_1", "client", 2*time.Minute)
	require.NoError(t, err)

	claims, err := ParseJoinToken(token)
	require.NoError(t, err)
	assert.Equal(t, "bk_1", claims.BookingID)
	assert.Equal(t, "u_1", claims.UserID)
	assert.Equal(t, "client", claims.Role)
}

func TestJoinTokenExpired(t *testing.T) {
	globals.JwtSecret = []byte("test-secret")

	token, err := IssueJoinToken("bk_1", "u_1", "client", -time.Minute)
	require.NoError(t, err)

	_, err = ParseJoinToken(token)
	assert.ErrorIs(t, err, ErrInvalidJoinToken)
}

func TestJoinTokenWrongSecret(t *testing.T) {
	globals.JwtSecret = []byte("test-secret")
	token, err := IssueJoinToken("bk_1", "u_1", "counselor", 2*time.Minute)
	require.NoError(t, err)

	globals.JwtSecret = []byte("other-secret")
	defer func() { globals.JwtSecret = []byte("test-secret") }()

	_, err = ParseJoinToken(token)
	assert.ErrorIs(t, err, ErrInvalidJoinToken)
}

func TestJoinTokenRejectsAccessTokens(t *testing.T) {
	globals.JwtSecret = []byte("test-secret")

	// A regular access token signed with the same secret must not open
	// a meeting room.
	plain := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u_1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	signed, err := plain.SignedString(globals.JwtSecret)
	require.NoError(t, err)

	_, err = ParseJoinToken(signed)
	assert.ErrorIs(t, err, ErrInvalidJoinToken)
}
