package attendance

import (
	"errors"
	"time"

	"sattva/globals"

	"github.com/golang-jwt/jwt/v5"
)

const joinTokenType = "session_join"

var ErrInvalidJoinToken = errors.New("invalid join token")

// JoinClaims is the short-lived token that admits one party into one
// session's meeting room.
type JoinClaims struct {
	BookingID string `json:"bookingId"`
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	Type      string `json:"type"`
	jwt.RegisteredClaims
}

// IssueJoinToken signs a join token valid for ttl.
func IssueJoinToken(bookingID, userID, role string, ttl time.Duration) (string, error) {
	claims := &JoinClaims{
		BookingID: bookingID,
		UserID:    userID,
		Role:      role,
		Type:      joinTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(globals.JwtSecret)
}

// ParseJoinToken validates signature, expiry and token type.
func ParseJoinToken(tokenString string) (*JoinClaims, error) {
	claims := &JoinClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return globals.JwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidJoinToken
	}
	if claims.Type != joinTokenType {
		return nil, ErrInvalidJoinToken
	}
	return claims, nil
}
