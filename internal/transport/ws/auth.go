package ws

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrBadToken = errors.New("ws: invalid token")

// Claims is the HELLO token payload. Subject is the participant id.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for a participant.
func IssueToken(secret []byte, participantID, name string, ttl time.Duration, now time.Time) (string, error) {
	c := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  participantID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
}

// verify returns the participant id and display name carried by token.
func verify(secret []byte, token string) (string, string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "", ErrBadToken
	}
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", "", errors.Join(ErrBadToken, err)
	}
	if c.Subject == "" {
		return "", "", ErrBadToken
	}
	return c.Subject, c.Name, nil
}
