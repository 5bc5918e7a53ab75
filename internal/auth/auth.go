// Package auth holds the session credentials and reads the claims of the
// backend's JWT. The client cannot verify the signature; it only inspects
// the claims to decide whether the token is worth presenting.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoCredentials = errors.New("not logged in")
	ErrTokenExpired  = errors.New("token expired")
)

// Claims are the fields of the token the client cares about.
type Claims struct {
	Subject   string
	UserID    int64
	Roles     []string
	ExpiresAt time.Time // zero when the token carries no exp
}

// ParseClaims decodes a token without verifying its signature.
func ParseClaims(token string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}

	var c Claims
	c.Subject, _ = mc.GetSubject()
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	switch v := mc["userId"].(type) {
	case float64:
		c.UserID = int64(v)
	case string:
		c.UserID, _ = strconv.ParseInt(v, 10, 64)
	}
	switch v := mc["roles"].(type) {
	case []any:
		for _, r := range v {
			if s, ok := r.(string); ok {
				c.Roles = append(c.Roles, s)
			}
		}
	case string:
		c.Roles = []string{v}
	}
	return c, nil
}

// Credentials are what the client needs to talk to the backend.
type Credentials struct {
	Token    string
	UserID   int64
	Username string
}

// NewCredentials builds credentials from a login response. A zero userID
// is taken from the token's claims.
func NewCredentials(token string, userID int64, username string) (Credentials, error) {
	claims, err := ParseClaims(token)
	if err != nil {
		return Credentials{}, err
	}
	if userID == 0 {
		userID = claims.UserID
	}
	if username == "" {
		username = claims.Subject
	}
	return Credentials{Token: token, UserID: userID, Username: username}, nil
}

// Validate returns ErrNoCredentials when there is no token and
// ErrTokenExpired when the token is past its exp at now.
func (c *Credentials) Validate(now time.Time) error {
	if c == nil || c.Token == "" {
		return ErrNoCredentials
	}
	claims, err := ParseClaims(c.Token)
	if err != nil {
		return err
	}
	if !claims.ExpiresAt.IsZero() && !now.Before(claims.ExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}
