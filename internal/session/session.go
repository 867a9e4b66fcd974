// Package session tracks the operator's device login: the bearer token and
// the identity it carries.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zarlcorp/zguard/internal/device"
)

// Claims is the identity encoded in a device access token.
type Claims struct {
	Username string
	Admin    bool
}

// Authenticator is the part of the device API a session needs.
type Authenticator interface {
	SignIn(ctx context.Context, username, password string) (string, error)
	VerifyAuthorization(ctx context.Context) error
	SetToken(token string)
}

// Session holds a device token.
type Session struct {
	auth   Authenticator
	token  string
	claims Claims
}

// New creates a session. An empty token means signed out.
func New(auth Authenticator, token string) (*Session, error) {
	s := &Session{auth: auth}
	if token == "" {
		return s, nil
	}
	if err := s.Adopt(token); err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	return s, nil
}

// SignIn exchanges credentials for a token and adopts it.
func (s *Session) SignIn(ctx context.Context, username, password string) error {
	token, err := s.auth.SignIn(ctx, username, password)
	if err != nil {
		return err
	}
	if err := s.Adopt(token); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	return nil
}

// Refresh re-validates the token and re-reads its identity. A rejected
// token signs the session out.
func (s *Session) Refresh(ctx context.Context) error {
	if s.token == "" {
		return nil
	}
	return s.Verified(s.auth.VerifyAuthorization(ctx))
}

// Verified applies the outcome of a token verification performed
// elsewhere, such as in a background command.
func (s *Session) Verified(verifyErr error) error {
	if s.token == "" {
		return nil
	}

	if verifyErr != nil {
		if errors.Is(verifyErr, device.ErrUnauthorized) {
			s.SignOut()
		}
		return fmt.Errorf("refresh: %w", verifyErr)
	}

	claims, err := ParseClaims(s.token)
	if err != nil {
		s.SignOut()
		return fmt.Errorf("refresh: %w", err)
	}
	s.claims = claims
	return nil
}

// SignOut drops the token.
func (s *Session) SignOut() {
	s.token = ""
	s.claims = Claims{}
	s.auth.SetToken("")
}

// Authenticated reports whether a token is held.
func (s *Session) Authenticated() bool { return s.token != "" }

// Token returns the bearer token, or "".
func (s *Session) Token() string { return s.token }

// Claims returns the identity of the signed-in operator.
func (s *Session) Claims() Claims { return s.claims }

// Adopt takes over a token obtained elsewhere.
func (s *Session) Adopt(token string) error {
	claims, err := ParseClaims(token)
	if err != nil {
		return err
	}
	s.token = token
	s.claims = claims
	s.auth.SetToken(token)
	return nil
}

// ParseClaims decodes the identity from a token without checking its
// signature; the device is the verifier.
func ParseClaims(token string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}

	var c Claims
	if v, ok := mc["username"].(string); ok {
		c.Username = v
	}
	if v, ok := mc["admin"].(bool); ok {
		c.Admin = v
	}
	if c.Username == "" {
		return Claims{}, errors.New("parse token: missing username claim")
	}
	return c, nil
}
