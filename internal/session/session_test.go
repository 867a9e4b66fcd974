package session

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zarlcorp/zguard/internal/device"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

type fakeAuth struct {
	token     string
	signInTok string
	signInErr error
	verifyErr error
	verified  int
}

func (f *fakeAuth) SignIn(context.Context, string, string) (string, error) {
	return f.signInTok, f.signInErr
}

func (f *fakeAuth) VerifyAuthorization(context.Context) error {
	f.verified++
	return f.verifyErr
}

func (f *fakeAuth) SetToken(token string) { f.token = token }

func TestParseClaims(t *testing.T) {
	tok := signToken(t, jwt.MapClaims{"username": "admin", "admin": true})

	c, err := ParseClaims(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Username != "admin" || !c.Admin {
		t.Errorf("claims = %+v", c)
	}
}

func TestParseClaimsRejects(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"missing username", signToken(t, jwt.MapClaims{"admin": true})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseClaims(tt.token); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewWithToken(t *testing.T) {
	auth := &fakeAuth{}
	tok := signToken(t, jwt.MapClaims{"username": "guest", "admin": false})

	s, err := New(auth, tok)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !s.Authenticated() {
		t.Error("should be authenticated")
	}
	if auth.token != tok {
		t.Error("token not passed to authenticator")
	}
	if s.Claims().Username != "guest" {
		t.Errorf("claims = %+v", s.Claims())
	}
}

func TestNewSignedOut(t *testing.T) {
	s, err := New(&fakeAuth{}, "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Authenticated() {
		t.Error("empty token is signed out")
	}
	if err := s.Refresh(context.Background()); err != nil {
		t.Errorf("refresh signed out: %v", err)
	}
}

func TestNewInvalidToken(t *testing.T) {
	if _, err := New(&fakeAuth{}, "bad"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSignIn(t *testing.T) {
	auth := &fakeAuth{signInTok: signToken(t, jwt.MapClaims{"username": "admin", "admin": true})}
	s, _ := New(auth, "")

	if err := s.SignIn(context.Background(), "admin", "admin"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if !s.Claims().Admin {
		t.Error("admin claim lost")
	}
	if auth.token == "" {
		t.Error("token not set on authenticator")
	}
}

func TestSignInError(t *testing.T) {
	auth := &fakeAuth{signInErr: &device.Error{StatusCode: 401, Message: "Unauthorized"}}
	s, _ := New(auth, "")

	err := s.SignIn(context.Background(), "admin", "wrong")
	if !errors.Is(err, device.ErrUnauthorized) {
		t.Errorf("err = %v", err)
	}
	if s.Authenticated() {
		t.Error("failed sign in should not authenticate")
	}
}

func TestRefreshVerifies(t *testing.T) {
	auth := &fakeAuth{}
	s, _ := New(auth, signToken(t, jwt.MapClaims{"username": "admin", "admin": true}))

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if auth.verified != 1 {
		t.Errorf("verified = %d, want 1", auth.verified)
	}
	if !s.Authenticated() {
		t.Error("should stay signed in")
	}
}

func TestRefreshUnauthorizedSignsOut(t *testing.T) {
	auth := &fakeAuth{verifyErr: &device.Error{StatusCode: 401, Message: "Unauthorized"}}
	s, _ := New(auth, signToken(t, jwt.MapClaims{"username": "admin", "admin": true}))

	if err := s.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if s.Authenticated() {
		t.Error("rejected token should sign out")
	}
	if auth.token != "" {
		t.Error("authenticator token should be cleared")
	}
}

func TestRefreshTransportErrorKeepsSession(t *testing.T) {
	auth := &fakeAuth{verifyErr: errors.New("connection refused")}
	s, _ := New(auth, signToken(t, jwt.MapClaims{"username": "admin", "admin": true}))

	if err := s.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !s.Authenticated() {
		t.Error("transport error should not sign out")
	}
}

func TestVerifiedAppliesOutcome(t *testing.T) {
	auth := &fakeAuth{}
	s, _ := New(auth, signToken(t, jwt.MapClaims{"username": "admin", "admin": true}))

	if err := s.Verified(nil); err != nil {
		t.Fatalf("verified: %v", err)
	}
	if auth.verified != 0 {
		t.Error("Verified must not call the device")
	}

	err := s.Verified(&device.Error{StatusCode: 401, Message: "Unauthorized"})
	if !errors.Is(err, device.ErrUnauthorized) {
		t.Errorf("err = %v", err)
	}
	if s.Authenticated() {
		t.Error("should be signed out")
	}
}

func TestAdoptRejectsBadToken(t *testing.T) {
	s, _ := New(&fakeAuth{}, "")
	if err := s.Adopt("garbage"); err == nil {
		t.Fatal("expected error")
	}
	if s.Authenticated() {
		t.Error("bad token must not authenticate")
	}
}
