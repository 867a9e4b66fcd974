// Package mockdevice serves an in-memory emulation of a device's security
// REST API. Tokens are HS256 JWTs signed with the document's jwt_secret, so
// rotating the secret signs everyone out, as on the real firmware.
package mockdevice

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/zarlcorp/zguard/internal/account"
)

const secretKey = "jwt_secret"

// Server is an emulated device.
type Server struct {
	mu       sync.Mutex
	settings account.Settings
	log      *slog.Logger
	router   chi.Router
}

// New creates a server holding settings. The document must carry a
// string jwt_secret.
func New(settings account.Settings, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	if _, err := secretOf(settings); err != nil {
		return nil, fmt.Errorf("mock device: %w", err)
	}

	s := &Server{settings: settings.Clone(), log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Post("/rest/signIn", s.handleSignIn)
	r.Group(func(r chi.Router) {
		r.Use(s.requireToken(false))
		r.Get("/rest/verifyAuthorization", s.handleVerify)
	})
	r.Group(func(r chi.Router) {
		r.Use(s.requireToken(true))
		r.Get("/rest/securitySettings", s.handleGetSettings)
		r.Post("/rest/securitySettings", s.handlePostSettings)
	})

	s.router = r
	return s, nil
}

// DefaultSettings returns a factory document with one administrator.
func DefaultSettings(username, password, secret string) account.Settings {
	raw, _ := json.Marshal(secret)
	return account.Settings{
		Accounts: []account.Account{{Username: username, Password: password, Admin: true}},
	}.WithPassthrough(secretKey, raw)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Settings returns a copy of the stored document.
func (s *Server) Settings() account.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Clone()
}

// Token signs an access token for a stored account.
func (s *Server) Token(username string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := account.Find(s.settings.Accounts, username)
	if !ok {
		return "", fmt.Errorf("token: no account %q", username)
	}
	return s.sign(a)
}

type ctxClaims struct {
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
	jwt.RegisteredClaims
}

func (s *Server) sign(a account.Account) (string, error) {
	secret, err := secretOf(s.settings)
	if err != nil {
		return "", err
	}
	claims := ctxClaims{
		Username: a.Username,
		Admin:    a.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (s *Server) verify(token string) (ctxClaims, error) {
	secret, err := secretOf(s.settings)
	if err != nil {
		return ctxClaims{}, err
	}

	var claims ctxClaims
	_, err = jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return ctxClaims{}, fmt.Errorf("verify token: %w", err)
	}

	// the account must still exist with the same role
	a, ok := account.Find(s.settings.Accounts, claims.Username)
	if !ok || a.Admin != claims.Admin {
		return ctxClaims{}, errors.New("verify token: account changed")
	}
	return claims, nil
}

func (s *Server) requireToken(admin bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				writeError(w, http.StatusUnauthorized, "missing token")
				return
			}

			s.mu.Lock()
			claims, err := s.verify(token)
			s.mu.Unlock()
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if admin && !claims.Admin {
				writeError(w, http.StatusForbidden, "admin required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := account.Find(s.settings.Accounts, req.Username)
	if !ok || a.Password != req.Password {
		writeError(w, http.StatusUnauthorized, "")
		return
	}

	token, err := s.sign(a)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
}

func (s *Server) handleVerify(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Settings())
}

func (s *Server) handlePostSettings(w http.ResponseWriter, r *http.Request) {
	var next account.Settings
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if _, err := secretOf(next); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	s.settings = next.Clone()
	s.mu.Unlock()

	s.log.Info("security settings updated", "accounts", len(next.Accounts))
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func secretOf(s account.Settings) (string, error) {
	raw, ok := s.Passthrough(secretKey)
	if !ok {
		return "", errors.New("missing jwt_secret")
	}
	var secret string
	if err := json.Unmarshal(raw, &secret); err != nil || secret == "" {
		return "", errors.New("jwt_secret must be a non-empty string")
	}
	return secret, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, map[string]string{"message": msg})
}
