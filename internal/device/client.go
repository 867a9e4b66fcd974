// Package device provides a client for a device's security REST API:
// sign-in, token verification and the security settings document.
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zarlcorp/zguard/internal/account"
)

const (
	signInPath              = "/rest/signIn"
	securitySettingsPath    = "/rest/securitySettings"
	verifyAuthorizationPath = "/rest/verifyAuthorization"
)

// ErrUnauthorized is matched by errors for 401 responses.
var ErrUnauthorized = errors.New("unauthorized")

// DefaultTimeout bounds each request when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Config holds the device address and an optional bearer token.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Client communicates with a device.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the device at cfg.URL.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
	}
}

// SetToken replaces the bearer token sent with each request.
func (c *Client) SetToken(token string) { c.token = token }

// WithToken returns a copy of the client that sends token. The copy shares
// the underlying http.Client.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Token returns the current bearer token.
func (c *Client) Token() string { return c.token }

// URL returns the device base URL.
func (c *Client) URL() string { return c.baseURL }

// SignIn exchanges credentials for an access token.
func (c *Client) SignIn(ctx context.Context, username, password string) (string, error) {
	body, err := c.doJSON(ctx, http.MethodPost, signInPath, signInRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return "", fmt.Errorf("sign in: %w", err)
	}

	var resp signInResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("sign in: unmarshal: %w", err)
	}
	if resp.AccessToken == "" {
		return "", errors.New("sign in: empty access token")
	}

	return resp.AccessToken, nil
}

// VerifyAuthorization checks that the current token is still accepted.
func (c *Client) VerifyAuthorization(ctx context.Context) error {
	if _, err := c.doJSON(ctx, http.MethodGet, verifyAuthorizationPath, nil); err != nil {
		return fmt.Errorf("verify authorization: %w", err)
	}
	return nil
}

// SecuritySettings fetches the security settings document.
func (c *Client) SecuritySettings(ctx context.Context) (account.Settings, error) {
	body, err := c.doJSON(ctx, http.MethodGet, securitySettingsPath, nil)
	if err != nil {
		return account.Settings{}, fmt.Errorf("get security settings: %w", err)
	}

	var s account.Settings
	if err := json.Unmarshal(body, &s); err != nil {
		return account.Settings{}, fmt.Errorf("get security settings: %w", err)
	}

	return s, nil
}

// UpdateSecuritySettings replaces the whole security settings document and
// returns what the device stored.
func (c *Client) UpdateSecuritySettings(ctx context.Context, s account.Settings) (account.Settings, error) {
	body, err := c.doJSON(ctx, http.MethodPost, securitySettingsPath, s)
	if err != nil {
		return account.Settings{}, fmt.Errorf("update security settings: %w", err)
	}

	// some firmware answers with an empty body
	if len(bytes.TrimSpace(body)) == 0 {
		return s, nil
	}

	var stored account.Settings
	if err := json.Unmarshal(body, &stored); err != nil {
		return account.Settings{}, fmt.Errorf("update security settings: %w", err)
	}

	return stored, nil
}

// SettingsFetcher adapts the client to a resource fetcher.
type SettingsFetcher struct {
	Client *Client
}

func (f SettingsFetcher) Fetch(ctx context.Context) (account.Settings, error) {
	return f.Client.SecuritySettings(ctx)
}

func (f SettingsFetcher) Store(ctx context.Context, s account.Settings) (account.Settings, error) {
	return f.Client.UpdateSecuritySettings(ctx, s)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var r io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(body))
		var apiErr apiErrorResponse
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &Error{StatusCode: resp.StatusCode, Message: msg}
	}

	return body, nil
}

// Error represents a non-2xx device response.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("device: %s (status %d)", e.Message, e.StatusCode)
}

// Is matches ErrUnauthorized for 401 responses.
func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// json wire types

type signInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type signInResponse struct {
	AccessToken string `json:"access_token"`
}

type apiErrorResponse struct {
	Message string `json:"message"`
}
