// Package authapi is the HTTP client for the remote authentication
// endpoints consumed by the session core.
package authapi

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
)

const (
	loginPath   = "/api/auth/login"
	refreshPath = "/api/auth/refresh"

	defaultTimeout = 10 * time.Second
	maxErrorBody   = 1 << 20
)

var (
	// ErrInvalidCredentials indicates the login was rejected by the server.
	ErrInvalidCredentials = errors.New("authapi: invalid credentials")
	// ErrRefreshRejected indicates the refresh token was rejected or expired.
	ErrRefreshRejected = errors.New("authapi: refresh token rejected")
)

// Error carries the server's error payload for a non-2xx response.
type Error struct {
	Status  int
	Message string

	kind error
}

func (e *Error) Error() string {
	return fmt.Sprintf("authapi: %s (status %d)", e.Message, e.Status)
}

func (e *Error) Unwrap() error { return e.kind }

// Membership is one tenant the authenticated user belongs to, as returned
// by the auth endpoints.
type Membership struct {
	CompanyID   string `json:"company_id"`
	CompanyName string `json:"company_name"`
	Role        string `json:"role"`
}

// LoginResult is the response shape shared by the login and refresh
// endpoints.
type LoginResult struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	UserID       string       `json:"user_id"`
	Email        string       `json:"email"`
	Name         string       `json:"name"`
	Companies    []Membership `json:"companies"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// Client talks to the remote authentication API. It performs single
// round trips with no built-in retry; callers surface failures.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures Client behavior.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient constructs a client for the given API base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login exchanges credentials for a fresh token set. A 401/403 response
// unwraps to ErrInvalidCredentials; other non-2xx responses surface the
// server payload via *Error.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	return c.post(ctx, loginPath, loginRequest{Email: email, Password: password}, classifyLogin)
}

// Refresh redeems a refresh token for a new token set. A 401/403 response
// unwraps to ErrRefreshRejected.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (LoginResult, error) {
	return c.post(ctx, refreshPath, refreshRequest{RefreshToken: refreshToken}, classifyRefresh)
}

func (c *Client) post(ctx context.Context, path string, payload any, classify func(int) error) (LoginResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return LoginResult{}, fmt.Errorf("encode auth request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return LoginResult{}, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return LoginResult{}, &Error{
			Status:  resp.StatusCode,
			Message: errorMessage(resp),
			kind:    classify(resp.StatusCode),
		}
	}

	var out LoginResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return LoginResult{}, fmt.Errorf("decode auth response: %w", err)
	}
	return out, nil
}

// errorMessage extracts the server's error text, falling back to the
// generic status text when the body is absent or unparseable.
func errorMessage(resp *http.Response) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&payload)
	switch {
	case payload.Error != "":
		return payload.Error
	case payload.Message != "":
		return payload.Message
	}
	return http.StatusText(resp.StatusCode)
}

func classifyLogin(status int) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return ErrInvalidCredentials
	}
	return nil
}

func classifyRefresh(status int) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return ErrRefreshRejected
	}
	return nil
}
