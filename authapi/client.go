// Package authapi is the typed client for the remote authentication
// contract. It owns request/response encoding only; token persistence
// and session state live in the session package, and bearer attachment
// happens in the httpclient transport underneath.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	clienterrors "github.com/voluntree/client-go/internal/errors"
	"github.com/voluntree/client-go/users"
)

// Endpoint paths of the remote contract.
const (
	LoginPath          = "/auth/login"
	MePath             = "/auth/me"
	RegisterPath       = "/auth/register"
	ForgotPasswordPath = "/auth/forgot-password"
	ResetPasswordPath  = "/auth/reset-password"
	LogoutPath         = "/auth/logout"
	RefreshTokenPath   = "/auth/refresh-token"
)

// Client calls the remote /auth endpoints. Authenticated calls (Me,
// Logout) go through the intercepting client; credential-establishing
// calls (Login, Register, Refresh, password flows) go through a bare
// client so a 401 on them can never trigger a nested refresh.
type Client struct {
	baseURL string
	authed  *http.Client
	bare    *http.Client
}

// Option modifies a Client instance.
type Option func(*Client)

// WithBareClient overrides the client used for unauthenticated calls
// (primarily for testing).
func WithBareClient(bare *http.Client) Option {
	return func(c *Client) {
		c.bare = bare
	}
}

// NewClient creates an auth API client. authed must carry the
// intercepting transport; it is required because Me and Logout depend
// on bearer attachment.
func NewClient(baseURL string, authed *http.Client, options ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[NewClient] baseURL is required")
	}
	if authed == nil {
		return nil, errors.New("[NewClient] authed http client is required")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		authed:  authed,
		bare:    &http.Client{Timeout: authed.Timeout},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// tokenResponse is the wire form of every token-issuing endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

func (tr tokenResponse) oauth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		RefreshToken: tr.RefreshToken,
	}
	if tr.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return token
}

// errorResponse is the wire form of a failed call.
type errorResponse struct {
	Error string `json:"error"`
}

// Login submits form-encoded credentials and returns the issued token.
func (c *Client) Login(ctx context.Context, username, password string) (*oauth2.Token, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+LoginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, clienterrors.Wrapf(err, "login request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var issued tokenResponse
	if err := c.do(c.bare, req, &issued); err != nil {
		return nil, err
	}
	return issued.oauth2Token(), nil
}

// Me fetches the current user's profile using the stored bearer.
func (c *Client) Me(ctx context.Context) (*users.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+MePath, nil)
	if err != nil {
		return nil, clienterrors.Wrapf(err, "me request")
	}
	user := &users.User{}
	if err := c.do(c.authed, req, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Register creates a new account. No session is established.
func (c *Client) Register(ctx context.Context, reg users.Registration) error {
	return c.postJSON(ctx, c.bare, RegisterPath, reg, nil)
}

// ForgotPassword asks the backend to start a password reset for email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	payload := map[string]string{"email": email}
	return c.postJSON(ctx, c.bare, ForgotPasswordPath, payload, nil)
}

// ResetPassword completes a password reset with the emailed token.
func (c *Client) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	payload := map[string]string{"token": resetToken, "password": newPassword}
	return c.postJSON(ctx, c.bare, ResetPasswordPath, payload, nil)
}

// Logout tells the backend to invalidate the given token. The bearer
// is attached explicitly rather than read from stored credentials, so
// the call still authenticates when it runs after a local logout has
// already cleared them.
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+LogoutPath, nil)
	if err != nil {
		return clienterrors.Wrapf(err, "logout request")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.do(c.bare, req, nil)
}

// RefreshToken exchanges a refresh token for a fresh bearer token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, clienterrors.ErrInvalidToken
	}
	payload := map[string]string{"refresh_token": refreshToken}
	var issued tokenResponse
	if err := c.postJSON(ctx, c.bare, RefreshTokenPath, payload, &issued); err != nil {
		return nil, err
	}
	return issued.oauth2Token(), nil
}

func (c *Client) postJSON(ctx context.Context, via *http.Client, path string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return clienterrors.Wrapf(err, "encode %s payload", path)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return clienterrors.Wrapf(err, "%s request", path)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(via, req, result)
}

// do sends the request, maps failure statuses onto the client error
// set, and decodes a successful body into result when given.
func (c *Client) do(via *http.Client, req *http.Request, result any) error {
	resp, err := via.Do(req)
	if err != nil {
		return clienterrors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp)
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return clienterrors.Wrapf(err, "decode %s response", req.URL.Path)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var remote errorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &remote)
	detail := remote.Error
	if detail == "" {
		detail = strings.TrimSpace(string(raw))
	}

	var base error
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		base = clienterrors.ErrInvalidCredentials
	case http.StatusForbidden:
		base = clienterrors.ErrUnauthorized
	case http.StatusNotFound:
		base = clienterrors.ErrUserNotFound
	case http.StatusConflict:
		base = clienterrors.ErrUserExists
	case http.StatusBadRequest:
		base = clienterrors.ErrInvalidToken
	default:
		base = clienterrors.ErrInternal
	}
	if detail == "" {
		return base
	}
	return fmt.Errorf("%s: %w", detail, base)
}
