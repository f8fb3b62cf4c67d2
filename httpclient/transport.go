// Package httpclient wraps outbound HTTP with bearer-credential
// attachment and a single transparent refresh-and-retry on an
// authorization failure. It is layered under every call the session
// manager and data-access functions make and is deliberately ignorant
// of what triggered a request.
package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	clienterrors "github.com/voluntree/client-go/internal/errors"
)

// Credentials is the transport's view of the session's bearer token.
// The session manager owns the token; the transport only reads it,
// asks for a refresh, and signals expiry.
type Credentials interface {
	// Token returns the current bearer token, or "" when anonymous.
	Token() string

	// Refresh obtains and stores a replacement token.
	Refresh(ctx context.Context) error

	// Expire is called when a refresh fails: the session is
	// unrecoverable and the client must be sent back to login.
	Expire()
}

type retryMarkerKey struct{}

// withRetryMarker marks a request so a second authorization failure
// cannot trigger a second refresh.
func withRetryMarker(ctx context.Context) context.Context {
	return context.WithValue(ctx, retryMarkerKey{}, true)
}

func hasRetryMarker(ctx context.Context) bool {
	marked, _ := ctx.Value(retryMarkerKey{}).(bool)
	return marked
}

// Transport is an http.RoundTripper implementing the interceptor.
type Transport struct {
	base   http.RoundTripper
	creds  Credentials
	logger zerolog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

// Option modifies a Transport instance.
type Option func(*Transport)

// WithBase sets the underlying round tripper (primarily for testing).
func WithBase(base http.RoundTripper) Option {
	return func(t *Transport) {
		t.base = base
	}
}

// NewTransport creates the intercepting round tripper.
func NewTransport(creds Credentials, options ...Option) (*Transport, error) {
	if creds == nil {
		return nil, errors.New("[NewTransport] credentials source is required")
	}
	t := &Transport{
		base:   http.DefaultTransport,
		creds:  creds,
		logger: log.With().Str("component", "httpclient").Logger(),
	}
	for _, opt := range options {
		opt(t)
	}
	return t, nil
}

// New builds an *http.Client with the intercepting transport installed.
func New(creds Credentials, timeout time.Duration, options ...Option) (*http.Client, error) {
	transport, err := NewTransport(creds, options...)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// RoundTrip attaches the bearer token, sends the request, and on a 401
// performs exactly one refresh-and-retry. If the refresh fails the
// session is expired and the original request is rejected with
// ErrSessionExpired. Requests that went out unauthenticated are never
// refreshed; there is no session to recover.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token := t.creds.Token()
	resp, err := t.base.RoundTrip(t.authorize(req, token))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || token == "" || hasRetryMarker(req.Context()) {
		return resp, nil
	}

	// One refresh attempt per original request.
	resp.Body.Close()
	if err := t.creds.Refresh(req.Context()); err != nil {
		t.logger.Warn().Err(err).Str("url", req.URL.Path).Msg("token refresh failed, expiring session")
		t.creds.Expire()
		return nil, clienterrors.Wrapf(clienterrors.ErrSessionExpired, "refresh failed (%v)", err)
	}

	// Re-enter RoundTrip so the resend picks up the refreshed token;
	// the marker on the replayed request stops a second refresh.
	retry, err := t.replay(req)
	if err != nil {
		return nil, err
	}
	return t.RoundTrip(retry)
}

// authorize returns a clone of req with the bearer attached. Requests
// without a stored token go out unauthenticated.
func (t *Transport) authorize(req *http.Request, token string) *http.Request {
	clone := req.Clone(req.Context())
	if token != "" {
		clone.Header.Set("Authorization", "Bearer "+token)
	}
	return clone
}

// replay rebuilds the original request, including its body, carrying
// the retry marker so the resend cannot refresh again.
func (t *Transport) replay(req *http.Request) (*http.Request, error) {
	retry := req.Clone(withRetryMarker(req.Context()))
	if req.Body != nil {
		if req.GetBody == nil {
			return nil, errors.New("[Transport.replay] request body is not replayable")
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, errors.Wrap(err, "[Transport.replay] reopen request body")
		}
		retry.Body = body
	}
	return retry, nil
}
