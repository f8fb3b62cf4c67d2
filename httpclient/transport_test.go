package httpclient_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/voluntree/client-go/httpclient"
	clienterrors "github.com/voluntree/client-go/internal/errors"
)

// fakeCredentials scripts the token lifecycle for transport tests.
type fakeCredentials struct {
	mu           sync.Mutex
	token        string
	refreshToken string
	refreshErr   error
	refreshCalls int
	expireCalls  int
}

func (f *fakeCredentials) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeCredentials) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.token = f.refreshToken
	return nil
}

func (f *fakeCredentials) Expire() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireCalls++
}

func newTestClient(t *testing.T, creds httpclient.Credentials) *http.Client {
	t.Helper()
	client, err := httpclient.New(creds, 0)
	require.NoError(t, err)
	return client
}

func TestAttachesBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	client := newTestClient(t, &fakeCredentials{token: "tok-1"})
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "Bearer tok-1", gotAuth)
}

func TestAnonymousWhenNoToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	client := newTestClient(t, &fakeCredentials{})
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	require.Empty(t, gotAuth)
}

func TestRefreshAndRetryOnUnauthorized(t *testing.T) {
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		requests = append(requests, auth)
		if auth != "Bearer tok-new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	creds := &fakeCredentials{token: "tok-stale", refreshToken: "tok-new"}
	client := newTestClient(t, creds)

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))
	require.Equal(t, 1, creds.refreshCalls)
	require.Equal(t, 0, creds.expireCalls)
	require.Equal(t, []string{"Bearer tok-stale", "Bearer tok-new"}, requests)
}

func TestRetryBodyIsReplayed(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		if r.Header.Get("Authorization") != "Bearer tok-new" {
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer server.Close()

	creds := &fakeCredentials{token: "tok-stale", refreshToken: "tok-new"}
	client := newTestClient(t, creds)

	resp, err := client.Post(server.URL, "text/plain", strings.NewReader("payload"))
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, []string{"payload", "payload"}, bodies)
}

func TestSingleRefreshWhenRetryAlsoUnauthorized(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	creds := &fakeCredentials{token: "tok-stale", refreshToken: "tok-still-bad"}
	client := newTestClient(t, creds)

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	// The retried 401 comes back to the caller; no refresh loop.
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 2, hits)
	require.Equal(t, 1, creds.refreshCalls)
	require.Equal(t, 0, creds.expireCalls)
}

func TestRefreshFailureExpiresSessionOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	creds := &fakeCredentials{token: "tok-stale", refreshErr: clienterrors.ErrInvalidToken}
	client := newTestClient(t, creds)

	_, err := client.Get(server.URL)
	require.Error(t, err)
	require.ErrorIs(t, err, clienterrors.ErrSessionExpired)
	require.Equal(t, 1, creds.refreshCalls)
	require.Equal(t, 1, creds.expireCalls)
}

func TestUnauthenticated401IsNotRefreshed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	creds := &fakeCredentials{refreshToken: "tok-new"}
	client := newTestClient(t, creds)

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 0, creds.refreshCalls, "no session, nothing to refresh")
}

func TestNonAuthFailuresPassThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	creds := &fakeCredentials{token: "tok-1"}
	client := newTestClient(t, creds)

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, 0, creds.refreshCalls)
}

func TestNewTransportRequiresCredentials(t *testing.T) {
	_, err := httpclient.NewTransport(nil)
	require.Error(t, err)
}
