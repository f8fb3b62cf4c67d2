package mockapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voluntree/client-go/docstore"
	"github.com/voluntree/client-go/kvstore/kvfakes"
	"github.com/voluntree/client-go/mockapi"
	"github.com/voluntree/client-go/users"
)

// testClock is a race-free manual clock shared between the test and
// the mock server's handler goroutines.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{t: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type mockFixture struct {
	store  *docstore.Store
	server *mockapi.Server
	ts     *httptest.Server
}

func setupMockFixture(t *testing.T, options ...mockapi.Option) *mockFixture {
	t.Helper()

	store := docstore.New(kvfakes.NewFakeStore(), "mock")
	server, err := mockapi.New(store, "test-secret", options...)
	require.NoError(t, err)

	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)
	return &mockFixture{store: store, server: server, ts: ts}
}

func (f *mockFixture) register(t *testing.T, reg users.Registration) {
	t.Helper()
	raw, err := json.Marshal(reg)
	require.NoError(t, err)
	resp, err := http.Post(f.ts.URL+"/auth/register", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func (f *mockFixture) login(t *testing.T, username, password string) (map[string]any, int) {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	resp, err := http.Post(f.ts.URL+"/auth/login", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	defer resp.Body.Close()

	body := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return body, resp.StatusCode
}

func TestLoginIssuesTokenPair(t *testing.T) {
	f := setupMockFixture(t)
	f.register(t, users.Registration{Username: "ada", Email: "ada@x.dev", Password: "pw12345", Role: users.RoleVolunteer})

	body, status := f.login(t, "ada", "pw12345")
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, body["access_token"])
	require.NotEmpty(t, body["refresh_token"])
	require.Equal(t, "bearer", body["token_type"])
}

func TestLoginRejectsBadPassword(t *testing.T) {
	f := setupMockFixture(t)
	f.register(t, users.Registration{Username: "ada", Email: "ada@x.dev", Password: "pw12345", Role: users.RoleVolunteer})

	_, status := f.login(t, "ada", "wrong")
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestRegisterConflict(t *testing.T) {
	f := setupMockFixture(t)
	f.register(t, users.Registration{Username: "ada", Email: "ada@x.dev", Password: "pw12345", Role: users.RoleVolunteer})

	raw, _ := json.Marshal(users.Registration{Username: "ada", Email: "other@x.dev", Password: "pw12345"})
	resp, err := http.Post(f.ts.URL+"/auth/register", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestMeRequiresValidBearer(t *testing.T) {
	f := setupMockFixture(t)
	f.register(t, users.Registration{Username: "ada", Email: "ada@x.dev", Password: "pw12345", Role: users.RoleOrganization})
	body, _ := f.login(t, "ada", "pw12345")

	req, _ := http.NewRequest(http.MethodGet, f.ts.URL+"/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+body["access_token"].(string))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	profile := users.User{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&profile))
	require.Equal(t, "ada", profile.Username)
	require.Equal(t, users.RoleOrganization, profile.Role)
	require.Positive(t, profile.ID)

	// Garbage bearer is rejected.
	req2, _ := http.NewRequest(http.MethodGet, f.ts.URL+"/auth/me", nil)
	req2.Header.Set("Authorization", "Bearer not-a-jwt")
	resp2, err := http.DefaultClient.Do(req2)
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestExpiredAccessTokenRejected(t *testing.T) {
	clock := newTestClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	f := setupMockFixture(t,
		mockapi.WithAccessTTL(time.Minute),
		mockapi.WithNowTime(clock.Now),
	)
	f.register(t, users.Registration{Username: "ada", Email: "ada@x.dev", Password: "pw12345", Role: users.RoleVolunteer})
	body, _ := f.login(t, "ada", "pw12345")

	clock.Advance(2 * time.Minute)

	req, _ := http.NewRequest(http.MethodGet, f.ts.URL+"/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+body["access_token"].(string))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRefreshTokenRotates(t *testing.T) {
	f := setupMockFixture(t)
	f.register(t, users.Registration{Username: "ada", Email: "ada@x.dev", Password: "pw12345", Role: users.RoleVolunteer})
	body, _ := f.login(t, "ada", "pw12345")
	first := body["refresh_token"].(string)

	refresh := func(token string) (map[string]any, int) {
		raw, _ := json.Marshal(map[string]string{"refresh_token": token})
		resp, err := http.Post(f.ts.URL+"/auth/refresh-token", "application/json", bytes.NewReader(raw))
		require.NoError(t, err)
		defer resp.Body.Close()
		out := map[string]any{}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return out, resp.StatusCode
	}

	issued, status := refresh(first)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, issued["access_token"])
	require.NotEqual(t, first, issued["refresh_token"])

	// The consumed token is gone.
	_, status = refresh(first)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestForgotResetFlow(t *testing.T) {
	f := setupMockFixture(t)
	f.register(t, users.Registration{Username: "ada", Email: "ada@x.dev", Password: "oldpw123", Role: users.RoleVolunteer})

	raw, _ := json.Marshal(map[string]string{"email": "ada@x.dev"})
	resp, err := http.Post(f.ts.URL+"/auth/forgot-password", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	token, found := f.server.ResetTokenFor("ada@x.dev")
	require.True(t, found)

	raw, _ = json.Marshal(map[string]string{"token": token, "password": "newpw123"})
	resp, err = http.Post(f.ts.URL+"/auth/reset-password", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, status := f.login(t, "ada", "oldpw123")
	require.Equal(t, http.StatusUnauthorized, status)
	_, status = f.login(t, "ada", "newpw123")
	require.Equal(t, http.StatusOK, status)

	// The reset token is single-use.
	raw, _ = json.Marshal(map[string]string{"token": token, "password": "again123"})
	resp, err = http.Post(f.ts.URL+"/auth/reset-password", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownEmailForgotStillSucceeds(t *testing.T) {
	f := setupMockFixture(t)

	raw, _ := json.Marshal(map[string]string{"email": "ghost@x.dev"})
	resp, err := http.Post(f.ts.URL+"/auth/forgot-password", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "no account enumeration")
}

func TestSeedIsIdempotent(t *testing.T) {
	f := setupMockFixture(t)
	f.server.Seed()
	usersBefore := len(f.store.Table(mockapi.TableUsers))
	require.Positive(t, usersBefore)

	f.server.Seed()
	require.Len(t, f.store.Table(mockapi.TableUsers), usersBefore)

	_, status := f.login(t, "ada", "volunteer1!")
	require.Equal(t, http.StatusOK, status)
}
