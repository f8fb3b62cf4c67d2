package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/voluntree/client-go/httpclient"
	clienterrors "github.com/voluntree/client-go/internal/errors"
	"github.com/voluntree/client-go/kvstore"
	"github.com/voluntree/client-go/users"
)

// Durable storage keys. The token and cached user are written and
// cleared together: no completed operation leaves one without the
// other.
const (
	tokenKey = "auth:token"
	userKey  = "auth:user"
)

// Refresher exchanges a refresh token for a fresh bearer token. It is
// bound after construction because the API client that implements it
// is itself built on top of this store's transport.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// CredentialStore owns the persisted credential token and cached user.
// It is the only writer of those keys and doubles as the transport's
// httpclient.Credentials: reads for bearer attachment, silent refresh,
// and the expire-to-login path all live here.
type CredentialStore struct {
	kv     kvstore.Store
	nav    Navigator
	logger zerolog.Logger

	mu        sync.Mutex
	refresher Refresher
	onExpire  func()
}

var _ httpclient.Credentials = (*CredentialStore)(nil)

// NewCredentialStore creates the store. nav is where the client is sent
// when a refresh fails and the session is unrecoverable.
func NewCredentialStore(kv kvstore.Store, nav Navigator) *CredentialStore {
	return &CredentialStore{
		kv:     kv,
		nav:    nav,
		logger: log.With().Str("component", "credstore").Logger(),
	}
}

// BindRefresher wires the token-refresh call once the API client
// exists. Until bound, a refresh attempt fails and expires the session.
func (cs *CredentialStore) BindRefresher(r Refresher) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.refresher = r
}

// onExpireHook lets the manager observe forced expiry so its in-memory
// state can follow the cleared storage.
func (cs *CredentialStore) onExpireHook(hook func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.onExpire = hook
}

// Token returns the current bearer string, or "" when anonymous.
func (cs *CredentialStore) Token() string {
	if record := cs.TokenRecord(); record != nil {
		return record.AccessToken
	}
	return ""
}

// TokenRecord returns the full stored token, or nil when absent.
func (cs *CredentialStore) TokenRecord() *oauth2.Token {
	token := &oauth2.Token{}
	if !cs.kv.GetJSON(tokenKey, token) || token.AccessToken == "" {
		return nil
	}
	return token
}

// User returns the cached user profile, or nil when absent.
func (cs *CredentialStore) User() *users.User {
	user := &users.User{}
	if !cs.kv.GetJSON(userKey, user) || user.ID == 0 {
		return nil
	}
	return user
}

// SaveToken persists a newly issued token.
func (cs *CredentialStore) SaveToken(token *oauth2.Token) {
	if !cs.kv.SetJSON(tokenKey, token) {
		cs.logger.Warn().Msg("token not persisted, session will not survive restart")
	}
}

// SaveUser persists the fetched profile alongside the token.
func (cs *CredentialStore) SaveUser(user *users.User) {
	if !cs.kv.SetJSON(userKey, user) {
		cs.logger.Warn().Msg("user profile not persisted")
	}
}

// Clear removes both the token and the cached user.
func (cs *CredentialStore) Clear() {
	cs.kv.Remove(tokenKey)
	cs.kv.Remove(userKey)
}

// Refresh exchanges the stored refresh token for a new bearer and
// persists it. The cached user is left in place; the profile is
// re-fetched by callers that care.
func (cs *CredentialStore) Refresh(ctx context.Context) error {
	cs.mu.Lock()
	refresher := cs.refresher
	cs.mu.Unlock()

	if refresher == nil {
		return clienterrors.Wrapf(clienterrors.ErrInternal, "no refresher bound")
	}
	current := cs.TokenRecord()
	if current == nil || current.RefreshToken == "" {
		return clienterrors.ErrInvalidToken
	}

	issued, err := refresher.RefreshToken(ctx, current.RefreshToken)
	if err != nil {
		return clienterrors.Wrapf(err, "refresh token exchange")
	}
	if issued.RefreshToken == "" {
		// Backend did not rotate; keep the old refresh token.
		issued.RefreshToken = current.RefreshToken
	}
	cs.SaveToken(issued)
	cs.logger.Debug().Msg("token refreshed")
	return nil
}

// Expire clears all session state and sends the client to the login
// entry point. Called by the transport when a refresh fails.
func (cs *CredentialStore) Expire() {
	cs.Clear()

	cs.mu.Lock()
	hook := cs.onExpire
	cs.mu.Unlock()
	if hook != nil {
		hook()
	}
	cs.logger.Info().Msg("session expired, redirecting to login")
	cs.nav.NavigateTo(RouteLogin)
}
