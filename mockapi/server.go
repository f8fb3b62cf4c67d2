// Package mockapi implements the remote authentication contract as a
// local http.Handler backed by the document store. It exists so the
// client can be developed and tested offline: the same session manager
// and transport run unchanged against it.
package mockapi

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voluntree/client-go/authapi"
	"github.com/voluntree/client-go/docstore"
)

// Backing tables in the document store.
const (
	TableUsers         = "users"
	TableRefreshTokens = "refresh_tokens"
	TableResetTokens   = "reset_tokens"
	TableOpportunities = "opportunities"
)

// Server mocks the /auth backend. Passwords are bcrypt-hashed and
// bearer tokens are HMAC-signed JWTs, so token expiry and rejection
// behave like the real backend's.
type Server struct {
	store     *docstore.Store
	secret    []byte
	accessTTL time.Duration
	nowTime   func() time.Time
	logger    zerolog.Logger
	mux       *http.ServeMux
}

var _ http.Handler = (*Server)(nil)

// Option modifies a Server instance.
type Option func(*Server)

// WithAccessTTL sets the access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = ttl
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

// New creates the mock backend on top of store.
func New(store *docstore.Store, secret string, options ...Option) (*Server, error) {
	if store == nil {
		return nil, errors.New("[mockapi.New] document store is required")
	}
	if secret == "" {
		return nil, errors.New("[mockapi.New] signing secret is required")
	}

	s := &Server{
		store:     store,
		secret:    []byte(secret),
		accessTTL: 15 * time.Minute,
		nowTime:   time.Now,
		logger:    log.With().Str("component", "mockapi").Logger(),
		mux:       http.NewServeMux(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.initRoutes()
	return s, nil
}

func (s *Server) initRoutes() {
	s.mux.HandleFunc("POST "+authapi.LoginPath, s.LoginHandler())
	s.mux.HandleFunc("GET "+authapi.MePath, s.MeHandler())
	s.mux.HandleFunc("POST "+authapi.RegisterPath, s.RegisterHandler())
	s.mux.HandleFunc("POST "+authapi.ForgotPasswordPath, s.ForgotPasswordHandler())
	s.mux.HandleFunc("POST "+authapi.ResetPasswordPath, s.ResetPasswordHandler())
	s.mux.HandleFunc("POST "+authapi.LogoutPath, s.LogoutHandler())
	s.mux.HandleFunc("POST "+authapi.RefreshTokenPath, s.RefreshTokenHandler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
