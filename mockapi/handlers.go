package mockapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/voluntree/client-go/docstore"
	clienterrors "github.com/voluntree/client-go/internal/errors"
	"github.com/voluntree/client-go/users"
)

const tokenType = "bearer"

type tokenBody struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// LoginHandler issues a token pair for valid form-encoded credentials.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			s.writeError(w, http.StatusBadRequest, "malformed form body")
			return
		}
		username := r.PostFormValue("username")
		password := r.PostFormValue("password")

		acct, found := s.accountByUsername(username)
		if !found || !s.checkPassword(acct, password) {
			s.writeError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}

		s.issueTokens(w, acct.Username)
	}
}

// MeHandler returns the profile for the bearer token's subject.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, ok := s.authenticate(r)
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		s.writeJSON(w, http.StatusOK, acct.profile())
	}
}

// RegisterHandler creates an account. No session is established.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reg users.Registration
		if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
			s.writeError(w, http.StatusBadRequest, "malformed registration payload")
			return
		}
		acct, err := s.createAccount(reg)
		if err != nil {
			if clienterrors.Is(err, clienterrors.ErrUserExists) {
				s.writeError(w, http.StatusConflict, "username or email already registered")
			} else {
				s.writeError(w, http.StatusBadRequest, err.Error())
			}
			return
		}
		s.logger.Info().Str("username", acct.Username).Str("role", string(acct.Role)).Msg("account registered")
		s.writeJSON(w, http.StatusCreated, acct.profile())
	}
}

// ForgotPasswordHandler records a single-use reset token. The response
// is 200 whether or not the email exists, so accounts cannot be
// enumerated.
func (s *Server) ForgotPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Email string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.writeError(w, http.StatusBadRequest, "malformed payload")
			return
		}
		if acct, found := s.accountByEmail(payload.Email); found {
			token := uuid.New().String()
			s.store.Insert(TableResetTokens, docstore.Record{
				"token":    token,
				"username": acct.Username,
				"email":    acct.Email,
				"used":     false,
			})
			// A real backend emails the token; the mock logs it instead.
			s.logger.Info().Str("email", acct.Email).Str("reset_token", token).Msg("password reset requested")
		}
		w.WriteHeader(http.StatusOK)
	}
}

// ResetPasswordHandler completes a reset with a single-use token.
func (s *Server) ResetPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Token    string `json:"token"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Password == "" {
			s.writeError(w, http.StatusBadRequest, "malformed payload")
			return
		}

		record, found := s.store.FindOne(TableResetTokens, func(rec docstore.Record) bool {
			return rec["token"] == payload.Token && rec["used"] != true
		})
		if !found {
			s.writeError(w, http.StatusBadRequest, "invalid reset token")
			return
		}
		username, _ := record["username"].(string)
		acct, found := s.accountByUsername(username)
		if !found {
			s.writeError(w, http.StatusBadRequest, "invalid reset token")
			return
		}
		if err := s.setPassword(acct, payload.Password); err != nil {
			s.writeError(w, http.StatusInternalServerError, "password update failed")
			return
		}
		if id, ok := record["id"].(string); ok {
			s.store.Update(TableResetTokens, id, docstore.Record{"used": true})
		}
		// A changed password invalidates outstanding refresh tokens.
		s.revokeRefreshTokens(acct.Username)
		w.WriteHeader(http.StatusOK)
	}
}

// LogoutHandler revokes the caller's refresh tokens.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, ok := s.authenticate(r)
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		s.revokeRefreshTokens(acct.Username)
		w.WriteHeader(http.StatusOK)
	}
}

// RefreshTokenHandler rotates a refresh token into a fresh pair.
func (s *Server) RefreshTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.writeError(w, http.StatusBadRequest, "malformed payload")
			return
		}
		username, ok := s.consumeRefreshToken(payload.RefreshToken)
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "unknown refresh token")
			return
		}
		s.issueTokens(w, username)
	}
}

// authenticate resolves the bearer token on r to an account.
func (s *Server) authenticate(r *http.Request) (account, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return account{}, false
	}
	username, err := s.verifyAccessToken(token)
	if err != nil {
		return account{}, false
	}
	return s.accountByUsername(username)
}

func (s *Server) issueTokens(w http.ResponseWriter, username string) {
	access, err := s.issueAccessToken(username)
	if err != nil {
		s.logger.Error().Err(err).Msg("token signing failed")
		s.writeError(w, http.StatusInternalServerError, "token signing failed")
		return
	}
	s.writeJSON(w, http.StatusOK, tokenBody{
		AccessToken:  access,
		TokenType:    tokenType,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
		RefreshToken: s.issueRefreshToken(username),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn().Err(err).Msg("response encoding failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
