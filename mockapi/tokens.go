package mockapi

import (
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/voluntree/client-go/docstore"
	clienterrors "github.com/voluntree/client-go/internal/errors"
)

// issueAccessToken signs a short-lived HS256 JWT for username.
func (s *Server) issueAccessToken(username string) (string, error) {
	now := s.nowTime()
	claims := jwtlib.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(now.Add(s.accessTTL)),
		ID:        uuid.New().String(),
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", clienterrors.Wrapf(err, "sign access token")
	}
	return signed, nil
}

// verifyAccessToken checks signature and expiry and returns the
// subject username.
func (s *Server) verifyAccessToken(token string) (string, error) {
	claims := &jwtlib.RegisteredClaims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, clienterrors.ErrInvalidToken
		}
		return s.secret, nil
	}, jwtlib.WithTimeFunc(s.nowTime))
	if err != nil || !parsed.Valid {
		return "", clienterrors.ErrInvalidToken
	}
	return claims.Subject, nil
}

// issueRefreshToken mints an opaque refresh token for username and
// records it; any previous refresh token for the user is revoked
// (single refresh token per user).
func (s *Server) issueRefreshToken(username string) string {
	s.revokeRefreshTokens(username)
	token := uuid.New().String()
	s.store.Insert(TableRefreshTokens, docstore.Record{
		"token":    token,
		"username": username,
	})
	return token
}

// consumeRefreshToken validates and revokes a refresh token, returning
// the username it was issued for.
func (s *Server) consumeRefreshToken(token string) (string, bool) {
	record, found := s.store.FindOne(TableRefreshTokens, func(r docstore.Record) bool {
		return r["token"] == token
	})
	if !found {
		return "", false
	}
	username, _ := record["username"].(string)
	if id, ok := record["id"].(string); ok {
		s.store.Delete(TableRefreshTokens, id)
	}
	return username, true
}

func (s *Server) revokeRefreshTokens(username string) {
	for _, record := range s.store.Find(TableRefreshTokens, func(r docstore.Record) bool {
		return r["username"] == username
	}) {
		if id, ok := record["id"].(string); ok {
			s.store.Delete(TableRefreshTokens, id)
		}
	}
}
