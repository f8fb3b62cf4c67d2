package mockapi

import (
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/voluntree/client-go/docstore"
	clienterrors "github.com/voluntree/client-go/internal/errors"
	"github.com/voluntree/client-go/users"
)

// account is the server-side shape of a user record. The numeric
// user_id is what the contract exposes; the record id is internal to
// the document store.
type account struct {
	recordID     string
	UserID       int64
	Username     string
	Email        string
	Role         users.Role
	PasswordHash string
}

func accountFromRecord(record docstore.Record) account {
	a := account{}
	a.recordID, _ = record["id"].(string)
	if id, ok := record["user_id"].(float64); ok {
		a.UserID = int64(id)
	}
	a.Username, _ = record["username"].(string)
	a.Email, _ = record["email"].(string)
	if role, ok := record["role"].(string); ok {
		a.Role = users.Role(role)
	}
	a.PasswordHash, _ = record["password_hash"].(string)
	return a
}

func (a account) profile() users.User {
	return users.User{
		ID:       a.UserID,
		Username: a.Username,
		Email:    a.Email,
		Role:     a.Role,
	}
}

func (s *Server) findAccount(match func(account) bool) (account, bool) {
	record, found := s.store.FindOne(TableUsers, func(r docstore.Record) bool {
		return match(accountFromRecord(r))
	})
	if !found {
		return account{}, false
	}
	return accountFromRecord(record), true
}

func (s *Server) accountByUsername(username string) (account, bool) {
	return s.findAccount(func(a account) bool {
		return strings.EqualFold(a.Username, username)
	})
}

func (s *Server) accountByEmail(email string) (account, bool) {
	return s.findAccount(func(a account) bool {
		return strings.EqualFold(a.Email, email)
	})
}

// createAccount hashes the password and inserts a user record with the
// next numeric id.
func (s *Server) createAccount(reg users.Registration) (account, error) {
	if reg.Username == "" || reg.Email == "" || reg.Password == "" {
		return account{}, clienterrors.Wrapf(clienterrors.ErrInvalidCredentials, "missing registration fields")
	}
	role, ok := users.ParseRole(string(reg.Role))
	if !ok {
		role = users.RoleVolunteer
	}
	if _, exists := s.accountByUsername(reg.Username); exists {
		return account{}, clienterrors.ErrUserExists
	}
	if _, exists := s.accountByEmail(reg.Email); exists {
		return account{}, clienterrors.ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return account{}, clienterrors.Wrapf(err, "hash password")
	}

	stored := s.store.Insert(TableUsers, docstore.Record{
		"user_id":       float64(s.nextUserID()),
		"username":      reg.Username,
		"email":         reg.Email,
		"role":          string(role),
		"password_hash": string(hash),
	})
	return accountFromRecord(stored), nil
}

func (s *Server) nextUserID() int64 {
	var highest int64
	for _, record := range s.store.Table(TableUsers) {
		if id, ok := record["user_id"].(float64); ok && int64(id) > highest {
			highest = int64(id)
		}
	}
	return highest + 1
}

func (s *Server) checkPassword(a account, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) == nil
}

func (s *Server) setPassword(a account, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return clienterrors.Wrapf(err, "hash password")
	}
	if _, ok := s.store.Update(TableUsers, a.recordID, docstore.Record{"password_hash": string(hash)}); !ok {
		return clienterrors.ErrUserNotFound
	}
	return nil
}
