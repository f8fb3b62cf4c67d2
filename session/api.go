package session

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/voluntree/client-go/users"
)

// AuthAPI is the manager's view of the remote authentication backend.
// Implemented by authapi.Client; faked in authfakes for tests.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (*oauth2.Token, error)
	Me(ctx context.Context) (*users.User, error)
	Register(ctx context.Context, reg users.Registration) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, newPassword string) error

	// Logout invalidates the given bearer token remotely. The token is
	// passed explicitly so the call stays valid after local credential
	// state has been cleared.
	Logout(ctx context.Context, token string) error
}
