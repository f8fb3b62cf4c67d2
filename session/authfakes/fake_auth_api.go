package authfakes

import (
	"context"
	"sync"

	"golang.org/x/oauth2"

	"github.com/voluntree/client-go/session"
	"github.com/voluntree/client-go/users"
)

var _ session.AuthAPI = (*FakeAuthAPI)(nil)

// FakeAuthAPI is a scriptable session.AuthAPI for tests. Each endpoint
// has an overridable stub and a call counter.
type FakeAuthAPI struct {
	lock sync.Mutex

	LoginStub          func(username, password string) (*oauth2.Token, error)
	MeStub             func() (*users.User, error)
	RegisterStub       func(reg users.Registration) error
	ForgotPasswordStub func(email string) error
	ResetPasswordStub  func(resetToken, newPassword string) error
	LogoutStub         func(token string) error

	LoginCalls          int
	MeCalls             int
	RegisterCalls       int
	ForgotPasswordCalls int
	ResetPasswordCalls  int
	LogoutCalls         int
	LogoutTokens        []string
}

func NewFakeAuthAPI() *FakeAuthAPI {
	return &FakeAuthAPI{}
}

func (f *FakeAuthAPI) Login(_ context.Context, username, password string) (*oauth2.Token, error) {
	f.lock.Lock()
	f.LoginCalls++
	stub := f.LoginStub
	f.lock.Unlock()

	if stub == nil {
		return &oauth2.Token{AccessToken: "fake-token"}, nil
	}
	return stub(username, password)
}

func (f *FakeAuthAPI) Me(_ context.Context) (*users.User, error) {
	f.lock.Lock()
	f.MeCalls++
	stub := f.MeStub
	f.lock.Unlock()

	if stub == nil {
		return &users.User{ID: 1, Username: "fake", Role: users.RoleVolunteer}, nil
	}
	return stub()
}

func (f *FakeAuthAPI) Register(_ context.Context, reg users.Registration) error {
	f.lock.Lock()
	f.RegisterCalls++
	stub := f.RegisterStub
	f.lock.Unlock()

	if stub == nil {
		return nil
	}
	return stub(reg)
}

func (f *FakeAuthAPI) ForgotPassword(_ context.Context, email string) error {
	f.lock.Lock()
	f.ForgotPasswordCalls++
	stub := f.ForgotPasswordStub
	f.lock.Unlock()

	if stub == nil {
		return nil
	}
	return stub(email)
}

func (f *FakeAuthAPI) ResetPassword(_ context.Context, resetToken, newPassword string) error {
	f.lock.Lock()
	f.ResetPasswordCalls++
	stub := f.ResetPasswordStub
	f.lock.Unlock()

	if stub == nil {
		return nil
	}
	return stub(resetToken, newPassword)
}

func (f *FakeAuthAPI) Logout(_ context.Context, token string) error {
	f.lock.Lock()
	f.LogoutCalls++
	f.LogoutTokens = append(f.LogoutTokens, token)
	stub := f.LogoutStub
	f.lock.Unlock()

	if stub == nil {
		return nil
	}
	return stub(token)
}
