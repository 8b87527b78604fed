package auth

import (
	"context"
	"crypto/subtle"
	"errors"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticator validates api credentials presented by a caller.
type Authenticator interface {
	ValidateCredentials(ctx context.Context, user, pass string) error
}

// SingleUserAuthenticator accepts exactly one configured credential pair.
// Comparisons are constant time.
type SingleUserAuthenticator struct {
	Username string
	Password string
}

var _ Authenticator = (*SingleUserAuthenticator)(nil)

func (a *SingleUserAuthenticator) ValidateCredentials(ctx context.Context, user, pass string) error {
	userOk := subtle.ConstantTimeCompare([]byte(user), []byte(a.Username)) == 1
	passOk := subtle.ConstantTimeCompare([]byte(pass), []byte(a.Password)) == 1
	if !userOk || !passOk {
		return ErrInvalidCredentials
	}

	return nil
}
