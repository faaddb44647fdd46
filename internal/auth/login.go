package auth

import (
	"context"
	"errors"
	"fmt"
)

// Authenticate checks a username and password and returns the active user.
//
// Unknown usernames and wrong passwords both yield ErrInvalidCredentials.
// A correct password on a disabled account yields ErrUserInactive.
func Authenticate(ctx context.Context, users UserRepository, username, password string) (*User, error) {
	user, err := users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			VerifyPassword(password, dummyHash) //nolint:errcheck // timing equaliser only
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}
