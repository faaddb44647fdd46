package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// generatedPasswordBytes is the number of random bytes in a generated password.
const generatedPasswordBytes = 16

// NewUserParams describes an account created from the command line.
type NewUserParams struct {
	Username    string
	DisplayName string
	Password    string // generated when empty
	Role        Role
	AreaID      *int64
}

// Provision validates params, hashes the password and stores a new active user.
// It returns the created user and the plaintext password, which is only
// meaningful to the caller when it was generated.
func Provision(ctx context.Context, users UserRepository, params NewUserParams, logger *slog.Logger) (*User, string, error) {
	if !IsValidUsername(params.Username) {
		return nil, "", ErrInvalidUsername
	}
	if !IsValidUserRole(params.Role) {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidRole, params.Role)
	}

	password := params.Password
	generated := password == ""
	if generated {
		b := make([]byte, generatedPasswordBytes)
		if _, err := rand.Read(b); err != nil {
			return nil, "", fmt.Errorf("generating password: %w", err)
		}
		password = hex.EncodeToString(b)
	} else if len(password) < minPasswordLength {
		return nil, "", ErrWeakPassword
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, "", fmt.Errorf("hashing password: %w", err)
	}

	displayName := params.DisplayName
	if displayName == "" {
		displayName = params.Username
	}

	user := &User{
		Username:     params.Username,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         params.Role,
		AreaID:       params.AreaID,
		IsActive:     true,
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, "", err
	}

	if user.AreaID == nil {
		logger.Warn("user has no area and will be denied every topology operation",
			"username", user.Username)
	}
	logger.Info("user provisioned",
		"user_id", user.ID,
		"username", user.Username,
		"role", user.Role,
		"password_generated", generated,
	)

	return user, password, nil
}
