package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

const maxUsernameLength = 64

// minPasswordLength applies to passwords chosen by an operator.
const minPasswordLength = 8

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleAdmin manages the topology of its area and reads its audit trail.
	RoleAdmin Role = "admin"

	// RoleReseller manages the topology of its area.
	RoleReseller Role = "reseller"

	// RoleSupport can sign in and read the audit trail but never touches topology.
	RoleSupport Role = "support"
)

// ValidRoles is the set of valid user roles.
var ValidRoles = []Role{RoleAdmin, RoleReseller, RoleSupport}

// IsValidUserRole returns true if the role is a valid role for a user account.
func IsValidUserRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User represents an authenticated human account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"` // never serialised
	Role         Role      `json:"role"`
	AreaID       *int64    `json:"area_id"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Principal is the resolved identity attached to an authenticated request.
type Principal struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username,omitempty"`
	Role      Role   `json:"role"`
	AreaID    *int64 `json:"area_id"`
	SessionID string `json:"-"`
}

// Area returns the principal's area and whether one is set.
func (p Principal) Area() (int64, bool) {
	if p.AreaID == nil {
		return 0, false
	}
	return *p.AreaID, true
}

// Can reports whether the principal's role grants perm.
func (p Principal) Can(perm Permission) bool {
	return HasPermission(p.Role, perm)
}

// PrincipalFor builds the principal for a stored user.
func PrincipalFor(u *User) Principal {
	return Principal{
		UserID:   u.ID,
		Username: u.Username,
		Role:     u.Role,
		AreaID:   u.AreaID,
	}
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidRole        = errors.New("invalid role")
	ErrWeakPassword       = errors.New("password too short")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("insufficient permissions")
)

// Int64Ptr is a small helper for optional area ids.
func Int64Ptr(v int64) *int64 {
	return &v
}
