package topology

import "errors"

// Sentinel errors. Store failures are returned wrapped and match none of these.
var (
	ErrNotFound  = errors.New("topology: not found")
	ErrForbidden = errors.New("topology: forbidden")
	ErrConflict  = errors.New("topology: conflict")
	ErrInvalid   = errors.New("topology: invalid request")
)
