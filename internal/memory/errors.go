package memory

import "errors"

// Sentinel errors. Check with errors.Is.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrProfileNotFound = errors.New("student profile not found")
)
