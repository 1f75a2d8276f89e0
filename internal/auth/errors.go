package auth

import "errors"

var (
	// ErrUnauthorized means the upstream rejected our credentials. Not retried.
	ErrUnauthorized = errors.New("authentication failed")
)
