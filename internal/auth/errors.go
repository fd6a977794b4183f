package auth

import "errors"

// Domain errors for the auth package.
var (
	// ErrTokenInvalid is returned when a JWT fails signature, expiry, or
	// claim validation.
	ErrTokenInvalid = errors.New("auth: token invalid")

	// ErrUnauthenticated is returned when no authenticator in the chain
	// could establish a principal.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
)
