package pairing

import "errors"

// Domain errors for the pairing package.
var (
	// ErrCodeNotFound is returned when a pairing code does not exist or has
	// expired. The two cases are deliberately indistinguishable so a caller
	// cannot probe which codes were ever issued.
	ErrCodeNotFound = errors.New("pairing: invalid or expired code")

	// ErrInvalidHardwareID is returned when a hardware ID is empty.
	ErrInvalidHardwareID = errors.New("pairing: invalid hardware id")
)
