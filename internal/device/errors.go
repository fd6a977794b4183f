package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device with a hardware ID
	// that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrDeviceOffline is returned when an operation requires an online device.
	ErrDeviceOffline = errors.New("device: offline")

	// ErrOrganizationMismatch is returned when a device belongs to a
	// different organisation than the caller claims.
	ErrOrganizationMismatch = errors.New("device: organization mismatch")

	// ErrInvalidHardwareID is returned when a hardware ID is empty or malformed.
	ErrInvalidHardwareID = errors.New("device: invalid hardware id")
)
