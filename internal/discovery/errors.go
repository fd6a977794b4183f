package discovery

import "errors"

var (
	// ErrDisabled indicates discovery is disabled in configuration.
	ErrDisabled = errors.New("discovery: disabled in configuration")

	// ErrNoAddress indicates no usable non-loopback IPv4 address was found
	// to advertise.
	ErrNoAddress = errors.New("discovery: no usable IPv4 address")
)
