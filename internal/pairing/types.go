package pairing

import (
	"time"

	"github.com/sous-kitchen/edge-core/internal/device"
)

// Code is an issued pairing code awaiting consumption.
type Code struct {
	ID         string            `json:"id"`
	Code       string            `json:"code"`
	HardwareID string            `json:"hardwareId"`
	DeviceType device.DeviceType `json:"type"`

	// Metadata is the snapshot the hardware reported when requesting the
	// code. It seeds the device record on first pairing.
	Metadata device.Metadata `json:"metadata"`

	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the code is past its expiry at the given instant.
func (c *Code) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
