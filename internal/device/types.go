package device

import (
	"strings"
	"time"
)

// Device represents a piece of paired restaurant hardware.
// This matches the database schema in migrations/20260810_120000_initial_schema.up.sql.
type Device struct {
	// Identity
	ID string `json:"id"`

	// HardwareID is the stable identifier burned into or generated on the
	// physical unit. It is unique across the fleet and never changes for
	// the lifetime of the unit.
	HardwareID string `json:"hardwareId"`

	// Tenant scoping. OrganizationID is nil until the device is paired.
	OrganizationID *string `json:"organizationId,omitempty"`
	LocationID     *string `json:"locationId,omitempty"`

	// Classification
	Type DeviceType `json:"type"`
	Name string     `json:"name"`

	// Liveness
	Status        Status     `json:"status"`
	LastHeartbeat *time.Time `json:"lastHeartbeat,omitempty"`

	// Metadata is a free-form JSON blob reported by the device
	// (screen resolution, app version, battery level, etc.).
	Metadata Metadata `json:"metadata"`

	// RequiredVersion, when set, tells the device which software version
	// it should be running. Returned in heartbeat acknowledgements.
	RequiredVersion *string `json:"requiredVersion,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Metadata holds device-reported metadata as a JSON map.
//
// Examples:
//   - Signage: {"resolution": "1920x1080", "orientation": "landscape"}
//   - KDS: {"station": "grill", "appVersion": "2.4.1"}
type Metadata map[string]any

// DeepCopy creates a complete independent copy of the Device.
// The metadata map is cloned so modifications to the copy
// do not affect the original.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields
	cpy.Metadata = deepCopyMap(d.Metadata)

	// Pointer fields (*string, *time.Time) don't need deep copy
	// because strings and time.Time are immutable in Go

	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, int, float64, etc.) are safe to copy by value
		return v
	}
}

// DeviceType represents the kind of hardware unit.
type DeviceType string //nolint:revive // device.DeviceType is clearer than device.Type in calling code

// DeviceType constants.
const (
	DeviceTypeSignage DeviceType = "signage"
	DeviceTypeKDS     DeviceType = "kds"
	DeviceTypePOS     DeviceType = "pos"
	DeviceTypeGateway DeviceType = "gateway"
	DeviceTypeSensor  DeviceType = "sensor"
	DeviceTypeWatch   DeviceType = "watch"
)

// AllDeviceTypes returns all valid device type values.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{
		DeviceTypeSignage, DeviceTypeKDS, DeviceTypePOS,
		DeviceTypeGateway, DeviceTypeSensor, DeviceTypeWatch,
	}
}

// SanitizeType normalises a client-supplied device type string.
//
// Clients may send variant-qualified types such as "signage:primary"; the
// variant suffix is dropped. Unknown types fall back to signage so a
// misconfigured unit still pairs rather than being rejected at the door.
func SanitizeType(raw string) DeviceType {
	base := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.Index(base, ":"); idx >= 0 {
		base = base[:idx]
	}

	candidate := DeviceType(base)
	for _, t := range AllDeviceTypes() {
		if candidate == t {
			return t
		}
	}
	return DeviceTypeSignage
}

// Status represents the device liveness state.
type Status string

// Status constants.
const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// DefaultName derives a display name for a device that was paired
// without an explicit name, e.g. "SIGNAGE Device".
func DefaultName(t DeviceType) string {
	return strings.ToUpper(string(t)) + " Device"
}
