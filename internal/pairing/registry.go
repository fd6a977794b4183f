package pairing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sous-kitchen/edge-core/internal/device"
	"github.com/sous-kitchen/edge-core/internal/infrastructure/logging"
	"github.com/sous-kitchen/edge-core/internal/realtime"
)

// Publisher delivers realtime events resulting from pairing. Implemented
// by the realtime hub; abstracted here so the registry can be tested
// without sockets.
type Publisher interface {
	// PublishToHardware sends an event to the connection(s) held by a
	// specific hardware unit.
	PublishToHardware(hardwareID, event string, payload any)

	// PublishToOrganization fans an event out to every connection
	// subscribed to it within an organisation.
	PublishToOrganization(orgID, event string, payload any)
}

// PairingSuccess is the payload of realtime.EventPairingSuccess.
type PairingSuccess struct {
	OrganizationID string  `json:"organizationId"`
	LocationID     *string `json:"locationId,omitempty"`
}

// Registry issues and consumes pairing codes.
type Registry struct {
	repo      Repository
	directory *device.Directory
	publisher Publisher
	logger    *logging.Logger
	codeTTL   time.Duration
}

// NewRegistry creates a pairing registry.
//
// publisher may be nil; pairing then succeeds silently, which is useful
// in tests and during early startup.
func NewRegistry(repo Repository, directory *device.Directory, publisher Publisher, logger *logging.Logger, codeTTL time.Duration) *Registry {
	return &Registry{
		repo:      repo,
		directory: directory,
		publisher: publisher,
		logger:    logger.With("component", "pairing"),
		codeTTL:   codeTTL,
	}
}

// Issue generates a fresh pairing code for a hardware unit.
//
// Any previous code for the same unit is atomically replaced, so at most
// one code per hardware ID is ever live. The raw device type is sanitised
// ("signage:primary" becomes "signage") before storage.
func (r *Registry) Issue(ctx context.Context, hardwareID, rawType string, metadata device.Metadata) (*Code, error) {
	if hardwareID == "" {
		return nil, ErrInvalidHardwareID
	}

	codeStr, err := generateCode()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	code := &Code{
		ID:         uuid.NewString(),
		Code:       codeStr,
		HardwareID: hardwareID,
		DeviceType: device.SanitizeType(rawType),
		Metadata:   metadata,
		ExpiresAt:  now.Add(r.codeTTL),
		CreatedAt:  now,
	}

	if err := r.repo.Replace(ctx, code); err != nil {
		return nil, err
	}

	r.logger.Info("pairing code issued",
		"hardware_id", hardwareID,
		"type", code.DeviceType,
		"expires_at", code.ExpiresAt.Format(time.RFC3339),
	)
	return code, nil
}

// Consume redeems a pairing code on behalf of an organisation user.
//
// On success the device is upserted into the caller's organisation, the
// code is deleted (single use), the waiting unit is told where it now
// belongs, and organisation dashboards are notified of the new device.
//
// Returns ErrCodeNotFound when the code is unknown or expired; the two
// cases are indistinguishable to the caller.
func (r *Registry) Consume(ctx context.Context, rawCode, orgID string, locationID *string) (*device.Device, error) {
	record, err := r.repo.FindValid(ctx, rawCode, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	dev, created, err := r.directory.Upsert(ctx, device.UpsertParams{
		HardwareID:     record.HardwareID,
		OrganizationID: orgID,
		LocationID:     locationID,
		Type:           record.DeviceType,
		Metadata:       record.Metadata,
	})
	if err != nil {
		return nil, err
	}

	// Codes are single use. A failed delete is logged, not surfaced: the
	// device is already paired and the code expires on its own shortly.
	if err := r.repo.Delete(ctx, record.ID); err != nil {
		r.logger.Warn("failed to delete consumed pairing code",
			"code_id", record.ID, "error", err)
	}

	if r.publisher != nil {
		r.publisher.PublishToHardware(record.HardwareID, realtime.EventPairingSuccess, PairingSuccess{
			OrganizationID: orgID,
			LocationID:     locationID,
		})
		r.publisher.PublishToOrganization(orgID, realtime.EventDeviceUpdated, dev)
	}

	r.logger.Info("device paired",
		"hardware_id", record.HardwareID,
		"organization_id", orgID,
		"created", created,
	)
	return dev, nil
}

// RunExpiry periodically removes expired codes until the context is
// cancelled. Expired codes are already invisible to FindValid; this just
// keeps the table from accumulating rows.
func (r *Registry) RunExpiry(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := r.repo.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				r.logger.Error("pairing code expiry sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				r.logger.Debug("expired pairing codes removed", "count", removed)
			}
		}
	}
}
