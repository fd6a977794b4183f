package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sous-kitchen/edge-core/internal/infrastructure/logging"
)

// Directory is the coordination layer over the device repository.
//
// It serialises mutations per hardware ID so concurrent heartbeats and
// pairing attempts for the same unit cannot interleave, and runs the
// liveness sweeper that flips silent devices to offline.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Directory struct {
	repo   Repository
	logger *logging.Logger

	// mu guards locks. Each hardware ID gets its own mutex so that
	// unrelated devices never contend with each other.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDirectory creates a device directory backed by the given repository.
func NewDirectory(repo Repository, logger *logging.Logger) *Directory {
	return &Directory{
		repo:   repo,
		logger: logger.With("component", "device_directory"),
		locks:  make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex dedicated to a hardware ID, creating it on
// first use. Lock entries are never removed; the fleet size is bounded.
func (d *Directory) lockFor(hardwareID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.locks[hardwareID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[hardwareID] = l
	}
	return l
}

// Get retrieves a device by its unique identifier.
func (d *Directory) Get(ctx context.Context, id string) (*Device, error) {
	return d.repo.GetByID(ctx, id)
}

// GetByHardwareID retrieves a device by its hardware identifier.
func (d *Directory) GetByHardwareID(ctx context.Context, hardwareID string) (*Device, error) {
	if hardwareID == "" {
		return nil, ErrInvalidHardwareID
	}
	return d.repo.GetByHardwareID(ctx, hardwareID)
}

// ListByOrganization retrieves all devices paired into an organisation.
func (d *Directory) ListByOrganization(ctx context.Context, orgID string) ([]Device, error) {
	return d.repo.ListByOrganization(ctx, orgID)
}

// VerifyOnline resolves a hardware ID to a device and checks that it is
// online and paired into the claimed organisation.
//
// Returns:
//   - ErrDeviceNotFound: unknown hardware ID
//   - ErrDeviceOffline: device exists but is not online
//   - ErrOrganizationMismatch: device is paired into a different organisation
func (d *Directory) VerifyOnline(ctx context.Context, hardwareID, orgID string) (*Device, error) {
	dev, err := d.GetByHardwareID(ctx, hardwareID)
	if err != nil {
		return nil, err
	}

	if dev.Status != StatusOnline {
		return nil, ErrDeviceOffline
	}

	if dev.OrganizationID == nil || *dev.OrganizationID != orgID {
		return nil, ErrOrganizationMismatch
	}

	return dev, nil
}

// ApplyHeartbeat marks a device online, stamps the heartbeat time, and
// merges any reported metadata. Returns the updated device so callers
// can include requiredVersion in the acknowledgement.
//
// Returns ErrDeviceNotFound for hardware IDs that were never paired;
// heartbeats do not provision devices.
func (d *Directory) ApplyHeartbeat(ctx context.Context, hardwareID string, metadata Metadata) (*Device, error) {
	if hardwareID == "" {
		return nil, ErrInvalidHardwareID
	}

	l := d.lockFor(hardwareID)
	l.Lock()
	defer l.Unlock()

	if err := d.repo.RecordHeartbeat(ctx, hardwareID, metadata, time.Now().UTC()); err != nil {
		return nil, err
	}

	return d.repo.GetByHardwareID(ctx, hardwareID)
}

// MergeMetadata merges reported values into a device's metadata blob
// without marking it online. Telemetry uses this as a latest-value cache
// alongside the time-series store.
func (d *Directory) MergeMetadata(ctx context.Context, hardwareID string, metadata Metadata) error {
	if hardwareID == "" {
		return ErrInvalidHardwareID
	}
	if len(metadata) == 0 {
		return nil
	}

	l := d.lockFor(hardwareID)
	l.Lock()
	defer l.Unlock()

	return d.repo.MergeMetadata(ctx, hardwareID, metadata)
}

// UpsertParams describes a pairing-driven device upsert.
type UpsertParams struct {
	HardwareID     string
	OrganizationID string
	LocationID     *string
	Type           DeviceType
	Name           string
	Metadata       Metadata
}

// Upsert creates the device on first pairing or re-binds an existing one.
//
// Re-pairing an already-bound unit into a different organisation silently
// reassigns it; hardware changes hands between tenants (resold tills,
// redeployed screens) and the pairing code holder is the proof of
// possession. The reassignment is logged at warn level for audit trails.
//
// Returns the stored device and whether it was newly created.
func (d *Directory) Upsert(ctx context.Context, params UpsertParams) (*Device, bool, error) {
	if params.HardwareID == "" {
		return nil, false, ErrInvalidHardwareID
	}

	l := d.lockFor(params.HardwareID)
	l.Lock()
	defer l.Unlock()

	now := time.Now().UTC()
	existing, err := d.repo.GetByHardwareID(ctx, params.HardwareID)
	switch {
	case err == nil:
		if existing.OrganizationID != nil && *existing.OrganizationID != params.OrganizationID {
			d.logger.Warn("device reassigned to new organization",
				"hardware_id", params.HardwareID,
				"previous_org", *existing.OrganizationID,
				"new_org", params.OrganizationID,
			)
		}

		// Re-pairing is a reassignment. Organisation and location move;
		// the type, name, metadata, and liveness state the unit has
		// reported for itself stay untouched.
		existing.OrganizationID = &params.OrganizationID
		existing.LocationID = params.LocationID

		if err := d.repo.Update(ctx, existing); err != nil {
			return nil, false, err
		}
		return existing, false, nil

	case errors.Is(err, ErrDeviceNotFound):
		name := params.Name
		if name == "" {
			name = DefaultName(params.Type)
		}

		created := &Device{
			ID:             uuid.NewString(),
			HardwareID:     params.HardwareID,
			OrganizationID: &params.OrganizationID,
			LocationID:     params.LocationID,
			Type:           params.Type,
			Name:           name,
			Status:         StatusOnline,
			LastHeartbeat:  &now,
			Metadata:       params.Metadata,
		}

		if err := d.repo.Create(ctx, created); err != nil {
			return nil, false, err
		}
		return created, true, nil

	default:
		return nil, false, err
	}
}

// SweepOffline flips devices whose last heartbeat predates the cutoff to
// offline. Returns the hardware IDs affected.
func (d *Directory) SweepOffline(ctx context.Context, cutoff time.Time) ([]string, error) {
	stale, err := d.repo.MarkOfflineBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	if len(stale) > 0 {
		d.logger.Info("marked silent devices offline",
			"count", len(stale),
			"cutoff", cutoff.UTC().Format(time.RFC3339),
		)
	}
	return stale, nil
}

// RunSweeper periodically sweeps silent devices offline until the context
// is cancelled. onOffline, when non-nil, is invoked with each swept
// hardware ID so callers can notify realtime subscribers.
func (d *Directory) RunSweeper(ctx context.Context, interval, maxSilence time.Duration, onOffline func(hardwareID string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stale, err := d.SweepOffline(ctx, time.Now().UTC().Add(-maxSilence))
			if err != nil {
				d.logger.Error("liveness sweep failed", "error", err)
				continue
			}
			if onOffline != nil {
				for _, hw := range stale {
					onOffline(hw)
				}
			}
		}
	}
}
