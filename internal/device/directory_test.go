package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sous-kitchen/edge-core/internal/infrastructure/logging"
)

// newTestDirectory builds a Directory over an in-memory repository.
func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	repo := NewSQLiteRepository(setupTestDB(t))
	return NewDirectory(repo, logging.Default())
}

func TestDirectory_Upsert_CreatesNewDevice(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	dev, created, err := dir.Upsert(ctx, UpsertParams{
		HardwareID:     "hw-001",
		OrganizationID: "org-1",
		Type:           DeviceTypeKDS,
		Metadata:       Metadata{"station": "grill"},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if !created {
		t.Error("Upsert() created = false, want true for new device")
	}
	if dev.ID == "" {
		t.Error("Upsert() should assign a device ID")
	}
	if dev.Status != StatusOnline {
		t.Errorf("Status = %q, want online", dev.Status)
	}
	if dev.Name == "" {
		t.Error("Upsert() should derive a default name")
	}
	if dev.OrganizationID == nil || *dev.OrganizationID != "org-1" {
		t.Errorf("OrganizationID = %v, want org-1", dev.OrganizationID)
	}
}

func TestDirectory_Upsert_ReassignsExistingDevice(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	first, _, err := dir.Upsert(ctx, UpsertParams{
		HardwareID:     "hw-001",
		OrganizationID: "org-1",
		Type:           DeviceTypeSignage,
		Name:           "Front Window Screen",
		Metadata:       Metadata{"resolution": "1920x1080"},
	})
	if err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}

	// Accumulate some heartbeat-reported state before the re-pair.
	if _, err := dir.ApplyHeartbeat(ctx, "hw-001", Metadata{"appVersion": "2.4.1"}); err != nil {
		t.Fatalf("ApplyHeartbeat() error = %v", err)
	}

	// Same physical unit paired into a different organisation. Only the
	// organisation and location move; everything the unit has reported
	// about itself stays put.
	loc := "loc-7"
	second, created, err := dir.Upsert(ctx, UpsertParams{
		HardwareID:     "hw-001",
		OrganizationID: "org-2",
		LocationID:     &loc,
		Type:           DeviceTypeKDS,
		Metadata:       Metadata{"station": "grill"},
	})
	if err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if created {
		t.Error("Upsert() created = true, want false for existing device")
	}
	if second.ID != first.ID {
		t.Errorf("device ID changed on re-pair: %q -> %q", first.ID, second.ID)
	}
	if second.OrganizationID == nil || *second.OrganizationID != "org-2" {
		t.Errorf("OrganizationID = %v, want org-2", second.OrganizationID)
	}
	if second.LocationID == nil || *second.LocationID != "loc-7" {
		t.Errorf("LocationID = %v, want loc-7", second.LocationID)
	}
	if second.Type != DeviceTypeSignage {
		t.Errorf("Type = %q, want signage preserved", second.Type)
	}
	if second.Name != "Front Window Screen" {
		t.Errorf("Name = %q, want existing name preserved", second.Name)
	}
	if second.Metadata["appVersion"] != "2.4.1" || second.Metadata["resolution"] != "1920x1080" {
		t.Errorf("Metadata = %v, want heartbeat-accumulated state preserved", second.Metadata)
	}
	if _, ok := second.Metadata["station"]; ok {
		t.Error("Metadata gained the pairing-code snapshot on re-pair")
	}
	if second.LastHeartbeat == nil {
		t.Error("LastHeartbeat = nil, want heartbeat stamp preserved")
	}
}

func TestDirectory_Upsert_EmptyHardwareID(t *testing.T) {
	dir := newTestDirectory(t)

	_, _, err := dir.Upsert(context.Background(), UpsertParams{
		OrganizationID: "org-1",
		Type:           DeviceTypeSignage,
	})
	if !errors.Is(err, ErrInvalidHardwareID) {
		t.Errorf("Upsert() error = %v, want ErrInvalidHardwareID", err)
	}
}

func TestDirectory_ApplyHeartbeat(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	version := "3.1.0"
	if _, _, err := dir.Upsert(ctx, UpsertParams{
		HardwareID:     "hw-001",
		OrganizationID: "org-1",
		Type:           DeviceTypePOS,
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	// Set a required version so the heartbeat result carries it.
	dev, err := dir.GetByHardwareID(ctx, "hw-001")
	if err != nil {
		t.Fatalf("GetByHardwareID() error = %v", err)
	}
	dev.RequiredVersion = &version
	if err := dir.repo.Update(ctx, dev); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := dir.ApplyHeartbeat(ctx, "hw-001", Metadata{"battery": 84})
	if err != nil {
		t.Fatalf("ApplyHeartbeat() error = %v", err)
	}
	if got.Status != StatusOnline {
		t.Errorf("Status = %q, want online", got.Status)
	}
	if got.LastHeartbeat == nil {
		t.Error("LastHeartbeat should be set after heartbeat")
	}
	if got.RequiredVersion == nil || *got.RequiredVersion != version {
		t.Errorf("RequiredVersion = %v, want %q", got.RequiredVersion, version)
	}
}

func TestDirectory_ApplyHeartbeat_UnknownHardware(t *testing.T) {
	dir := newTestDirectory(t)

	// Heartbeats never provision devices; pairing is the only entry point.
	_, err := dir.ApplyHeartbeat(context.Background(), "never-paired", nil)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("ApplyHeartbeat() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestDirectory_VerifyOnline(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	if _, _, err := dir.Upsert(ctx, UpsertParams{
		HardwareID:     "hw-001",
		OrganizationID: "org-1",
		Type:           DeviceTypeSignage,
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	tests := []struct {
		name       string
		hardwareID string
		orgID      string
		wantErr    error
	}{
		{
			name:       "online device with matching org",
			hardwareID: "hw-001",
			orgID:      "org-1",
			wantErr:    nil,
		},
		{
			name:       "unknown hardware id",
			hardwareID: "hw-999",
			orgID:      "org-1",
			wantErr:    ErrDeviceNotFound,
		},
		{
			name:       "organization mismatch",
			hardwareID: "hw-001",
			orgID:      "org-2",
			wantErr:    ErrOrganizationMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dir.VerifyOnline(ctx, tt.hardwareID, tt.orgID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("VerifyOnline() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDirectory_VerifyOnline_OfflineDevice(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	if _, _, err := dir.Upsert(ctx, UpsertParams{
		HardwareID:     "hw-001",
		OrganizationID: "org-1",
		Type:           DeviceTypeSignage,
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	// Sweep it offline, then verification must fail.
	if _, err := dir.SweepOffline(ctx, time.Now().UTC().Add(time.Minute)); err != nil {
		t.Fatalf("SweepOffline() error = %v", err)
	}

	_, err := dir.VerifyOnline(ctx, "hw-001", "org-1")
	if !errors.Is(err, ErrDeviceOffline) {
		t.Errorf("VerifyOnline() error = %v, want ErrDeviceOffline", err)
	}
}

func TestDirectory_ConcurrentHeartbeats(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	if _, _, err := dir.Upsert(ctx, UpsertParams{
		HardwareID:     "hw-001",
		OrganizationID: "org-1",
		Type:           DeviceTypeSensor,
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := dir.ApplyHeartbeat(ctx, "hw-001", Metadata{"seq": 1}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent ApplyHeartbeat() error = %v", err)
	}
}
