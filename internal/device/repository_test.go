package device

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the devices schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// A second pool connection would see a separate empty in-memory database.
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE devices (
			id               TEXT PRIMARY KEY,
			organization_id  TEXT,
			location_id      TEXT,
			hardware_id      TEXT NOT NULL UNIQUE,
			type             TEXT NOT NULL,
			name             TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL DEFAULT 'offline',
			metadata         TEXT NOT NULL DEFAULT '{}',
			required_version TEXT,
			last_heartbeat   TEXT,
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating devices table: %v", err)
	}

	return db
}

// testDevice returns a minimal valid device for tests.
func testDevice(hardwareID string) *Device {
	org := "org-1"
	return &Device{
		ID:             "dev-" + hardwareID,
		HardwareID:     hardwareID,
		OrganizationID: &org,
		Type:           DeviceTypeSignage,
		Name:           "Front Window Screen",
		Status:         StatusOffline,
		Metadata:       Metadata{"resolution": "1920x1080"},
	}
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	dev := testDevice("hw-001")
	if err := repo.Create(ctx, dev); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, dev.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.HardwareID != "hw-001" {
		t.Errorf("HardwareID = %q, want %q", got.HardwareID, "hw-001")
	}
	if got.Type != DeviceTypeSignage {
		t.Errorf("Type = %q, want %q", got.Type, DeviceTypeSignage)
	}
	if got.Metadata["resolution"] != "1920x1080" {
		t.Errorf("Metadata[resolution] = %v, want 1920x1080", got.Metadata["resolution"])
	}

	got, err = repo.GetByHardwareID(ctx, "hw-001")
	if err != nil {
		t.Fatalf("GetByHardwareID() error = %v", err)
	}
	if got.ID != dev.ID {
		t.Errorf("ID = %q, want %q", got.ID, dev.ID)
	}
}

func TestSQLiteRepository_GetNotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() error = %v, want ErrDeviceNotFound", err)
	}

	if _, err := repo.GetByHardwareID(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByHardwareID() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_CreateDuplicateHardwareID(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, testDevice("hw-001")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	dup := testDevice("hw-001")
	dup.ID = "dev-other"
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("Create() duplicate error = %v, want ErrDeviceExists", err)
	}
}

func TestSQLiteRepository_Update(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	dev := testDevice("hw-001")
	if err := repo.Create(ctx, dev); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	newOrg := "org-2"
	dev.OrganizationID = &newOrg
	dev.Status = StatusOnline
	dev.Name = "Pass Station KDS"
	if err := repo.Update(ctx, dev); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, dev.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.OrganizationID == nil || *got.OrganizationID != "org-2" {
		t.Errorf("OrganizationID = %v, want org-2", got.OrganizationID)
	}
	if got.Status != StatusOnline {
		t.Errorf("Status = %q, want online", got.Status)
	}

	missing := testDevice("hw-999")
	missing.ID = "dev-missing"
	if err := repo.Update(ctx, missing); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Update() missing error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_ListByOrganization(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	a := testDevice("hw-a")
	b := testDevice("hw-b")
	other := "org-other"
	c := testDevice("hw-c")
	c.OrganizationID = &other

	for _, dev := range []*Device{a, b, c} {
		if err := repo.Create(ctx, dev); err != nil {
			t.Fatalf("Create(%s) error = %v", dev.HardwareID, err)
		}
	}

	devices, err := repo.ListByOrganization(ctx, "org-1")
	if err != nil {
		t.Fatalf("ListByOrganization() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("ListByOrganization() returned %d devices, want 2", len(devices))
	}
	for _, dev := range devices {
		if dev.OrganizationID == nil || *dev.OrganizationID != "org-1" {
			t.Errorf("device %s has org %v, want org-1", dev.HardwareID, dev.OrganizationID)
		}
	}
}

func TestSQLiteRepository_RecordHeartbeat(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	dev := testDevice("hw-001")
	if err := repo.Create(ctx, dev); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	err := repo.RecordHeartbeat(ctx, "hw-001", Metadata{"appVersion": "2.4.1"}, at)
	if err != nil {
		t.Fatalf("RecordHeartbeat() error = %v", err)
	}

	got, err := repo.GetByHardwareID(ctx, "hw-001")
	if err != nil {
		t.Fatalf("GetByHardwareID() error = %v", err)
	}
	if got.Status != StatusOnline {
		t.Errorf("Status = %q, want online", got.Status)
	}
	if got.LastHeartbeat == nil || !got.LastHeartbeat.Equal(at) {
		t.Errorf("LastHeartbeat = %v, want %v", got.LastHeartbeat, at)
	}
	// Merged, not replaced: original key survives alongside the new one.
	if got.Metadata["resolution"] != "1920x1080" {
		t.Errorf("Metadata[resolution] = %v, want 1920x1080", got.Metadata["resolution"])
	}
	if got.Metadata["appVersion"] != "2.4.1" {
		t.Errorf("Metadata[appVersion] = %v, want 2.4.1", got.Metadata["appVersion"])
	}
}

func TestSQLiteRepository_RecordHeartbeat_UnknownHardware(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	err := repo.RecordHeartbeat(ctx, "never-paired", nil, time.Now())
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("RecordHeartbeat() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_MergeMetadata(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	dev := testDevice("hw-001")
	if err := repo.Create(ctx, dev); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.MergeMetadata(ctx, "hw-001", Metadata{"temperature": 4.5}); err != nil {
		t.Fatalf("MergeMetadata() error = %v", err)
	}

	got, err := repo.GetByHardwareID(ctx, "hw-001")
	if err != nil {
		t.Fatalf("GetByHardwareID() error = %v", err)
	}
	if got.Metadata["temperature"] != 4.5 {
		t.Errorf("Metadata[temperature] = %v, want 4.5", got.Metadata["temperature"])
	}
	if got.Metadata["resolution"] != "1920x1080" {
		t.Errorf("Metadata[resolution] = %v, want 1920x1080", got.Metadata["resolution"])
	}
	// Liveness fields untouched: a metadata write is not a heartbeat.
	if got.Status != StatusOffline {
		t.Errorf("Status = %q, want offline", got.Status)
	}
	if got.LastHeartbeat != nil {
		t.Errorf("LastHeartbeat = %v, want nil", got.LastHeartbeat)
	}
}

func TestSQLiteRepository_MergeMetadata_UnknownHardware(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	err := repo.MergeMetadata(ctx, "never-paired", Metadata{"temperature": 4.5})
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("MergeMetadata() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_MarkOfflineBefore(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	now := time.Now().UTC()
	stale := testDevice("hw-stale")
	stale.Status = StatusOnline
	old := now.Add(-10 * time.Minute)
	stale.LastHeartbeat = &old

	fresh := testDevice("hw-fresh")
	fresh.Status = StatusOnline
	recent := now.Add(-10 * time.Second)
	fresh.LastHeartbeat = &recent

	neverBeat := testDevice("hw-silent")
	neverBeat.Status = StatusOnline

	alreadyOff := testDevice("hw-off")
	alreadyOff.Status = StatusOffline
	alreadyOff.LastHeartbeat = &old

	for _, dev := range []*Device{stale, fresh, neverBeat, alreadyOff} {
		if err := repo.Create(ctx, dev); err != nil {
			t.Fatalf("Create(%s) error = %v", dev.HardwareID, err)
		}
	}

	swept, err := repo.MarkOfflineBefore(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("MarkOfflineBefore() error = %v", err)
	}

	sweptSet := make(map[string]bool)
	for _, hw := range swept {
		sweptSet[hw] = true
	}
	if !sweptSet["hw-stale"] || !sweptSet["hw-silent"] {
		t.Errorf("swept = %v, want hw-stale and hw-silent", swept)
	}
	if sweptSet["hw-fresh"] || sweptSet["hw-off"] {
		t.Errorf("swept = %v, should not include hw-fresh or hw-off", swept)
	}

	got, err := repo.GetByHardwareID(ctx, "hw-stale")
	if err != nil {
		t.Fatalf("GetByHardwareID() error = %v", err)
	}
	if got.Status != StatusOffline {
		t.Errorf("stale device Status = %q, want offline", got.Status)
	}

	got, err = repo.GetByHardwareID(ctx, "hw-fresh")
	if err != nil {
		t.Fatalf("GetByHardwareID() error = %v", err)
	}
	if got.Status != StatusOnline {
		t.Errorf("fresh device Status = %q, want online", got.Status)
	}
}
