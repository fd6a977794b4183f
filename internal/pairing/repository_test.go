package pairing

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sous-kitchen/edge-core/internal/device"
)

// setupTestDB creates an in-memory SQLite database with the pairing and
// devices schema.
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
		CREATE TABLE pairing_codes (
			id          TEXT PRIMARY KEY,
			code        TEXT NOT NULL UNIQUE,
			hardware_id TEXT NOT NULL,
			device_type TEXT NOT NULL,
			metadata    TEXT NOT NULL DEFAULT '{}',
			expires_at  TEXT NOT NULL,
			created_at  TEXT NOT NULL
		);
		CREATE UNIQUE INDEX idx_pairing_codes_hardware ON pairing_codes(hardware_id);

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
		);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	return db
}

// testCode returns a valid unconsumed code for tests.
func testCode(codeStr, hardwareID string) *Code {
	now := time.Now().UTC()
	return &Code{
		ID:         "pc-" + codeStr,
		Code:       codeStr,
		HardwareID: hardwareID,
		DeviceType: device.DeviceTypeSignage,
		Metadata:   device.Metadata{"resolution": "1920x1080"},
		ExpiresAt:  now.Add(10 * time.Minute),
		CreatedAt:  now,
	}
}

func TestSQLiteRepository_ReplaceAndFind(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	code := testCode("ABC123", "hw-001")
	if err := repo.Replace(ctx, code); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	got, err := repo.FindValid(ctx, "ABC123", time.Now().UTC())
	if err != nil {
		t.Fatalf("FindValid() error = %v", err)
	}
	if got.HardwareID != "hw-001" {
		t.Errorf("HardwareID = %q, want hw-001", got.HardwareID)
	}
	if got.DeviceType != device.DeviceTypeSignage {
		t.Errorf("DeviceType = %q, want signage", got.DeviceType)
	}
	if got.Metadata["resolution"] != "1920x1080" {
		t.Errorf("Metadata[resolution] = %v, want 1920x1080", got.Metadata["resolution"])
	}
}

func TestSQLiteRepository_FindValid_CaseInsensitive(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Replace(ctx, testCode("ABC123", "hw-001")); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	// Typed lowercase on a phone keyboard.
	got, err := repo.FindValid(ctx, "abc123", time.Now().UTC())
	if err != nil {
		t.Fatalf("FindValid() lowercase error = %v", err)
	}
	if got.Code != "ABC123" {
		t.Errorf("Code = %q, want ABC123", got.Code)
	}

	// Whitespace around the code is forgiven too.
	if _, err := repo.FindValid(ctx, "  abc123 ", time.Now().UTC()); err != nil {
		t.Errorf("FindValid() padded error = %v", err)
	}
}

func TestSQLiteRepository_FindValid_Expired(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	code := testCode("ABC123", "hw-001")
	code.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	if err := repo.Replace(ctx, code); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	_, err := repo.FindValid(ctx, "ABC123", time.Now().UTC())
	if !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("FindValid() expired error = %v, want ErrCodeNotFound", err)
	}
}

func TestSQLiteRepository_FindValid_Unknown(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	_, err := repo.FindValid(context.Background(), "NOPE99", time.Now().UTC())
	if !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("FindValid() unknown error = %v, want ErrCodeNotFound", err)
	}
}

func TestSQLiteRepository_Replace_EvictsOldCode(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Replace(ctx, testCode("OLD111", "hw-001")); err != nil {
		t.Fatalf("Replace() first error = %v", err)
	}
	if err := repo.Replace(ctx, testCode("NEW222", "hw-001")); err != nil {
		t.Fatalf("Replace() second error = %v", err)
	}

	if _, err := repo.FindValid(ctx, "OLD111", time.Now().UTC()); !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("old code should be gone, FindValid() error = %v", err)
	}
	if _, err := repo.FindValid(ctx, "NEW222", time.Now().UTC()); err != nil {
		t.Errorf("new code should be live, FindValid() error = %v", err)
	}
}

func TestSQLiteRepository_Delete(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	code := testCode("ABC123", "hw-001")
	if err := repo.Replace(ctx, code); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	if err := repo.Delete(ctx, code.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.FindValid(ctx, "ABC123", time.Now().UTC()); !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("FindValid() after delete error = %v, want ErrCodeNotFound", err)
	}

	// Deleting again is not an error.
	if err := repo.Delete(ctx, code.ID); err != nil {
		t.Errorf("Delete() second call error = %v", err)
	}
}

func TestSQLiteRepository_DeleteExpired(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	live := testCode("LIVE11", "hw-live")
	dead := testCode("DEAD11", "hw-dead")
	dead.ExpiresAt = time.Now().UTC().Add(-time.Hour)

	if err := repo.Replace(ctx, live); err != nil {
		t.Fatalf("Replace(live) error = %v", err)
	}
	if err := repo.Replace(ctx, dead); err != nil {
		t.Fatalf("Replace(dead) error = %v", err)
	}

	removed, err := repo.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("DeleteExpired() removed = %d, want 1", removed)
	}

	if _, err := repo.FindValid(ctx, "LIVE11", time.Now().UTC()); err != nil {
		t.Errorf("live code should survive expiry sweep, error = %v", err)
	}
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := generateCode()
		if err != nil {
			t.Fatalf("generateCode() error = %v", err)
		}
		if len(code) != codeLength {
			t.Fatalf("generateCode() length = %d, want %d", len(code), codeLength)
		}
		for _, ch := range code {
			if !((ch >= '0' && ch <= '9') || (ch >= 'A' && ch <= 'Z')) {
				t.Fatalf("generateCode() produced invalid character %q in %q", ch, code)
			}
		}
		seen[code] = true
	}
	// 100 draws from 36^6 colliding down to a handful would indicate a
	// broken generator.
	if len(seen) < 95 {
		t.Errorf("generateCode() produced %d distinct codes out of 100", len(seen))
	}
}
