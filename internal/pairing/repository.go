package pairing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sous-kitchen/edge-core/internal/device"
)

// Repository defines the interface for pairing code persistence.
type Repository interface {
	// Replace atomically removes any existing code for the hardware ID
	// and stores the new one. Both happen in a single transaction so a
	// crash can never leave a unit with two live codes or none.
	Replace(ctx context.Context, code *Code) error

	// FindValid looks up an unexpired code. Matching is case-insensitive.
	// Returns ErrCodeNotFound for unknown and expired codes alike.
	FindValid(ctx context.Context, code string, now time.Time) (*Code, error)

	// Delete removes a code by ID. Deleting an absent code is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes all codes past their expiry. Returns the
	// number of rows removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed pairing code repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Replace atomically swaps the active code for a hardware ID.
func (r *SQLiteRepository) Replace(ctx context.Context, code *Code) error {
	metadataJSON, err := json.Marshal(normaliseMetadata(code.Metadata))
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM pairing_codes WHERE hardware_id = ?",
		code.HardwareID,
	); err != nil {
		return fmt.Errorf("clearing old codes: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pairing_codes (id, code, hardware_id, device_type, metadata, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		code.ID,
		code.Code,
		code.HardwareID,
		string(code.DeviceType),
		string(metadataJSON),
		code.ExpiresAt.UTC().Format(time.RFC3339),
		code.CreatedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting pairing code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing pairing code: %w", err)
	}
	return nil
}

// FindValid looks up an unexpired code, case-insensitively.
func (r *SQLiteRepository) FindValid(ctx context.Context, rawCode string, now time.Time) (*Code, error) {
	query := `
		SELECT id, code, hardware_id, device_type, metadata, expires_at, created_at
		FROM pairing_codes
		WHERE code = ? AND expires_at > ?`

	row := r.db.QueryRowContext(ctx, query,
		strings.ToUpper(strings.TrimSpace(rawCode)),
		now.UTC().Format(time.RFC3339),
	)

	var c Code
	var deviceType, metadataJSON string
	var expiresAt, createdAt string

	err := row.Scan(&c.ID, &c.Code, &c.HardwareID, &deviceType, &metadataJSON, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("querying pairing code: %w", err)
	}

	c.DeviceType = device.DeviceType(deviceType)

	if err := json.Unmarshal([]byte(metadataJSON), &c.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshalling metadata: %w", err)
	}

	c.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	c.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &c, nil
}

// Delete removes a code by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM pairing_codes WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting pairing code: %w", err)
	}
	return nil
}

// DeleteExpired removes all codes past their expiry.
func (r *SQLiteRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM pairing_codes WHERE expires_at <= ?",
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired codes: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return removed, nil
}

// normaliseMetadata ensures metadata marshals to an object, never JSON null.
func normaliseMetadata(m device.Metadata) device.Metadata {
	if m == nil {
		return device.Metadata{}
	}
	return m
}
