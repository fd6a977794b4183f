package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetByHardwareID retrieves a device by its hardware identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByHardwareID(ctx context.Context, hardwareID string) (*Device, error)

	// ListByOrganization retrieves all devices paired into an organisation.
	ListByOrganization(ctx context.Context, orgID string) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same hardware ID exists.
	Create(ctx context.Context, device *Device) error

	// Update modifies an existing device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// RecordHeartbeat marks a device online, stamps last_heartbeat, and
	// merges the given metadata into the stored metadata blob.
	// Returns ErrDeviceNotFound if the hardware ID is unknown.
	RecordHeartbeat(ctx context.Context, hardwareID string, metadata Metadata, at time.Time) error

	// MergeMetadata merges the given metadata into the stored metadata blob
	// without touching status or last_heartbeat.
	// Returns ErrDeviceNotFound if the hardware ID is unknown.
	MergeMetadata(ctx context.Context, hardwareID string, metadata Metadata) error

	// MarkOfflineBefore flips every online device whose last heartbeat is
	// older than the cutoff to offline. Returns the hardware IDs affected.
	MarkOfflineBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, organization_id, location_id, hardware_id, type, name,
		status, metadata, required_version, last_heartbeat, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	d, err := scanDeviceRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// GetByHardwareID retrieves a device by its hardware identifier.
func (r *SQLiteRepository) GetByHardwareID(ctx context.Context, hardwareID string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE hardware_id = ?`

	row := r.db.QueryRowContext(ctx, query, hardwareID)
	d, err := scanDeviceRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by hardware id: %w", err)
	}
	return d, nil
}

// ListByOrganization retrieves all devices paired into an organisation.
func (r *SQLiteRepository) ListByOrganization(ctx context.Context, orgID string) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices
		WHERE organization_id = ?
		ORDER BY name`

	return r.queryDevices(ctx, query, orgID)
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	metadataJSON, err := json.Marshal(normaliseMetadata(device.Metadata))
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	// Set timestamps if not set
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (
			id, organization_id, location_id, hardware_id, type, name,
			status, metadata, required_version, last_heartbeat, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		device.ID,
		nullableString(device.OrganizationID),
		nullableString(device.LocationID),
		device.HardwareID,
		string(device.Type),
		device.Name,
		string(device.Status),
		string(metadataJSON),
		nullableString(device.RequiredVersion),
		nullableTime(device.LastHeartbeat),
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// Update modifies an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	metadataJSON, err := json.Marshal(normaliseMetadata(device.Metadata))
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	device.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices SET
			organization_id = ?, location_id = ?, type = ?, name = ?,
			status = ?, metadata = ?, required_version = ?, last_heartbeat = ?,
			updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		nullableString(device.OrganizationID),
		nullableString(device.LocationID),
		string(device.Type),
		device.Name,
		string(device.Status),
		string(metadataJSON),
		nullableString(device.RequiredVersion),
		nullableTime(device.LastHeartbeat),
		device.UpdatedAt.Format(time.RFC3339),
		device.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// RecordHeartbeat marks a device online and merges reported metadata.
// Uses json_patch so metadata keys not present in this heartbeat survive.
func (r *SQLiteRepository) RecordHeartbeat(ctx context.Context, hardwareID string, metadata Metadata, at time.Time) error {
	metadataJSON, err := json.Marshal(normaliseMetadata(metadata))
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	query := `
		UPDATE devices
		SET status = ?,
		    metadata = json_patch(COALESCE(metadata, '{}'), ?),
		    last_heartbeat = ?,
		    updated_at = ?
		WHERE hardware_id = ?`

	stamp := at.UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, query,
		string(StatusOnline),
		string(metadataJSON),
		stamp,
		stamp,
		hardwareID,
	)
	if err != nil {
		return fmt.Errorf("recording heartbeat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// MergeMetadata merges metadata into the stored blob. Telemetry samples
// land here as a latest-value cache on the device record; liveness fields
// are left alone so a metadata write never fakes a heartbeat.
func (r *SQLiteRepository) MergeMetadata(ctx context.Context, hardwareID string, metadata Metadata) error {
	metadataJSON, err := json.Marshal(normaliseMetadata(metadata))
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	query := `
		UPDATE devices
		SET metadata = json_patch(COALESCE(metadata, '{}'), ?),
		    updated_at = ?
		WHERE hardware_id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(metadataJSON),
		time.Now().UTC().Format(time.RFC3339),
		hardwareID,
	)
	if err != nil {
		return fmt.Errorf("merging metadata: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// MarkOfflineBefore flips stale online devices to offline.
func (r *SQLiteRepository) MarkOfflineBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	// Collect affected hardware IDs first so callers can notify subscribers.
	selectQuery := `
		SELECT hardware_id FROM devices
		WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)`

	cutoffStr := cutoff.UTC().Format(time.RFC3339)
	rows, err := r.db.QueryContext(ctx, selectQuery, string(StatusOnline), cutoffStr)
	if err != nil {
		return nil, fmt.Errorf("querying stale devices: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var hw string
		if err := rows.Scan(&hw); err != nil {
			return nil, fmt.Errorf("scanning stale device: %w", err)
		}
		stale = append(stale, hw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stale devices: %w", err)
	}

	if len(stale) == 0 {
		return nil, nil
	}

	updateQuery := `
		UPDATE devices
		SET status = ?, updated_at = ?
		WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)`

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := r.db.ExecContext(ctx, updateQuery,
		string(StatusOffline), now, string(StatusOnline), cutoffStr,
	); err != nil {
		return nil, fmt.Errorf("marking devices offline: %w", err)
	}

	return stale, nil
}

// queryDevices executes a query and returns a slice of devices.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDeviceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDeviceRow scans a row or rows result into a Device.
func scanDeviceRow(scanner rowScanner) (*Device, error) {
	var d Device
	var orgID, locationID, requiredVersion sql.NullString
	var lastHeartbeat sql.NullString
	var metadataJSON string
	var deviceType, status string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&orgID,
		&locationID,
		&d.HardwareID,
		&deviceType,
		&d.Name,
		&status,
		&metadataJSON,
		&requiredVersion,
		&lastHeartbeat,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Set type fields
	d.Type = DeviceType(deviceType)
	d.Status = Status(status)

	// Set nullable strings
	if orgID.Valid {
		d.OrganizationID = &orgID.String
	}
	if locationID.Valid {
		d.LocationID = &locationID.String
	}
	if requiredVersion.Valid {
		d.RequiredVersion = &requiredVersion.String
	}

	// Parse timestamps
	if lastHeartbeat.Valid {
		t, err := time.Parse(time.RFC3339, lastHeartbeat.String)
		if err == nil {
			d.LastHeartbeat = &t
		}
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	// Unmarshal JSON fields
	if err := json.Unmarshal([]byte(metadataJSON), &d.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshalling metadata: %w", err)
	}

	return &d, nil
}

// normaliseMetadata ensures metadata marshals to an object, never JSON null.
func normaliseMetadata(m Metadata) Metadata {
	if m == nil {
		return Metadata{}
	}
	return m
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
