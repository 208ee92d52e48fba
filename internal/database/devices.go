package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"towtrace-backend/internal/hos"
	"towtrace-backend/internal/models"

	"github.com/jmoiron/sqlx"
)

// DeviceDirectory resolves devices and records their activity
type DeviceDirectory struct {
	db *sqlx.DB
}

func NewDeviceDirectory(db *sqlx.DB) *DeviceDirectory {
	return &DeviceDirectory{db: db}
}

// ResolveDevice maps an active, driver-assigned device to its driver,
// vehicle and tenant
func (d *DeviceDirectory) ResolveDevice(ctx context.Context, deviceID string) (*models.DeviceAssignment, error) {
	var assignment models.DeviceAssignment
	query := `SELECT id AS device_id, driver_id, vehicle_id, tenant_id
	          FROM devices
	          WHERE id = $1
	          AND status = 'active'
	          AND driver_id IS NOT NULL`

	err := d.db.GetContext(ctx, &assignment, query, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", hos.ErrDeviceNotFound, deviceID)
	}
	if err != nil {
		return nil, storageError("failed to resolve device", err)
	}
	return &assignment, nil
}

// TouchDevice moves last_seen_at forward; out-of-order reports never move it back
func (d *DeviceDirectory) TouchDevice(ctx context.Context, deviceID string, seenAt time.Time) error {
	query := `UPDATE devices
	          SET last_seen_at = GREATEST(COALESCE(last_seen_at, 0), $1)
	          WHERE id = $2`

	if _, err := d.db.ExecContext(ctx, query, seenAt.UnixMilli(), deviceID); err != nil {
		return storageError("failed to update device last seen", err)
	}
	return nil
}

// UpsertVehiclePosition keeps one row per vehicle with the newest position
func (d *DeviceDirectory) UpsertVehiclePosition(ctx context.Context, pos models.VehiclePosition) error {
	query := `INSERT INTO vehicle_positions (
			vehicle_id, tenant_id, device_id, latitude, longitude, speed, engine_on, timestamp, updated_at
		) VALUES (:vehicle_id, :tenant_id, :device_id, :latitude, :longitude, :speed, :engine_on, :timestamp,
			(EXTRACT(EPOCH FROM NOW()) * 1000)::BIGINT)
		ON CONFLICT (vehicle_id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			device_id = EXCLUDED.device_id,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			speed = EXCLUDED.speed,
			engine_on = EXCLUDED.engine_on,
			timestamp = EXCLUDED.timestamp,
			updated_at = EXCLUDED.updated_at
		WHERE vehicle_positions.timestamp <= EXCLUDED.timestamp`

	if _, err := d.db.NamedExecContext(ctx, query, pos); err != nil {
		return storageError("failed to upsert vehicle position", err)
	}
	return nil
}

// RecordTelemetryEvent appends to the telemetry audit trail
func (d *DeviceDirectory) RecordTelemetryEvent(ctx context.Context, ev models.TelemetryEvent) error {
	var diagnostics interface{}
	if len(ev.Diagnostics) > 0 {
		diagnostics = string(ev.Diagnostics)
	}

	query := `INSERT INTO telemetry_events (
			id, device_id, driver_id, tenant_id, duty_status, event_time, received_at,
			outcome, detail, interval_id, diagnostics
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb)`

	_, err := d.db.ExecContext(ctx, query,
		ev.ID,
		ev.DeviceID,
		ev.DriverID,
		ev.TenantID,
		ev.DutyStatus,
		ev.EventTime,
		ev.ReceivedAt,
		string(ev.Outcome),
		ev.Detail,
		ev.IntervalID,
		diagnostics,
	)
	if err != nil {
		return storageError("failed to record telemetry event", err)
	}
	return nil
}
