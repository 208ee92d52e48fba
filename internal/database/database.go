package database

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Connect opens the Postgres pool and verifies it with a ping
func Connect(dbURL string, maxOpenConns int) (*sqlx.DB, error) {
	log.Info().
		Int("url_length", len(dbURL)).
		Str("url_prefix", dbURL[:min(30, len(dbURL))]+"...").
		Msg("🔌 Database connection attempt")

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Error().Err(err).Str("error_type", fmt.Sprintf("%T", err)).Msg("❌ sqlx.Connect() failed")
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		log.Error().Err(err).Str("error_type", fmt.Sprintf("%T", err)).Msg("❌ Ping() failed")
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	log.Info().Msg("✅ Database connection successful")
	return db, nil
}

// Migrate creates the HOS tables. Every statement is idempotent.
func Migrate(db *sqlx.DB) error {
	migrations := []string{
		// Directory tables. Owned by the tenant/driver/vehicle/device services;
		// created here so the HOS service can run standalone.
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at BIGINT NOT NULL DEFAULT (EXTRACT(EPOCH FROM NOW()) * 1000)::BIGINT
		)`,

		`CREATE TABLE IF NOT EXISTS vehicles (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at BIGINT NOT NULL DEFAULT (EXTRACT(EPOCH FROM NOW()) * 1000)::BIGINT,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS drivers (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			current_vehicle_id TEXT,
			created_at BIGINT NOT NULL DEFAULT (EXTRACT(EPOCH FROM NOW()) * 1000)::BIGINT,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE,
			FOREIGN KEY (current_vehicle_id) REFERENCES vehicles(id) ON DELETE SET NULL
		)`,

		`CREATE TABLE IF NOT EXISTS devices (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			driver_id TEXT,
			vehicle_id TEXT,
			status TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active', 'inactive', 'retired')),
			last_seen_at BIGINT,
			created_at BIGINT NOT NULL DEFAULT (EXTRACT(EPOCH FROM NOW()) * 1000)::BIGINT,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE,
			FOREIGN KEY (driver_id) REFERENCES drivers(id) ON DELETE SET NULL,
			FOREIGN KEY (vehicle_id) REFERENCES vehicles(id) ON DELETE SET NULL
		)`,

		// Duty status intervals. Append-only; the interval manager is the only writer.
		`CREATE TABLE IF NOT EXISTS duty_status_intervals (
			id TEXT PRIMARY KEY,
			driver_id TEXT NOT NULL,
			vehicle_id TEXT,
			device_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('driving', 'on_duty', 'off_duty', 'sleeping')),
			start_time BIGINT NOT NULL,
			end_time BIGINT,
			duration_minutes INT,
			created_at BIGINT NOT NULL,
			FOREIGN KEY (driver_id) REFERENCES drivers(id) ON DELETE CASCADE,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE,
			CHECK ((end_time IS NULL) = (duration_minutes IS NULL)),
			CHECK (end_time IS NULL OR end_time >= start_time),
			CHECK (duration_minutes IS NULL OR duration_minutes >= 0)
		)`,

		// At most one open interval per driver, enforced across processes
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_duty_intervals_one_open
			ON duty_status_intervals(driver_id) WHERE end_time IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_duty_intervals_driver_start
			ON duty_status_intervals(driver_id, start_time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_duty_intervals_tenant ON duty_status_intervals(tenant_id)`,

		// Last known position per vehicle, updated via UPSERT
		`CREATE TABLE IF NOT EXISTS vehicle_positions (
			vehicle_id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			device_id TEXT NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			speed DOUBLE PRECISION NOT NULL DEFAULT 0,
			engine_on BOOLEAN NOT NULL DEFAULT FALSE,
			timestamp BIGINT NOT NULL,
			updated_at BIGINT NOT NULL DEFAULT (EXTRACT(EPOCH FROM NOW()) * 1000)::BIGINT,
			FOREIGN KEY (vehicle_id) REFERENCES vehicles(id) ON DELETE CASCADE
		)`,

		// Compliance audit trail of every received telemetry record
		`CREATE TABLE IF NOT EXISTS telemetry_events (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			driver_id TEXT,
			tenant_id TEXT,
			duty_status TEXT,
			event_time BIGINT,
			received_at BIGINT NOT NULL,
			outcome TEXT NOT NULL CHECK(outcome IN ('opened', 'transitioned', 'unchanged', 'stale', 'rejected_invalid', 'device_not_found', 'failed')),
			detail TEXT,
			interval_id TEXT,
			diagnostics JSONB
		)`,

		`CREATE INDEX IF NOT EXISTS idx_telemetry_events_driver ON telemetry_events(driver_id, event_time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_events_device ON telemetry_events(device_id, received_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_events_outcome ON telemetry_events(outcome)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_driver ON devices(driver_id)`,
		`CREATE INDEX IF NOT EXISTS idx_drivers_tenant ON drivers(tenant_id)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	log.Info().Int("statements", len(migrations)).Msg("✓ Database migrations completed")
	return nil
}
