package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// DemoFleet is the directory data inserted by SeedDemoFleet
var DemoFleet = struct {
	TenantID string
	Drivers  []struct{ ID, Name, VehicleID, DeviceID string }
}{
	TenantID: "tenant-demo",
	Drivers: []struct{ ID, Name, VehicleID, DeviceID string }{
		{ID: "driver-001", Name: "Alex Moreno", VehicleID: "truck-101", DeviceID: "eld-1001"},
		{ID: "driver-002", Name: "Sam Okafor", VehicleID: "truck-102", DeviceID: "eld-1002"},
		{ID: "driver-003", Name: "Jordan Reyes", VehicleID: "truck-103", DeviceID: "eld-1003"},
	},
}

// SeedDemoFleet inserts one tenant with a few drivers, vehicles and devices
// so telemetry can be ingested against a fresh database
func SeedDemoFleet(db *sqlx.DB) error {
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM tenants WHERE id = $1", DemoFleet.TenantID); err != nil {
		return err
	}
	if count > 0 {
		log.Info().Msg("✓ Demo fleet already seeded, skipping...")
		return nil
	}

	log.Info().Int("drivers", len(DemoFleet.Drivers)).Msg("🌱 Seeding demo fleet...")

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO tenants (id, name) VALUES ($1, $2)`, DemoFleet.TenantID, "Demo Towing Co."); err != nil {
		return fmt.Errorf("failed to insert tenant: %w", err)
	}

	for _, d := range DemoFleet.Drivers {
		if _, err := tx.Exec(`INSERT INTO vehicles (id, tenant_id, name) VALUES ($1, $2, $3)`,
			d.VehicleID, DemoFleet.TenantID, "Truck "+d.VehicleID); err != nil {
			return fmt.Errorf("failed to insert vehicle %s: %w", d.VehicleID, err)
		}
		if _, err := tx.Exec(`INSERT INTO drivers (id, tenant_id, name, current_vehicle_id) VALUES ($1, $2, $3, $4)`,
			d.ID, DemoFleet.TenantID, d.Name, d.VehicleID); err != nil {
			return fmt.Errorf("failed to insert driver %s: %w", d.ID, err)
		}
		if _, err := tx.Exec(`INSERT INTO devices (id, tenant_id, driver_id, vehicle_id) VALUES ($1, $2, $3, $4)`,
			d.DeviceID, DemoFleet.TenantID, d.ID, d.VehicleID); err != nil {
			return fmt.Errorf("failed to insert device %s: %w", d.DeviceID, err)
		}
		log.Info().Str("driver", d.Name).Str("device", d.DeviceID).Msg("  ✓ Seeded driver")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}
	return nil
}
