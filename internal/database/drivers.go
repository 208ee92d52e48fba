package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"towtrace-backend/internal/hos"
	"towtrace-backend/internal/models"

	"github.com/jmoiron/sqlx"
)

// DriverDirectory reads the drivers table for display and tenant scoping
type DriverDirectory struct {
	db *sqlx.DB
}

func NewDriverDirectory(db *sqlx.DB) *DriverDirectory {
	return &DriverDirectory{db: db}
}

// GetDriver returns a driver of the given tenant. An empty tenantID skips
// the tenant check.
func (d *DriverDirectory) GetDriver(ctx context.Context, tenantID, driverID string) (*models.Driver, error) {
	var driver models.Driver
	query := `SELECT id, tenant_id, name, current_vehicle_id FROM drivers
	          WHERE id = $1 AND ($2 = '' OR tenant_id = $2)`

	err := d.db.GetContext(ctx, &driver, query, driverID, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", hos.ErrDriverNotFound, driverID)
	}
	if err != nil {
		return nil, storageError("failed to get driver", err)
	}
	return &driver, nil
}

// ListFleetStatus returns every driver in the tenant with their open
// interval's status, if any
func (d *DriverDirectory) ListFleetStatus(ctx context.Context, tenantID string) ([]models.FleetDriverStatus, error) {
	query := `
		SELECT
			dr.id AS driver_id,
			dr.name AS driver_name,
			dr.current_vehicle_id,
			i.status,
			i.start_time AS status_since
		FROM drivers dr
		LEFT JOIN duty_status_intervals i
			ON i.driver_id = dr.id AND i.end_time IS NULL
		WHERE dr.tenant_id = $1
		ORDER BY dr.name ASC
	`

	rows := []models.FleetDriverStatus{}
	if err := d.db.SelectContext(ctx, &rows, query, tenantID); err != nil {
		return nil, storageError("failed to list fleet status", err)
	}
	return rows, nil
}
