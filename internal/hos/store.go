package hos

import (
	"context"
	"time"

	"towtrace-backend/internal/models"
)

// IntervalStore is the persistence contract for duty-status intervals.
//
// Implementations must return ErrConcurrencyConflict (wrapped) from
// ApplyTransition when the interval to close is no longer open, or when
// opening would leave the driver with two open intervals. Transient failures
// are wrapped with ErrStorage.
type IntervalStore interface {
	// GetOpenInterval returns the driver's open interval, or nil when the
	// driver has no open interval
	GetOpenInterval(ctx context.Context, driverID string) (*models.DutyInterval, error)

	// ApplyTransition closes t.Close (if set) and inserts t.Open as one
	// atomic write
	ApplyTransition(ctx context.Context, t Transition) error

	// ListClosedIntervals returns closed intervals whose start time is in
	// [from, to), ordered by start time ascending
	ListClosedIntervals(ctx context.Context, driverID string, from, to time.Time) ([]models.DutyInterval, error)

	// ListIntervals returns open and closed intervals matching q, ordered by
	// start time descending
	ListIntervals(ctx context.Context, q IntervalQuery) ([]models.DutyInterval, error)
}

// Transition is the atomic unit written by the interval manager
type Transition struct {
	DriverID string
	Close    *CloseOp
	Open     models.DutyInterval
}

// CloseOp closes a specific interval, conditional on it still being open
type CloseOp struct {
	IntervalID      string
	EndTime         int64
	DurationMinutes int
}

// IntervalQuery filters the interval history. From/To bound the start time:
// From inclusive, To exclusive.
type IntervalQuery struct {
	DriverID string
	TenantID string
	From     *time.Time
	To       *time.Time
	Limit    int
}

// DeviceResolver maps a device id to its driver, vehicle and tenant.
// Unknown devices return an error wrapping ErrDeviceNotFound.
type DeviceResolver interface {
	ResolveDevice(ctx context.Context, deviceID string) (*models.DeviceAssignment, error)
}

// DeviceActivityRecorder receives the simple upserts done on every accepted
// telemetry record. Neither write is part of the interval state machine.
type DeviceActivityRecorder interface {
	TouchDevice(ctx context.Context, deviceID string, seenAt time.Time) error
	UpsertVehiclePosition(ctx context.Context, pos models.VehiclePosition) error
}

// AuditLog persists what was received and what happened to it
type AuditLog interface {
	RecordTelemetryEvent(ctx context.Context, ev models.TelemetryEvent) error
}

// DriverDirectory is the read-only driver lookup used for display and tenant
// scoping. Unknown drivers return an error wrapping ErrDriverNotFound.
type DriverDirectory interface {
	GetDriver(ctx context.Context, tenantID, driverID string) (*models.Driver, error)
	ListFleetStatus(ctx context.Context, tenantID string) ([]models.FleetDriverStatus, error)
}
