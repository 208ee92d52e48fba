package models

import "time"

// ViolationType identifies which regulatory limit was breached
type ViolationType string

const (
	ViolationDriveTime ViolationType = "drive_time"
	ViolationDutyTime  ViolationType = "duty_time"
	ViolationBreak     ViolationType = "break"
	ViolationCycle     ViolationType = "cycle"
)

// Violation is derived on every summary computation and never stored
type Violation struct {
	Type        ViolationType `json:"type"`
	Description string        `json:"description"`
	DetectedAt  time.Time     `json:"detected_at"`
}

// StatusTotals maps each duty status to total minutes. Built by the
// aggregator with all four statuses present.
type StatusTotals map[DutyStatus]int

// Get returns the minutes for a status, zero when absent
func (t StatusTotals) Get(s DutyStatus) int {
	return t[s]
}

// Duty returns driving plus on-duty minutes
func (t StatusTotals) Duty() int {
	return t[DutyStatusDriving] + t[DutyStatusOnDuty]
}

// ComplianceSummary is the per-driver HOS view, rebuilt on every read
type ComplianceSummary struct {
	DriverID                    string       `json:"driver_id"`
	DriverName                  string       `json:"driver_name,omitempty"`
	VehicleID                   *string      `json:"vehicle_id,omitempty"`
	CurrentStatus               DutyStatus   `json:"current_status"`
	CurrentStatusStart          time.Time    `json:"current_status_start"`
	CurrentStatusElapsedMinutes int          `json:"current_status_elapsed_minutes"`
	WindowStart                 time.Time    `json:"window_start"`
	WindowEnd                   time.Time    `json:"window_end"`
	TotalMinutes                StatusTotals `json:"total_minutes"`
	RemainingDriveTimeMinutes   int          `json:"remaining_drive_time_minutes"`
	RemainingDutyTimeMinutes    int          `json:"remaining_duty_time_minutes"`
	RemainingCycleMinutes       *int         `json:"remaining_cycle_minutes,omitempty"`
	Violations                  []Violation  `json:"violations"`
	GeneratedAt                 time.Time    `json:"generated_at"`
}

// HOSReport is the analytics view over a longer window. Margins are
// unclamped and go negative once a limit is exceeded.
type HOSReport struct {
	DriverID           string       `json:"driver_id"`
	WindowStart        time.Time    `json:"window_start"`
	WindowEnd          time.Time    `json:"window_end"`
	TotalMinutes       StatusTotals `json:"total_minutes"`
	DriveMarginMinutes int          `json:"drive_margin_minutes"`
	DutyMarginMinutes  int          `json:"duty_margin_minutes"`
	IntervalCount      int          `json:"interval_count"`
}

// Driver is the directory view of a driver used for display
type Driver struct {
	ID               string  `json:"id" db:"id"`
	TenantID         string  `json:"tenant_id" db:"tenant_id"`
	Name             string  `json:"name" db:"name"`
	CurrentVehicleID *string `json:"current_vehicle_id" db:"current_vehicle_id"`
}

// FleetDriverStatus is one row of the fleet duty-status board
type FleetDriverStatus struct {
	DriverID         string      `json:"driver_id" db:"driver_id"`
	DriverName       string      `json:"driver_name" db:"driver_name"`
	CurrentVehicleID *string     `json:"current_vehicle_id" db:"current_vehicle_id"`
	Status           *DutyStatus `json:"status" db:"status"` // nil when the driver has no history
	StatusSince      *int64      `json:"status_since" db:"status_since"`
}
