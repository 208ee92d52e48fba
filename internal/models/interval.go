package models

import (
	"math"
	"time"
)

// DutyInterval is one contiguous span of a single duty status for a driver.
// Times are Unix epoch milliseconds. EndTime and DurationMinutes are nil while
// the interval is open.
type DutyInterval struct {
	ID              string     `json:"id" db:"id"`
	DriverID        string     `json:"driver_id" db:"driver_id"`
	VehicleID       *string    `json:"vehicle_id" db:"vehicle_id"`
	DeviceID        string     `json:"device_id" db:"device_id"`
	TenantID        string     `json:"tenant_id" db:"tenant_id"`
	Status          DutyStatus `json:"status" db:"status"`
	StartTime       int64      `json:"start_time" db:"start_time"`
	EndTime         *int64     `json:"end_time" db:"end_time"`
	DurationMinutes *int       `json:"duration_minutes" db:"duration_minutes"`
	CreatedAt       int64      `json:"created_at" db:"created_at"`
}

// IsOpen returns true while the interval has no end time
func (i *DutyInterval) IsOpen() bool {
	return i.EndTime == nil
}

// Start returns the start time as a time.Time in UTC
func (i *DutyInterval) Start() time.Time {
	return time.UnixMilli(i.StartTime).UTC()
}

// End returns the end time, or nil for the open interval
func (i *DutyInterval) End() *time.Time {
	if i.EndTime == nil {
		return nil
	}
	t := time.UnixMilli(*i.EndTime).UTC()
	return &t
}

// ElapsedMinutes returns how long the interval has lasted as of now. Closed
// intervals return their stored duration.
func (i *DutyInterval) ElapsedMinutes(now time.Time) int {
	if i.DurationMinutes != nil {
		return *i.DurationMinutes
	}
	elapsed := DurationMinutes(i.StartTime, now.UnixMilli())
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// DurationMinutes rounds the span between two epoch-millisecond timestamps
// to whole minutes
func DurationMinutes(startMs, endMs int64) int {
	return int(math.Round(float64(endMs-startMs) / 60000))
}

// IntervalResponse is the API shape of a DutyInterval
type IntervalResponse struct {
	ID              string     `json:"id"`
	DriverID        string     `json:"driver_id"`
	VehicleID       *string    `json:"vehicle_id"`
	DeviceID        string     `json:"device_id"`
	Status          DutyStatus `json:"status"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	DurationMinutes *int       `json:"duration_minutes"`
}

func (i *DutyInterval) ToResponse() IntervalResponse {
	return IntervalResponse{
		ID:              i.ID,
		DriverID:        i.DriverID,
		VehicleID:       i.VehicleID,
		DeviceID:        i.DeviceID,
		Status:          i.Status,
		StartTime:       i.Start(),
		EndTime:         i.End(),
		DurationMinutes: i.DurationMinutes,
	}
}
