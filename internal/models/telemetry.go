package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// TelemetryRequest is the raw ingest payload as sent by a logging device
// gateway. Every field is kept as json.RawMessage so that a value of the
// wrong JSON type is reported as a validation error instead of a decode
// failure, and still reaches the audit trail.
type TelemetryRequest struct {
	DeviceID     json.RawMessage `json:"device_id"`
	Timestamp    json.RawMessage `json:"timestamp"`
	Latitude     json.RawMessage `json:"latitude"`
	Longitude    json.RawMessage `json:"longitude"`
	Speed        json.RawMessage `json:"speed"`
	EngineStatus json.RawMessage `json:"engine_status"`
	DutyStatus   json.RawMessage `json:"duty_status"`
	Diagnostics  json.RawMessage `json:"diagnostics,omitempty"`
}

// RawText renders a raw field for logs and the audit trail. JSON strings are
// unquoted, other values are returned as sent, and null or absent is "".
func RawText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if trimmed[0] == '"' && json.Unmarshal(trimmed, &s) == nil {
		return s
	}
	return string(trimmed)
}

// Telemetry is a validated, normalized telemetry record
type Telemetry struct {
	DeviceID    string
	Timestamp   time.Time
	Latitude    float64
	Longitude   float64
	Speed       float64
	EngineOn    bool
	DutyStatus  DutyStatus
	Diagnostics json.RawMessage
}

// DeviceAssignment is what a device id resolves to
type DeviceAssignment struct {
	DeviceID  string  `json:"device_id" db:"device_id"`
	DriverID  string  `json:"driver_id" db:"driver_id"`
	VehicleID *string `json:"vehicle_id" db:"vehicle_id"`
	TenantID  string  `json:"tenant_id" db:"tenant_id"`
}

// VehiclePosition is the last known position of a vehicle (one row per vehicle)
type VehiclePosition struct {
	VehicleID string  `json:"vehicle_id" db:"vehicle_id"`
	TenantID  string  `json:"tenant_id" db:"tenant_id"`
	DeviceID  string  `json:"device_id" db:"device_id"`
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
	Speed     float64 `json:"speed" db:"speed"`
	EngineOn  bool    `json:"engine_on" db:"engine_on"`
	Timestamp int64   `json:"timestamp" db:"timestamp"` // Device-side timestamp (ms)
}

// TelemetryOutcome records what happened to one ingested record
type TelemetryOutcome string

const (
	OutcomeOpened         TelemetryOutcome = "opened"           // First interval for the driver
	OutcomeTransitioned   TelemetryOutcome = "transitioned"     // Previous interval closed, new one opened
	OutcomeUnchanged      TelemetryOutcome = "unchanged"        // Same status as the open interval
	OutcomeStale          TelemetryOutcome = "stale"            // Older than the open interval's start
	OutcomeInvalid        TelemetryOutcome = "rejected_invalid" // Failed validation
	OutcomeDeviceNotFound TelemetryOutcome = "device_not_found" // Unknown device
	OutcomeFailed         TelemetryOutcome = "failed"           // Storage/conflict after retries
)

// TelemetryEvent is one row of the telemetry audit trail
type TelemetryEvent struct {
	ID          string           `json:"id" db:"id"`
	DeviceID    string           `json:"device_id" db:"device_id"`
	DriverID    *string          `json:"driver_id" db:"driver_id"`
	TenantID    *string          `json:"tenant_id" db:"tenant_id"`
	DutyStatus  *string          `json:"duty_status" db:"duty_status"`
	EventTime   *int64           `json:"event_time" db:"event_time"` // Device-side timestamp (ms), nil if unparseable
	ReceivedAt  int64            `json:"received_at" db:"received_at"`
	Outcome     TelemetryOutcome `json:"outcome" db:"outcome"`
	Detail      *string          `json:"detail" db:"detail"`
	IntervalID  *string          `json:"interval_id" db:"interval_id"`
	Diagnostics []byte           `json:"diagnostics" db:"diagnostics"`
}
