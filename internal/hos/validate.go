package hos

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"towtrace-backend/internal/models"
)

// DefaultMaxFutureSkew is how far ahead of the server clock a device
// timestamp may be
const DefaultMaxFutureSkew = 5 * time.Minute

// ValidateTelemetry checks a raw ingest payload and normalizes it. The
// returned error is a *ValidationError naming the first bad field.
// Timestamps after notAfter are rejected; a zero notAfter disables the check.
func ValidateTelemetry(req models.TelemetryRequest, notAfter time.Time) (*models.Telemetry, error) {
	deviceID, err := parseString("device_id", req.DeviceID, "must be a string")
	if err != nil {
		return nil, err
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, &ValidationError{Field: "device_id", Reason: "is required"}
	}

	ts, err := parseTimestamp(req.Timestamp)
	if err != nil {
		return nil, err
	}
	if !notAfter.IsZero() && ts.After(notAfter) {
		return nil, &ValidationError{Field: "timestamp", Reason: "is in the future"}
	}

	lat, err := parseNumber("latitude", req.Latitude)
	if err != nil {
		return nil, err
	}
	if lat < -90 || lat > 90 {
		return nil, &ValidationError{Field: "latitude", Reason: "must be between -90 and 90"}
	}

	lon, err := parseNumber("longitude", req.Longitude)
	if err != nil {
		return nil, err
	}
	if lon < -180 || lon > 180 {
		return nil, &ValidationError{Field: "longitude", Reason: "must be between -180 and 180"}
	}

	speed, err := parseNumber("speed", req.Speed)
	if err != nil {
		return nil, err
	}
	if speed < 0 {
		return nil, &ValidationError{Field: "speed", Reason: "must not be negative"}
	}

	engineStatus, err := parseString("engine_status", req.EngineStatus, `must be "on" or "off"`)
	if err != nil {
		return nil, err
	}
	var engineOn bool
	switch engineStatus {
	case "on":
		engineOn = true
	case "off":
		engineOn = false
	case "":
		return nil, &ValidationError{Field: "engine_status", Reason: "is required"}
	default:
		return nil, &ValidationError{Field: "engine_status", Reason: `must be "on" or "off"`}
	}

	const dutyStatusReason = "must be one of driving, on_duty, off_duty, sleeping"
	dutyStatus, err := parseString("duty_status", req.DutyStatus, dutyStatusReason)
	if err != nil {
		return nil, err
	}
	if dutyStatus == "" {
		return nil, &ValidationError{Field: "duty_status", Reason: "is required"}
	}
	status, err := models.ParseDutyStatus(dutyStatus)
	if err != nil {
		return nil, &ValidationError{Field: "duty_status", Reason: dutyStatusReason}
	}

	var diagnostics json.RawMessage
	if trimmed := bytes.TrimSpace(req.Diagnostics); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if trimmed[0] != '{' || !json.Valid(trimmed) {
			return nil, &ValidationError{Field: "diagnostics", Reason: "must be a JSON object"}
		}
		diagnostics = json.RawMessage(trimmed)
	}

	return &models.Telemetry{
		DeviceID:    deviceID,
		Timestamp:   ts,
		Latitude:    lat,
		Longitude:   lon,
		Speed:       speed,
		EngineOn:    engineOn,
		DutyStatus:  status,
		Diagnostics: diagnostics,
	}, nil
}

// parseString returns "" for an absent or null field and rejects any other
// JSON type with reason
func parseString(field string, raw json.RawMessage, reason string) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	var s string
	if trimmed[0] != '"' || json.Unmarshal(trimmed, &s) != nil {
		return "", &ValidationError{Field: field, Reason: reason}
	}
	return s, nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	const reason = "must be an ISO-8601 timestamp"
	s, err := parseString("timestamp", raw, reason)
	if err != nil {
		return time.Time{}, err
	}
	if strings.TrimSpace(s) == "" {
		return time.Time{}, &ValidationError{Field: "timestamp", Reason: "is required"}
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, &ValidationError{Field: "timestamp", Reason: reason}
	}
	return ts.UTC(), nil
}

// parseNumber accepts a JSON number or a numeric string
func parseNumber(field string, raw json.RawMessage) (float64, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, &ValidationError{Field: field, Reason: "is required"}
	}

	var n json.Number
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return 0, &ValidationError{Field: field, Reason: "must be numeric"}
		}
		n = json.Number(strings.TrimSpace(s))
	} else {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&n); err != nil {
			return 0, &ValidationError{Field: field, Reason: "must be numeric"}
		}
	}

	v, err := n.Float64()
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ValidationError{Field: field, Reason: "must be numeric"}
	}
	return v, nil
}
