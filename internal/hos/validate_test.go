package hos_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"towtrace-backend/internal/hos"
	"towtrace-backend/internal/models"
)

func jsonString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func validRequest() models.TelemetryRequest {
	return models.TelemetryRequest{
		DeviceID:     jsonString("eld-1"),
		Timestamp:    jsonString("2024-03-04T08:00:00Z"),
		Latitude:     json.RawMessage(`32.7767`),
		Longitude:    json.RawMessage(`-96.797`),
		Speed:        json.RawMessage(`55.5`),
		EngineStatus: jsonString("on"),
		DutyStatus:   jsonString("driving"),
	}
}

// notAfter is the latest timestamp accepted by the validation tests
var notAfter = base.Add(hos.DefaultMaxFutureSkew)

func TestValidateTelemetry_Valid(t *testing.T) {
	req := validRequest()
	req.Diagnostics = json.RawMessage(`{"fuel_level": 0.6}`)

	got, err := hos.ValidateTelemetry(req, notAfter)
	if err != nil {
		t.Fatalf("ValidateTelemetry failed: %v", err)
	}
	if !got.Timestamp.Equal(base) {
		t.Errorf("Timestamp = %s, want %s", got.Timestamp, base)
	}
	if got.Latitude != 32.7767 || got.Longitude != -96.797 || got.Speed != 55.5 {
		t.Errorf("Unexpected coordinates %+v", got)
	}
	if !got.EngineOn {
		t.Error("Expected engine on")
	}
	if got.DutyStatus != models.DutyStatusDriving {
		t.Errorf("DutyStatus = %s, want driving", got.DutyStatus)
	}
	if string(got.Diagnostics) != `{"fuel_level": 0.6}` {
		t.Errorf("Unexpected diagnostics %s", got.Diagnostics)
	}
}

func TestValidateTelemetry_Normalizes(t *testing.T) {
	req := validRequest()
	req.DeviceID = jsonString("  eld-1  ")
	req.Timestamp = jsonString("2024-03-04T03:00:00.250-05:00")
	req.Latitude = json.RawMessage(`"32.5"`)
	req.EngineStatus = jsonString("off")

	got, err := hos.ValidateTelemetry(req, notAfter)
	if err != nil {
		t.Fatalf("ValidateTelemetry failed: %v", err)
	}
	if got.DeviceID != "eld-1" {
		t.Errorf("DeviceID = %q, want eld-1", got.DeviceID)
	}
	want := base.Add(250 * time.Millisecond)
	if !got.Timestamp.Equal(want) || got.Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp = %s, want %s in UTC", got.Timestamp, want)
	}
	if got.Latitude != 32.5 {
		t.Errorf("Latitude = %v, want 32.5", got.Latitude)
	}
	if got.EngineOn {
		t.Error("Expected engine off")
	}
}

func TestValidateTelemetry_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.TelemetryRequest)
		field  string
	}{
		{"missing device", func(r *models.TelemetryRequest) { r.DeviceID = nil }, "device_id"},
		{"blank device", func(r *models.TelemetryRequest) { r.DeviceID = jsonString("  ") }, "device_id"},
		{"numeric device", func(r *models.TelemetryRequest) { r.DeviceID = json.RawMessage(`1001`) }, "device_id"},
		{"missing timestamp", func(r *models.TelemetryRequest) { r.Timestamp = nil }, "timestamp"},
		{"bad timestamp", func(r *models.TelemetryRequest) { r.Timestamp = jsonString("yesterday") }, "timestamp"},
		{"epoch timestamp", func(r *models.TelemetryRequest) { r.Timestamp = json.RawMessage(`1709539200`) }, "timestamp"},
		{"timestamp past skew", func(r *models.TelemetryRequest) {
			r.Timestamp = jsonString(notAfter.Add(time.Second).Format(time.RFC3339Nano))
		}, "timestamp"},
		{"timestamp decades ahead", func(r *models.TelemetryRequest) {
			r.Timestamp = jsonString(base.AddDate(50, 0, 0).Format(time.RFC3339))
		}, "timestamp"},
		{"missing latitude", func(r *models.TelemetryRequest) { r.Latitude = nil }, "latitude"},
		{"latitude out of range", func(r *models.TelemetryRequest) { r.Latitude = json.RawMessage(`91`) }, "latitude"},
		{"latitude not numeric", func(r *models.TelemetryRequest) { r.Latitude = json.RawMessage(`"north"`) }, "latitude"},
		{"longitude out of range", func(r *models.TelemetryRequest) { r.Longitude = json.RawMessage(`-181`) }, "longitude"},
		{"longitude is bool", func(r *models.TelemetryRequest) { r.Longitude = json.RawMessage(`true`) }, "longitude"},
		{"negative speed", func(r *models.TelemetryRequest) { r.Speed = json.RawMessage(`-1`) }, "speed"},
		{"speed NaN string", func(r *models.TelemetryRequest) { r.Speed = json.RawMessage(`"NaN"`) }, "speed"},
		{"missing engine status", func(r *models.TelemetryRequest) { r.EngineStatus = nil }, "engine_status"},
		{"bad engine status", func(r *models.TelemetryRequest) { r.EngineStatus = jsonString("idle") }, "engine_status"},
		{"boolean engine status", func(r *models.TelemetryRequest) { r.EngineStatus = json.RawMessage(`true`) }, "engine_status"},
		{"missing duty status", func(r *models.TelemetryRequest) { r.DutyStatus = nil }, "duty_status"},
		{"unknown duty status", func(r *models.TelemetryRequest) { r.DutyStatus = jsonString("personal_conveyance") }, "duty_status"},
		{"numeric duty status", func(r *models.TelemetryRequest) { r.DutyStatus = json.RawMessage(`2`) }, "duty_status"},
		{"diagnostics array", func(r *models.TelemetryRequest) { r.Diagnostics = json.RawMessage(`[1,2]`) }, "diagnostics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			_, err := hos.ValidateTelemetry(req, notAfter)
			if !errors.Is(err, hos.ErrInvalidTelemetry) {
				t.Fatalf("Expected ErrInvalidTelemetry, got %v", err)
			}
			var verr *hos.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected *ValidationError, got %T", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %s, want %s", verr.Field, tt.field)
			}
		})
	}
}

func TestValidateTelemetry_FutureBound(t *testing.T) {
	req := validRequest()
	req.Timestamp = jsonString(notAfter.Format(time.RFC3339Nano))
	if _, err := hos.ValidateTelemetry(req, notAfter); err != nil {
		t.Errorf("Expected a timestamp at the bound to pass, got %v", err)
	}

	req.Timestamp = jsonString(base.AddDate(50, 0, 0).Format(time.RFC3339))
	if _, err := hos.ValidateTelemetry(req, time.Time{}); err != nil {
		t.Errorf("Expected no bound with a zero notAfter, got %v", err)
	}
}
