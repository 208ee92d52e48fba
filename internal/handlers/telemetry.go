package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"towtrace-backend/internal/hos"
	"towtrace-backend/internal/models"
	"towtrace-backend/pkg/utils"

	"github.com/rs/zerolog/log"
)

// maxTelemetryBody caps a single ingest payload
const maxTelemetryBody = 64 << 10

// Broadcaster publishes live events to a tenant's dispatchers
type Broadcaster interface {
	BroadcastToTenant(tenantID string, data interface{})
}

// IngestResponse is the data returned for an accepted telemetry record
type IngestResponse struct {
	ProcessedAt time.Time               `json:"processed_at"`
	Outcome     models.TelemetryOutcome `json:"outcome"`
	IntervalID  *string                 `json:"interval_id"`
}

// DutyStatusChangedEvent is pushed to dispatchers when a driver's status changes
type DutyStatusChangedEvent struct {
	Type           string                   `json:"type"`
	DriverID       string                   `json:"driver_id"`
	VehicleID      *string                  `json:"vehicle_id"`
	Status         models.DutyStatus        `json:"status"`
	Since          time.Time                `json:"since"`
	PreviousStatus *models.DutyStatus       `json:"previous_status,omitempty"`
	Closed         *models.IntervalResponse `json:"closed_interval,omitempty"`
}

// IngestTelemetry handles POST /api/telemetry. hub may be nil.
func IngestTelemetry(ingestor *hos.Ingestor, hub Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.TelemetryRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTelemetryBody)).Decode(&req); err != nil {
			ingestor.RejectUndecodable(r.Context(), err)
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		result, err := ingestor.Ingest(r.Context(), req)
		if err != nil {
			RespondServiceError(w, err)
			return
		}

		resp := IngestResponse{
			ProcessedAt: result.ProcessedAt.UTC(),
			Outcome:     result.Outcome,
		}
		if t := result.Transition; t != nil && t.Current != nil {
			resp.IntervalID = &t.Current.ID
		}

		if hub != nil && result.Transition != nil {
			if event, ok := statusChangedEvent(result.Transition); ok {
				hub.BroadcastToTenant(result.Assignment.TenantID, event)
			}
		}

		utils.RespondSuccess(w, http.StatusOK, resp)
	}
}

func statusChangedEvent(t *hos.TransitionResult) (DutyStatusChangedEvent, bool) {
	if t.Current == nil {
		return DutyStatusChangedEvent{}, false
	}
	if t.Outcome != models.OutcomeOpened && t.Outcome != models.OutcomeTransitioned {
		return DutyStatusChangedEvent{}, false
	}

	event := DutyStatusChangedEvent{
		Type:      "duty_status_changed",
		DriverID:  t.Current.DriverID,
		VehicleID: t.Current.VehicleID,
		Status:    t.Current.Status,
		Since:     t.Current.Start(),
	}
	if t.Closed != nil {
		prev := t.Closed.Status
		closed := t.Closed.ToResponse()
		event.PreviousStatus = &prev
		event.Closed = &closed
	}
	log.Debug().
		Str("driver_id", event.DriverID).
		Str("status", event.Status.String()).
		Msg("📡 Broadcasting duty status change")
	return event, true
}
