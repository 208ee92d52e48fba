package hos

import (
	"context"
	"errors"
	"time"

	"towtrace-backend/internal/metrics"
	"towtrace-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// IngestResult is returned for every accepted telemetry record
type IngestResult struct {
	ProcessedAt time.Time // Device timestamp of the record
	Outcome     models.TelemetryOutcome
	Assignment  models.DeviceAssignment
	Transition  *TransitionResult
}

// Ingestor validates telemetry, resolves the device and hands the status to
// the interval manager
type Ingestor struct {
	resolver DeviceResolver
	manager  *IntervalManager
	activity DeviceActivityRecorder
	audit    AuditLog
	cfg      IngestorConfig
	logger   zerolog.Logger
	now      func() time.Time
}

// IngestorConfig bounds a single ingest call
type IngestorConfig struct {
	Timeout       time.Duration // Per-record deadline, 0 for none
	MaxFutureSkew time.Duration // Accepted lead of a device clock, 0 for no bound
}

// DefaultIngestorConfig returns the settings used when none are configured
func DefaultIngestorConfig() IngestorConfig {
	return IngestorConfig{
		Timeout:       5 * time.Second,
		MaxFutureSkew: DefaultMaxFutureSkew,
	}
}

// NewIngestor wires an ingestor. activity and audit may be nil.
func NewIngestor(resolver DeviceResolver, manager *IntervalManager, activity DeviceActivityRecorder, audit AuditLog, cfg IngestorConfig, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		resolver: resolver,
		manager:  manager,
		activity: activity,
		audit:    audit,
		cfg:      cfg,
		logger:   logger.With().Str("component", "ingestor").Logger(),
		now:      time.Now,
	}
}

// Ingest processes one telemetry record. Validation and device lookup
// failures return before any interval write.
func (i *Ingestor) Ingest(ctx context.Context, req models.TelemetryRequest) (*IngestResult, error) {
	started := i.now()
	if i.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.cfg.Timeout)
		defer cancel()
	}

	event := models.TelemetryEvent{
		ID:          uuid.New().String(),
		DeviceID:    models.RawText(req.DeviceID),
		ReceivedAt:  started.UnixMilli(),
		Diagnostics: req.Diagnostics,
	}
	if status := models.RawText(req.DutyStatus); status != "" {
		event.DutyStatus = &status
	}

	result, err := i.ingest(ctx, req, started, &event)

	outcome := event.Outcome
	metrics.TelemetryTotal.WithLabelValues(string(outcome)).Inc()
	metrics.IngestDuration.WithLabelValues(string(outcome)).Observe(time.Since(started).Seconds())
	i.recordAudit(ctx, event)

	return result, err
}

// RejectUndecodable audits a request body that is not a JSON object
func (i *Ingestor) RejectUndecodable(ctx context.Context, cause error) {
	detail := "undecodable request body: " + cause.Error()
	event := models.TelemetryEvent{
		ID:         uuid.New().String(),
		ReceivedAt: i.now().UnixMilli(),
		Outcome:    models.OutcomeInvalid,
		Detail:     &detail,
	}
	metrics.TelemetryTotal.WithLabelValues(string(event.Outcome)).Inc()
	i.logger.Warn().Err(cause).Msg("❌ Telemetry body could not be decoded")
	i.recordAudit(ctx, event)
}

func (i *Ingestor) ingest(ctx context.Context, req models.TelemetryRequest, received time.Time, event *models.TelemetryEvent) (*IngestResult, error) {
	logger := i.logger.With().
		Str("device_id", models.RawText(req.DeviceID)).
		Str("telemetry_ts", models.RawText(req.Timestamp)).
		Logger()

	var notAfter time.Time
	if i.cfg.MaxFutureSkew > 0 {
		notAfter = received.Add(i.cfg.MaxFutureSkew)
	}
	telemetry, err := ValidateTelemetry(req, notAfter)
	if err != nil {
		event.Outcome = models.OutcomeInvalid
		event.Detail = errorDetail(err)
		logger.Warn().Err(err).Msg("❌ Telemetry rejected")
		return nil, err
	}
	eventTime := telemetry.Timestamp.UnixMilli()
	event.EventTime = &eventTime
	event.Diagnostics = telemetry.Diagnostics

	assignment, err := i.resolver.ResolveDevice(ctx, telemetry.DeviceID)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			event.Outcome = models.OutcomeDeviceNotFound
		} else {
			event.Outcome = models.OutcomeFailed
		}
		event.Detail = errorDetail(err)
		logger.Warn().Err(err).Msg("❌ Device resolution failed")
		return nil, err
	}
	event.DriverID = &assignment.DriverID
	event.TenantID = &assignment.TenantID

	transition, err := i.manager.Apply(ctx, TransitionRequest{
		DriverID:  assignment.DriverID,
		VehicleID: assignment.VehicleID,
		DeviceID:  telemetry.DeviceID,
		TenantID:  assignment.TenantID,
		Status:    telemetry.DutyStatus,
		At:        telemetry.Timestamp,
	})
	if err != nil {
		event.Outcome = models.OutcomeFailed
		event.Detail = errorDetail(err)
		logger.Error().
			Err(err).
			Str("driver_id", assignment.DriverID).
			Str("status", telemetry.DutyStatus.String()).
			Msg("❌ Telemetry could not be applied")
		return nil, err
	}
	event.Outcome = transition.Outcome
	if transition.Current != nil {
		event.IntervalID = &transition.Current.ID
	}

	i.recordActivity(ctx, telemetry, assignment, logger)

	return &IngestResult{
		ProcessedAt: telemetry.Timestamp,
		Outcome:     transition.Outcome,
		Assignment:  *assignment,
		Transition:  transition,
	}, nil
}

// recordActivity does the last-seen and position upserts. Failures are
// logged and never fail the ingest.
func (i *Ingestor) recordActivity(ctx context.Context, t *models.Telemetry, a *models.DeviceAssignment, logger zerolog.Logger) {
	if i.activity == nil {
		return
	}
	if err := i.activity.TouchDevice(ctx, t.DeviceID, t.Timestamp); err != nil {
		logger.Warn().Err(err).Msg("⚠️  Failed to update device last seen")
	}
	if a.VehicleID == nil {
		return
	}
	pos := models.VehiclePosition{
		VehicleID: *a.VehicleID,
		TenantID:  a.TenantID,
		DeviceID:  t.DeviceID,
		Latitude:  t.Latitude,
		Longitude: t.Longitude,
		Speed:     t.Speed,
		EngineOn:  t.EngineOn,
		Timestamp: t.Timestamp.UnixMilli(),
	}
	if err := i.activity.UpsertVehiclePosition(ctx, pos); err != nil {
		logger.Warn().Err(err).Str("vehicle_id", *a.VehicleID).Msg("⚠️  Failed to update vehicle position")
	}
}

func (i *Ingestor) recordAudit(ctx context.Context, event models.TelemetryEvent) {
	if i.audit == nil {
		return
	}
	// The request context may already be past its deadline; the audit row
	// must still be written.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := i.audit.RecordTelemetryEvent(auditCtx, event); err != nil {
		i.logger.Error().
			Err(err).
			Str("device_id", event.DeviceID).
			Str("outcome", string(event.Outcome)).
			Msg("Failed to write telemetry audit record")
	}
}

func errorDetail(err error) *string {
	s := err.Error()
	return &s
}
