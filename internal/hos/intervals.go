package hos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"towtrace-backend/internal/metrics"
	"towtrace-backend/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ManagerConfig tunes the interval manager's retry behaviour
type ManagerConfig struct {
	MaxAttempts    int           // Total tries per transition, including the first
	InitialBackoff time.Duration // Delay before the first retry
	MaxBackoff     time.Duration // Cap on a single retry delay
}

// DefaultManagerConfig returns the production retry settings
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxAttempts:    3,
		InitialBackoff: 20 * time.Millisecond,
		MaxBackoff:     250 * time.Millisecond,
	}
}

// TransitionRequest asks the state machine to move a driver to Status at At
type TransitionRequest struct {
	DriverID  string
	VehicleID *string
	DeviceID  string
	TenantID  string
	Status    models.DutyStatus
	At        time.Time
}

// TransitionResult describes what the state machine did
type TransitionResult struct {
	Outcome  models.TelemetryOutcome
	Current  *models.DutyInterval // Open interval after the transition
	Closed   *models.DutyInterval // Interval closed by this transition, if any
	Attempts int
}

// IntervalManager is the duty-status state machine and the only writer of
// interval records. Transitions for one driver are serialized in-process;
// the store's conditional writes catch writers in other processes.
type IntervalManager struct {
	store  IntervalStore
	locks  *driverLocks
	cfg    ManagerConfig
	logger zerolog.Logger
	newID  func() string
}

// NewIntervalManager creates an interval manager on top of store
func NewIntervalManager(store IntervalStore, cfg ManagerConfig, logger zerolog.Logger) *IntervalManager {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &IntervalManager{
		store:  store,
		locks:  newDriverLocks(),
		cfg:    cfg,
		logger: logger.With().Str("component", "interval_manager").Logger(),
		newID:  func() string { return uuid.New().String() },
	}
}

// Apply runs one transition for req.DriverID, retrying conflicts and storage
// errors up to the configured number of attempts
func (m *IntervalManager) Apply(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	if req.DriverID == "" {
		return nil, &ValidationError{Field: "driver_id", Reason: "is required"}
	}
	if !req.Status.Valid() {
		return nil, &ValidationError{Field: "duty_status", Reason: "is not a defined status"}
	}

	release, err := m.locks.acquire(ctx, req.DriverID)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for driver %s: %w", ErrConcurrencyConflict, req.DriverID, err)
	}
	defer release()

	logger := m.logger.With().
		Str("driver_id", req.DriverID).
		Str("device_id", req.DeviceID).
		Time("telemetry_ts", req.At).
		Logger()

	var result *TransitionResult
	attempts := 0
	operation := func() error {
		attempts++
		res, err := m.transition(ctx, req)
		if err != nil {
			if IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	notify := func(err error, wait time.Duration) {
		reason := "storage"
		if errors.Is(err, ErrConcurrencyConflict) {
			reason = "conflict"
		}
		metrics.TransitionRetries.WithLabelValues(reason).Inc()
		logger.Warn().
			Err(err).
			Int("attempt", attempts).
			Dur("retry_in", wait).
			Msg("Duty status transition failed, retrying")
	}

	if err := backoff.RetryNotify(operation, m.backOff(ctx), notify); err != nil {
		logger.Error().
			Err(err).
			Int("attempts", attempts).
			Str("status", req.Status.String()).
			Msg("Duty status transition abandoned")
		return nil, err
	}

	result.Attempts = attempts
	return result, nil
}

func (m *IntervalManager) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = m.cfg.InitialBackoff
	if m.cfg.MaxBackoff > 0 {
		exp.MaxInterval = m.cfg.MaxBackoff
	}
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(m.cfg.MaxAttempts-1)), ctx)
}

// transition is a single read-then-write attempt
func (m *IntervalManager) transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	at := req.At.UnixMilli()

	open, err := m.store.GetOpenInterval(ctx, req.DriverID)
	if err != nil {
		return nil, err
	}

	next := models.DutyInterval{
		ID:        m.newID(),
		DriverID:  req.DriverID,
		VehicleID: req.VehicleID,
		DeviceID:  req.DeviceID,
		TenantID:  req.TenantID,
		Status:    req.Status,
		StartTime: at,
		CreatedAt: time.Now().UnixMilli(),
	}

	if open == nil {
		if err := m.store.ApplyTransition(ctx, Transition{DriverID: req.DriverID, Open: next}); err != nil {
			return nil, err
		}
		m.logger.Info().
			Str("driver_id", req.DriverID).
			Str("interval_id", next.ID).
			Str("status", next.Status.String()).
			Time("start", next.Start()).
			Msg("📂 Opened first duty interval")
		return &TransitionResult{Outcome: models.OutcomeOpened, Current: &next}, nil
	}

	if at < open.StartTime {
		m.logger.Warn().
			Str("driver_id", req.DriverID).
			Str("device_id", req.DeviceID).
			Time("telemetry_ts", req.At).
			Time("open_start", open.Start()).
			Msg("Telemetry older than open interval, ignored")
		return &TransitionResult{Outcome: models.OutcomeStale, Current: open}, nil
	}

	if open.Status == req.Status {
		return &TransitionResult{Outcome: models.OutcomeUnchanged, Current: open}, nil
	}

	duration := models.DurationMinutes(open.StartTime, at)
	t := Transition{
		DriverID: req.DriverID,
		Close: &CloseOp{
			IntervalID:      open.ID,
			EndTime:         at,
			DurationMinutes: duration,
		},
		Open: next,
	}
	if err := m.store.ApplyTransition(ctx, t); err != nil {
		return nil, err
	}

	closed := *open
	closed.EndTime = &at
	closed.DurationMinutes = &duration

	m.logger.Info().
		Str("driver_id", req.DriverID).
		Str("closed_id", closed.ID).
		Str("from", closed.Status.String()).
		Str("to", next.Status.String()).
		Int("duration_minutes", duration).
		Msg("🔄 Duty status changed")

	return &TransitionResult{Outcome: models.OutcomeTransitioned, Current: &next, Closed: &closed}, nil
}
