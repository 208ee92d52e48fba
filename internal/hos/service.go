package hos

import (
	"context"
	"time"

	"towtrace-backend/internal/metrics"
	"towtrace-backend/internal/models"

	"golang.org/x/sync/errgroup"
)

// ComplianceService is the read side: interval history, live summaries and
// analytics reports. It never writes.
type ComplianceService struct {
	store      IntervalStore
	directory  DriverDirectory
	aggregator *Aggregator
	detector   *Detector
	now        func() time.Time
}

// NewComplianceService wires the read side. directory may be nil, in which
// case tenant scoping and driver names are skipped.
func NewComplianceService(store IntervalStore, directory DriverDirectory, limits Limits) *ComplianceService {
	return &ComplianceService{
		store:      store,
		directory:  directory,
		aggregator: NewAggregator(store),
		detector:   NewDetector(limits),
		now:        time.Now,
	}
}

func (s *ComplianceService) lookupDriver(ctx context.Context, tenantID, driverID string) (*models.Driver, error) {
	if s.directory == nil {
		return nil, nil
	}
	return s.directory.GetDriver(ctx, tenantID, driverID)
}

// Summary builds the live compliance summary for a driver
func (s *ComplianceService) Summary(ctx context.Context, tenantID, driverID string) (*models.ComplianceSummary, error) {
	now := s.now().UTC()
	limits := s.detector.Limits()
	window := TrailingWindow(now, limits.Window)
	cycleWindow := TrailingWindow(now, limits.CycleWindow)

	var (
		driver      *models.Driver
		open        *models.DutyInterval
		totals      models.StatusTotals
		intervals   []models.DutyInterval
		cycleTotals models.StatusTotals
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		driver, err = s.lookupDriver(gctx, tenantID, driverID)
		return err
	})
	g.Go(func() error {
		var err error
		open, err = s.store.GetOpenInterval(gctx, driverID)
		return err
	})
	g.Go(func() error {
		var err error
		totals, intervals, err = s.aggregator.Totals(gctx, driverID, window)
		return err
	})
	g.Go(func() error {
		var err error
		cycleTotals, _, err = s.aggregator.Totals(gctx, driverID, cycleWindow)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	evaluation := s.detector.Evaluate(DetectorInput{
		Window:    totals,
		Cycle:     cycleTotals,
		Intervals: intervals,
	}, now)
	for _, v := range evaluation.Violations {
		metrics.SummaryViolationsObserved.WithLabelValues(string(v.Type)).Inc()
	}

	summary := BuildSummary(SummaryInput{
		DriverID:   driverID,
		Driver:     driver,
		Open:       open,
		Totals:     totals,
		Evaluation: evaluation,
		Window:     window,
		Now:        now,
	})
	return &summary, nil
}

// Report aggregates a longer analytics window with unclamped margins
func (s *ComplianceService) Report(ctx context.Context, tenantID, driverID string, length time.Duration) (*models.HOSReport, error) {
	if _, err := s.lookupDriver(ctx, tenantID, driverID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	window := TrailingWindow(now, length)
	totals, intervals, err := s.aggregator.Totals(ctx, driverID, window)
	if err != nil {
		return nil, err
	}
	evaluation := s.detector.Evaluate(DetectorInput{Window: totals}, now)

	return &models.HOSReport{
		DriverID:           driverID,
		WindowStart:        window.Start,
		WindowEnd:          window.End,
		TotalMinutes:       totals,
		DriveMarginMinutes: evaluation.DriveMargin,
		DutyMarginMinutes:  evaluation.DutyMargin,
		IntervalCount:      len(intervals),
	}, nil
}

// Intervals returns the driver's history, newest first
func (s *ComplianceService) Intervals(ctx context.Context, q IntervalQuery) ([]models.DutyInterval, error) {
	if _, err := s.lookupDriver(ctx, q.TenantID, q.DriverID); err != nil {
		return nil, err
	}
	return s.store.ListIntervals(ctx, q)
}

// FleetStatus lists every driver in the tenant with their current status
func (s *ComplianceService) FleetStatus(ctx context.Context, tenantID string) ([]models.FleetDriverStatus, error) {
	if s.directory == nil {
		return []models.FleetDriverStatus{}, nil
	}
	return s.directory.ListFleetStatus(ctx, tenantID)
}
