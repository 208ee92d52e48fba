package hos_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"towtrace-backend/internal/hos"
	"towtrace-backend/internal/memstore"
	"towtrace-backend/internal/models"

	"github.com/rs/zerolog"
)

var base = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

func testManagerConfig() hos.ManagerConfig {
	return hos.ManagerConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func newTestManager(store hos.IntervalStore) *hos.IntervalManager {
	return hos.NewIntervalManager(store, testManagerConfig(), zerolog.Nop())
}

func request(driverID string, status models.DutyStatus, at time.Time) hos.TransitionRequest {
	vehicleID := "truck-1"
	return hos.TransitionRequest{
		DriverID:  driverID,
		VehicleID: &vehicleID,
		DeviceID:  "eld-1",
		TenantID:  "tenant-1",
		Status:    status,
		At:        at,
	}
}

func allIntervals(t *testing.T, store *memstore.Store, driverID string) []models.DutyInterval {
	t.Helper()
	intervals, err := store.ListIntervals(context.Background(), hos.IntervalQuery{DriverID: driverID})
	if err != nil {
		t.Fatalf("ListIntervals failed: %v", err)
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].StartTime < intervals[j].StartTime })
	return intervals
}

// assertTimeline checks that the driver has exactly one open interval, that it
// is the latest, and that closed intervals are contiguous
func assertTimeline(t *testing.T, intervals []models.DutyInterval) {
	t.Helper()
	open := 0
	for i, interval := range intervals {
		if interval.IsOpen() {
			open++
			if i != len(intervals)-1 {
				t.Errorf("Open interval %s is not the latest", interval.ID)
			}
			continue
		}
		if i+1 < len(intervals) && *interval.EndTime != intervals[i+1].StartTime {
			t.Errorf("Interval %s ends at %d but next starts at %d", interval.ID, *interval.EndTime, intervals[i+1].StartTime)
		}
		want := models.DurationMinutes(interval.StartTime, *interval.EndTime)
		if *interval.DurationMinutes != want {
			t.Errorf("Interval %s duration = %d, want %d", interval.ID, *interval.DurationMinutes, want)
		}
	}
	if len(intervals) > 0 && open != 1 {
		t.Errorf("Expected exactly 1 open interval, got %d", open)
	}
}

func TestIntervalManager_FirstTelemetryOpensInterval(t *testing.T) {
	store := memstore.New()
	manager := newTestManager(store)

	result, err := manager.Apply(context.Background(), request("driver-1", models.DutyStatusDriving, base))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Outcome != models.OutcomeOpened {
		t.Errorf("Expected outcome %s, got %s", models.OutcomeOpened, result.Outcome)
	}
	if result.Closed != nil {
		t.Error("Expected no closed interval")
	}

	intervals := allIntervals(t, store, "driver-1")
	if len(intervals) != 1 {
		t.Fatalf("Expected 1 interval, got %d", len(intervals))
	}
	if !intervals[0].IsOpen() || intervals[0].StartTime != base.UnixMilli() {
		t.Errorf("Unexpected interval: %+v", intervals[0])
	}
	if intervals[0].VehicleID == nil || *intervals[0].VehicleID != "truck-1" {
		t.Error("Expected vehicle id to be recorded")
	}
}

// Driving at T0, on duty at T0+90m, then driving at T0+2h
func TestIntervalManager_StatusChangeSequence(t *testing.T) {
	store := memstore.New()
	manager := newTestManager(store)
	ctx := context.Background()

	steps := []struct {
		status  models.DutyStatus
		at      time.Time
		outcome models.TelemetryOutcome
	}{
		{models.DutyStatusDriving, base, models.OutcomeOpened},
		{models.DutyStatusOnDuty, base.Add(90 * time.Minute), models.OutcomeTransitioned},
		{models.DutyStatusDriving, base.Add(2 * time.Hour), models.OutcomeTransitioned},
	}
	for _, step := range steps {
		result, err := manager.Apply(ctx, request("driver-1", step.status, step.at))
		if err != nil {
			t.Fatalf("Apply(%s at %s) failed: %v", step.status, step.at, err)
		}
		if result.Outcome != step.outcome {
			t.Errorf("Apply(%s) outcome = %s, want %s", step.status, result.Outcome, step.outcome)
		}
	}

	intervals := allIntervals(t, store, "driver-1")
	if len(intervals) != 3 {
		t.Fatalf("Expected 3 intervals, got %d", len(intervals))
	}
	assertTimeline(t, intervals)

	if *intervals[0].DurationMinutes != 90 {
		t.Errorf("Expected first interval 90 minutes, got %d", *intervals[0].DurationMinutes)
	}
	if *intervals[1].DurationMinutes != 30 {
		t.Errorf("Expected second interval 30 minutes, got %d", *intervals[1].DurationMinutes)
	}
	if intervals[2].Status != models.DutyStatusDriving || !intervals[2].IsOpen() {
		t.Errorf("Expected open driving interval, got %+v", intervals[2])
	}
}

func TestIntervalManager_SameStatusIsNoOp(t *testing.T) {
	store := memstore.New()
	manager := newTestManager(store)
	ctx := context.Background()

	first, err := manager.Apply(ctx, request("driver-1", models.DutyStatusDriving, base))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	for i := 1; i <= 5; i++ {
		result, err := manager.Apply(ctx, request("driver-1", models.DutyStatusDriving, base.Add(time.Duration(i)*time.Minute)))
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if result.Outcome != models.OutcomeUnchanged {
			t.Errorf("Expected outcome %s, got %s", models.OutcomeUnchanged, result.Outcome)
		}
		if result.Current.ID != first.Current.ID {
			t.Errorf("Expected open interval %s, got %s", first.Current.ID, result.Current.ID)
		}
	}

	if n := len(allIntervals(t, store, "driver-1")); n != 1 {
		t.Errorf("Expected 1 interval, got %d", n)
	}
}

func TestIntervalManager_StaleTelemetryIgnored(t *testing.T) {
	store := memstore.New()
	manager := newTestManager(store)
	ctx := context.Background()

	if _, err := manager.Apply(ctx, request("driver-1", models.DutyStatusDriving, base)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	result, err := manager.Apply(ctx, request("driver-1", models.DutyStatusOffDuty, base.Add(-10*time.Minute)))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Outcome != models.OutcomeStale {
		t.Errorf("Expected outcome %s, got %s", models.OutcomeStale, result.Outcome)
	}

	intervals := allIntervals(t, store, "driver-1")
	if len(intervals) != 1 || intervals[0].Status != models.DutyStatusDriving || !intervals[0].IsOpen() {
		t.Errorf("Expected the driving interval to stay open untouched, got %+v", intervals)
	}
}

func TestIntervalManager_RejectsInvalidRequest(t *testing.T) {
	manager := newTestManager(memstore.New())

	tests := []struct {
		name string
		req  hos.TransitionRequest
	}{
		{"missing driver", request("", models.DutyStatusDriving, base)},
		{"undefined status", request("driver-1", models.DutyStatus(0), base)},
		{"out of range status", request("driver-1", models.DutyStatus(9), base)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.Apply(context.Background(), tt.req)
			if !errors.Is(err, hos.ErrInvalidTelemetry) {
				t.Errorf("Expected ErrInvalidTelemetry, got %v", err)
			}
		})
	}
}

func TestIntervalManager_DurationRounding(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    int
	}{
		{"exact", 45 * time.Minute, 45},
		{"rounds down", 45*time.Minute + 29*time.Second, 45},
		{"rounds up", 45*time.Minute + 30*time.Second, 46},
		{"zero length", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.New()
			manager := newTestManager(store)
			ctx := context.Background()

			if _, err := manager.Apply(ctx, request("driver-1", models.DutyStatusOnDuty, base)); err != nil {
				t.Fatalf("Apply failed: %v", err)
			}
			result, err := manager.Apply(ctx, request("driver-1", models.DutyStatusDriving, base.Add(tt.elapsed)))
			if err != nil {
				t.Fatalf("Apply failed: %v", err)
			}
			if result.Closed == nil {
				t.Fatal("Expected a closed interval")
			}
			if *result.Closed.DurationMinutes != tt.want {
				t.Errorf("Expected %d minutes, got %d", tt.want, *result.Closed.DurationMinutes)
			}
			if *result.Closed.EndTime != result.Current.StartTime {
				t.Error("Expected closed end to equal new start")
			}
		})
	}
}

// Two status changes for the same driver at the same moment must leave
// exactly one open interval
func TestIntervalManager_ConcurrentTransitions(t *testing.T) {
	store := memstore.New()
	manager := newTestManager(store)
	ctx := context.Background()

	if _, err := manager.Apply(ctx, request("driver-1", models.DutyStatusDriving, base)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	statuses := []models.DutyStatus{
		models.DutyStatusOnDuty,
		models.DutyStatusOffDuty,
		models.DutyStatusSleeping,
		models.DutyStatusDriving,
	}

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			at := base.Add(time.Hour + time.Duration(i)*time.Second)
			if _, err := manager.Apply(ctx, request("driver-1", statuses[i%len(statuses)], at)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Concurrent Apply failed: %v", err)
	}

	intervals := allIntervals(t, store, "driver-1")
	assertTimeline(t, intervals)
}

func TestIntervalManager_ConcurrentDrivers(t *testing.T) {
	store := memstore.New()
	manager := newTestManager(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for d := 0; d < 10; d++ {
		driverID := fmt.Sprintf("driver-%d", d)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				status := models.DutyStatusDriving
				if i%2 == 1 {
					status = models.DutyStatusOnDuty
				}
				if _, err := manager.Apply(ctx, request(driverID, status, base.Add(time.Duration(i)*time.Minute))); err != nil {
					t.Errorf("Apply for %s failed: %v", driverID, err)
				}
			}
		}()
	}
	wg.Wait()

	for d := 0; d < 10; d++ {
		intervals := allIntervals(t, store, fmt.Sprintf("driver-%d", d))
		if len(intervals) != 10 {
			t.Errorf("driver-%d: expected 10 intervals, got %d", d, len(intervals))
		}
		assertTimeline(t, intervals)
	}
}

// flakyStore fails ApplyTransition a fixed number of times before
// delegating
type flakyStore struct {
	*memstore.Store
	mu       sync.Mutex
	failures int
	err      error
	calls    int
}

func (s *flakyStore) ApplyTransition(ctx context.Context, t hos.Transition) error {
	s.mu.Lock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return s.err
	}
	s.mu.Unlock()
	return s.Store.ApplyTransition(ctx, t)
}

func TestIntervalManager_RetriesConflict(t *testing.T) {
	store := &flakyStore{Store: memstore.New(), failures: 2, err: fmt.Errorf("%w: lost race", hos.ErrConcurrencyConflict)}
	manager := newTestManager(store)

	result, err := manager.Apply(context.Background(), request("driver-1", models.DutyStatusDriving, base))
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if result.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", result.Attempts)
	}
	if n := len(allIntervals(t, store.Store, "driver-1")); n != 1 {
		t.Errorf("Expected 1 interval, got %d", n)
	}
}

func TestIntervalManager_GivesUpAfterMaxAttempts(t *testing.T) {
	store := &flakyStore{Store: memstore.New(), failures: 10, err: fmt.Errorf("%w: connection reset", hos.ErrStorage)}
	manager := newTestManager(store)

	_, err := manager.Apply(context.Background(), request("driver-1", models.DutyStatusDriving, base))
	if !errors.Is(err, hos.ErrStorage) {
		t.Fatalf("Expected ErrStorage, got %v", err)
	}
	if store.calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", store.calls)
	}
	if n := len(allIntervals(t, store.Store, "driver-1")); n != 0 {
		t.Errorf("Expected no intervals to be written, got %d", n)
	}
}

func TestIntervalManager_DoesNotRetryPermanentErrors(t *testing.T) {
	store := &flakyStore{Store: memstore.New(), failures: 10, err: errors.New("constraint violated")}
	manager := newTestManager(store)

	if _, err := manager.Apply(context.Background(), request("driver-1", models.DutyStatusDriving, base)); err == nil {
		t.Fatal("Expected error")
	}
	if store.calls != 1 {
		t.Errorf("Expected 1 attempt, got %d", store.calls)
	}
}
