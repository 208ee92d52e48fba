package hos_test

import (
	"context"
	"testing"
	"time"

	"towtrace-backend/internal/hos"
	"towtrace-backend/internal/memstore"
	"towtrace-backend/internal/models"
)

func TestSumByStatus(t *testing.T) {
	open := models.DutyInterval{ID: "open", Status: models.DutyStatusDriving, StartTime: base.UnixMilli()}
	intervals := []models.DutyInterval{
		closed(models.DutyStatusDriving, base, 120),
		closed(models.DutyStatusOnDuty, base.Add(2*time.Hour), 45),
		closed(models.DutyStatusDriving, base.Add(165*time.Minute), 60),
		open,
	}

	got := hos.SumByStatus(intervals)

	if len(got) != len(models.AllDutyStatuses) {
		t.Errorf("Expected %d keys, got %d", len(models.AllDutyStatuses), len(got))
	}
	want := totals(180, 45, 0, 0)
	for status, minutes := range want {
		if got[status] != minutes {
			t.Errorf("%s = %d, want %d", status, got[status], minutes)
		}
	}
	if got.Duty() != 225 {
		t.Errorf("Duty() = %d, want 225", got.Duty())
	}
}

func TestSumByStatus_Empty(t *testing.T) {
	got := hos.SumByStatus(nil)
	for _, status := range models.AllDutyStatuses {
		minutes, ok := got[status]
		if !ok || minutes != 0 {
			t.Errorf("Expected %s to be present with 0 minutes", status)
		}
	}
}

func TestAggregator_Totals(t *testing.T) {
	store := memstore.New()
	manager := newTestManager(store)
	ctx := context.Background()

	// 26h ago: driving 3h (starts before the window, excluded)
	// 23h ago: off duty 10h
	// 13h ago: driving 5h, then on duty (left open)
	now := base.Add(48 * time.Hour)
	steps := []struct {
		status models.DutyStatus
		at     time.Time
	}{
		{models.DutyStatusDriving, now.Add(-26 * time.Hour)},
		{models.DutyStatusOffDuty, now.Add(-23 * time.Hour)},
		{models.DutyStatusDriving, now.Add(-13 * time.Hour)},
		{models.DutyStatusOnDuty, now.Add(-8 * time.Hour)},
	}
	for _, s := range steps {
		if _, err := manager.Apply(ctx, request("driver-1", s.status, s.at)); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
	}

	agg := hos.NewAggregator(store)
	got, intervals, err := agg.Totals(ctx, "driver-1", hos.TrailingWindow(now, 24*time.Hour))
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}

	if len(intervals) != 2 {
		t.Fatalf("Expected 2 closed intervals in window, got %d", len(intervals))
	}
	if intervals[0].StartTime > intervals[1].StartTime {
		t.Error("Expected intervals in ascending start order")
	}
	if got.Get(models.DutyStatusDriving) != 300 {
		t.Errorf("driving = %d, want 300", got.Get(models.DutyStatusDriving))
	}
	if got.Get(models.DutyStatusOffDuty) != 600 {
		t.Errorf("off_duty = %d, want 600", got.Get(models.DutyStatusOffDuty))
	}
	// The open on-duty interval contributes nothing
	if got.Get(models.DutyStatusOnDuty) != 0 {
		t.Errorf("on_duty = %d, want 0", got.Get(models.DutyStatusOnDuty))
	}
}

func TestTrailingWindow(t *testing.T) {
	w := hos.TrailingWindow(base, 24*time.Hour)
	if !w.End.Equal(base) || !w.Start.Equal(base.Add(-24*time.Hour)) {
		t.Errorf("Unexpected window %s - %s", w.Start, w.End)
	}
}
