package hos

import (
	"context"
	"time"

	"towtrace-backend/internal/models"
)

// Window is a half-open evaluation range [Start, End)
type Window struct {
	Start time.Time
	End   time.Time
}

// TrailingWindow returns [now - length, now)
func TrailingWindow(now time.Time, length time.Duration) Window {
	return Window{Start: now.Add(-length), End: now}
}

// Aggregator sums closed interval durations per status over a window
type Aggregator struct {
	store IntervalStore
}

// NewAggregator creates an aggregator reading from store
func NewAggregator(store IntervalStore) *Aggregator {
	return &Aggregator{store: store}
}

// Totals returns per-status minutes for the driver's closed intervals that
// start inside w, along with those intervals in start order. The open
// interval never contributes.
func (a *Aggregator) Totals(ctx context.Context, driverID string, w Window) (models.StatusTotals, []models.DutyInterval, error) {
	intervals, err := a.store.ListClosedIntervals(ctx, driverID, w.Start, w.End)
	if err != nil {
		return nil, nil, err
	}
	return SumByStatus(intervals), intervals, nil
}

// SumByStatus totals duration_minutes by status. All four statuses are
// present in the result. Open intervals are skipped.
func SumByStatus(intervals []models.DutyInterval) models.StatusTotals {
	totals := make(models.StatusTotals, len(models.AllDutyStatuses))
	for _, status := range models.AllDutyStatuses {
		totals[status] = 0
	}
	for _, interval := range intervals {
		if interval.DurationMinutes == nil {
			continue
		}
		totals[interval.Status] += *interval.DurationMinutes
	}
	return totals
}
