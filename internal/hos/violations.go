package hos

import (
	"fmt"
	"time"

	"towtrace-backend/internal/models"
)

// Limits holds the regulatory thresholds, all in minutes except the windows
type Limits struct {
	Window              time.Duration // Live evaluation window
	MaxDrivingMinutes   int
	MaxDutyMinutes      int
	CycleWindow         time.Duration
	MaxCycleDutyMinutes int
	BreakAfterDriving   int // Cumulative driving allowed before a break is due
	MinBreakMinutes     int // Shortest non-driving interval that counts as a break
}

// DefaultLimits returns the US property-carrying limits: 11h driving, 14h
// duty, 70h in 8 days, 30 minute break after 8h driving
func DefaultLimits() Limits {
	return Limits{
		Window:              24 * time.Hour,
		MaxDrivingMinutes:   660,
		MaxDutyMinutes:      840,
		CycleWindow:         8 * 24 * time.Hour,
		MaxCycleDutyMinutes: 4200,
		BreakAfterDriving:   480,
		MinBreakMinutes:     30,
	}
}

// DetectorInput is what the detector evaluates. Cycle and Intervals are
// optional; the cycle and break checks are skipped when they are nil.
type DetectorInput struct {
	Window    models.StatusTotals
	Cycle     models.StatusTotals
	Intervals []models.DutyInterval // Closed intervals of the window, start ascending
}

// Evaluation is the detector's output. Remaining* are clamped at zero for
// display; *Margin are the raw deltas and go negative past a limit.
type Evaluation struct {
	Violations     []models.Violation
	RemainingDrive int
	RemainingDuty  int
	RemainingCycle *int
	DriveMargin    int
	DutyMargin     int
	CycleMargin    *int
}

// Detector applies Limits to aggregated totals
type Detector struct {
	limits Limits
}

func NewDetector(limits Limits) *Detector {
	return &Detector{limits: limits}
}

func (d *Detector) Limits() Limits {
	return d.limits
}

// Evaluate checks every limit. at is stamped on each violation as the
// detection time.
func (d *Detector) Evaluate(in DetectorInput, at time.Time) Evaluation {
	driving := in.Window.Get(models.DutyStatusDriving)
	duty := in.Window.Duty()

	ev := Evaluation{
		Violations:  []models.Violation{},
		DriveMargin: d.limits.MaxDrivingMinutes - driving,
		DutyMargin:  d.limits.MaxDutyMinutes - duty,
	}
	ev.RemainingDrive = max(0, ev.DriveMargin)
	ev.RemainingDuty = max(0, ev.DutyMargin)

	if driving > d.limits.MaxDrivingMinutes {
		ev.Violations = append(ev.Violations, models.Violation{
			Type: models.ViolationDriveTime,
			Description: fmt.Sprintf("Driving time of %s exceeds the %s limit",
				formatMinutes(driving), formatMinutes(d.limits.MaxDrivingMinutes)),
			DetectedAt: at,
		})
	}

	if duty > d.limits.MaxDutyMinutes {
		ev.Violations = append(ev.Violations, models.Violation{
			Type: models.ViolationDutyTime,
			Description: fmt.Sprintf("On-duty time of %s exceeds the %s limit",
				formatMinutes(duty), formatMinutes(d.limits.MaxDutyMinutes)),
			DetectedAt: at,
		})
	}

	if in.Intervals != nil {
		if v := d.checkBreak(in.Intervals, at); v != nil {
			ev.Violations = append(ev.Violations, *v)
		}
	}

	if in.Cycle != nil {
		cycleDuty := in.Cycle.Duty()
		margin := d.limits.MaxCycleDutyMinutes - cycleDuty
		remaining := max(0, margin)
		ev.CycleMargin = &margin
		ev.RemainingCycle = &remaining
		if cycleDuty > d.limits.MaxCycleDutyMinutes {
			ev.Violations = append(ev.Violations, models.Violation{
				Type: models.ViolationCycle,
				Description: fmt.Sprintf("On-duty time of %s in the last %d days exceeds the %s cycle limit",
					formatMinutes(cycleDuty), int(d.limits.CycleWindow.Hours()/24), formatMinutes(d.limits.MaxCycleDutyMinutes)),
				DetectedAt: at,
			})
		}
	}

	return ev
}

// checkBreak walks closed intervals in order and reports the first run of
// driving longer than BreakAfterDriving without a qualifying break
func (d *Detector) checkBreak(intervals []models.DutyInterval, at time.Time) *models.Violation {
	run := 0
	for _, interval := range intervals {
		if interval.DurationMinutes == nil {
			continue
		}
		minutes := *interval.DurationMinutes
		if interval.Status == models.DutyStatusDriving {
			run += minutes
			if run > d.limits.BreakAfterDriving {
				return &models.Violation{
					Type: models.ViolationBreak,
					Description: fmt.Sprintf("Drove %s without a %d minute break (limit %s)",
						formatMinutes(run), d.limits.MinBreakMinutes, formatMinutes(d.limits.BreakAfterDriving)),
					DetectedAt: at,
				}
			}
			continue
		}
		if minutes >= d.limits.MinBreakMinutes {
			run = 0
		}
	}
	return nil
}

func formatMinutes(m int) string {
	return fmt.Sprintf("%dh%02dm", m/60, m%60)
}
