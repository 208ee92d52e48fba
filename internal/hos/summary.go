package hos

import (
	"time"

	"towtrace-backend/internal/models"
)

// SummaryInput is everything BuildSummary composes
type SummaryInput struct {
	DriverID   string
	Driver     *models.Driver        // Optional directory entry
	Open       *models.DutyInterval  // Nil when the driver has no open interval
	Totals     models.StatusTotals
	Evaluation Evaluation
	Window     Window
	Now        time.Time
}

// BuildSummary assembles a ComplianceSummary. It performs no lookups.
func BuildSummary(in SummaryInput) models.ComplianceSummary {
	summary := models.ComplianceSummary{
		DriverID:                  in.DriverID,
		CurrentStatus:             models.DutyStatusOffDuty,
		CurrentStatusStart:        in.Now,
		WindowStart:               in.Window.Start,
		WindowEnd:                 in.Window.End,
		TotalMinutes:              in.Totals,
		RemainingDriveTimeMinutes: in.Evaluation.RemainingDrive,
		RemainingDutyTimeMinutes:  in.Evaluation.RemainingDuty,
		RemainingCycleMinutes:     in.Evaluation.RemainingCycle,
		Violations:                in.Evaluation.Violations,
		GeneratedAt:               in.Now,
	}

	if in.Driver != nil {
		summary.DriverName = in.Driver.Name
		summary.VehicleID = in.Driver.CurrentVehicleID
	}

	if in.Open != nil {
		summary.CurrentStatus = in.Open.Status
		summary.CurrentStatusStart = in.Open.Start()
		summary.CurrentStatusElapsedMinutes = in.Open.ElapsedMinutes(in.Now)
		if summary.VehicleID == nil {
			summary.VehicleID = in.Open.VehicleID
		}
	}

	if summary.Violations == nil {
		summary.Violations = []models.Violation{}
	}
	if summary.TotalMinutes == nil {
		summary.TotalMinutes = SumByStatus(nil)
	}

	return summary
}
