package handlers

import (
	"net/http"
	"strconv"
	"time"

	"towtrace-backend/internal/hos"
	"towtrace-backend/internal/middleware"
	"towtrace-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

const defaultReportDays = 30

// GetDriverSummary handles GET /api/drivers/{id}/summary
func GetDriverSummary(svc *hos.ComplianceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		summary, err := svc.Summary(r.Context(), userClaims.TenantID, chi.URLParam(r, "id"))
		if err != nil {
			RespondServiceError(w, err)
			return
		}
		utils.RespondSuccess(w, http.StatusOK, summary)
	}
}

// GetDriverHOSReport handles GET /api/drivers/{id}/hos-report?days=N
func GetDriverHOSReport(svc *hos.ComplianceService, maxDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		days := defaultReportDays
		if daysStr := r.URL.Query().Get("days"); daysStr != "" {
			d, err := strconv.Atoi(daysStr)
			if err != nil || d < 1 {
				utils.RespondError(w, http.StatusBadRequest, "days must be a positive integer")
				return
			}
			days = d
		}
		if maxDays > 0 && days > maxDays {
			days = maxDays
		}

		report, err := svc.Report(r.Context(), userClaims.TenantID, chi.URLParam(r, "id"), time.Duration(days)*24*time.Hour)
		if err != nil {
			RespondServiceError(w, err)
			return
		}
		utils.RespondSuccess(w, http.StatusOK, report)
	}
}
