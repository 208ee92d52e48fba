package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"towtrace-backend/internal/hos"
	"towtrace-backend/internal/middleware"
	"towtrace-backend/internal/models"
	"towtrace-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

const dateLayout = "2006-01-02"

// GetDriverIntervals handles GET /api/drivers/{id}/intervals?start=&end=&limit=
// Bounds apply to interval start time. A date-only end includes that whole day.
func GetDriverIntervals(svc *hos.ComplianceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		driverID := chi.URLParam(r, "id")

		q := hos.IntervalQuery{
			DriverID: driverID,
			TenantID: userClaims.TenantID,
		}

		var err error
		if q.From, err = parseBound(r.URL.Query().Get("start"), false); err != nil {
			utils.RespondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid start: %v", err))
			return
		}
		if q.To, err = parseBound(r.URL.Query().Get("end"), true); err != nil {
			utils.RespondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid end: %v", err))
			return
		}
		if q.From != nil && q.To != nil && !q.From.Before(*q.To) {
			utils.RespondError(w, http.StatusBadRequest, "start must be before end")
			return
		}
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			limit, err := strconv.Atoi(limitStr)
			if err != nil || limit < 1 {
				utils.RespondError(w, http.StatusBadRequest, "Invalid limit")
				return
			}
			q.Limit = limit
		}

		intervals, err := svc.Intervals(r.Context(), q)
		if err != nil {
			RespondServiceError(w, err)
			return
		}

		resp := make([]models.IntervalResponse, 0, len(intervals))
		for i := range intervals {
			resp = append(resp, intervals[i].ToResponse())
		}
		utils.RespondSuccess(w, http.StatusOK, resp)
	}
}

// parseBound accepts RFC 3339 timestamps or YYYY-MM-DD dates (UTC midnight).
// An inclusive end date is moved to the following midnight.
func parseBound(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("expected RFC 3339 timestamp or YYYY-MM-DD")
	}
	if endOfDay {
		t = t.Add(24 * time.Hour)
	}
	return &t, nil
}
