package handlers

import (
	"net/http"

	"towtrace-backend/internal/hos"
	"towtrace-backend/internal/middleware"
	"towtrace-backend/pkg/utils"

	"github.com/rs/zerolog/log"
)

// GetFleetDutyStatus handles GET /api/fleet/duty-status
func GetFleetDutyStatus(svc *hos.ComplianceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		drivers, err := svc.FleetStatus(r.Context(), userClaims.TenantID)
		if err != nil {
			log.Error().Err(err).Str("tenant_id", userClaims.TenantID).Msg("❌ Failed to list fleet duty status")
			RespondServiceError(w, err)
			return
		}
		utils.RespondSuccess(w, http.StatusOK, drivers)
	}
}
