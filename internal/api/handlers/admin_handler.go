package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"tradeflow/internal/engine/billing"
	"tradeflow/internal/pkg/errors"
	"tradeflow/internal/platform/auth"
	"tradeflow/internal/platform/models"
)

// AdminHandler exposes operational endpoints gated by a shared admin key
// rather than tenant auth.
type AdminHandler struct {
	repairKey string
	repairer  *billing.Repairer
	tokenSvc  *auth.TokenService
}

func NewAdminHandler(repairKey string, repairer *billing.Repairer, tokenSvc *auth.TokenService) *AdminHandler {
	return &AdminHandler{
		repairKey: repairKey,
		repairer:  repairer,
		tokenSvc:  tokenSvc,
	}
}

// Repair runs the profile/organization drift repair pass. Pass ?dry_run=true
// to get the classification report without writing anything.
func (h *AdminHandler) Repair(w http.ResponseWriter, r *http.Request) {
	if h.repairKey == "" {
		errors.WriteError(w, http.StatusServiceUnavailable, errors.ErrCodeInternal, "Admin repair key not configured", nil)
		return
	}

	key := r.Header.Get("X-Admin-Key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.repairKey)) != 1 {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid admin key", nil)
		return
	}

	// A bearer session is optional, but when one is presented it must
	// belong to an owner.
	if bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "); bearer != r.Header.Get("Authorization") {
		claims, err := h.tokenSvc.ValidateToken(bearer)
		if err != nil {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid or expired token", nil)
			return
		}
		if claims.Role != models.LicenseOwner {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
			return
		}
	}

	dryRun := r.URL.Query().Get("dry_run") == "true"

	report, err := h.repairer.Run(r.Context(), dryRun)
	if err != nil {
		log.Error().Err(err).Bool("dry_run", dryRun).Msg("repair pass failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Repair pass failed", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
