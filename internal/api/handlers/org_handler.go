package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	apiContext "tradeflow/internal/api/context"
	"tradeflow/internal/api/middleware"
	"tradeflow/internal/pkg/errors"
	"tradeflow/internal/pkg/validator"
	"tradeflow/internal/platform/audit"
	"tradeflow/internal/platform/auth"
	"tradeflow/internal/platform/models"
	"tradeflow/internal/platform/repositories"
)

type OrgHandler struct {
	orgRepo     *repositories.OrganizationRepository
	profileRepo *repositories.ProfileRepository
	audit       *audit.Logger
}

func NewOrgHandler(orgRepo *repositories.OrganizationRepository, profileRepo *repositories.ProfileRepository, auditLog *audit.Logger) *OrgHandler {
	return &OrgHandler{
		orgRepo:     orgRepo,
		profileRepo: profileRepo,
		audit:       auditLog,
	}
}

func (h *OrgHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	org, err := h.orgRepo.GetByID(tenant.OrgID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(org)
}

type updateOrgRequest struct {
	Name               string `json:"name"`
	AddressLine1       string `json:"address_line1"`
	AddressLine2       string `json:"address_line2"`
	Suburb             string `json:"suburb"`
	State              string `json:"state"`
	Postcode           string `json:"postcode"`
	ABN                string `json:"abn"`
	OnboardingComplete *bool  `json:"onboarding_complete"`
}

// Update applies the business details collected during onboarding. The ABN
// is checksum-validated before it is stored.
func (h *OrgHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	var req updateOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	org, err := h.orgRepo.GetByID(tenant.OrgID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if org == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Organization not found", nil)
		return
	}

	if req.ABN != "" {
		if err := validator.ValidateABN(req.ABN); err != nil {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
			return
		}
		org.ABN = req.ABN
	}
	if req.Name != "" {
		org.Name = req.Name
	}
	if req.AddressLine1 != "" {
		org.AddressLine1 = req.AddressLine1
	}
	if req.AddressLine2 != "" {
		org.AddressLine2 = req.AddressLine2
	}
	if req.Suburb != "" {
		org.Suburb = req.Suburb
	}
	if req.State != "" {
		org.State = req.State
	}
	if req.Postcode != "" {
		org.Postcode = req.Postcode
	}
	if req.OnboardingComplete != nil {
		org.OnboardingComplete = *req.OnboardingComplete
	}
	org.UpdatedAt = time.Now().Unix()

	if err := h.orgRepo.Update(org); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to update organization", nil)
		return
	}

	h.audit.Record(tenant.OrgID, claims.UserID, "organization.updated", "organization", tenant.OrgID, nil)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(org)
}

// ListProfiles returns the organization's team members.
func (h *OrgHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	profiles, err := h.profileRepo.ListByOrganization(tenant.OrgID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if profiles == nil {
		profiles = []*models.Profile{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profiles)
}
