package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apiContext "tradeflow/internal/api/context"
	"tradeflow/internal/api/middleware"
	"tradeflow/internal/pkg/errors"
	"tradeflow/internal/platform/audit"
	"tradeflow/internal/platform/auth"
	"tradeflow/internal/platform/models"
	"tradeflow/internal/platform/repositories"
)

type LicenseHandler struct {
	licenses *repositories.LicenseRepository
	profiles *repositories.ProfileRepository
	audit    *audit.Logger
}

func NewLicenseHandler(licenses *repositories.LicenseRepository, profiles *repositories.ProfileRepository, auditLog *audit.Logger) *LicenseHandler {
	return &LicenseHandler{
		licenses: licenses,
		profiles: profiles,
		audit:    auditLog,
	}
}

func (h *LicenseHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	licenses, err := h.licenses.ListByOrganization(tenant.OrgID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if licenses == nil {
		licenses = []*models.License{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(licenses)
}

type assignLicenseRequest struct {
	ProfileID string `json:"profile_id"`
}

// Assign attaches a seat to a profile and aligns the profile's role with the
// seat type. Owner seats are bound to the subscription owner and cannot be
// reassigned.
func (h *LicenseHandler) Assign(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	licenseID := paramsFromContext(r).ByName("license_id")

	var req assignLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProfileID == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "profile_id is required", nil)
		return
	}

	lic, err := h.licenses.GetByID(licenseID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if lic == nil || lic.OrganizationID != tenant.OrgID {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "License not found", nil)
		return
	}
	if lic.Type == models.LicenseOwner {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Owner licenses cannot be reassigned", nil)
		return
	}
	if lic.AssignedTo != "" {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "License is already assigned", nil)
		return
	}

	profile, err := h.profiles.GetByID(req.ProfileID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if profile == nil || profile.OrganizationID != tenant.OrgID {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Profile not found in this organization", nil)
		return
	}

	if err := h.licenses.Assign(licenseID, req.ProfileID); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to assign license", nil)
		return
	}
	// The seat type becomes the profile's role.
	if err := h.profiles.UpdateRole(req.ProfileID, lic.Type); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to update profile role", nil)
		return
	}

	h.audit.Record(tenant.OrgID, claims.UserID, "license.assigned", "license", licenseID, map[string]interface{}{
		"profile_id":   req.ProfileID,
		"license_type": lic.Type,
	})

	lic, err = h.licenses.GetByID(licenseID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lic)
}

// Unassign frees a seat. The former holder drops back to the field_staff
// role.
func (h *LicenseHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	licenseID := paramsFromContext(r).ByName("license_id")

	lic, err := h.licenses.GetByID(licenseID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if lic == nil || lic.OrganizationID != tenant.OrgID {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "License not found", nil)
		return
	}
	if lic.Type == models.LicenseOwner {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Owner licenses cannot be unassigned", nil)
		return
	}
	if lic.AssignedTo == "" {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "License is not assigned", nil)
		return
	}

	formerHolder := lic.AssignedTo
	if err := h.licenses.Unassign(licenseID); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to unassign license", nil)
		return
	}
	if err := h.profiles.UpdateRole(formerHolder, models.LicenseFieldStaff); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to update profile role", nil)
		return
	}

	h.audit.Record(tenant.OrgID, claims.UserID, "license.unassigned", "license", licenseID, map[string]interface{}{
		"profile_id": formerHolder,
	})

	w.WriteHeader(http.StatusNoContent)
}

func paramsFromContext(r *http.Request) httprouter.Params {
	if ps, ok := r.Context().Value(apiContext.Params).(httprouter.Params); ok {
		return ps
	}
	return nil
}
