package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	apiContext "tradeflow/internal/api/context"
	"tradeflow/internal/api/middleware"
	"tradeflow/internal/engine/billing"
	"tradeflow/internal/engine/reporting"
	"tradeflow/internal/pkg/errors"
	"tradeflow/internal/platform/audit"
	"tradeflow/internal/platform/auth"
	"tradeflow/internal/platform/models"
	"tradeflow/internal/platform/repositories"
)

type BillingHandler struct {
	reconciler *billing.Reconciler
	client     billing.Client
	prices     *billing.PriceBook
	subs       *repositories.SubscriptionRepository
	licenses   *repositories.LicenseRepository
	overview   *reporting.Service
	audit      *audit.Logger
	returnURL  string
}

func NewBillingHandler(
	reconciler *billing.Reconciler,
	client billing.Client,
	prices *billing.PriceBook,
	subs *repositories.SubscriptionRepository,
	licenses *repositories.LicenseRepository,
	overview *reporting.Service,
	auditLog *audit.Logger,
	returnURL string,
) *BillingHandler {
	return &BillingHandler{
		reconciler: reconciler,
		client:     client,
		prices:     prices,
		subs:       subs,
		licenses:   licenses,
		overview:   overview,
		audit:      auditLog,
		returnURL:  returnURL,
	}
}

type syncRequest struct {
	SessionID string `json:"session_id"`
}

type syncResponse struct {
	Success      bool                 `json:"success"`
	Message      string               `json:"message"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
}

// Sync reconciles a just-completed checkout on behalf of the client, for the
// window where the redirect lands before the webhook does.
func (h *BillingHandler) Sync(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "session_id is required", nil)
		return
	}

	result, err := h.reconciler.SyncCheckoutSession(r.Context(), claims.UserID, req.SessionID)
	if err != nil {
		switch err {
		case billing.ErrNotInitialSubscription:
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Checkout session is not a subscription signup", nil)
		case billing.ErrReconcileIncomplete:
			errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Subscription setup did not complete. Please contact support.", nil)
		default:
			log.Error().Err(err).Str("user_id", claims.UserID).Str("session_id", req.SessionID).Msg("checkout sync failed")
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to sync subscription", nil)
		}
		return
	}

	resp := syncResponse{Success: true, Subscription: result.Subscription}
	if result.AlreadyExists {
		resp.Message = "Subscription already active"
	} else {
		resp.Message = "Subscription synced"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type purchaseLicensesRequest struct {
	Type     string `json:"type"`
	Quantity int    `json:"quantity"`
}

// PurchaseLicenses adds seat items to the organization's existing
// subscription and records the new licenses as unassigned.
func (h *BillingHandler) PurchaseLicenses(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	var req purchaseLicensesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if !models.PurchasableLicenseType(req.Type) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "type must be management or field_staff", nil)
		return
	}
	if req.Quantity < 1 || req.Quantity > 50 {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "quantity must be between 1 and 50", nil)
		return
	}

	sub, err := h.subs.GetByOrganizationID(tenant.OrgID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if sub == nil {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Organization has no subscription", nil)
		return
	}
	if sub.Status != models.SubStatusActive && sub.Status != models.SubStatusTrialing {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Subscription is not active", nil)
		return
	}

	priceID, ok := h.prices.LicensePrice(req.Type)
	if !ok {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "No price configured for license type", nil)
		return
	}

	itemID, err := h.client.AddSubscriptionItem(r.Context(), sub.StripeSubscriptionID, priceID, int64(req.Quantity))
	if err != nil {
		log.Error().Err(err).Str("organization_id", tenant.OrgID).Str("license_type", req.Type).Msg("failed to add subscription item")
		errors.WriteError(w, http.StatusBadGateway, errors.ErrCodeInternal, "Billing provider rejected the purchase", nil)
		return
	}

	now := time.Now().Unix()
	created := make([]*models.License, 0, req.Quantity)
	for i := 0; i < req.Quantity; i++ {
		lic := &models.License{
			ID:             "lic_" + uuid.NewString(),
			OrganizationID: tenant.OrgID,
			Type:           req.Type,
			Status:         models.LicenseStatusUnassigned,
			StripeItemID:   itemID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := h.licenses.Create(lic); err != nil {
			log.Error().Err(err).Str("organization_id", tenant.OrgID).Str("stripe_item_id", itemID).Msg("failed to record purchased license")
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to record licenses", nil)
			return
		}
		created = append(created, lic)
	}

	h.audit.Record(tenant.OrgID, claims.UserID, "license.purchased", "license", itemID, map[string]interface{}{
		"license_type": req.Type,
		"quantity":     req.Quantity,
	})

	message := "Seats are billed on your next invoice."
	if sub.Status == models.SubStatusTrialing {
		message = "Seats will be billed when your trial ends."
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(struct {
		Licenses []*models.License `json:"licenses"`
		Message  string            `json:"message"`
	}{Licenses: created, Message: message})
}

// Portal returns a billing provider portal URL for self-serve payment and
// plan management.
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	sub, err := h.subs.GetByOrganizationID(tenant.OrgID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if sub == nil || sub.StripeCustomerID == "" {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "No billing customer for this organization", nil)
		return
	}

	url, err := h.client.PortalURL(r.Context(), sub.StripeCustomerID, h.returnURL)
	if err != nil {
		log.Error().Err(err).Str("organization_id", tenant.OrgID).Msg("failed to create portal session")
		errors.WriteError(w, http.StatusBadGateway, errors.ErrCodeInternal, "Failed to create portal session", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"url": url})
}

// Overview returns the organization's subscription and seat summary.
func (h *BillingHandler) Overview(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	ov, err := h.overview.GetOverview(tenant.OrgID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if ov == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "No subscription for this organization", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ov)
}
