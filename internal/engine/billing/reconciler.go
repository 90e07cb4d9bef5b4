package billing

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"tradeflow/internal/platform/audit"
	"tradeflow/internal/platform/models"
	"tradeflow/internal/platform/repositories"
)

// Checkout session metadata keys set when the hosted checkout is created.
const (
	MetaType         = "type"
	MetaUserID       = "user_id"
	MetaOrgID        = "organization_id"
	MetaLicenseType  = "license_type"
	MetaBusinessName = "business_name"

	CheckoutTypeInitialSubscription = "initial_subscription"
	CheckoutTypeLicensePurchase     = "license_purchase"
)

var (
	// ErrNotInitialSubscription is returned by SyncCheckoutSession when the
	// session is not flagged as an initial-subscription checkout.
	ErrNotInitialSubscription = errors.New("checkout session is not an initial subscription")
	// ErrReconcileIncomplete means the handler ran but no subscription row
	// exists afterwards. Callers surface a contact-support message.
	ErrReconcileIncomplete = errors.New("subscription reconciliation did not complete")
)

// CheckoutSessionEvent is the minimal shape of a checkout.session.completed
// webhook payload.
type CheckoutSessionEvent struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// SubscriptionEvent is the minimal shape of customer.subscription.* webhook
// payloads.
type SubscriptionEvent struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	TrialEnd           int64             `json:"trial_end"`
	CanceledAt         int64             `json:"canceled_at"`
	Metadata           map[string]string `json:"metadata"`
}

// InvoiceEvent is the minimal shape of invoice.* webhook payloads.
type InvoiceEvent struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

// SyncResult is the outcome of a client-initiated post-checkout sync.
type SyncResult struct {
	AlreadyExists bool                 `json:"already_exists"`
	Subscription  *models.Subscription `json:"subscription,omitempty"`
}

// Reconciler keeps local organizations, subscriptions and licenses
// consistent with billing-provider state. Every handler tolerates replayed
// and reordered events: the external subscription id is the idempotency key,
// backed by a unique constraint.
type Reconciler struct {
	client      Client
	orgs        *repositories.OrganizationRepository
	profiles    *repositories.ProfileRepository
	subs        *repositories.SubscriptionRepository
	licenses    *repositories.LicenseRepository
	audit       *audit.Logger
	prices      *PriceBook
	tenantDBDir string
}

func NewReconciler(
	client Client,
	orgs *repositories.OrganizationRepository,
	profiles *repositories.ProfileRepository,
	subs *repositories.SubscriptionRepository,
	licenses *repositories.LicenseRepository,
	auditLog *audit.Logger,
	prices *PriceBook,
	tenantDBDir string,
) *Reconciler {
	return &Reconciler{
		client:      client,
		orgs:        orgs,
		profiles:    profiles,
		subs:        subs,
		licenses:    licenses,
		audit:       auditLog,
		prices:      prices,
		tenantDBDir: tenantDBDir,
	}
}

// HandleCheckoutCompleted turns a completed checkout into the tenant's first
// subscription, or safely no-ops when the event has already been applied.
// Unrecoverable metadata defects are logged and acknowledged rather than
// returned, so the provider does not retry an event that can never succeed.
func (r *Reconciler) HandleCheckoutCompleted(ctx context.Context, ev CheckoutSessionEvent) error {
	if ev.Metadata[MetaType] == CheckoutTypeLicensePurchase {
		return r.handleLicensePurchase(ctx, ev)
	}

	userID := ev.Metadata[MetaUserID]
	if userID == "" {
		log.Error().Str("session_id", ev.ID).Msg("checkout completed without user_id metadata, cannot reconcile")
		return nil
	}
	if ev.Subscription == "" {
		log.Error().Str("session_id", ev.ID).Str("user_id", userID).Msg("checkout completed without subscription reference")
		return nil
	}

	psub, err := r.client.GetSubscription(ctx, ev.Subscription)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", ev.Subscription, err)
	}

	tier := r.prices.TierForPrice(psub.FirstPriceID())
	status := MapProviderStatus(psub.Status)

	// Idempotency check A: the external subscription is already mirrored.
	existing, err := r.subs.GetByStripeSubscriptionID(psub.ID)
	if err != nil {
		return fmt.Errorf("lookup subscription by external id: %w", err)
	}
	if existing != nil {
		return r.repairProfileLink(userID, existing)
	}

	profile, err := r.profiles.GetByID(userID)
	if err != nil {
		return fmt.Errorf("lookup profile %s: %w", userID, err)
	}
	if profile == nil {
		log.Error().Str("user_id", userID).Str("subscription_id", psub.ID).Msg("checkout references unknown profile, cannot reconcile")
		return nil
	}

	// Idempotency check B: the profile's organization already holds a
	// subscription row; refresh it in place instead of inserting.
	if profile.OrganizationID != "" {
		orgSub, err := r.subs.GetByOrganizationID(profile.OrganizationID)
		if err != nil {
			return fmt.Errorf("lookup subscription for org %s: %w", profile.OrganizationID, err)
		}
		if orgSub != nil {
			if err := r.subs.UpdateStateByID(orgSub.ID, status, psub.CurrentPeriodStart, psub.CurrentPeriodEnd, optionalUnix(psub.TrialEnd)); err != nil {
				return fmt.Errorf("refresh subscription %s: %w", orgSub.ID, err)
			}
			log.Info().
				Str("user_id", userID).
				Str("organization_id", profile.OrganizationID).
				Str("subscription_id", psub.ID).
				Msg("organization already subscribed, refreshed provider state")
			return nil
		}
	}

	orgID := profile.OrganizationID
	createdOrg := false
	if orgID == "" {
		now := time.Now().Unix()
		org := &models.Organization{
			ID:                "org_" + uuid.NewString(),
			Name:              ev.Metadata[MetaBusinessName],
			NextJobNumber:     1,
			NextQuoteNumber:   1,
			NextInvoiceNumber: 1,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		org.DBFilePath = filepath.Join(r.tenantDBDir, org.ID+".db")
		if err := r.orgs.Create(org); err != nil {
			return fmt.Errorf("create organization: %w", err)
		}
		orgID = org.ID
		createdOrg = true
	}

	now := time.Now().Unix()
	sub := &models.Subscription{
		ID:                   "sub_" + uuid.NewString(),
		OrganizationID:       orgID,
		StripeCustomerID:     psub.CustomerID,
		StripeSubscriptionID: psub.ID,
		Tier:                 tier,
		Status:               status,
		CurrentPeriodStart:   psub.CurrentPeriodStart,
		CurrentPeriodEnd:     psub.CurrentPeriodEnd,
		TrialEnd:             optionalUnix(psub.TrialEnd),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := r.subs.Create(sub); err != nil {
		// Compensating action: never leave an organization with no
		// subscription from this path.
		if createdOrg {
			if delErr := r.orgs.Delete(orgID); delErr != nil {
				log.Error().Err(delErr).Str("organization_id", orgID).Msg("failed to roll back organization after subscription insert failure")
			} else {
				log.Warn().Str("organization_id", orgID).Str("subscription_id", psub.ID).Msg("rolled back organization after subscription insert failure")
			}
		}
		return fmt.Errorf("insert subscription %s: %w", psub.ID, err)
	}

	if profile.OrganizationID != orgID {
		if err := r.profiles.LinkOrganization(userID, orgID, models.LicenseOwner); err != nil {
			return fmt.Errorf("link profile %s to org %s: %w", userID, orgID, err)
		}
	}

	if err := r.ensureOwnerLicense(orgID, userID); err != nil {
		return err
	}

	r.audit.Record(orgID, userID, "subscription.created", "subscription", sub.ID, map[string]interface{}{
		"stripe_subscription_id": psub.ID,
		"tier":                   tier,
		"status":                 status,
	})
	log.Info().
		Str("user_id", userID).
		Str("organization_id", orgID).
		Str("subscription_id", psub.ID).
		Str("tier", tier).
		Str("status", status).
		Bool("created_org", createdOrg).
		Msg("checkout reconciled")
	return nil
}

// repairProfileLink handles the already-applied case: the only permitted
// write is restoring the profile's organization link.
func (r *Reconciler) repairProfileLink(userID string, sub *models.Subscription) error {
	profile, err := r.profiles.GetByID(userID)
	if err != nil {
		return fmt.Errorf("lookup profile %s: %w", userID, err)
	}
	if profile != nil && profile.OrganizationID != sub.OrganizationID {
		if err := r.profiles.LinkOrganization(userID, sub.OrganizationID, models.LicenseOwner); err != nil {
			return fmt.Errorf("repair profile link: %w", err)
		}
		log.Warn().
			Str("user_id", userID).
			Str("organization_id", sub.OrganizationID).
			Str("subscription_id", sub.StripeSubscriptionID).
			Msg("checkout replay repaired profile organization link")
		return nil
	}
	log.Info().
		Str("user_id", userID).
		Str("subscription_id", sub.StripeSubscriptionID).
		Msg("checkout already reconciled, no-op")
	return nil
}

func (r *Reconciler) ensureOwnerLicense(orgID, userID string) error {
	owner, err := r.licenses.GetOwnerLicense(orgID, userID)
	if err != nil {
		return fmt.Errorf("lookup owner license: %w", err)
	}
	if owner != nil {
		return nil
	}

	now := time.Now().Unix()
	lic := &models.License{
		ID:             "lic_" + uuid.NewString(),
		OrganizationID: orgID,
		Type:           models.LicenseOwner,
		Status:         models.LicenseStatusActive,
		AssignedTo:     userID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.licenses.Create(lic); err != nil {
		return fmt.Errorf("create owner license: %w", err)
	}
	return nil
}

// handleLicensePurchase records seat licenses bought through a dedicated
// checkout. It never creates organizations or subscriptions.
func (r *Reconciler) handleLicensePurchase(ctx context.Context, ev CheckoutSessionEvent) error {
	orgID := ev.Metadata[MetaOrgID]
	licType := ev.Metadata[MetaLicenseType]
	if orgID == "" || !models.PurchasableLicenseType(licType) {
		log.Error().
			Str("session_id", ev.ID).
			Str("organization_id", orgID).
			Str("license_type", licType).
			Msg("license purchase missing or invalid metadata, cannot reconcile")
		return nil
	}
	if ev.Subscription == "" {
		log.Error().Str("session_id", ev.ID).Str("organization_id", orgID).Msg("license purchase without subscription reference")
		return nil
	}

	psub, err := r.client.GetSubscription(ctx, ev.Subscription)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", ev.Subscription, err)
	}

	itemID := ""
	quantity := 1
	for _, item := range psub.Items {
		if lt, ok := r.prices.LicenseTypeForPrice(item.PriceID); ok && lt == licType {
			itemID = item.ID
			if item.Quantity > 0 {
				quantity = int(item.Quantity)
			}
			break
		}
	}
	if itemID == "" {
		// Without a matching item there is no idempotency key, and retrying
		// will not make one appear. Same treatment as bad metadata.
		log.Error().
			Str("session_id", ev.ID).
			Str("organization_id", orgID).
			Str("license_type", licType).
			Str("subscription_id", ev.Subscription).
			Msg("license purchase has no subscription item for its price, cannot reconcile")
		return nil
	}

	applied, err := r.licenses.CountByStripeItem(itemID)
	if err != nil {
		return fmt.Errorf("count licenses for item %s: %w", itemID, err)
	}
	if applied >= quantity {
		log.Info().
			Str("organization_id", orgID).
			Str("stripe_item_id", itemID).
			Msg("license purchase already reconciled, no-op")
		return nil
	}
	quantity -= applied

	now := time.Now().Unix()
	for i := 0; i < quantity; i++ {
		lic := &models.License{
			ID:             "lic_" + uuid.NewString(),
			OrganizationID: orgID,
			Type:           licType,
			Status:         models.LicenseStatusUnassigned,
			StripeItemID:   itemID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := r.licenses.Create(lic); err != nil {
			return fmt.Errorf("create %s license: %w", licType, err)
		}
	}

	r.audit.Record(orgID, ev.Metadata[MetaUserID], "license.purchased", "license", itemID, map[string]interface{}{
		"license_type": licType,
		"quantity":     quantity,
	})
	log.Info().
		Str("organization_id", orgID).
		Str("license_type", licType).
		Int("quantity", quantity).
		Msg("license purchase reconciled")
	return nil
}

// HandleSubscriptionUpdated mirrors provider status and period changes.
// Updating an unknown subscription affects zero rows, which is benign.
func (r *Reconciler) HandleSubscriptionUpdated(ctx context.Context, ev SubscriptionEvent) error {
	status := MapProviderStatus(ev.Status)
	rows, err := r.subs.UpdateProviderState(ev.ID, status, ev.CurrentPeriodStart, ev.CurrentPeriodEnd, optionalUnix(ev.TrialEnd))
	if err != nil {
		return fmt.Errorf("update subscription %s: %w", ev.ID, err)
	}
	if rows == 0 {
		log.Debug().Str("subscription_id", ev.ID).Msg("subscription update for unknown subscription, no-op")
		return nil
	}
	log.Info().Str("subscription_id", ev.ID).Str("status", status).Msg("subscription state mirrored")
	return nil
}

// HandleSubscriptionDeleted marks the mirror cancelled. Cancellation is a
// terminal status, not row removal.
func (r *Reconciler) HandleSubscriptionDeleted(ctx context.Context, ev SubscriptionEvent) error {
	cancelledAt := ev.CanceledAt
	if cancelledAt == 0 {
		cancelledAt = time.Now().Unix()
	}
	rows, err := r.subs.MarkCancelled(ev.ID, cancelledAt)
	if err != nil {
		return fmt.Errorf("cancel subscription %s: %w", ev.ID, err)
	}
	if rows == 0 {
		log.Debug().Str("subscription_id", ev.ID).Msg("subscription delete for unknown subscription, no-op")
		return nil
	}
	log.Info().Str("subscription_id", ev.ID).Msg("subscription cancelled")
	return nil
}

// HandleInvoicePaymentFailed flags the subscription past_due.
func (r *Reconciler) HandleInvoicePaymentFailed(ctx context.Context, ev InvoiceEvent) error {
	if ev.Subscription == "" {
		log.Debug().Str("invoice_id", ev.ID).Msg("payment failure without subscription reference, no-op")
		return nil
	}
	rows, err := r.subs.MarkPastDue(ev.Subscription)
	if err != nil {
		return fmt.Errorf("mark subscription %s past_due: %w", ev.Subscription, err)
	}
	if rows == 0 {
		log.Debug().Str("subscription_id", ev.Subscription).Msg("payment failure for unknown subscription, no-op")
		return nil
	}
	log.Warn().Str("subscription_id", ev.Subscription).Str("invoice_id", ev.ID).Msg("subscription marked past_due")
	return nil
}

// SyncCheckoutSession lets the client force reconciliation right after the
// hosted checkout redirect, closing the race where the UI loads before the
// webhook arrives.
func (r *Reconciler) SyncCheckoutSession(ctx context.Context, profileID, sessionID string) (*SyncResult, error) {
	profile, err := r.profiles.GetByID(profileID)
	if err != nil {
		return nil, fmt.Errorf("lookup profile %s: %w", profileID, err)
	}
	if profile == nil {
		return nil, fmt.Errorf("profile %s not found", profileID)
	}

	if profile.OrganizationID != "" {
		sub, err := r.subs.GetByOrganizationID(profile.OrganizationID)
		if err != nil {
			return nil, fmt.Errorf("lookup subscription for org %s: %w", profile.OrganizationID, err)
		}
		if sub != nil {
			return &SyncResult{AlreadyExists: true, Subscription: sub}, nil
		}
	}

	sess, err := r.client.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch checkout session %s: %w", sessionID, err)
	}
	if sess.Metadata[MetaType] != CheckoutTypeInitialSubscription {
		return nil, ErrNotInitialSubscription
	}

	metadata := make(map[string]string, len(sess.Metadata)+1)
	for k, v := range sess.Metadata {
		metadata[k] = v
	}
	if metadata[MetaUserID] == "" {
		metadata[MetaUserID] = profileID
	}

	ev := CheckoutSessionEvent{
		ID:           sess.ID,
		Mode:         sess.Mode,
		Customer:     sess.CustomerID,
		Subscription: sess.SubscriptionID,
		Metadata:     metadata,
	}
	if err := r.HandleCheckoutCompleted(ctx, ev); err != nil {
		return nil, err
	}

	sub, err := r.subs.GetByStripeSubscriptionID(sess.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("verify subscription after sync: %w", err)
	}
	if sub == nil {
		log.Error().
			Str("user_id", profileID).
			Str("session_id", sessionID).
			Str("subscription_id", sess.SubscriptionID).
			Msg("sync ran but subscription still missing")
		return nil, ErrReconcileIncomplete
	}
	return &SyncResult{Subscription: sub}, nil
}

func optionalUnix(ts int64) *int64 {
	if ts == 0 {
		return nil
	}
	return &ts
}
