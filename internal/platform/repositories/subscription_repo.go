package repositories

import (
	"database/sql"
	"time"

	"tradeflow/internal/platform/models"
)

type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(sub *models.Subscription) error {
	_, err := r.db.Exec(`
		INSERT INTO subscriptions (id, organization_id, stripe_customer_id, stripe_subscription_id, tier, status, current_period_start, current_period_end, trial_end, cancelled_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sub.ID, sub.OrganizationID, sub.StripeCustomerID, sub.StripeSubscriptionID, sub.Tier, sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.TrialEnd, sub.CancelledAt, sub.CreatedAt, sub.UpdatedAt)
	return err
}

func (r *SubscriptionRepository) GetByStripeSubscriptionID(stripeSubID string) (*models.Subscription, error) {
	return r.getOne(`WHERE stripe_subscription_id = ?`, stripeSubID)
}

func (r *SubscriptionRepository) GetByStripeCustomerID(stripeCustomerID string) (*models.Subscription, error) {
	return r.getOne(`WHERE stripe_customer_id = ?`, stripeCustomerID)
}

func (r *SubscriptionRepository) GetByOrganizationID(orgID string) (*models.Subscription, error) {
	return r.getOne(`WHERE organization_id = ?`, orgID)
}

func (r *SubscriptionRepository) getOne(where string, arg interface{}) (*models.Subscription, error) {
	sub := &models.Subscription{}
	err := r.db.QueryRow(`
		SELECT id, organization_id, stripe_customer_id, stripe_subscription_id, tier, status, current_period_start, current_period_end, trial_end, cancelled_at, created_at, updated_at
		FROM subscriptions `+where, arg).
		Scan(&sub.ID, &sub.OrganizationID, &sub.StripeCustomerID, &sub.StripeSubscriptionID, &sub.Tier, &sub.Status, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.TrialEnd, &sub.CancelledAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

// UpdateProviderState overwrites the fields the billing provider is
// authoritative for, keyed by the external subscription id. Zero rows
// affected means the subscription is unknown locally, which callers treat as
// a benign no-op.
func (r *SubscriptionRepository) UpdateProviderState(stripeSubID, status string, periodStart, periodEnd int64, trialEnd *int64) (int64, error) {
	res, err := r.db.Exec(`
		UPDATE subscriptions
		SET status = ?, current_period_start = ?, current_period_end = ?, trial_end = ?, updated_at = ?
		WHERE stripe_subscription_id = ?
	`, status, periodStart, periodEnd, trialEnd, time.Now().Unix(), stripeSubID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateStateByID overwrites provider-authoritative fields on a known local
// row, for the checkout replay path where the organization already holds a
// subscription.
func (r *SubscriptionRepository) UpdateStateByID(id, status string, periodStart, periodEnd int64, trialEnd *int64) error {
	_, err := r.db.Exec(`
		UPDATE subscriptions
		SET status = ?, current_period_start = ?, current_period_end = ?, trial_end = ?, updated_at = ?
		WHERE id = ?
	`, status, periodStart, periodEnd, trialEnd, time.Now().Unix(), id)
	return err
}

// MarkCancelled stamps a terminal cancelled status. The row is retained.
func (r *SubscriptionRepository) MarkCancelled(stripeSubID string, cancelledAt int64) (int64, error) {
	res, err := r.db.Exec(`
		UPDATE subscriptions
		SET status = ?, cancelled_at = ?, updated_at = ?
		WHERE stripe_subscription_id = ?
	`, models.SubStatusCancelled, cancelledAt, time.Now().Unix(), stripeSubID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SubscriptionRepository) MarkPastDue(stripeSubID string) (int64, error) {
	res, err := r.db.Exec(`
		UPDATE subscriptions SET status = ?, updated_at = ? WHERE stripe_subscription_id = ?
	`, models.SubStatusPastDue, time.Now().Unix(), stripeSubID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
