package billing

import (
	"context"

	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/subscriptionitem"
	"tradeflow/internal/platform/config"
)

// ProviderSubscription is the authoritative subscription state fetched from
// the billing provider.
type ProviderSubscription struct {
	ID                 string
	CustomerID         string
	Status             string
	CurrentPeriodStart int64
	CurrentPeriodEnd   int64
	TrialEnd           int64
	CanceledAt         int64
	Items              []ProviderItem
	Metadata           map[string]string
}

type ProviderItem struct {
	ID       string
	PriceID  string
	Quantity int64
}

// FirstPriceID returns the price from the first subscription item, which
// carries the plan tier on initial-subscription checkouts.
func (s *ProviderSubscription) FirstPriceID() string {
	if len(s.Items) > 0 {
		return s.Items[0].PriceID
	}
	return ""
}

type ProviderCheckoutSession struct {
	ID             string
	Mode           string
	CustomerID     string
	SubscriptionID string
	Metadata       map[string]string
}

type ProviderCustomer struct {
	ID    string
	Email string
}

// Client is the injected billing-provider surface the reconciler depends on.
// Tests substitute a fake; production wires StripeClient.
type Client interface {
	GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error)
	GetCheckoutSession(ctx context.Context, id string) (*ProviderCheckoutSession, error)
	// FindCustomerByEmail returns the first matching customer or nil.
	FindCustomerByEmail(ctx context.Context, email string) (*ProviderCustomer, error)
	// AddSubscriptionItem adds a seat price to an existing subscription and
	// returns the new item's id.
	AddSubscriptionItem(ctx context.Context, subscriptionID, priceID string, quantity int64) (string, error)
	PortalURL(ctx context.Context, customerID, returnURL string) (string, error)
}

// StripeClient implements Client on stripe-go.
type StripeClient struct{}

func NewStripeClient(cfg config.StripeConfig) *StripeClient {
	stripe.Key = cfg.SecretKey
	return &StripeClient{}
}

func (c *StripeClient) GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(id, params)
	if err != nil {
		return nil, err
	}
	return mapSubscription(sub), nil
}

func mapSubscription(sub *stripe.Subscription) *ProviderSubscription {
	ps := &ProviderSubscription{
		ID:         sub.ID,
		Status:     string(sub.Status),
		TrialEnd:   sub.TrialEnd,
		CanceledAt: sub.CanceledAt,
		Metadata:   sub.Metadata,
	}
	if sub.Customer != nil {
		ps.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			pi := ProviderItem{ID: item.ID, Quantity: item.Quantity}
			if item.Price != nil {
				pi.PriceID = item.Price.ID
			}
			ps.Items = append(ps.Items, pi)
			// Billing periods live on the items; the first item's period is
			// the subscription's.
			if ps.CurrentPeriodStart == 0 {
				ps.CurrentPeriodStart = item.CurrentPeriodStart
				ps.CurrentPeriodEnd = item.CurrentPeriodEnd
			}
		}
	}
	return ps
}

func (c *StripeClient) GetCheckoutSession(ctx context.Context, id string) (*ProviderCheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := checkoutsession.Get(id, params)
	if err != nil {
		return nil, err
	}

	pcs := &ProviderCheckoutSession{
		ID:       sess.ID,
		Mode:     string(sess.Mode),
		Metadata: sess.Metadata,
	}
	if sess.Customer != nil {
		pcs.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		pcs.SubscriptionID = sess.Subscription.ID
	}
	return pcs, nil
}

func (c *StripeClient) FindCustomerByEmail(ctx context.Context, email string) (*ProviderCustomer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := customer.List(params)
	for iter.Next() {
		cust := iter.Customer()
		return &ProviderCustomer{ID: cust.ID, Email: cust.Email}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (c *StripeClient) AddSubscriptionItem(ctx context.Context, subscriptionID, priceID string, quantity int64) (string, error) {
	params := &stripe.SubscriptionItemParams{
		Subscription: stripe.String(subscriptionID),
		Price:        stripe.String(priceID),
		Quantity:     stripe.Int64(quantity),
	}
	params.Context = ctx

	item, err := subscriptionitem.New(params)
	if err != nil {
		return "", err
	}
	return item.ID, nil
}

func (c *StripeClient) PortalURL(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := portalsession.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}
