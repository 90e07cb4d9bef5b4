package billing

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"tradeflow/internal/platform/audit"
	"tradeflow/internal/platform/config"
	"tradeflow/internal/platform/database"
	"tradeflow/internal/platform/models"
	"tradeflow/internal/platform/repositories"
)

const testSchema = `
CREATE TABLE organizations (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	address_line1 TEXT NOT NULL DEFAULT '',
	address_line2 TEXT NOT NULL DEFAULT '',
	suburb TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT '',
	postcode TEXT NOT NULL DEFAULT '',
	abn TEXT NOT NULL DEFAULT '',
	db_file_path TEXT NOT NULL DEFAULT '',
	next_job_number INTEGER NOT NULL DEFAULT 1,
	next_quote_number INTEGER NOT NULL DEFAULT 1,
	next_invoice_number INTEGER NOT NULL DEFAULT 1,
	onboarding_complete INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE profiles (
	id TEXT PRIMARY KEY,
	organization_id TEXT,
	email TEXT NOT NULL,
	full_name TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'field_staff',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE subscriptions (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	stripe_customer_id TEXT NOT NULL DEFAULT '',
	stripe_subscription_id TEXT NOT NULL UNIQUE,
	tier TEXT NOT NULL,
	status TEXT NOT NULL,
	current_period_start INTEGER NOT NULL DEFAULT 0,
	current_period_end INTEGER NOT NULL DEFAULT 0,
	trial_end INTEGER,
	cancelled_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE licenses (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	assigned_to TEXT,
	stripe_item_id TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE audit_logs (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL DEFAULT '',
	profile_id TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL
);
`

type fakeClient struct {
	subs         map[string]*ProviderSubscription
	sessions     map[string]*ProviderCheckoutSession
	customers    map[string]*ProviderCustomer // keyed by email
	customerErrs map[string]error
	addedItemID  string
	addedCalls   int
	portalURL    string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		subs:         make(map[string]*ProviderSubscription),
		sessions:     make(map[string]*ProviderCheckoutSession),
		customers:    make(map[string]*ProviderCustomer),
		customerErrs: make(map[string]error),
		addedItemID:  "si_fake",
		portalURL:    "https://billing.example.com/portal",
	}
}

func (f *fakeClient) GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error) {
	sub, ok := f.subs[id]
	if !ok {
		return nil, errors.New("no such subscription: " + id)
	}
	return sub, nil
}

func (f *fakeClient) GetCheckoutSession(ctx context.Context, id string) (*ProviderCheckoutSession, error) {
	sess, ok := f.sessions[id]
	if !ok {
		return nil, errors.New("no such checkout session: " + id)
	}
	return sess, nil
}

func (f *fakeClient) FindCustomerByEmail(ctx context.Context, email string) (*ProviderCustomer, error) {
	if err, ok := f.customerErrs[email]; ok {
		return nil, err
	}
	return f.customers[email], nil
}

func (f *fakeClient) AddSubscriptionItem(ctx context.Context, subscriptionID, priceID string, quantity int64) (string, error) {
	f.addedCalls++
	return f.addedItemID, nil
}

func (f *fakeClient) PortalURL(ctx context.Context, customerID, returnURL string) (string, error) {
	return f.portalURL, nil
}

type testEnv struct {
	db       *sql.DB
	client   *fakeClient
	orgs     *repositories.OrganizationRepository
	profiles *repositories.ProfileRepository
	subs     *repositories.SubscriptionRepository
	licenses *repositories.LicenseRepository
	rec      *Reconciler
	repairer *Repairer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	env := &testEnv{
		db:       db,
		client:   newFakeClient(),
		orgs:     repositories.NewOrganizationRepository(db),
		profiles: repositories.NewProfileRepository(db),
		subs:     repositories.NewSubscriptionRepository(db),
		licenses: repositories.NewLicenseRepository(db),
	}
	auditLog := audit.NewLogger(db)
	prices := NewPriceBook(testStripeConfig())
	env.rec = NewReconciler(env.client, env.orgs, env.profiles, env.subs, env.licenses, auditLog, prices, t.TempDir())
	pool := database.NewTenantDBPool(config.TenantDBConfig{MaxConnectionsPerOrg: 1})
	t.Cleanup(pool.CloseAll)
	env.repairer = NewRepairer(env.client, env.orgs, env.profiles, env.subs, auditLog, pool)
	return env
}

func testStripeConfig() config.StripeConfig {
	return config.StripeConfig{
		TierPrices: map[string]string{
			models.TierOperations: "price_operations",
			models.TierScale:      "price_scale",
			models.TierUnlimited:  "price_unlimited",
		},
		LicensePrices: map[string]string{
			models.LicenseManagement: "price_management",
			models.LicenseFieldStaff: "price_field_staff",
		},
		PortalReturnURL: "https://app.example.com/settings/billing",
	}
}

func (e *testEnv) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func (e *testEnv) addProfile(t *testing.T, id, orgID, email string) {
	t.Helper()
	require.NoError(t, e.profiles.Create(&models.Profile{
		ID:             id,
		OrganizationID: orgID,
		Email:          email,
		Role:           models.LicenseFieldStaff,
		CreatedAt:      1000,
		UpdatedAt:      1000,
	}))
}

func (e *testEnv) addOrg(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, e.orgs.Create(&models.Organization{
		ID:        id,
		CreatedAt: 1000,
		UpdatedAt: 1000,
	}))
}

func initialCheckoutEvent(userID, subID string) CheckoutSessionEvent {
	return CheckoutSessionEvent{
		ID:           "cs_test_1",
		Mode:         "subscription",
		Customer:     "cus_1",
		Subscription: subID,
		Metadata: map[string]string{
			MetaType:   CheckoutTypeInitialSubscription,
			MetaUserID: userID,
		},
	}
}

func trialingProviderSub(id string) *ProviderSubscription {
	return &ProviderSubscription{
		ID:                 id,
		CustomerID:         "cus_1",
		Status:             "trialing",
		CurrentPeriodStart: 1700000000,
		CurrentPeriodEnd:   1702592000,
		TrialEnd:           1701000000,
		Items: []ProviderItem{
			{ID: "si_base", PriceID: "price_operations", Quantity: 1},
		},
	}
}

func TestCheckoutCreatesOrgSubscriptionAndOwnerLicense(t *testing.T) {
	env := newTestEnv(t)
	env.addProfile(t, "U1", "", "owner@sparky.com.au")
	env.client.subs["sub_1"] = trialingProviderSub("sub_1")

	err := env.rec.HandleCheckoutCompleted(context.Background(), initialCheckoutEvent("U1", "sub_1"))
	require.NoError(t, err)

	require.Equal(t, 1, env.count(t, "organizations"))
	require.Equal(t, 1, env.count(t, "subscriptions"))
	require.Equal(t, 1, env.count(t, "licenses"))

	sub, err := env.subs.GetByStripeSubscriptionID("sub_1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	require.Equal(t, models.TierOperations, sub.Tier)
	require.Equal(t, models.SubStatusTrialing, sub.Status)
	require.Equal(t, int64(1700000000), sub.CurrentPeriodStart)
	require.NotNil(t, sub.TrialEnd)
	require.Equal(t, int64(1701000000), *sub.TrialEnd)

	profile, err := env.profiles.GetByID("U1")
	require.NoError(t, err)
	require.Equal(t, sub.OrganizationID, profile.OrganizationID)
	require.Equal(t, models.LicenseOwner, profile.Role)

	owner, err := env.licenses.GetOwnerLicense(sub.OrganizationID, "U1")
	require.NoError(t, err)
	require.NotNil(t, owner)
	require.Equal(t, models.LicenseStatusActive, owner.Status)
}

func TestCheckoutReplayIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.addProfile(t, "U1", "", "owner@sparky.com.au")
	env.client.subs["sub_1"] = trialingProviderSub("sub_1")

	ev := initialCheckoutEvent("U1", "sub_1")
	require.NoError(t, env.rec.HandleCheckoutCompleted(context.Background(), ev))

	// At-least-once delivery: same event again must not create anything.
	for i := 0; i < 3; i++ {
		require.NoError(t, env.rec.HandleCheckoutCompleted(context.Background(), ev))
	}

	require.Equal(t, 1, env.count(t, "organizations"))
	require.Equal(t, 1, env.count(t, "subscriptions"))
	require.Equal(t, 1, env.count(t, "licenses"))
}

func TestCheckoutRollsBackOrgWhenSubscriptionInsertFails(t *testing.T) {
	env := newTestEnv(t)
	env.addProfile(t, "U1", "", "owner@sparky.com.au")
	env.client.subs["sub_1"] = trialingProviderSub("sub_1")

	// Simulate the subscription insert failing after the organization was
	// created.
	_, err := env.db.Exec(`
		CREATE TRIGGER fail_sub_insert BEFORE INSERT ON subscriptions
		BEGIN SELECT RAISE(ABORT, 'simulated insert failure'); END;
	`)
	require.NoError(t, err)

	err = env.rec.HandleCheckoutCompleted(context.Background(), initialCheckoutEvent("U1", "sub_1"))
	require.Error(t, err)

	require.Equal(t, 0, env.count(t, "organizations"), "compensating delete must remove the just-created organization")
	require.Equal(t, 0, env.count(t, "subscriptions"))
	require.Equal(t, 0, env.count(t, "licenses"))
}

func TestCheckoutReplayRepairsProfileLink(t *testing.T) {
	env := newTestEnv(t)
	env.addProfile(t, "U1", "", "owner@sparky.com.au")
	env.client.subs["sub_1"] = trialingProviderSub("sub_1")

	require.NoError(t, env.rec.HandleCheckoutCompleted(context.Background(), initialCheckoutEvent("U1", "sub_1")))
	sub, err := env.subs.GetByStripeSubscriptionID("sub_1")
	require.NoError(t, err)

	// Knock the link out of place, then replay.
	env.addOrg(t, "org_wrong")
	require.NoError(t, env.profiles.UpdateOrganizationID("U1", "org_wrong"))

	require.NoError(t, env.rec.HandleCheckoutCompleted(context.Background(), initialCheckoutEvent("U1", "sub_1")))

	profile, err := env.profiles.GetByID("U1")
	require.NoError(t, err)
	require.Equal(t, sub.OrganizationID, profile.OrganizationID)
	require.Equal(t, 1, env.count(t, "subscriptions"))
}

func TestCheckoutReusesLinkedOrganization(t *testing.T) {
	env := newTestEnv(t)
	env.addOrg(t, "org_existing")
	env.addProfile(t, "U1", "org_existing", "owner@sparky.com.au")
	env.client.subs["sub_1"] = trialingProviderSub("sub_1")

	require.NoError(t, env.rec.HandleCheckoutCompleted(context.Background(), initialCheckoutEvent("U1", "sub_1")))

	require.Equal(t, 1, env.count(t, "organizations"), "no new organization when the profile is already linked")
	sub, err := env.subs.GetByStripeSubscriptionID("sub_1")
	require.NoError(t, err)
	require.Equal(t, "org_existing", sub.OrganizationID)
}

func TestCheckoutUpdatesInPlaceWhenOrgAlreadySubscribed(t *testing.T) {
	env := newTestEnv(t)
	env.addOrg(t, "org_existing")
	env.addProfile(t, "U1", "org_existing", "owner@sparky.com.au")
	require.NoError(t, env.subs.Create(&models.Subscription{
		ID:                   "local_1",
		OrganizationID:       "org_existing",
		StripeSubscriptionID: "sub_old",
		Tier:                 models.TierOperations,
		Status:               models.SubStatusActive,
		CreatedAt:            1000,
		UpdatedAt:            1000,
	}))

	provider := trialingProviderSub("sub_new")
	provider.Status = "past_due"
	env.client.subs["sub_new"] = provider

	require.NoError(t, env.rec.HandleCheckoutCompleted(context.Background(), initialCheckoutEvent("U1", "sub_new")))

	require.Equal(t, 1, env.count(t, "subscriptions"), "existing row is updated, not duplicated")
	sub, err := env.subs.GetByOrganizationID("org_existing")
	require.NoError(t, err)
	require.Equal(t, models.SubStatusPastDue, sub.Status)
	require.Equal(t, int64(1702592000), sub.CurrentPeriodEnd)
}

func TestCheckoutWithoutUserIsAcknowledged(t *testing.T) {
	env := newTestEnv(t)

	ev := CheckoutSessionEvent{ID: "cs_anon", Subscription: "sub_1", Metadata: map[string]string{}}
	require.NoError(t, env.rec.HandleCheckoutCompleted(context.Background(), ev))
	require.Equal(t, 0, env.count(t, "organizations"))
	require.Equal(t, 0, env.count(t, "subscriptions"))
}

func TestLicensePurchaseCreatesUnassignedSeats(t *testing.T) {
	env := newTestEnv(t)
	env.addOrg(t, "org_1")
	env.client.subs["sub_1"] = &ProviderSubscription{
		ID:         "sub_1",
		CustomerID: "cus_1",
		Status:     "active",
		Items: []ProviderItem{
			{ID: "si_base", PriceID: "price_operations", Quantity: 1},
			{ID: "si_seats", PriceID: "price_field_staff", Quantity: 3},
		},
	}

	ev := CheckoutSessionEvent{
		ID:           "cs_seats",
		Subscription: "sub_1",
		Metadata: map[string]string{
			MetaType:        CheckoutTypeLicensePurchase,
			MetaOrgID:       "org_1",
			MetaLicenseType: models.LicenseFieldStaff,
		},
	}
	require.NoError(t, env.rec.HandleCheckoutCompleted(context.Background(), ev))

	licenses, err := env.licenses.ListByOrganization("org_1")
	require.NoError(t, err)
	require.Len(t, licenses, 3)
	for _, l := range licenses {
		require.Equal(t, models.LicenseFieldStaff, l.Type)
		require.Equal(t, models.LicenseStatusUnassigned, l.Status)
		require.Equal(t, "si_seats", l.StripeItemID)
	}

	// Replay must not mint more seats.
	require.NoError(t, env.rec.HandleCheckoutCompleted(context.Background(), ev))
	licenses, err = env.licenses.ListByOrganization("org_1")
	require.NoError(t, err)
	require.Len(t, licenses, 3)
}

func TestLicensePurchaseUnknownPriceMintsNothingOnReplay(t *testing.T) {
	env := newTestEnv(t)
	env.addOrg(t, "org_1")
	env.client.subs["sub_1"] = &ProviderSubscription{
		ID:         "sub_1",
		CustomerID: "cus_1",
		Status:     "active",
		Items: []ProviderItem{
			{ID: "si_mystery", PriceID: "price_unknown", Quantity: 3},
		},
	}

	ev := CheckoutSessionEvent{
		ID:           "cs_seats",
		Subscription: "sub_1",
		Metadata: map[string]string{
			MetaType:        CheckoutTypeLicensePurchase,
			MetaOrgID:       "org_1",
			MetaLicenseType: models.LicenseFieldStaff,
		},
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, env.rec.HandleCheckoutCompleted(context.Background(), ev))
	}
	require.Equal(t, 0, env.count(t, "licenses"))
}

func TestLicensePurchaseMissingMetadataIsAcknowledged(t *testing.T) {
	env := newTestEnv(t)

	ev := CheckoutSessionEvent{
		ID:           "cs_bad",
		Subscription: "sub_1",
		Metadata:     map[string]string{MetaType: CheckoutTypeLicensePurchase},
	}
	require.NoError(t, env.rec.HandleCheckoutCompleted(context.Background(), ev))
	require.Equal(t, 0, env.count(t, "licenses"))
	require.Equal(t, 0, env.count(t, "organizations"))
}

func TestSubscriptionUpdatedMirrorsOnlyTargetRow(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"sub_1", "sub_2"} {
		require.NoError(t, env.subs.Create(&models.Subscription{
			ID:                   "local_" + id,
			OrganizationID:       "org_" + id,
			StripeSubscriptionID: id,
			Tier:                 models.TierOperations,
			Status:               models.SubStatusActive,
			CurrentPeriodStart:   1,
			CurrentPeriodEnd:     2,
			CreatedAt:            1000,
			UpdatedAt:            1000,
		}))
	}

	err := env.rec.HandleSubscriptionUpdated(context.Background(), SubscriptionEvent{
		ID:                 "sub_1",
		Status:             "past_due",
		CurrentPeriodStart: 1700000000,
		CurrentPeriodEnd:   1702592000,
		TrialEnd:           1701000000,
	})
	require.NoError(t, err)

	updated, err := env.subs.GetByStripeSubscriptionID("sub_1")
	require.NoError(t, err)
	require.Equal(t, models.SubStatusPastDue, updated.Status)
	require.Equal(t, int64(1700000000), updated.CurrentPeriodStart)
	require.Equal(t, int64(1702592000), updated.CurrentPeriodEnd)
	require.NotNil(t, updated.TrialEnd)

	untouched, err := env.subs.GetByStripeSubscriptionID("sub_2")
	require.NoError(t, err)
	require.Equal(t, models.SubStatusActive, untouched.Status)
	require.Equal(t, int64(2), untouched.CurrentPeriodEnd)
}

func TestSubscriptionUpdatedUnknownIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	err := env.rec.HandleSubscriptionUpdated(context.Background(), SubscriptionEvent{ID: "sub_ghost", Status: "active"})
	require.NoError(t, err)
}

func TestSubscriptionDeletedMarksCancelled(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.subs.Create(&models.Subscription{
		ID:                   "local_1",
		OrganizationID:       "org_1",
		StripeSubscriptionID: "sub_1",
		Tier:                 models.TierOperations,
		Status:               models.SubStatusActive,
		CreatedAt:            1000,
		UpdatedAt:            1000,
	}))

	err := env.rec.HandleSubscriptionDeleted(context.Background(), SubscriptionEvent{ID: "sub_1", CanceledAt: 1703000000})
	require.NoError(t, err)

	sub, err := env.subs.GetByStripeSubscriptionID("sub_1")
	require.NoError(t, err)
	require.NotNil(t, sub, "cancellation keeps the row")
	require.Equal(t, models.SubStatusCancelled, sub.Status)
	require.NotNil(t, sub.CancelledAt)
	require.Equal(t, int64(1703000000), *sub.CancelledAt)
}

func TestInvoicePaymentFailedMarksPastDue(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"sub_1", "sub_2"} {
		require.NoError(t, env.subs.Create(&models.Subscription{
			ID:                   "local_" + id,
			OrganizationID:       "org_" + id,
			StripeSubscriptionID: id,
			Tier:                 models.TierOperations,
			Status:               models.SubStatusActive,
			CreatedAt:            1000,
			UpdatedAt:            1000,
		}))
	}

	err := env.rec.HandleInvoicePaymentFailed(context.Background(), InvoiceEvent{ID: "in_1", Subscription: "sub_1"})
	require.NoError(t, err)

	sub, err := env.subs.GetByStripeSubscriptionID("sub_1")
	require.NoError(t, err)
	require.Equal(t, models.SubStatusPastDue, sub.Status)

	other, err := env.subs.GetByStripeSubscriptionID("sub_2")
	require.NoError(t, err)
	require.Equal(t, models.SubStatusActive, other.Status)

	// Unknown subscription is benign.
	require.NoError(t, env.rec.HandleInvoicePaymentFailed(context.Background(), InvoiceEvent{ID: "in_2", Subscription: "sub_ghost"}))
}

func TestSyncShortCircuitsWhenSubscriptionExists(t *testing.T) {
	env := newTestEnv(t)
	env.addOrg(t, "org_1")
	env.addProfile(t, "U1", "org_1", "owner@sparky.com.au")
	require.NoError(t, env.subs.Create(&models.Subscription{
		ID:                   "local_1",
		OrganizationID:       "org_1",
		StripeSubscriptionID: "sub_1",
		Tier:                 models.TierOperations,
		Status:               models.SubStatusActive,
		CreatedAt:            1000,
		UpdatedAt:            1000,
	}))

	res, err := env.rec.SyncCheckoutSession(context.Background(), "U1", "cs_whatever")
	require.NoError(t, err)
	require.True(t, res.AlreadyExists)
	require.Equal(t, "sub_1", res.Subscription.StripeSubscriptionID)
}

func TestSyncRunsCheckoutHandler(t *testing.T) {
	env := newTestEnv(t)
	env.addProfile(t, "U1", "", "owner@sparky.com.au")
	env.client.subs["sub_1"] = trialingProviderSub("sub_1")
	env.client.sessions["cs_1"] = &ProviderCheckoutSession{
		ID:             "cs_1",
		Mode:           "subscription",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Metadata:       map[string]string{MetaType: CheckoutTypeInitialSubscription},
	}

	res, err := env.rec.SyncCheckoutSession(context.Background(), "U1", "cs_1")
	require.NoError(t, err)
	require.False(t, res.AlreadyExists)
	require.NotNil(t, res.Subscription)
	require.Equal(t, "sub_1", res.Subscription.StripeSubscriptionID)
	require.Equal(t, 1, env.count(t, "organizations"))
}

func TestSyncRejectsNonInitialSession(t *testing.T) {
	env := newTestEnv(t)
	env.addProfile(t, "U1", "", "owner@sparky.com.au")
	env.client.sessions["cs_1"] = &ProviderCheckoutSession{
		ID:       "cs_1",
		Mode:     "payment",
		Metadata: map[string]string{},
	}

	_, err := env.rec.SyncCheckoutSession(context.Background(), "U1", "cs_1")
	require.ErrorIs(t, err, ErrNotInitialSubscription)
}
