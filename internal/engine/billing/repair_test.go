package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"tradeflow/internal/platform/models"
)

func (e *testEnv) addSubscription(t *testing.T, orgID, stripeSubID, stripeCustomerID string) {
	t.Helper()
	require.NoError(t, e.subs.Create(&models.Subscription{
		ID:                   "local_" + stripeSubID,
		OrganizationID:       orgID,
		StripeCustomerID:     stripeCustomerID,
		StripeSubscriptionID: stripeSubID,
		Tier:                 models.TierOperations,
		Status:               models.SubStatusActive,
		CreatedAt:            1000,
		UpdatedAt:            1000,
	}))
}

func TestRepairRelinksProfileAndDeletesEmptyOrg(t *testing.T) {
	env := newTestEnv(t)

	// Profile stranded on org A; its billing customer's subscription lives
	// under org B.
	env.addOrg(t, "org_a")
	env.addOrg(t, "org_b")
	env.addProfile(t, "U1", "org_a", "stranded@sparky.com.au")
	env.addSubscription(t, "org_b", "sub_1", "cus_1")
	env.client.customers["stranded@sparky.com.au"] = &ProviderCustomer{ID: "cus_1", Email: "stranded@sparky.com.au"}

	report, err := env.repairer.Run(context.Background(), false)
	require.NoError(t, err)

	require.Equal(t, 1, report.Scanned)
	require.Equal(t, 1, report.Linked)
	require.Equal(t, 1, report.Deleted)
	require.Equal(t, 0, report.Errors)
	require.Equal(t, OutcomeDeletedEmptyOrg, report.Results[0].Outcome)

	profile, err := env.profiles.GetByID("U1")
	require.NoError(t, err)
	require.Equal(t, "org_b", profile.OrganizationID)

	orgA, err := env.orgs.GetByID("org_a")
	require.NoError(t, err)
	require.Nil(t, orgA, "emptied prior org is deleted")
	orgB, err := env.orgs.GetByID("org_b")
	require.NoError(t, err)
	require.NotNil(t, orgB)
}

func TestRepairDryRunWritesNothing(t *testing.T) {
	env := newTestEnv(t)

	env.addOrg(t, "org_a")
	env.addOrg(t, "org_b")
	env.addProfile(t, "U1", "org_a", "stranded@sparky.com.au")
	env.addSubscription(t, "org_b", "sub_1", "cus_1")
	env.client.customers["stranded@sparky.com.au"] = &ProviderCustomer{ID: "cus_1", Email: "stranded@sparky.com.au"}

	report, err := env.repairer.Run(context.Background(), true)
	require.NoError(t, err)

	// Same classification as the live pass would produce.
	require.True(t, report.DryRun)
	require.Equal(t, 1, report.Linked)
	require.Equal(t, 1, report.Deleted)
	require.Equal(t, OutcomeDeletedEmptyOrg, report.Results[0].Outcome)

	// But no state changed.
	profile, err := env.profiles.GetByID("U1")
	require.NoError(t, err)
	require.Equal(t, "org_a", profile.OrganizationID)
	orgA, err := env.orgs.GetByID("org_a")
	require.NoError(t, err)
	require.NotNil(t, orgA)
	require.Equal(t, 0, env.count(t, "audit_logs"))
}

func TestRepairKeepsPriorOrgWithOtherProfiles(t *testing.T) {
	env := newTestEnv(t)

	env.addOrg(t, "org_a")
	env.addOrg(t, "org_b")
	env.addProfile(t, "U1", "org_a", "stranded@sparky.com.au")
	env.addProfile(t, "U2", "org_a", "mate@sparky.com.au")
	env.addSubscription(t, "org_b", "sub_1", "cus_1")
	env.client.customers["stranded@sparky.com.au"] = &ProviderCustomer{ID: "cus_1", Email: "stranded@sparky.com.au"}

	report, err := env.repairer.Run(context.Background(), false)
	require.NoError(t, err)

	require.Equal(t, 1, report.Linked)
	require.Equal(t, 0, report.Deleted)

	orgA, err := env.orgs.GetByID("org_a")
	require.NoError(t, err)
	require.NotNil(t, orgA, "org with remaining profiles survives")
}

func TestRepairHealthyProfileIsNoAction(t *testing.T) {
	env := newTestEnv(t)

	env.addOrg(t, "org_a")
	env.addProfile(t, "U1", "org_a", "owner@sparky.com.au")
	env.addSubscription(t, "org_a", "sub_1", "cus_1")
	env.client.customers["owner@sparky.com.au"] = &ProviderCustomer{ID: "cus_1", Email: "owner@sparky.com.au"}

	report, err := env.repairer.Run(context.Background(), false)
	require.NoError(t, err)

	require.Equal(t, 0, report.Linked)
	require.Equal(t, OutcomeNoAction, report.Results[0].Outcome)
	require.Equal(t, "healthy", report.Results[0].Detail)
}

func TestRepairNoBillingCustomerIsNoAction(t *testing.T) {
	env := newTestEnv(t)
	env.addProfile(t, "U1", "", "nocust@sparky.com.au")

	report, err := env.repairer.Run(context.Background(), false)
	require.NoError(t, err)

	require.Equal(t, OutcomeNoAction, report.Results[0].Outcome)
	require.Equal(t, "no billing customer", report.Results[0].Detail)
}

func TestRepairIsolatesPerProfileErrors(t *testing.T) {
	env := newTestEnv(t)

	env.addOrg(t, "org_a")
	env.addOrg(t, "org_b")
	env.addProfile(t, "U1", "", "broken@sparky.com.au")
	env.addProfile(t, "U2", "org_a", "stranded@sparky.com.au")
	env.addSubscription(t, "org_b", "sub_1", "cus_2")
	env.client.customerErrs["broken@sparky.com.au"] = errors.New("provider unavailable")
	env.client.customers["stranded@sparky.com.au"] = &ProviderCustomer{ID: "cus_2", Email: "stranded@sparky.com.au"}

	report, err := env.repairer.Run(context.Background(), false)
	require.NoError(t, err)

	require.Equal(t, 2, report.Scanned)
	require.Equal(t, 1, report.Errors)
	require.Equal(t, 1, report.Linked)

	// The broken lookup did not stop the second profile from being repaired.
	profile, err := env.profiles.GetByID("U2")
	require.NoError(t, err)
	require.Equal(t, "org_b", profile.OrganizationID)
}
