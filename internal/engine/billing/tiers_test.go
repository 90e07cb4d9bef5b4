package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"tradeflow/internal/platform/models"
)

func TestMapProviderStatus(t *testing.T) {
	cases := map[string]string{
		"trialing":           models.SubStatusTrialing,
		"active":             models.SubStatusActive,
		"past_due":           models.SubStatusPastDue,
		"unpaid":             models.SubStatusPastDue,
		"canceled":           models.SubStatusCancelled,
		"incomplete":         models.SubStatusCancelled,
		"incomplete_expired": models.SubStatusCancelled,
		"paused":             models.SubStatusCancelled,
		"something_new":      models.SubStatusCancelled,
	}
	for provider, want := range cases {
		assert.Equal(t, want, MapProviderStatus(provider), provider)
	}
}

func TestPriceBookResolution(t *testing.T) {
	book := NewPriceBook(testStripeConfig())

	assert.Equal(t, models.TierScale, book.TierForPrice("price_scale"))
	assert.Equal(t, models.TierOperations, book.TierForPrice("price_unknown"), "unrecognized prices fall back to the base tier")

	priceID, ok := book.LicensePrice(models.LicenseFieldStaff)
	assert.True(t, ok)
	assert.Equal(t, "price_field_staff", priceID)

	licType, ok := book.LicenseTypeForPrice("price_management")
	assert.True(t, ok)
	assert.Equal(t, models.LicenseManagement, licType)

	_, ok = book.LicensePrice(models.LicenseOwner)
	assert.False(t, ok, "owner seats are never purchasable")
}
