package billing

import (
	"github.com/rs/zerolog/log"
	"tradeflow/internal/platform/config"
	"tradeflow/internal/platform/models"
)

// PriceBook resolves purchased price IDs to local tiers and license types.
type PriceBook struct {
	tierByPrice map[string]string // price id -> tier
	priceByLic  map[string]string // license type -> price id
	licByPrice  map[string]string // price id -> license type
}

func NewPriceBook(cfg config.StripeConfig) *PriceBook {
	b := &PriceBook{
		tierByPrice: make(map[string]string),
		priceByLic:  make(map[string]string),
		licByPrice:  make(map[string]string),
	}
	for tier, priceID := range cfg.TierPrices {
		if priceID != "" {
			b.tierByPrice[priceID] = tier
		}
	}
	for licType, priceID := range cfg.LicensePrices {
		if priceID != "" {
			b.priceByLic[licType] = priceID
			b.licByPrice[priceID] = licType
		}
	}
	return b
}

// TierForPrice maps a purchased price to a tier, defaulting to the base
// tier when the price is unrecognized.
func (b *PriceBook) TierForPrice(priceID string) string {
	if tier, ok := b.tierByPrice[priceID]; ok {
		return tier
	}
	if priceID != "" {
		log.Warn().Str("price_id", priceID).Msg("unrecognized price, defaulting to operations tier")
	}
	return models.TierOperations
}

func (b *PriceBook) LicensePrice(licType string) (string, bool) {
	priceID, ok := b.priceByLic[licType]
	return priceID, ok
}

func (b *PriceBook) LicenseTypeForPrice(priceID string) (string, bool) {
	licType, ok := b.licByPrice[priceID]
	return licType, ok
}

// MapProviderStatus converts a billing-provider subscription status to the
// local enum. Unknown statuses fail closed to cancelled so they never grant
// paid capabilities.
func MapProviderStatus(status string) string {
	switch status {
	case "trialing":
		return models.SubStatusTrialing
	case "active":
		return models.SubStatusActive
	case "past_due", "unpaid":
		return models.SubStatusPastDue
	case "canceled", "incomplete", "incomplete_expired", "paused":
		return models.SubStatusCancelled
	default:
		log.Warn().Str("status", status).Msg("unknown provider subscription status")
		return models.SubStatusCancelled
	}
}
