package models

// Subscription tiers. The base tier is "operations"; "scale" and
// "unlimited" are purchased as plan upgrades.
const (
	TierOperations = "operations"
	TierScale      = "scale"
	TierUnlimited  = "unlimited"
)

// Subscription statuses mirrored from the billing provider.
const (
	SubStatusTrialing  = "trialing"
	SubStatusActive    = "active"
	SubStatusPastDue   = "past_due"
	SubStatusCancelled = "cancelled"
)

// License seat types double as profile roles.
const (
	LicenseOwner      = "owner"
	LicenseManagement = "management"
	LicenseFieldStaff = "field_staff"
)

const (
	LicenseStatusActive     = "active"
	LicenseStatusUnassigned = "unassigned"
)

type Organization struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	AddressLine1       string `json:"address_line1"`
	AddressLine2       string `json:"address_line2"`
	Suburb             string `json:"suburb"`
	State              string `json:"state"`
	Postcode           string `json:"postcode"`
	ABN                string `json:"abn"`
	DBFilePath         string `json:"db_file_path"`
	NextJobNumber      int    `json:"next_job_number"`
	NextQuoteNumber    int    `json:"next_quote_number"`
	NextInvoiceNumber  int    `json:"next_invoice_number"`
	OnboardingComplete bool   `json:"onboarding_complete"`
	CreatedAt          int64  `json:"created_at"`
	UpdatedAt          int64  `json:"updated_at"`
}

// Profile is the user/account record. Its lifecycle is owned by the auth
// provider; this service only mutates the organization link and role.
type Profile struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id,omitempty"`
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
	Role           string `json:"role"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

// Subscription is the local mirror of the billing provider's recurring
// payment object. StripeSubscriptionID is unique: it is the idempotency key
// for webhook replays.
type Subscription struct {
	ID                   string `json:"id"`
	OrganizationID       string `json:"organization_id"`
	StripeCustomerID     string `json:"stripe_customer_id"`
	StripeSubscriptionID string `json:"stripe_subscription_id"`
	Tier                 string `json:"tier"`
	Status               string `json:"status"`
	CurrentPeriodStart   int64  `json:"current_period_start"`
	CurrentPeriodEnd     int64  `json:"current_period_end"`
	TrialEnd             *int64 `json:"trial_end,omitempty"`
	CancelledAt          *int64 `json:"cancelled_at,omitempty"`
	CreatedAt            int64  `json:"created_at"`
	UpdatedAt            int64  `json:"updated_at"`
}

// License is a seat entitlement. StripeItemID, when set, is the billing-side
// representation of the seat.
type License struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	AssignedTo     string `json:"assigned_to,omitempty"`
	StripeItemID   string `json:"stripe_item_id,omitempty"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

func ValidLicenseType(t string) bool {
	return t == LicenseOwner || t == LicenseManagement || t == LicenseFieldStaff
}

// PurchasableLicenseType reports whether seats of this type can be bought.
// Owner seats are created by the reconciler only.
func PurchasableLicenseType(t string) bool {
	return t == LicenseManagement || t == LicenseFieldStaff
}
