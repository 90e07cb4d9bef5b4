package reporting

import (
	"fmt"
	"time"

	"tradeflow/internal/platform/models"
	"tradeflow/internal/platform/repositories"
)

type Overview struct {
	Tier             string      `json:"tier"`
	Status           string      `json:"status"`
	CurrentPeriodEnd int64       `json:"current_period_end"`
	TrialEndsAt      *int64      `json:"trial_ends_at,omitempty"`
	Message          string      `json:"message,omitempty"`
	Seats            []SeatCount `json:"seats"`
	ProfileCount     int         `json:"profile_count"`
}

type Service struct {
	repo *Repository
	subs *repositories.SubscriptionRepository
}

func NewService(repo *Repository, subs *repositories.SubscriptionRepository) *Service {
	return &Service{repo: repo, subs: subs}
}

// GetOverview assembles the billing overview for an organization's settings
// page. Returns nil when the organization has no subscription yet.
func (s *Service) GetOverview(orgID string) (*Overview, error) {
	sub, err := s.subs.GetByOrganizationID(orgID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}

	seats, err := s.repo.SeatCounts(orgID)
	if err != nil {
		return nil, err
	}
	profileCount, err := s.repo.ProfileCount(orgID)
	if err != nil {
		return nil, err
	}

	ov := &Overview{
		Tier:             sub.Tier,
		Status:           sub.Status,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
		TrialEndsAt:      sub.TrialEnd,
		Message:          statusMessage(sub),
		Seats:            seats,
		ProfileCount:     profileCount,
	}
	return ov, nil
}

func statusMessage(sub *models.Subscription) string {
	switch sub.Status {
	case models.SubStatusTrialing:
		if sub.TrialEnd != nil {
			days := int(time.Until(time.Unix(*sub.TrialEnd, 0)).Hours() / 24)
			if days >= 0 {
				return fmt.Sprintf("Your trial ends in %d days", days)
			}
		}
		return "Your trial is ending soon"
	case models.SubStatusPastDue:
		return "Your last payment failed. Update your payment method to keep access."
	case models.SubStatusCancelled:
		return "Your subscription has been cancelled."
	}
	return ""
}
