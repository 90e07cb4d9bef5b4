package billing

import (
	"context"

	"github.com/rs/zerolog/log"
	"tradeflow/internal/platform/audit"
	"tradeflow/internal/platform/database"
	"tradeflow/internal/platform/models"
	"tradeflow/internal/platform/repositories"
)

type RepairOutcome string

const (
	OutcomeLinked          RepairOutcome = "linked"
	OutcomeDeletedEmptyOrg RepairOutcome = "deleted_empty_org"
	OutcomeNoAction        RepairOutcome = "no_action"
	OutcomeError           RepairOutcome = "error"
)

type RepairResult struct {
	ProfileID string        `json:"profile_id"`
	Email     string        `json:"email"`
	Outcome   RepairOutcome `json:"outcome"`
	Detail    string        `json:"detail,omitempty"`
}

type RepairReport struct {
	DryRun  bool           `json:"dry_run"`
	Scanned int            `json:"scanned"`
	Linked  int            `json:"linked"`
	Deleted int            `json:"deleted_empty_orgs"`
	Errors  int            `json:"errors"`
	Results []RepairResult `json:"results"`
}

// Repairer detects and corrects profile/organization drift left behind by
// races between checkout, webhook delivery and signup. It walks every
// profile, cross-references the billing provider's customer by email, and
// relinks profiles to the organization that actually owns their
// subscription. One profile's failure never aborts the batch.
type Repairer struct {
	client   Client
	orgs     *repositories.OrganizationRepository
	profiles *repositories.ProfileRepository
	subs     *repositories.SubscriptionRepository
	audit    *audit.Logger
	dbPool   *database.TenantDBPool
}

func NewRepairer(
	client Client,
	orgs *repositories.OrganizationRepository,
	profiles *repositories.ProfileRepository,
	subs *repositories.SubscriptionRepository,
	auditLog *audit.Logger,
	dbPool *database.TenantDBPool,
) *Repairer {
	return &Repairer{
		client:   client,
		orgs:     orgs,
		profiles: profiles,
		subs:     subs,
		audit:    auditLog,
		dbPool:   dbPool,
	}
}

// Run scans all profiles in stable creation order. In dry-run mode every
// read and decision happens exactly as in live mode, but nothing is
// written; the returned classifications are identical.
func (r *Repairer) Run(ctx context.Context, dryRun bool) (*RepairReport, error) {
	profiles, err := r.profiles.ListAll()
	if err != nil {
		return nil, err
	}

	report := &RepairReport{DryRun: dryRun}
	for _, p := range profiles {
		report.Scanned++
		res := r.repairProfile(ctx, p, dryRun)
		report.Results = append(report.Results, res)
		switch res.Outcome {
		case OutcomeLinked:
			report.Linked++
		case OutcomeDeletedEmptyOrg:
			report.Linked++
			report.Deleted++
		case OutcomeError:
			report.Errors++
		}
	}

	log.Info().
		Bool("dry_run", dryRun).
		Int("scanned", report.Scanned).
		Int("linked", report.Linked).
		Int("deleted_empty_orgs", report.Deleted).
		Int("errors", report.Errors).
		Msg("drift repair pass finished")
	return report, nil
}

func (r *Repairer) repairProfile(ctx context.Context, p *models.Profile, dryRun bool) RepairResult {
	res := RepairResult{ProfileID: p.ID, Email: p.Email}

	if p.Email == "" {
		res.Outcome = OutcomeNoAction
		res.Detail = "profile has no email"
		return res
	}

	// One bounded lookup per profile; the first customer match wins.
	cust, err := r.client.FindCustomerByEmail(ctx, p.Email)
	if err != nil {
		res.Outcome = OutcomeError
		res.Detail = "customer lookup: " + err.Error()
		return res
	}
	if cust == nil {
		res.Outcome = OutcomeNoAction
		res.Detail = "no billing customer"
		return res
	}

	sub, err := r.subs.GetByStripeCustomerID(cust.ID)
	if err != nil {
		res.Outcome = OutcomeError
		res.Detail = "subscription lookup: " + err.Error()
		return res
	}
	if sub == nil {
		res.Outcome = OutcomeNoAction
		res.Detail = "no local subscription for billing customer"
		return res
	}

	if sub.OrganizationID == p.OrganizationID {
		res.Outcome = OutcomeNoAction
		res.Detail = "healthy"
		return res
	}

	priorOrg := p.OrganizationID
	if !dryRun {
		if err := r.profiles.UpdateOrganizationID(p.ID, sub.OrganizationID); err != nil {
			res.Outcome = OutcomeError
			res.Detail = "relink: " + err.Error()
			return res
		}
		r.audit.Record(sub.OrganizationID, p.ID, "profile.relinked", "profile", p.ID, map[string]interface{}{
			"prior_organization_id": priorOrg,
			"stripe_customer_id":    cust.ID,
		})
	}
	log.Info().
		Bool("dry_run", dryRun).
		Str("profile_id", p.ID).
		Str("prior_organization_id", priorOrg).
		Str("organization_id", sub.OrganizationID).
		Msg("repair: relinked profile to subscription organization")
	res.Outcome = OutcomeLinked

	if priorOrg == "" || priorOrg == sub.OrganizationID {
		return res
	}

	remaining, err := r.profiles.CountByOrganization(priorOrg)
	if err != nil {
		res.Outcome = OutcomeError
		res.Detail = "count prior org profiles: " + err.Error()
		return res
	}
	// In dry-run mode the profile is still counted against its prior org.
	empty := remaining == 0
	if dryRun {
		empty = remaining == 1
	}
	if !empty {
		return res
	}

	if !dryRun {
		if err := r.orgs.Delete(priorOrg); err != nil {
			res.Outcome = OutcomeError
			res.Detail = "delete empty org: " + err.Error()
			return res
		}
		r.dbPool.Evict(priorOrg)
		r.audit.Record(priorOrg, p.ID, "organization.deleted_empty", "organization", priorOrg, nil)
	}
	log.Info().
		Bool("dry_run", dryRun).
		Str("profile_id", p.ID).
		Str("organization_id", priorOrg).
		Msg("repair: deleted now-empty organization")
	res.Outcome = OutcomeDeletedEmptyOrg
	return res
}
