package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"tradeflow/internal/platform/repositories"
)

type Service struct {
	orgs *repositories.OrganizationRepository
}

func NewService(orgs *repositories.OrganizationRepository) *Service {
	return &Service{orgs: orgs}
}

// CreateJob allocates the next job number from the organization's sequence
// and inserts the job into the tenant database.
func (s *Service) CreateJob(repo *Repository, orgID string, req *Job) (*Job, error) {
	if err := ValidateJob(req); err != nil {
		return nil, err
	}

	seq, err := s.orgs.NextJobNumber(orgID)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	job := &Job{
		ID:           uuid.New().String(),
		JobNumber:    fmt.Sprintf("JOB-%04d", seq),
		Title:        req.Title,
		Description:  req.Description,
		Status:       req.Status,
		CustomerName: req.CustomerName,
		SiteAddress:  req.SiteAddress,
		SiteSuburb:   req.SiteSuburb,
		SiteState:    req.SiteState,
		SitePostcode: req.SitePostcode,
		AssignedTo:   req.AssignedTo,
		ScheduledAt:  req.ScheduledAt,
		CreatedBy:    req.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if job.Status == "" {
		job.Status = StatusQuoted
	}

	if err := repo.Create(job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) GetJob(repo *Repository, id string) (*Job, error) {
	return repo.GetByID(id)
}

func (s *Service) UpdateJob(repo *Repository, id string, updates *Job) (*Job, error) {
	existing, err := repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errors.New("job not found")
	}

	if updates.Title != "" {
		existing.Title = updates.Title
	}
	if updates.Description != "" {
		existing.Description = updates.Description
	}
	if updates.Status != "" {
		existing.Status = updates.Status
	}
	if updates.CustomerName != "" {
		existing.CustomerName = updates.CustomerName
	}
	if updates.SiteAddress != "" {
		existing.SiteAddress = updates.SiteAddress
	}
	if updates.SiteSuburb != "" {
		existing.SiteSuburb = updates.SiteSuburb
	}
	if updates.SiteState != "" {
		existing.SiteState = updates.SiteState
	}
	if updates.SitePostcode != "" {
		existing.SitePostcode = updates.SitePostcode
	}
	if updates.AssignedTo != "" {
		existing.AssignedTo = updates.AssignedTo
	}
	if updates.ScheduledAt != nil {
		existing.ScheduledAt = updates.ScheduledAt
	}

	if err := ValidateJob(existing); err != nil {
		return nil, err
	}
	if err := repo.Update(existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Service) CancelJob(repo *Repository, id string) error {
	return repo.Delete(id)
}

func (s *Service) ListJobs(repo *Repository, limit, offset int) ([]*Job, error) {
	return repo.List(limit, offset)
}
