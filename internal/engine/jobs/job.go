package jobs

import (
	"errors"
	"strings"
)

// Job statuses follow the trade workflow from quote to invoice.
const (
	StatusQuoted     = "quoted"
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusInvoiced   = "invoiced"
	StatusCancelled  = "cancelled"
)

// Job is a unit of field work, stored in the organization's tenant database.
type Job struct {
	ID           string `json:"id"`
	JobNumber    string `json:"job_number"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Status       string `json:"status"`
	CustomerName string `json:"customer_name"`
	SiteAddress  string `json:"site_address,omitempty"`
	SiteSuburb   string `json:"site_suburb,omitempty"`
	SiteState    string `json:"site_state,omitempty"`
	SitePostcode string `json:"site_postcode,omitempty"`
	AssignedTo   string `json:"assigned_to,omitempty"`
	ScheduledAt  *int64 `json:"scheduled_at,omitempty"`
	CreatedBy    string `json:"created_by"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

func ValidStatus(s string) bool {
	switch s {
	case StatusQuoted, StatusScheduled, StatusInProgress, StatusCompleted, StatusInvoiced, StatusCancelled:
		return true
	}
	return false
}

func ValidateJob(j *Job) error {
	if strings.TrimSpace(j.Title) == "" {
		return errors.New("title is required")
	}
	if len(j.Title) > 200 {
		return errors.New("title must be 200 characters or less")
	}
	if strings.TrimSpace(j.CustomerName) == "" {
		return errors.New("customer_name is required")
	}
	if j.Status != "" && !ValidStatus(j.Status) {
		return errors.New("invalid status")
	}
	return nil
}
