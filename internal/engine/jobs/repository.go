package jobs

import (
	"database/sql"
	"time"
)

// Repository persists jobs in a single organization's tenant database.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(job *Job) error {
	query := `
		INSERT INTO jobs (
			id, job_number, title, description, status, customer_name,
			site_address, site_suburb, site_state, site_postcode,
			assigned_to, scheduled_at, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		job.ID,
		job.JobNumber,
		job.Title,
		job.Description,
		job.Status,
		job.CustomerName,
		job.SiteAddress,
		job.SiteSuburb,
		job.SiteState,
		job.SitePostcode,
		nullable(job.AssignedTo),
		job.ScheduledAt,
		job.CreatedBy,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

func (r *Repository) GetByID(id string) (*Job, error) {
	row := r.db.QueryRow(selectJob+" WHERE id = ?", id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

func (r *Repository) Update(job *Job) error {
	query := `
		UPDATE jobs SET
			title = ?, description = ?, status = ?, customer_name = ?,
			site_address = ?, site_suburb = ?, site_state = ?, site_postcode = ?,
			assigned_to = ?, scheduled_at = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.Exec(query,
		job.Title,
		job.Description,
		job.Status,
		job.CustomerName,
		job.SiteAddress,
		job.SiteSuburb,
		job.SiteState,
		job.SitePostcode,
		nullable(job.AssignedTo),
		job.ScheduledAt,
		time.Now().Unix(),
		job.ID,
	)
	return err
}

func (r *Repository) Delete(id string) error {
	query := "UPDATE jobs SET status = 'cancelled', updated_at = ? WHERE id = ?"
	_, err := r.db.Exec(query, time.Now().Unix(), id)
	return err
}

func (r *Repository) List(limit, offset int) ([]*Job, error) {
	query := selectJob + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := r.db.Query(query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *Repository) ListByAssignee(profileID string, limit, offset int) ([]*Job, error) {
	query := selectJob + " WHERE assigned_to = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := r.db.Query(query, profileID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

const selectJob = `
	SELECT id, job_number, title, description, status, customer_name,
	       site_address, site_suburb, site_state, site_postcode,
	       assigned_to, scheduled_at, created_by, created_at, updated_at
	FROM jobs
`

func scanJob(s interface {
	Scan(dest ...interface{}) error
}) (*Job, error) {
	var job Job
	var assignedTo sql.NullString
	var scheduledAt sql.NullInt64

	err := s.Scan(
		&job.ID,
		&job.JobNumber,
		&job.Title,
		&job.Description,
		&job.Status,
		&job.CustomerName,
		&job.SiteAddress,
		&job.SiteSuburb,
		&job.SiteState,
		&job.SitePostcode,
		&assignedTo,
		&scheduledAt,
		&job.CreatedBy,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if assignedTo.Valid {
		job.AssignedTo = assignedTo.String
	}
	if scheduledAt.Valid {
		val := scheduledAt.Int64
		job.ScheduledAt = &val
	}
	return &job, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
