package repositories

import (
	"database/sql"
	"time"

	"tradeflow/internal/platform/models"
)

type OrganizationRepository struct {
	db *sql.DB
}

func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) Create(org *models.Organization) error {
	// Sequences start at 1; a zero-valued struct must not override that.
	if org.NextJobNumber < 1 {
		org.NextJobNumber = 1
	}
	if org.NextQuoteNumber < 1 {
		org.NextQuoteNumber = 1
	}
	if org.NextInvoiceNumber < 1 {
		org.NextInvoiceNumber = 1
	}
	_, err := r.db.Exec(`
		INSERT INTO organizations (id, name, address_line1, address_line2, suburb, state, postcode, abn, db_file_path, next_job_number, next_quote_number, next_invoice_number, onboarding_complete, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, org.ID, org.Name, org.AddressLine1, org.AddressLine2, org.Suburb, org.State, org.Postcode, org.ABN, org.DBFilePath, org.NextJobNumber, org.NextQuoteNumber, org.NextInvoiceNumber, org.OnboardingComplete, org.CreatedAt, org.UpdatedAt)
	return err
}

func (r *OrganizationRepository) GetByID(id string) (*models.Organization, error) {
	org := &models.Organization{}
	err := r.db.QueryRow(`
		SELECT id, name, address_line1, address_line2, suburb, state, postcode, abn, db_file_path, next_job_number, next_quote_number, next_invoice_number, onboarding_complete, created_at, updated_at
		FROM organizations WHERE id = ?
	`, id).Scan(&org.ID, &org.Name, &org.AddressLine1, &org.AddressLine2, &org.Suburb, &org.State, &org.Postcode, &org.ABN, &org.DBFilePath, &org.NextJobNumber, &org.NextQuoteNumber, &org.NextInvoiceNumber, &org.OnboardingComplete, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return org, nil
}

func (r *OrganizationRepository) Update(org *models.Organization) error {
	_, err := r.db.Exec(`
		UPDATE organizations
		SET name = ?, address_line1 = ?, address_line2 = ?, suburb = ?, state = ?, postcode = ?, abn = ?, onboarding_complete = ?, updated_at = ?
		WHERE id = ?
	`, org.Name, org.AddressLine1, org.AddressLine2, org.Suburb, org.State, org.Postcode, org.ABN, org.OnboardingComplete, time.Now().Unix(), org.ID)
	return err
}

func (r *OrganizationRepository) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM organizations WHERE id = ?`, id)
	return err
}

// NextJobNumber increments and returns the organization's job sequence. The
// increment and read run in one transaction so concurrent job creation never
// hands out the same number twice.
func (r *OrganizationRepository) NextJobNumber(orgID string) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE organizations SET next_job_number = next_job_number + 1, updated_at = ? WHERE id = ?`, time.Now().Unix(), orgID); err != nil {
		return 0, err
	}

	var next int
	if err := tx.QueryRow(`SELECT next_job_number FROM organizations WHERE id = ?`, orgID).Scan(&next); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	// next is the value after increment; the allocated number is the prior one.
	return next - 1, nil
}

type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) Create(p *models.Profile) error {
	_, err := r.db.Exec(`
		INSERT INTO profiles (id, organization_id, email, full_name, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, nullableString(p.OrganizationID), p.Email, p.FullName, p.Role, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *ProfileRepository) GetByID(id string) (*models.Profile, error) {
	row := r.db.QueryRow(`
		SELECT id, organization_id, email, full_name, role, created_at, updated_at
		FROM profiles WHERE id = ?
	`, id)
	return scanProfile(row)
}

func (r *ProfileRepository) ListByOrganization(orgID string) ([]*models.Profile, error) {
	rows, err := r.db.Query(`
		SELECT id, organization_id, email, full_name, role, created_at, updated_at
		FROM profiles WHERE organization_id = ? ORDER BY created_at ASC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		p, err := scanProfileRows(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// ListAll returns every profile in stable creation order, for the drift
// repair pass.
func (r *ProfileRepository) ListAll() ([]*models.Profile, error) {
	rows, err := r.db.Query(`
		SELECT id, organization_id, email, full_name, role, created_at, updated_at
		FROM profiles ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		p, err := scanProfileRows(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (r *ProfileRepository) LinkOrganization(profileID, orgID, role string) error {
	_, err := r.db.Exec(`UPDATE profiles SET organization_id = ?, role = ?, updated_at = ? WHERE id = ?`,
		orgID, role, time.Now().Unix(), profileID)
	return err
}

// UpdateOrganizationID relinks a profile to another organization without
// touching its role. Used by the drift repair pass.
func (r *ProfileRepository) UpdateOrganizationID(profileID, orgID string) error {
	_, err := r.db.Exec(`UPDATE profiles SET organization_id = ?, updated_at = ? WHERE id = ?`,
		orgID, time.Now().Unix(), profileID)
	return err
}

func (r *ProfileRepository) UpdateRole(profileID, role string) error {
	_, err := r.db.Exec(`UPDATE profiles SET role = ?, updated_at = ? WHERE id = ?`,
		role, time.Now().Unix(), profileID)
	return err
}

func (r *ProfileRepository) CountByOrganization(orgID string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM profiles WHERE organization_id = ?`, orgID).Scan(&count)
	return count, err
}

type profileScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row *sql.Row) (*models.Profile, error) {
	p, err := scanProfileRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func scanProfileRows(s profileScanner) (*models.Profile, error) {
	p := &models.Profile{}
	var orgID sql.NullString
	if err := s.Scan(&p.ID, &orgID, &p.Email, &p.FullName, &p.Role, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if orgID.Valid {
		p.OrganizationID = orgID.String
	}
	return p, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
