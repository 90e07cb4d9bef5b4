package repositories

import (
	"database/sql"
	"time"

	"tradeflow/internal/platform/models"
)

type LicenseRepository struct {
	db *sql.DB
}

func NewLicenseRepository(db *sql.DB) *LicenseRepository {
	return &LicenseRepository{db: db}
}

func (r *LicenseRepository) Create(l *models.License) error {
	_, err := r.db.Exec(`
		INSERT INTO licenses (id, organization_id, type, status, assigned_to, stripe_item_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.OrganizationID, l.Type, l.Status, nullableString(l.AssignedTo), nullableString(l.StripeItemID), l.CreatedAt, l.UpdatedAt)
	return err
}

func (r *LicenseRepository) GetByID(id string) (*models.License, error) {
	row := r.db.QueryRow(`
		SELECT id, organization_id, type, status, assigned_to, stripe_item_id, created_at, updated_at
		FROM licenses WHERE id = ?
	`, id)
	l, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

// GetOwnerLicense finds the owner seat for an (organization, profile) pair.
func (r *LicenseRepository) GetOwnerLicense(orgID, profileID string) (*models.License, error) {
	row := r.db.QueryRow(`
		SELECT id, organization_id, type, status, assigned_to, stripe_item_id, created_at, updated_at
		FROM licenses WHERE organization_id = ? AND type = ? AND assigned_to = ?
	`, orgID, models.LicenseOwner, profileID)
	l, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func (r *LicenseRepository) ListByOrganization(orgID string) ([]*models.License, error) {
	rows, err := r.db.Query(`
		SELECT id, organization_id, type, status, assigned_to, stripe_item_id, created_at, updated_at
		FROM licenses WHERE organization_id = ? ORDER BY created_at ASC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var licenses []*models.License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, l)
	}
	return licenses, rows.Err()
}

// CountByStripeItem reports how many local seats reference a billing-side
// subscription item. Used to make seat-purchase webhooks idempotent.
func (r *LicenseRepository) CountByStripeItem(itemID string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM licenses WHERE stripe_item_id = ?`, itemID).Scan(&count)
	return count, err
}

func (r *LicenseRepository) Assign(id, profileID string) error {
	_, err := r.db.Exec(`
		UPDATE licenses SET assigned_to = ?, status = ?, updated_at = ? WHERE id = ?
	`, profileID, models.LicenseStatusActive, time.Now().Unix(), id)
	return err
}

func (r *LicenseRepository) Unassign(id string) error {
	_, err := r.db.Exec(`
		UPDATE licenses SET assigned_to = NULL, status = ?, updated_at = ? WHERE id = ?
	`, models.LicenseStatusUnassigned, time.Now().Unix(), id)
	return err
}

func scanLicense(s profileScanner) (*models.License, error) {
	l := &models.License{}
	var assignedTo, itemID sql.NullString
	if err := s.Scan(&l.ID, &l.OrganizationID, &l.Type, &l.Status, &assignedTo, &itemID, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	if assignedTo.Valid {
		l.AssignedTo = assignedTo.String
	}
	if itemID.Valid {
		l.StripeItemID = itemID.String
	}
	return l, nil
}
