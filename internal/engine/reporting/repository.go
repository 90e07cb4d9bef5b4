package reporting

import (
	"database/sql"
)

type SeatCount struct {
	Type     string `json:"type"`
	Total    int    `json:"total"`
	Assigned int    `json:"assigned"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SeatCounts groups the organization's licenses by type with assigned totals.
func (r *Repository) SeatCounts(orgID string) ([]SeatCount, error) {
	query := `
		SELECT type,
		       COUNT(*) AS total,
		       SUM(CASE WHEN assigned_to IS NOT NULL THEN 1 ELSE 0 END) AS assigned
		FROM licenses
		WHERE organization_id = ?
		GROUP BY type
		ORDER BY type
	`
	rows, err := r.db.Query(query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []SeatCount
	for rows.Next() {
		var c SeatCount
		if err := rows.Scan(&c.Type, &c.Total, &c.Assigned); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (r *Repository) ProfileCount(orgID string) (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM profiles WHERE organization_id = ?", orgID).Scan(&n)
	return n, err
}
