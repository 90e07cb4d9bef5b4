package audit

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Entry struct {
	ID             string                 `json:"id"`
	OrganizationID string                 `json:"organization_id"`
	ProfileID      string                 `json:"profile_id"`
	Action         string                 `json:"action"`
	ResourceType   string                 `json:"resource_type"`
	ResourceID     string                 `json:"resource_id"`
	Metadata       map[string]interface{} `json:"metadata"`
	CreatedAt      int64                  `json:"created_at"`
}

// Logger records reconciliation and licensing mutations to the audit_logs
// table. Writes are best-effort and never fail the calling operation.
type Logger struct {
	globalDB *sql.DB
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{globalDB: db}
}

func (l *Logger) Record(orgID, profileID, action, resourceType, resourceID string, metadata map[string]interface{}) {
	metaJSON, _ := json.Marshal(metadata)

	entry := &Entry{
		ID:             "audit_" + uuid.New().String(),
		OrganizationID: orgID,
		ProfileID:      profileID,
		Action:         action,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		Metadata:       metadata,
		CreatedAt:      time.Now().Unix(),
	}

	query := `
		INSERT INTO audit_logs (id, organization_id, profile_id, action, resource_type, resource_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := l.globalDB.Exec(query, entry.ID, entry.OrganizationID, entry.ProfileID, entry.Action, entry.ResourceType, entry.ResourceID, string(metaJSON), entry.CreatedAt); err != nil {
		log.Error().Err(err).Str("action", action).Msg("failed to write audit log")
	}
}

func (l *Logger) ListByOrg(orgID string, limit int) ([]*Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := l.globalDB.Query(`
		SELECT id, organization_id, profile_id, action, resource_type, resource_id, metadata, created_at
		FROM audit_logs WHERE organization_id = ? ORDER BY created_at DESC LIMIT ?
	`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var metaStr string
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.ProfileID, &e.Action, &e.ResourceType, &e.ResourceID, &metaStr, &e.CreatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(metaStr), &e.Metadata)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
