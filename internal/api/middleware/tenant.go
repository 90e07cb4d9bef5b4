package middleware

import (
	"context"
	"database/sql"
	"net/http"

	apiContext "tradeflow/internal/api/context"
	"tradeflow/internal/pkg/errors"
	"tradeflow/internal/platform/auth"
	"tradeflow/internal/platform/database"
	"tradeflow/internal/platform/repositories"
)

type TenantContext struct {
	OrgID string
	DB    *sql.DB
}

// TenantMiddleware resolves the caller's organization from their claims and
// attaches the tenant database connection. Profiles that have not completed
// checkout yet carry no organization and are turned away here.
type TenantMiddleware struct {
	orgRepo *repositories.OrganizationRepository
	dbPool  *database.TenantDBPool
}

func NewTenantMiddleware(orgRepo *repositories.OrganizationRepository, dbPool *database.TenantDBPool) *TenantMiddleware {
	return &TenantMiddleware{
		orgRepo: orgRepo,
		dbPool:  dbPool,
	}
}

func (m *TenantMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims)
		if !ok {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "No authentication claims found", nil)
			return
		}
		if claims.OrganizationID == "" {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "No organization linked to this account", nil)
			return
		}

		org, err := m.orgRepo.GetByID(claims.OrganizationID)
		if err != nil {
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load organization", nil)
			return
		}
		if org == nil {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Organization not found", nil)
			return
		}

		db, err := m.dbPool.Get(org.ID, org.DBFilePath)
		if err != nil {
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to connect to tenant database", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Tenant, &TenantContext{
			OrgID: org.ID,
			DB:    db,
		})

		next(w, r.WithContext(ctx))
	}
}
