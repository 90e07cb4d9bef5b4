package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apiContext "tradeflow/internal/api/context"
	"tradeflow/internal/api/handlers"
	"tradeflow/internal/api/middleware"
	"tradeflow/internal/pkg/errors"
	"tradeflow/internal/platform/auth"
)

type Dependencies struct {
	WebhookHandler   *handlers.WebhookHandler
	BillingHandler   *handlers.BillingHandler
	AdminHandler     *handlers.AdminHandler
	OrgHandler       *handlers.OrgHandler
	LicenseHandler   *handlers.LicenseHandler
	JobHandler       *handlers.JobHandler
	APIKeyHandler    *handlers.APIKeyHandler
	AuditHandler     *handlers.AuditHandler
	HealthHandler    *handlers.HealthHandler
	AuthMiddleware   *middleware.AuthMiddleware
	TenantMiddleware *middleware.TenantMiddleware
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	router.GET("/healthz", wrap(deps.HealthHandler.Check))

	// Billing provider webhook: signature-verified, no tenant auth.
	router.POST("/api/v1/webhooks/stripe",
		chain(deps.WebhookHandler.Handle, middleware.RateLimit("webhook")))

	// Admin repair pass: gated by X-Admin-Key, not tenant auth.
	router.POST("/api/v1/admin/repair", wrap(deps.AdminHandler.Repair))

	authMid := deps.AuthMiddleware
	tenantMid := deps.TenantMiddleware

	// Post-checkout sync needs auth but not tenant context: the caller's
	// organization may not exist yet.
	router.POST("/api/v1/billing/sync",
		chain(deps.BillingHandler.Sync, authMid.Handle, middleware.RateLimit("billing")))

	// Billing management
	router.GET("/api/v1/billing/overview",
		chain(deps.BillingHandler.Overview, authMid.Handle, tenantMid.Handle, middleware.RateLimit("api_read")))
	router.POST("/api/v1/billing/licenses",
		chain(deps.BillingHandler.PurchaseLicenses, authMid.Handle, tenantMid.Handle, requireRole("owner"), middleware.RateLimit("billing")))
	router.POST("/api/v1/billing/portal",
		chain(deps.BillingHandler.Portal, authMid.Handle, tenantMid.Handle, requireRole("owner"), middleware.RateLimit("billing")))

	// Organization management
	router.GET("/api/v1/organizations/current",
		chain(deps.OrgHandler.GetCurrent, authMid.Handle, tenantMid.Handle, middleware.RateLimit("api_read")))
	router.PATCH("/api/v1/organizations/current",
		chain(deps.OrgHandler.Update, authMid.Handle, tenantMid.Handle, requireRole("owner", "management"), middleware.RateLimit("api_write")))
	router.GET("/api/v1/organizations/profiles",
		chain(deps.OrgHandler.ListProfiles, authMid.Handle, tenantMid.Handle, middleware.RateLimit("api_read")))

	// License management
	router.GET("/api/v1/licenses",
		chain(deps.LicenseHandler.List, authMid.Handle, tenantMid.Handle, middleware.RateLimit("api_read")))
	router.POST("/api/v1/licenses/:license_id/assign",
		chain(deps.LicenseHandler.Assign, authMid.Handle, tenantMid.Handle, requireRole("owner", "management"), middleware.RateLimit("api_write")))
	router.POST("/api/v1/licenses/:license_id/unassign",
		chain(deps.LicenseHandler.Unassign, authMid.Handle, tenantMid.Handle, requireRole("owner", "management"), middleware.RateLimit("api_write")))

	// Jobs
	router.POST("/api/v1/jobs",
		chain(deps.JobHandler.Create, authMid.Handle, tenantMid.Handle, middleware.RateLimit("api_write")))
	router.GET("/api/v1/jobs",
		chain(deps.JobHandler.List, authMid.Handle, tenantMid.Handle, middleware.RateLimit("api_read")))
	router.GET("/api/v1/jobs/:job_id",
		chain(deps.JobHandler.Get, authMid.Handle, tenantMid.Handle, middleware.RateLimit("api_read")))
	router.PATCH("/api/v1/jobs/:job_id",
		chain(deps.JobHandler.Update, authMid.Handle, tenantMid.Handle, middleware.RateLimit("api_write")))
	router.DELETE("/api/v1/jobs/:job_id",
		chain(deps.JobHandler.Cancel, authMid.Handle, tenantMid.Handle, requireRole("owner", "management"), middleware.RateLimit("api_write")))
	router.GET("/api/v1/jobs/:job_id/qr",
		chain(deps.JobHandler.GetQRCode, authMid.Handle, tenantMid.Handle, middleware.RateLimit("api_read")))

	// API keys
	router.POST("/api/v1/api-keys",
		chain(deps.APIKeyHandler.Create, authMid.Handle, tenantMid.Handle, requireRole("owner"), middleware.RateLimit("api_write")))
	router.GET("/api/v1/api-keys",
		chain(deps.APIKeyHandler.List, authMid.Handle, tenantMid.Handle, requireRole("owner"), middleware.RateLimit("api_read")))
	router.DELETE("/api/v1/api-keys/:key_id",
		chain(deps.APIKeyHandler.Revoke, authMid.Handle, tenantMid.Handle, requireRole("owner"), middleware.RateLimit("api_write")))

	// Audit trail
	router.GET("/api/v1/audit-logs",
		chain(deps.AuditHandler.List, authMid.Handle, tenantMid.Handle, requireRole("owner", "management"), middleware.RateLimit("api_read")))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}

func requireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

			allowed := false
			for _, role := range roles {
				if claims.Role == role {
					allowed = true
					break
				}
			}

			if !allowed {
				errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
				return
			}

			next(w, r)
		}
	}
}
