// Package httptransport is the thin HTTP layer: it declares which gates
// apply to each route and delegates to the domain services without
// embedding business logic.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"peakform/internal/adminauthz"
	"peakform/internal/audit"
	"peakform/internal/authn"
	"peakform/internal/csrf"
	"peakform/internal/platform/middleware"
	"peakform/internal/ratelimit"
	"peakform/internal/reauth"
	"peakform/internal/transport/http/json"
)

// Handler holds the domain services the routes delegate to.
type Handler struct {
	resolver *authn.Service
	admin    *adminauthz.Service
	limiter  *ratelimit.Limiter
	guard    *reauth.Guard
	audit    *audit.Store
	logger   *slog.Logger
}

// NewHandler wires the HTTP layer to the domain services.
func NewHandler(
	resolver *authn.Service,
	admin *adminauthz.Service,
	limiter *ratelimit.Limiter,
	guard *reauth.Guard,
	auditStore *audit.Store,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		resolver: resolver,
		admin:    admin,
		limiter:  limiter,
		guard:    guard,
		audit:    auditStore,
		logger:   logger,
	}
}

// NewRouter wires all endpoints with their gate chains. Gate order per
// route: CSRF, authentication, admin authorization, rate limit, reauth.
func NewRouter(h *Handler, validator *csrf.Validator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		json.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.CSRF(validator))
		r.Use(middleware.Authenticate(h.resolver))

		r.Get("/me", h.handleMe)
		r.Get("/me/limits/{limitName}", h.handleRemainingQuota)

		r.With(
			middleware.RateLimit(h.limiter, "workout_upload"),
		).Post("/workouts", h.handleWorkoutUpload)

		r.With(
			middleware.RateLimit(h.limiter, "data_export"),
			middleware.RequireRecentAuth(h.guard, reauth.OpDataExport),
		).Post("/me/export", h.handleDataExport)

		r.Route("/admin", func(r chi.Router) {
			// The admin gate runs before the limiter on every route, so a
			// denied caller never burns admin_action quota.
			adminLimit := middleware.RateLimit(h.limiter, "admin_action")

			r.With(
				middleware.RequireAdminAction(h.admin, adminauthz.ActionViewUserData),
				adminLimit,
			).Get("/users", h.handleListAdmins)

			r.With(
				middleware.RequireAdminAction(h.admin, adminauthz.ActionViewUserData),
				adminLimit,
			).Get("/audit", h.handleAuditLog)

			r.With(
				middleware.RequireAdminAction(h.admin, adminauthz.ActionSuspendUser),
				adminLimit,
			).Post("/users/{userID}/suspend", h.handleSuspendUser)

			r.With(
				middleware.RequireAdminAction(h.admin, adminauthz.ActionSuspendUser),
				adminLimit,
			).Delete("/ratelimits/{limitName}/{key}", h.handleResetRateLimit)

			r.With(
				middleware.RequireAdminAction(h.admin, adminauthz.ActionModifyClaims),
				adminLimit,
				middleware.RequireRecentAuth(h.guard, reauth.OpClaimModification),
			).Put("/users/{userID}/level", h.handleSetAdminLevel)
		})
	})

	return r
}
