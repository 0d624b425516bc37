package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/armoryline/armoryline-backend/api/controllers"
	"github.com/armoryline/armoryline-backend/api/middleware"
	checkoutsvc "github.com/armoryline/armoryline-backend/internal/checkout"
	"github.com/armoryline/armoryline-backend/internal/compliance"
	"github.com/armoryline/armoryline-backend/internal/identity"
	"github.com/armoryline/armoryline-backend/internal/orders"
	"github.com/armoryline/armoryline-backend/internal/payouts"
	"github.com/armoryline/armoryline-backend/pkg/config"
	"github.com/armoryline/armoryline-backend/pkg/db"
	"github.com/armoryline/armoryline-backend/pkg/enums"
	"github.com/armoryline/armoryline-backend/pkg/logger"
	"github.com/armoryline/armoryline-backend/pkg/redis"
)

type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         db.Pinger
	Redis      redis.Pinger
	Registry   *prometheus.Registry
	Identity   identity.Service
	Checkout   checkoutsvc.Service
	Orders     orders.Service
	Compliance compliance.Service
	Payouts    payouts.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})
	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/otp", controllers.SendOTP(deps.Identity, logg))
		r.Post("/sessions", controllers.VerifyOTP(deps.Identity, logg))
	})

	// Provider callbacks carry admin-scoped service tokens.
	r.Route("/api/v1/callbacks", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.RoleAdmin.String(), logg))
		r.Post("/compliance/cases/{caseId}/results", controllers.ReportComplianceResult(deps.Compliance, logg))
		r.Post("/payouts/{payoutId}/disbursement", controllers.SettlePayout(deps.Payouts, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.RoleCustomer.String(), logg))
			r.Post("/checkout", controllers.Checkout(deps.Checkout, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Get("/{orderId}", controllers.GetOrder(deps.Orders, logg))
			r.Get("/{orderId}/events", controllers.OrderHistory(deps.Orders, logg))
			r.With(middleware.RequireAnyRole(logg, enums.RoleCustomer.String(), enums.RoleAdmin.String())).
				Post("/{orderId}/cancel", controllers.CancelOrder(deps.Orders, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.RoleVendor.String(), logg))
			r.Get("/vendor/payouts", controllers.ListVendorPayouts(deps.Payouts, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.RoleAdmin.String(), logg))
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrdersByState(deps.Orders, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Post("/transfer-confirmation", controllers.ConfirmTransfer(deps.Orders, logg))
				r.Post("/complete", controllers.CompleteOrder(deps.Orders, logg))
				r.Get("/compliance-case", controllers.GetComplianceCaseByOrder(deps.Compliance, logg))
				r.Get("/payout", controllers.GetPayoutByOrder(deps.Payouts, logg))
			})
		})
	})

	return r
}
