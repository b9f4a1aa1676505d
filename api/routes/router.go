package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukamoja/pos-backend/api/controllers"
	webhookcontrollers "github.com/dukamoja/pos-backend/api/controllers/webhooks"
	"github.com/dukamoja/pos-backend/api/middleware"
	"github.com/dukamoja/pos-backend/pkg/config"
	"github.com/dukamoja/pos-backend/pkg/db"
	"github.com/dukamoja/pos-backend/pkg/logger"
	"github.com/dukamoja/pos-backend/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    redis.Pinger
	Registry *prometheus.Registry

	Payments controllers.PaymentsService
	Verify   controllers.VerifyService
	Callback webhookcontrollers.CallbackProcessor
	C2B      webhookcontrollers.C2BProcessor
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

	// Gateway-facing routes. No auth: the gateway holds no staff credentials,
	// and these handlers always ack.
	r.Route("/api/v1/webhooks/daraja", func(r chi.Router) {
		r.Post("/stk-callback", webhookcontrollers.StkCallback(deps.Callback, logg))
		r.Post("/c2b/validate", webhookcontrollers.C2BValidate(deps.C2B, logg))
		r.Post("/c2b/confirm", webhookcontrollers.C2BConfirm(deps.C2B, logg))
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireBranch(logg))

		r.Post("/push", controllers.PaymentsPush(deps.Payments, logg))
		r.Get("/push/{checkoutRequestId}", controllers.PaymentsPushStatus(deps.Payments, logg))
		r.Get("/deposits", controllers.PaymentsPollDeposits(deps.Payments, logg))

		r.With(middleware.RequireManualVerifier(logg)).
			Post("/verify-receipt", controllers.PaymentsVerifyReceipt(deps.Verify, logg))
	})

	return r
}
