package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

// RouterParams carries the services behind the HTTP surface. Nil pingers are
// skipped by the readiness check; a nil idempotency store disables replay.
type RouterParams struct {
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	Checkout    checkoutsvc.Service
	Completion  controllers.SessionCompleter
	Orders      orders.Service
	Metrics     http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, params RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessDeps(params)))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Tenant(logg))
		r.Use(middleware.Idempotency(params.Idempotency, logg))

		r.Route("/checkout-sessions", func(r chi.Router) {
			r.Post("/", controllers.CreateCheckoutSession(params.Checkout, logg))
			r.Route("/{sessionId}", func(r chi.Router) {
				r.Get("/", controllers.GetCheckoutSession(params.Checkout, logg))
				r.Patch("/", controllers.UpdateCheckoutSession(params.Checkout, logg))
				r.Get("/delivery-options", controllers.ListDeliveryOptions(params.Checkout, logg))
				r.Post("/complete", controllers.CompleteCheckoutSession(params.Completion, logg))
			})
		})

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/", controllers.GetOrder(params.Orders, logg))
			r.Patch("/status", controllers.UpdateOrderStatus(params.Orders, logg))
		})
	})

	return r
}

func readinessDeps(params RouterParams) map[string]controllers.Pinger {
	deps := map[string]controllers.Pinger{}
	if params.DB != nil {
		deps["db"] = params.DB
	}
	if params.Redis != nil {
		deps["redis"] = params.Redis
	}
	return deps
}
