package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/yogaflow-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/yogaflow-backend/api/controllers/webhooks"
	"github.com/angelmondragon/yogaflow-backend/api/middleware"
	"github.com/angelmondragon/yogaflow-backend/internal/membership"
	"github.com/angelmondragon/yogaflow-backend/internal/users"
	"github.com/angelmondragon/yogaflow-backend/internal/webhooks/polar"
	"github.com/angelmondragon/yogaflow-backend/pkg/config"
	"github.com/angelmondragon/yogaflow-backend/pkg/logger"
	"github.com/angelmondragon/yogaflow-backend/pkg/metrics"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	gatherer prometheus.Gatherer,
	readiness map[string]controllers.Pinger,
	usersRepo *users.Repository,
	expiryChecker *membership.Checker,
	polarService *polar.Service,
	webhookMetrics *metrics.WebhookMetrics,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	polarWebhook := webhookcontrollers.PolarWebhook(polarService, cfg.Polar.WebhookSecret, webhookMetrics, logg)
	r.Post("/webhook", polarWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/polar", polarWebhook)

		r.Group(func(r chi.Router) {
			r.Use(middleware.CORS(cfg.App.CORSAllowedOrigins))
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Get("/me", controllers.SessionMe(usersRepo, expiryChecker, logg))
		})
	})

	return r
}
