package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stockrun/stockrun-backend/api/controllers"
	"github.com/stockrun/stockrun-backend/api/middleware"
	"github.com/stockrun/stockrun-backend/internal/notifications"
	"github.com/stockrun/stockrun-backend/internal/payments"
	"github.com/stockrun/stockrun-backend/internal/provisioning"
	"github.com/stockrun/stockrun-backend/pkg/config"
	"github.com/stockrun/stockrun-backend/pkg/db"
	"github.com/stockrun/stockrun-backend/pkg/identity"
	"github.com/stockrun/stockrun-backend/pkg/logger"
	"github.com/stockrun/stockrun-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	pubsubP controllers.Pinger,
	identities identity.Store,
	provisioningService provisioning.Service,
	paymentsService payments.Service,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	provisionPolicy := middleware.NewAuthRateLimitPolicy(
		"provision",
		cfg.AuthRateLimit.ProvisionWindow,
		cfg.AuthRateLimit.ProvisionIPLimit,
		cfg.AuthRateLimit.ProvisionEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, controllers.ReadinessPingers(dbP, redisClient, pubsubP)))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", controllers.AuthLogin(identities, cfg.JWT, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/payments", controllers.ListMyPayments(paymentsService, logg))
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))

		r.Route("/users", func(r chi.Router) {
			r.With(middleware.AuthRateLimit(provisionPolicy, redisClient, logg)).Post("/", controllers.ProvisionUser(provisioningService, logg))
			r.Get("/agents", controllers.ListAgents(provisioningService, logg))
			r.Get("/orphans", controllers.ListOrphanedIdentities(provisioningService, logg))
		})
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", controllers.CreatePayment(paymentsService, logg))
			r.Get("/", controllers.ListAllPayments(paymentsService, logg))
			r.Post("/{paymentId}/pay", controllers.MarkPaymentPaid(paymentsService, logg))
			r.Post("/{paymentId}/cancel", controllers.CancelPayment(paymentsService, logg))
		})
	})

	return r
}
