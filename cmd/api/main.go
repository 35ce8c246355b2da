package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/stockrun/stockrun-backend/api/controllers"
	"github.com/stockrun/stockrun-backend/api/routes"
	"github.com/stockrun/stockrun-backend/internal/notifications"
	"github.com/stockrun/stockrun-backend/internal/payments"
	"github.com/stockrun/stockrun-backend/internal/provisioning"
	"github.com/stockrun/stockrun-backend/pkg/config"
	"github.com/stockrun/stockrun-backend/pkg/db"
	"github.com/stockrun/stockrun-backend/pkg/docstore"
	"github.com/stockrun/stockrun-backend/pkg/identity"
	"github.com/stockrun/stockrun-backend/pkg/logger"
	"github.com/stockrun/stockrun-backend/pkg/migrate"
	"github.com/stockrun/stockrun-backend/pkg/pubsub"
	"github.com/stockrun/stockrun-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	var pubsubClient *pubsub.Client
	var eventPublisher provisioning.Publisher
	var pubsubPinger controllers.Pinger
	if cfg.GCP.Enabled() {
		pubsubClient, err = pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer pubsubClient.Close()

		eventPublisher, err = provisioning.NewPubSubPublisher(pubsubClient.DomainPublisher())
		if err != nil {
			logg.Error(context.Background(), "failed to create event publisher", err)
			os.Exit(1)
		}
		pubsubPinger = pubsubClient
	} else {
		logg.Warn(context.Background(), "pubsub disabled, provisioning events will not be published")
	}

	documents, err := docstore.NewGormStore(dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create document store", err)
		os.Exit(1)
	}

	identities, err := identity.NewGormStore(dbClient, cfg.Password, cfg.Identity)
	if err != nil {
		logg.Error(context.Background(), "failed to create identity store", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(documents, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(documents, notificationsService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	provisioningService, err := provisioning.NewService(identities, documents, eventPublisher, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create provisioning service", err)
		os.Exit(1)
	}

	if err := provisioning.EnsureBootstrapAdmin(context.Background(), provisioningService, cfg.Bootstrap, logg); err != nil {
		logg.Error(context.Background(), "failed to bootstrap admin account", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			pubsubPinger,
			identities,
			provisioningService,
			paymentsService,
			notificationsService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
