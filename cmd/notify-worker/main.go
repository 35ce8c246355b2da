package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/stockrun/stockrun-backend/internal/notifications"
	"github.com/stockrun/stockrun-backend/pkg/config"
	"github.com/stockrun/stockrun-backend/pkg/db"
	"github.com/stockrun/stockrun-backend/pkg/docstore"
	"github.com/stockrun/stockrun-backend/pkg/logger"
	"github.com/stockrun/stockrun-backend/pkg/pubsub"
	"github.com/stockrun/stockrun-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "notify-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "notify-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	requireResource(ctx, logg, "redis", err)
	defer redisClient.Close()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer pubsubClient.Close()

	documents, err := docstore.NewGormStore(dbClient)
	requireResource(ctx, logg, "document store", err)

	notificationsService, err := notifications.NewService(documents, logg)
	requireResource(ctx, logg, "notifications service", err)

	welcomeConsumer, err := notifications.NewConsumer(
		notificationsService,
		pubsubClient.DomainSubscription(),
		redisClient,
		logg,
	)
	requireResource(ctx, logg, "welcome consumer", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{"env": cfg.App.Env})
	logg.Info(runCtx, "notify worker ready")

	if err := welcomeConsumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "notify worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
