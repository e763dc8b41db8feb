package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Julianhima91/himatrips-backend/internal/batchstore"
	"github.com/Julianhima91/himatrips-backend/internal/config"
	"github.com/Julianhima91/himatrips-backend/internal/handler"
	"github.com/Julianhima91/himatrips-backend/internal/infra/postgresql"
	"github.com/Julianhima91/himatrips-backend/internal/infra/postgresql/migrations"
	infraredis "github.com/Julianhima91/himatrips-backend/internal/infra/redis"
	"github.com/Julianhima91/himatrips-backend/internal/observability"
	"github.com/Julianhima91/himatrips-backend/internal/queue"
	"github.com/Julianhima91/himatrips-backend/internal/repository"
	"github.com/Julianhima91/himatrips-backend/internal/service"
	"github.com/Julianhima91/himatrips-backend/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	store, err := batchstore.NewRedisStore(rdb)
	if err != nil {
		logger.Fatal("batch store initialization failed", zap.Error(err))
	}

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer mq.Close()

	publisher := queue.NewRabbitMQPublisher(mq)

	batches := repository.NewGormBatchRepo(db)
	tasks := repository.NewGormFetchTaskRepo(db)
	routes := repository.NewGormRouteRepo(db)
	packages := repository.NewGormPackageRepo(db)

	metrics := observability.NewMetrics()

	flightSources, err := cfg.FlightSources()
	if err != nil {
		logger.Fatal("invalid flight source configuration", zap.Error(err))
	}

	searchService, err := service.NewSearchService(
		batches,
		tasks,
		routes,
		store,
		publisher,
		flightSources,
		time.Duration(cfg.LiveSearchPollMillis)*time.Millisecond,
		time.Duration(cfg.LiveSearchWaitSeconds)*time.Second,
		time.Duration(cfg.BatchTTLMinutes)*time.Minute,
		logger,
	)
	if err != nil {
		logger.Fatal("search service initialization failed", zap.Error(err))
	}
	searchService.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterSearchRoutes(app, searchService, packages, routes); err != nil {
		logger.Fatal("failed to register search routes", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("himatrips api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return app.Shutdown()
	})

	if err := g.Wait(); err != nil {
		logger.Error("api stopped with error", zap.Error(err))
	}
}
