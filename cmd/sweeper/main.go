package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Julianhima91/himatrips-backend/internal/aggregator"
	"github.com/Julianhima91/himatrips-backend/internal/assembler"
	"github.com/Julianhima91/himatrips-backend/internal/batchstore"
	"github.com/Julianhima91/himatrips-backend/internal/config"
	"github.com/Julianhima91/himatrips-backend/internal/coordinator"
	"github.com/Julianhima91/himatrips-backend/internal/domain"
	"github.com/Julianhima91/himatrips-backend/internal/infra/postgresql"
	"github.com/Julianhima91/himatrips-backend/internal/infra/postgresql/migrations"
	infraredis "github.com/Julianhima91/himatrips-backend/internal/infra/redis"
	"github.com/Julianhima91/himatrips-backend/internal/observability"
	"github.com/Julianhima91/himatrips-backend/internal/provider"
	"github.com/Julianhima91/himatrips-backend/internal/queue"
	"github.com/Julianhima91/himatrips-backend/internal/repository"
	"github.com/Julianhima91/himatrips-backend/internal/service"
	"github.com/Julianhima91/himatrips-backend/internal/sweep"
)

// campaignSpec is the JSON shape of one entry in the campaign file.
type campaignSpec struct {
	Destination string   `json:"destination"`
	Origins     []string `json:"origins"`
	Months      []string `json:"months"` // YYYY-MM
	Category    string   `json:"category"`
	Adults      int      `json:"adults"`
	Children    int      `json:"children"`
	Infants     int      `json:"infants"`
}

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

	rateLimiter, err := infraredis.NewProviderRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer mq.Close()

	publisher := queue.NewRabbitMQPublisher(mq)
	consumer := queue.NewRabbitMQConsumer(mq, cfg.WorkerConcurrency, logger)

	flightSources, err := cfg.FlightSources()
	if err != nil {
		logger.Fatal("invalid flight source configuration", zap.Error(err))
	}
	flightGateways := make([]provider.Gateway, 0, len(flightSources))
	for _, source := range flightSources {
		gw, err := provider.NewRESTGateway(cfg.FlightAPIBaseURL, cfg.ProviderAPIKey, source)
		if err != nil {
			logger.Fatal("flight gateway initialization failed",
				zap.String("source", string(source)), zap.Error(err))
		}
		flightGateways = append(flightGateways, gw)
	}
	hotelGateway, err := provider.NewRESTGateway(cfg.HotelAPIBaseURL, cfg.ProviderAPIKey, domain.SourceInternal)
	if err != nil {
		logger.Fatal("hotel gateway initialization failed", zap.Error(err))
	}

	batches := repository.NewGormBatchRepo(db)
	tasks := repository.NewGormFetchTaskRepo(db)
	routes := repository.NewGormRouteRepo(db)
	packages := repository.NewGormPackageRepo(db)
	flightRecords := repository.NewGormFlightRecordRepo(db)
	adConfigs := repository.NewGormAdConfigRepo(db)

	metrics := observability.NewMetrics()

	asm, err := assembler.New(flightRecords, packages, logger)
	if err != nil {
		logger.Fatal("assembler initialization failed", zap.Error(err))
	}
	asm.SetMetrics(metrics)

	window := time.Duration(cfg.SweepWindowMinutes) * time.Minute
	agg, err := aggregator.New(store, aggregator.NewLogExporter(logger), adConfigs, window, logger)
	if err != nil {
		logger.Fatal("aggregator initialization failed", zap.Error(err))
	}
	agg.SetMetrics(metrics)

	coord, err := coordinator.New(
		batches,
		tasks,
		routes,
		store,
		flightGateways,
		hotelGateway,
		consumer,
		rateLimiter,
		asm,
		agg,
		cfg.WorkerConcurrency,
		time.Duration(cfg.BatchTTLMinutes)*time.Minute,
		logger,
	)
	if err != nil {
		logger.Fatal("coordinator initialization failed", zap.Error(err))
	}
	coord.SetMetrics(metrics)

	retryScanner, err := service.NewRetryScanner(
		tasks,
		batches,
		publisher,
		time.Duration(cfg.RetryScanSeconds)*time.Second,
		0,
		logger,
	)
	if err != nil {
		logger.Fatal("retry scanner initialization failed", zap.Error(err))
	}

	planner, err := sweep.NewPlanner(batches, tasks, routes, adConfigs, publisher, agg, flightSources, logger)
	if err != nil {
		logger.Fatal("planner initialization failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.CampaignFile != "" {
		if err := planCampaigns(ctx, planner, cfg.CampaignFile, logger); err != nil {
			logger.Fatal("campaign planning failed", zap.Error(err))
		}
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coord.Start(groupCtx)
	})
	g.Go(func() error {
		return retryScanner.Start(groupCtx)
	})
	g.Go(func() error {
		return agg.Start(groupCtx)
	})

	logger.Info("himatrips sweeper started", zap.Int("workers", cfg.WorkerConcurrency))
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("sweeper stopped with error", zap.Error(err))
	}
}

func planCampaigns(ctx context.Context, planner *sweep.Planner, path string, logger *zap.Logger) error {
	campaigns, err := loadCampaigns(path)
	if err != nil {
		return err
	}

	for _, campaign := range campaigns {
		plan, err := planner.PlanCampaign(ctx, campaign)
		if err != nil {
			logger.Error("failed to plan campaign",
				zap.String("destination", campaign.Destination),
				zap.Error(err))
			continue
		}
		logger.Info("campaign planned",
			zap.String("sweep_id", plan.SweepID),
			zap.String("destination", campaign.Destination),
			zap.Int("batches", len(plan.BatchIDs)),
			zap.Int("skipped", plan.Skipped))
	}
	return nil
}

func loadCampaigns(path string) ([]sweep.Campaign, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read campaign file: %w", err)
	}

	var specs []campaignSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to parse campaign file: %w", err)
	}

	campaigns := make([]sweep.Campaign, 0, len(specs))
	for i, spec := range specs {
		months := make([]sweep.YearMonth, 0, len(spec.Months))
		for _, raw := range spec.Months {
			parsed, err := time.Parse("2006-01", raw)
			if err != nil {
				return nil, fmt.Errorf("campaign %d: invalid month %q: %w", i, raw, err)
			}
			months = append(months, sweep.YearMonth{Year: parsed.Year(), Month: parsed.Month()})
		}

		category, err := domain.ParseCategoryFromString(spec.Category)
		if err != nil {
			return nil, fmt.Errorf("campaign %d: %w", i, err)
		}

		campaigns = append(campaigns, sweep.Campaign{
			Destination: spec.Destination,
			Origins:     spec.Origins,
			Months:      months,
			Category:    category,
			Pax: domain.Pax{
				Adults:   spec.Adults,
				Children: spec.Children,
				Infants:  spec.Infants,
			},
		})
	}
	return campaigns, nil
}
