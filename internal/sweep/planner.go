// Package sweep expands an ad campaign into its sibling search batches: one
// batch per origin airport and month, all tracked by one completion sweep.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Julianhima91/himatrips-backend/internal/domain"
	"github.com/Julianhima91/himatrips-backend/internal/queue"
	"github.com/Julianhima91/himatrips-backend/internal/repository"
)

// Campaign describes one sweep to plan: a destination advertised across a
// set of departure airports and months.
type Campaign struct {
	Destination string
	Origins     []string
	Months      []YearMonth
	Category    domain.Category
	Pax         domain.Pax
}

type YearMonth struct {
	Year  int
	Month time.Month
}

func (c Campaign) Validate() error {
	if c.Destination == "" {
		return fmt.Errorf("%w: destination is required", domain.ErrValidation)
	}
	if len(c.Origins) == 0 {
		return fmt.Errorf("%w: at least one origin airport is required", domain.ErrValidation)
	}
	if len(c.Months) == 0 {
		return fmt.Errorf("%w: at least one month is required", domain.ErrValidation)
	}
	if !c.Category.IsValid() || c.Category == domain.CategoryLive {
		return fmt.Errorf("%w: invalid sweep category %q", domain.ErrValidation, c.Category)
	}
	return c.Pax.Validate()
}

// Registrar receives the expected sibling set before any batch runs.
type Registrar interface {
	Register(ctx context.Context, sweepID string, batchIDs []string) error
}

// Plan is the outcome of planning one campaign.
type Plan struct {
	SweepID  string
	BatchIDs []string
	Skipped  int
}

type Planner struct {
	batches   repository.BatchRepository
	tasks     repository.FetchTaskRepository
	routes    repository.RouteRepository
	adConfigs repository.AdConfigRepository
	publisher queue.Publisher
	registrar Registrar
	sources   []domain.FlightSource
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string

	taskMaxAttempts int
}

func NewPlanner(
	batches repository.BatchRepository,
	tasks repository.FetchTaskRepository,
	routes repository.RouteRepository,
	adConfigs repository.AdConfigRepository,
	publisher queue.Publisher,
	registrar Registrar,
	sources []domain.FlightSource,
	logger *zap.Logger,
) (*Planner, error) {
	if batches == nil || tasks == nil || routes == nil || adConfigs == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if registrar == nil {
		return nil, fmt.Errorf("registrar is required")
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one flight source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Planner{
		batches:         batches,
		tasks:           tasks,
		routes:          routes,
		adConfigs:       adConfigs,
		publisher:       publisher,
		registrar:       registrar,
		sources:         sources,
		logger:          logger,
		now:             time.Now,
		newID:           uuid.NewString,
		taskMaxAttempts: 3,
	}, nil
}

// PlanCampaign expands the campaign, registers the sweep, persists batches
// and their fetch tasks, and publishes the tasks. A combination whose route
// is missing or misconfigured is logged and skipped, never fatal to the
// sweep.
func (p *Planner) PlanCampaign(ctx context.Context, campaign Campaign) (*Plan, error) {
	if err := campaign.Validate(); err != nil {
		return nil, err
	}

	sweepID := p.newID()
	adConfig := &repository.AdConfigModel{
		ID:          sweepID,
		Destination: campaign.Destination,
		Category:    campaign.Category,
		Status:      repository.AdStatusPlanned,
		CreatedAt:   p.now().UTC(),
		UpdatedAt:   p.now().UTC(),
	}
	if err := p.adConfigs.Create(ctx, adConfig); err != nil {
		return nil, fmt.Errorf("failed to create ad config: %w", err)
	}

	type planned struct {
		batch domain.SearchBatch
		route *repository.Route
	}

	var members []planned
	skipped := 0
	for _, origin := range campaign.Origins {
		route, err := p.routes.GetRoute(ctx, origin, campaign.Destination)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				p.logger.Warn("no route configured, skipping airport",
					zap.String("origin", origin),
					zap.String("destination", campaign.Destination),
				)
				skipped += len(campaign.Months)
				continue
			}
			return nil, fmt.Errorf("failed to load route: %w", err)
		}
		if !route.Policy.HasNightsRange() {
			p.logger.Warn("route policy missing nights range, skipping airport",
				zap.String("origin", origin),
				zap.String("destination", campaign.Destination),
			)
			skipped += len(campaign.Months)
			continue
		}

		for _, ym := range campaign.Months {
			depart := time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
			batch := domain.SearchBatch{
				ID:          p.newID(),
				SweepID:     &sweepID,
				Origin:      origin,
				Destination: campaign.Destination,
				DepartDate:  depart,
				ReturnDate:  depart.AddDate(0, 0, route.Policy.MinNights),
				Pax:         campaign.Pax,
				Category:    campaign.Category,
				Status:      domain.BatchStatusPending,
			}
			if err := batch.Validate(); err != nil {
				p.logger.Warn("planned batch invalid, skipping",
					zap.String("origin", origin),
					zap.String("destination", campaign.Destination),
					zap.Error(err),
				)
				skipped++
				continue
			}
			members = append(members, planned{batch: batch, route: route})
		}
	}

	if len(members) == 0 {
		detail := "no valid origin/month combinations"
		if err := p.adConfigs.UpdateStatus(ctx, sweepID, repository.AdStatusFailed, &detail); err != nil {
			p.logger.Warn("failed to mark ad config failed", zap.Error(err))
		}
		return nil, fmt.Errorf("%w: campaign expanded to nothing", domain.ErrValidation)
	}

	batchIDs := make([]string, 0, len(members))
	for _, m := range members {
		batchIDs = append(batchIDs, m.batch.ID)
	}

	// Register membership before any batch can resolve, so an early
	// completion is never recorded against an unknown sweep.
	if err := p.registrar.Register(ctx, sweepID, batchIDs); err != nil {
		return nil, fmt.Errorf("failed to register sweep: %w", err)
	}

	for _, m := range members {
		batch := m.batch
		if err := p.batches.Create(ctx, &batch); err != nil {
			return nil, fmt.Errorf("failed to create batch: %w", err)
		}
		if err := p.publishTasks(ctx, &batch); err != nil {
			return nil, err
		}
	}

	p.logger.Info("sweep planned",
		zap.String("sweepId", sweepID),
		zap.String("destination", campaign.Destination),
		zap.Int("batches", len(batchIDs)),
		zap.Int("skipped", skipped),
	)

	return &Plan{SweepID: sweepID, BatchIDs: batchIDs, Skipped: skipped}, nil
}

// publishTasks creates and enqueues the batch's fetch tasks: one flights
// task per source, one hotels task, and one price-grid task per flexible
// category batch.
func (p *Planner) publishTasks(ctx context.Context, batch *domain.SearchBatch) error {
	for _, source := range p.sources {
		if err := p.createAndPublish(ctx, batch, domain.TaskFlights, source); err != nil {
			return err
		}
	}
	if err := p.createAndPublish(ctx, batch, domain.TaskHotels, domain.SourceInternal); err != nil {
		return err
	}
	if err := p.createAndPublish(ctx, batch, domain.TaskPriceGrid, p.sources[0]); err != nil {
		return err
	}

	if err := p.batches.UpdateStatus(ctx, batch.ID, domain.BatchStatusFetching); err != nil && !errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("failed to mark batch fetching: %w", err)
	}
	return nil
}

func (p *Planner) createAndPublish(
	ctx context.Context,
	batch *domain.SearchBatch,
	kind domain.TaskKind,
	source domain.FlightSource,
) error {
	task := domain.FetchTask{
		ID:          p.newID(),
		BatchID:     batch.ID,
		Kind:        kind,
		Source:      source,
		Status:      domain.TaskStatusQueued,
		MaxAttempts: p.taskMaxAttempts,
	}
	if err := p.tasks.Create(ctx, &task); err != nil {
		return fmt.Errorf("failed to create fetch task: %w", err)
	}

	msg := queue.FetchTaskMessage{
		TaskID:   task.ID,
		BatchID:  batch.ID,
		Kind:     kind,
		Source:   source,
		Category: batch.Category,
	}
	if err := p.publisher.Publish(ctx, queue.QueueName(kind), msg); err != nil {
		return fmt.Errorf("failed to publish fetch task: %w", err)
	}
	return nil
}
