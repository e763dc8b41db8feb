// Package service holds the application services: the synchronous live
// search path and the background retry scanner.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Julianhima91/himatrips-backend/internal/batchstore"
	"github.com/Julianhima91/himatrips-backend/internal/domain"
	"github.com/Julianhima91/himatrips-backend/internal/observability"
	"github.com/Julianhima91/himatrips-backend/internal/queue"
	"github.com/Julianhima91/himatrips-backend/internal/repository"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultWaitCeiling  = 25 * time.Second
	liveTaskMaxAttempts = 2
)

// SearchRequest is one live search: fixed dates, one route, one pax set.
type SearchRequest struct {
	Origin      string
	Destination string
	DepartDate  time.Time
	ReturnDate  time.Time
	Pax         domain.Pax
}

func (r SearchRequest) Validate() error {
	if strings.TrimSpace(r.Origin) == "" || strings.TrimSpace(r.Destination) == "" {
		return fmt.Errorf("%w: origin and destination are required", domain.ErrValidation)
	}
	if !r.ReturnDate.After(r.DepartDate) {
		return fmt.Errorf("%w: return date must be after departure", domain.ErrValidation)
	}
	return r.Pax.Validate()
}

// SearchResult is the outcome of a live search. Found is false when the
// batch failed or timed out; that is the structured "no packages found"
// answer, never an error.
type SearchResult struct {
	BatchID string
	Found   bool
	Package *domain.Package
}

type SearchService struct {
	batches      repository.BatchRepository
	tasks        repository.FetchTaskRepository
	routes       repository.RouteRepository
	store        batchstore.Store
	publisher    queue.Publisher
	sources      []domain.FlightSource
	logger       *zap.Logger
	metrics      *observability.Metrics
	pollInterval time.Duration
	waitCeiling  time.Duration
	batchTTL     time.Duration
	now          func() time.Time
	newID        func() string
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewSearchService(
	batches repository.BatchRepository,
	tasks repository.FetchTaskRepository,
	routes repository.RouteRepository,
	store batchstore.Store,
	publisher queue.Publisher,
	sources []domain.FlightSource,
	pollInterval time.Duration,
	waitCeiling time.Duration,
	batchTTL time.Duration,
	logger *zap.Logger,
) (*SearchService, error) {
	if batches == nil || tasks == nil || routes == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if store == nil {
		return nil, fmt.Errorf("batch store is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one flight source is required")
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if waitCeiling <= 0 {
		waitCeiling = defaultWaitCeiling
	}
	if batchTTL <= waitCeiling {
		// The store must outlive every waiter on its keys.
		batchTTL = 2 * waitCeiling
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SearchService{
		batches:      batches,
		tasks:        tasks,
		routes:       routes,
		store:        store,
		publisher:    publisher,
		sources:      sources,
		logger:       logger,
		pollInterval: pollInterval,
		waitCeiling:  waitCeiling,
		batchTTL:     batchTTL,
		now:          time.Now,
		newID:        uuid.NewString,
		sleep:        sleepCtx,
	}, nil
}

func (s *SearchService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Search creates a live batch, fans out its fetch tasks with top queue
// priority, then polls the package key at a fixed interval up to the wait
// ceiling. The asynchronous batch lifecycle converts into one synchronous
// answer; a timeout or failed batch yields Found=false.
func (s *SearchService) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// The route must be configured; live search never invents policy.
	if _, err := s.routes.GetRoute(ctx, req.Origin, req.Destination); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: route %s-%s is not configured", domain.ErrNotFound, req.Origin, req.Destination)
		}
		return nil, fmt.Errorf("failed to load route: %w", err)
	}

	batch := domain.SearchBatch{
		ID:          s.newID(),
		Origin:      strings.ToUpper(req.Origin),
		Destination: strings.ToUpper(req.Destination),
		DepartDate:  req.DepartDate,
		ReturnDate:  req.ReturnDate,
		Pax:         req.Pax,
		Category:    domain.CategoryLive,
		Status:      domain.BatchStatusPending,
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	if err := s.batches.Create(ctx, &batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	if err := s.publishTasks(ctx, &batch); err != nil {
		return nil, err
	}
	if err := s.batches.UpdateStatus(ctx, batch.ID, domain.BatchStatusFetching); err != nil && !errors.Is(err, domain.ErrConflict) {
		return nil, fmt.Errorf("failed to mark batch fetching: %w", err)
	}

	s.logger.Info("live search started",
		zap.String("batchId", batch.ID),
		zap.String("origin", batch.Origin),
		zap.String("destination", batch.Destination),
	)

	return s.await(ctx, batch.ID)
}

func (s *SearchService) publishTasks(ctx context.Context, batch *domain.SearchBatch) error {
	publish := func(kind domain.TaskKind, source domain.FlightSource) error {
		task := domain.FetchTask{
			ID:          s.newID(),
			BatchID:     batch.ID,
			Kind:        kind,
			Source:      source,
			Status:      domain.TaskStatusQueued,
			MaxAttempts: liveTaskMaxAttempts,
		}
		if err := s.tasks.Create(ctx, &task); err != nil {
			return fmt.Errorf("failed to create fetch task: %w", err)
		}

		msg := queue.FetchTaskMessage{
			TaskID:   task.ID,
			BatchID:  batch.ID,
			Kind:     kind,
			Source:   source,
			Category: batch.Category,
		}
		if err := s.publisher.Publish(ctx, queue.QueueName(kind), msg); err != nil {
			return fmt.Errorf("failed to publish fetch task: %w", err)
		}
		return nil
	}

	for _, source := range s.sources {
		if err := publish(domain.TaskFlights, source); err != nil {
			return err
		}
	}
	return publish(domain.TaskHotels, domain.SourceInternal)
}

// await is the bounded polling loop. It returns as soon as a package with an
// id lands under the batch's package key, or earlier when the batch fails.
func (s *SearchService) await(ctx context.Context, batchID string) (*SearchResult, error) {
	started := s.now()
	deadline := started.Add(s.waitCeiling)

	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveLiveSearchWait(s.now().Sub(started))
		}
	}()

	for {
		var pkg domain.Package
		ok, err := s.store.Get(ctx, batchstore.PackageKey(batchID), &pkg)
		if err != nil {
			return nil, fmt.Errorf("failed to poll package key: %w", err)
		}
		// A claimed-but-unfinished assembly has no package id yet.
		if ok && pkg.ID != "" {
			return &SearchResult{BatchID: batchID, Found: true, Package: &pkg}, nil
		}

		var status domain.BatchStatus
		ok, err = s.store.Get(ctx, batchstore.StatusKey(batchID), &status)
		if err != nil {
			return nil, fmt.Errorf("failed to poll status key: %w", err)
		}
		if ok && status == domain.BatchStatusFailed {
			s.logger.Info("live search batch failed", zap.String("batchId", batchID))
			return &SearchResult{BatchID: batchID, Found: false}, nil
		}

		if !s.now().Add(s.pollInterval).Before(deadline) {
			s.logger.Info("live search timed out",
				zap.String("batchId", batchID),
				zap.Duration("waited", s.now().Sub(started)),
			)
			return &SearchResult{BatchID: batchID, Found: false}, nil
		}
		if err := s.sleep(ctx, s.pollInterval); err != nil {
			return nil, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
