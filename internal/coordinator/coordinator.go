// Package coordinator drives a batch from queued fetch tasks to a single
// assembled package. It consumes fetch-task messages, writes provider
// results into the batch store with first-writer-wins semantics, and claims
// assembly exactly once when both legs of a batch are resolved.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Julianhima91/himatrips-backend/internal/batchstore"
	"github.com/Julianhima91/himatrips-backend/internal/dategrid"
	"github.com/Julianhima91/himatrips-backend/internal/domain"
	"github.com/Julianhima91/himatrips-backend/internal/observability"
	"github.com/Julianhima91/himatrips-backend/internal/provider"
	"github.com/Julianhima91/himatrips-backend/internal/queue"
	"github.com/Julianhima91/himatrips-backend/internal/ratelimit"
	"github.com/Julianhima91/himatrips-backend/internal/repository"
	"github.com/Julianhima91/himatrips-backend/internal/selection"
)

const (
	minWorkerConcurrency = 1
	defaultBatchTTL      = 30 * time.Minute
	emptyRetryBaseDelay  = 30 * time.Second
	maxRetryDelay        = 5 * time.Minute
)

// PackageAssembler builds and persists the surviving package for a batch.
type PackageAssembler interface {
	AssembleBest(
		ctx context.Context,
		batch domain.SearchBatch,
		outbound, ret domain.FlightCandidate,
		hotels []domain.HotelCandidate,
		policy domain.SelectionPolicy,
	) (*domain.Package, error)
}

// BatchResolver receives the terminal outcome of a sweep member so the
// completion bookkeeping stays consistent even for batches that fail.
type BatchResolver interface {
	Resolve(ctx context.Context, sweepID string, resolution domain.BatchResolution) error
}

type Coordinator struct {
	batches     repository.BatchRepository
	tasks       repository.FetchTaskRepository
	routes      repository.RouteRepository
	store       batchstore.Store
	flights     map[domain.FlightSource]provider.Gateway
	hotels      provider.Gateway
	consumer    queue.Consumer
	rateLimiter ratelimit.RateLimiter
	assembler   PackageAssembler
	resolver    BatchResolver
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	ttl         time.Duration
	now         func() time.Time
}

func New(
	batches repository.BatchRepository,
	tasks repository.FetchTaskRepository,
	routes repository.RouteRepository,
	store batchstore.Store,
	flightGateways []provider.Gateway,
	hotelGateway provider.Gateway,
	consumer queue.Consumer,
	rateLimiter ratelimit.RateLimiter,
	assembler PackageAssembler,
	resolver BatchResolver,
	concurrency int,
	ttl time.Duration,
	logger *zap.Logger,
) (*Coordinator, error) {
	if batches == nil || tasks == nil || routes == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if store == nil {
		return nil, fmt.Errorf("batch store is required")
	}
	if len(flightGateways) == 0 {
		return nil, fmt.Errorf("at least one flight gateway is required")
	}
	if hotelGateway == nil {
		return nil, fmt.Errorf("hotel gateway is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if rateLimiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if assembler == nil {
		return nil, fmt.Errorf("assembler is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("batch resolver is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if ttl <= 0 {
		ttl = defaultBatchTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bySource := make(map[domain.FlightSource]provider.Gateway, len(flightGateways))
	for _, gw := range flightGateways {
		bySource[gw.Source()] = gw
	}

	return &Coordinator{
		batches:     batches,
		tasks:       tasks,
		routes:      routes,
		store:       store,
		flights:     bySource,
		hotels:      hotelGateway,
		consumer:    consumer,
		rateLimiter: rateLimiter,
		assembler:   assembler,
		resolver:    resolver,
		logger:      logger,
		concurrency: concurrency,
		ttl:         ttl,
		now:         time.Now,
	}, nil
}

func (c *Coordinator) SetMetrics(metrics *observability.Metrics) {
	if c == nil {
		return
	}
	c.metrics = metrics
}

// Start consumes the fetch work queues until context cancellation.
func (c *Coordinator) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < c.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			c.logger.Info("fetch worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := c.consumer.Consume(groupCtx, queueName, c.ProcessMessage)
			if err != nil {
				c.logger.Error("fetch worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			c.logger.Info("fetch worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

// ProcessMessage handles one fetch-task message. A nil return acks the
// message; an error nacks it for redelivery.
func (c *Coordinator) ProcessMessage(ctx context.Context, msg queue.FetchTaskMessage) error {
	task, err := c.tasks.LockForRun(ctx, msg.TaskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.logger.Warn("fetch task not found during lock, skipping",
				zap.String("taskId", msg.TaskID),
			)
			return nil
		}
		return fmt.Errorf("failed to lock fetch task: %w", err)
	}

	// Nil means the task is already terminal. The previous delivery may
	// still have died between marking the task succeeded and finishing
	// assembly, so a non-terminal batch gets one more assembly check
	// before the redelivery is acked.
	if task == nil {
		return c.resumeAssembly(ctx, msg.BatchID)
	}

	batch, err := c.batches.GetByID(ctx, task.BatchID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.tasks.MarkFailed(ctx, task.ID, "batch no longer exists")
		}
		return fmt.Errorf("failed to load batch: %w", err)
	}
	if batch.Status.IsTerminal() {
		return c.tasks.MarkFailed(ctx, task.ID, "batch already resolved")
	}

	route, err := c.routes.GetRoute(ctx, batch.Origin, batch.Destination)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			if markErr := c.tasks.MarkFailed(ctx, task.ID, "no route configured"); markErr != nil {
				return markErr
			}
			return c.checkBatchExhausted(ctx, batch, task.Kind)
		}
		return fmt.Errorf("failed to load route: %w", err)
	}

	kindName := strings.ToLower(task.Kind.String())
	if c.metrics != nil {
		c.metrics.IncWorkerInFlight(kindName)
		defer c.metrics.DecWorkerInFlight(kindName)
	}

	logger := c.logger.With(
		zap.String("batchId", batch.ID),
		zap.String("taskId", task.ID),
		zap.String("kind", kindName),
	)

	switch task.Kind {
	case domain.TaskFlights:
		return c.processFlights(ctx, logger, task, batch, route)
	case domain.TaskHotels:
		return c.processHotels(ctx, logger, task, batch, route)
	case domain.TaskPriceGrid:
		return c.processPriceGrid(ctx, logger, task, batch, route)
	default:
		return c.tasks.MarkFailed(ctx, task.ID, fmt.Sprintf("unknown task kind %q", task.Kind))
	}
}

func (c *Coordinator) processFlights(
	ctx context.Context,
	logger *zap.Logger,
	task *domain.FetchTask,
	batch *domain.SearchBatch,
	route *repository.Route,
) error {
	gw, ok := c.flights[task.Source]
	if !ok {
		if err := c.tasks.MarkFailed(ctx, task.ID, fmt.Sprintf("no gateway for source %q", task.Source)); err != nil {
			return err
		}
		return c.checkBatchExhausted(ctx, batch, domain.TaskFlights)
	}

	sourceName := strings.ToLower(task.Source.String())
	req := provider.RoundTripRequest{
		Origin:      batch.Origin,
		Destination: batch.Destination,
		DepartDate:  batch.DepartDate,
		ReturnDate:  batch.ReturnDate,
		Pax:         batch.Pax,
	}

	candidates, fetchErr := c.fetchRoundTrip(ctx, gw, task, sourceName, req)
	if fetchErr != nil {
		return c.handleFetchError(ctx, logger, task, batch, sourceName, fetchErr)
	}
	if len(candidates) == 0 {
		return c.scheduleRetryOrFail(ctx, logger, task, batch, sourceName, "provider returned no flight candidates")
	}

	won, err := c.store.PutNX(ctx, batchstore.FlightsKey(batch.ID), candidates, c.ttl)
	if err != nil {
		return fmt.Errorf("failed to store flight candidates: %w", err)
	}

	if won {
		if err := c.store.Put(ctx, batchstore.HaveFlightsKey(batch.ID), true, c.ttl); err != nil {
			return fmt.Errorf("failed to set have-flights flag: %w", err)
		}
		c.markProgress(ctx, batch)
	} else {
		// A sibling source already resolved this leg. The late data joins
		// the alternates side list and never re-triggers selection.
		if err := c.recordAlternates(ctx, batch.ID, task.Source, candidates); err != nil {
			logger.Warn("failed to record alternate candidates", zap.Error(err))
		}
		logger.Info("leg already resolved, stored alternates",
			zap.String("source", sourceName),
			zap.Int("candidates", len(candidates)),
		)
	}

	if err := c.tasks.MarkSucceeded(ctx, task.ID); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.IncFetchTask("flights", sourceName, "succeeded")
	}

	return c.maybeAssemble(ctx, batch)
}

func (c *Coordinator) processHotels(
	ctx context.Context,
	logger *zap.Logger,
	task *domain.FetchTask,
	batch *domain.SearchBatch,
	route *repository.Route,
) error {
	if len(route.HotelIDs) == 0 {
		if err := c.tasks.MarkFailed(ctx, task.ID, "route has no hotels configured"); err != nil {
			return err
		}
		return c.checkBatchExhausted(ctx, batch, domain.TaskHotels)
	}

	sourceName := "hotels"
	if err := c.rateLimiter.Wait(ctx, sourceName); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	req := provider.HotelSearchRequest{
		HotelIDs: route.HotelIDs,
		CheckIn:  batch.DepartDate,
		Nights:   batch.Nights(),
		Rooms:    1,
		Pax:      batch.Pax,
	}

	start := c.now()
	hotels, fetchErr := c.hotels.SearchHotels(ctx, req)
	if c.metrics != nil {
		c.metrics.ObserveProviderCall("hotels", sourceName, c.now().Sub(start))
	}

	if fetchErr != nil && task.AttemptCount == 1 {
		hotels, fetchErr = retryImmediately(ctx, logger, fetchErr, func() ([]domain.HotelCandidate, error) {
			return c.hotels.SearchHotels(ctx, req)
		})
	}
	if fetchErr != nil {
		return c.handleFetchError(ctx, logger, task, batch, sourceName, fetchErr)
	}
	if len(hotels) == 0 {
		return c.scheduleRetryOrFail(ctx, logger, task, batch, sourceName, "provider returned no hotel availability")
	}

	won, err := c.store.PutNX(ctx, batchstore.HotelsKey(batch.ID), hotels, c.ttl)
	if err != nil {
		return fmt.Errorf("failed to store hotel candidates: %w", err)
	}
	if won {
		if err := c.store.Put(ctx, batchstore.HaveHotelsKey(batch.ID), true, c.ttl); err != nil {
			return fmt.Errorf("failed to set have-hotels flag: %w", err)
		}
		c.markProgress(ctx, batch)
	}

	if err := c.tasks.MarkSucceeded(ctx, task.ID); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.IncFetchTask("hotels", sourceName, "succeeded")
	}

	return c.maybeAssemble(ctx, batch)
}

// processPriceGrid resolves both directional grids for a flexible-date
// batch and stores the cheapest valid date pair. The grids and the winning
// combination stay in the store for the sweep exporter; the assembled
// package itself is still driven by the flight and hotel legs.
func (c *Coordinator) processPriceGrid(
	ctx context.Context,
	logger *zap.Logger,
	task *domain.FetchTask,
	batch *domain.SearchBatch,
	route *repository.Route,
) error {
	gw, ok := c.flights[task.Source]
	if !ok {
		return c.tasks.MarkFailed(ctx, task.ID, fmt.Sprintf("no gateway for source %q", task.Source))
	}
	if !route.Policy.HasNightsRange() {
		return c.tasks.MarkFailed(ctx, task.ID, "route policy has no nights range")
	}

	sourceName := strings.ToLower(task.Source.String())
	if err := c.rateLimiter.Wait(ctx, sourceName); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	year, month := batch.DepartDate.Year(), int(batch.DepartDate.Month())

	start := c.now()
	outGrid, outErr := gw.SearchPriceGrid(ctx, provider.PriceGridRequest{
		Origin:      batch.Origin,
		Destination: batch.Destination,
		Year:        year,
		Month:       month,
	})
	var retGrid domain.PriceGrid
	var retErr error
	if outErr == nil {
		retGrid, retErr = gw.SearchPriceGrid(ctx, provider.PriceGridRequest{
			Origin:      batch.Destination,
			Destination: batch.Origin,
			Year:        year,
			Month:       month,
		})
	}
	if c.metrics != nil {
		c.metrics.ObserveProviderCall("price_grid", sourceName, c.now().Sub(start))
	}

	fetchErr := outErr
	if fetchErr == nil {
		fetchErr = retErr
	}
	if fetchErr != nil {
		return c.handleFetchError(ctx, logger, task, batch, sourceName, fetchErr)
	}

	combination, found := dategrid.CheapestCombination(outGrid, retGrid, route.Policy.MinNights)
	if !found {
		return c.scheduleRetryOrFail(ctx, logger, task, batch, sourceName, "no viable date pair in price grids")
	}

	if err := c.store.Put(ctx, batchstore.GridKey(batch.ID, "outbound"), outGrid, c.ttl); err != nil {
		return fmt.Errorf("failed to store outbound grid: %w", err)
	}
	if err := c.store.Put(ctx, batchstore.GridKey(batch.ID, "return"), retGrid, c.ttl); err != nil {
		return fmt.Errorf("failed to store return grid: %w", err)
	}

	won, err := c.store.PutNX(ctx, batchstore.CombinationKey(batch.ID), combination, c.ttl)
	if err != nil {
		return fmt.Errorf("failed to store cheapest combination: %w", err)
	}
	if won {
		logger.Info("cheapest date pair resolved",
			zap.Int("outboundDay", combination.OutboundDay),
			zap.Int("returnDay", combination.ReturnDay),
			zap.Float64("totalPrice", combination.TotalPrice),
		)
	}

	if err := c.tasks.MarkSucceeded(ctx, task.ID); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.IncFetchTask("price_grid", sourceName, "succeeded")
	}
	return nil
}

// fetchRoundTrip calls the gateway with the rate limiter applied. An error
// on the task's first attempt is retried once immediately before the
// broader retry policy takes over.
func (c *Coordinator) fetchRoundTrip(
	ctx context.Context,
	gw provider.Gateway,
	task *domain.FetchTask,
	sourceName string,
	req provider.RoundTripRequest,
) ([]domain.FlightCandidate, error) {
	if err := c.rateLimiter.Wait(ctx, sourceName); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	start := c.now()
	candidates, err := gw.SearchRoundTrip(ctx, req)
	if c.metrics != nil {
		c.metrics.ObserveProviderCall("flights", sourceName, c.now().Sub(start))
	}
	if err != nil && task.AttemptCount == 1 {
		return retryImmediately(ctx, c.logger, err, func() ([]domain.FlightCandidate, error) {
			return gw.SearchRoundTrip(ctx, req)
		})
	}
	return candidates, err
}

// retryImmediately reruns a failed first-attempt call once. A repeat of the
// identical failure is returned as terminal; a different failure falls back
// to the scheduled retry path.
func retryImmediately[T any](
	ctx context.Context,
	logger *zap.Logger,
	firstErr error,
	call func() ([]T, error),
) ([]T, error) {
	if ctx.Err() != nil {
		return nil, firstErr
	}

	result, retryErr := call()
	if retryErr == nil {
		return result, nil
	}
	if retryErr.Error() == firstErr.Error() {
		return nil, terminalError{cause: retryErr}
	}
	logger.Warn("immediate retry failed with a different error",
		zap.NamedError("firstError", firstErr),
		zap.Error(retryErr),
	)
	return nil, retryErr
}

// terminalError marks a failure that exhausted the immediate-retry budget:
// the same call failed twice with the identical error.
type terminalError struct {
	cause error
}

func (e terminalError) Error() string { return e.cause.Error() }
func (e terminalError) Unwrap() error { return e.cause }

func isTerminal(err error) bool {
	var t terminalError
	return errors.As(err, &t)
}

func (c *Coordinator) handleFetchError(
	ctx context.Context,
	logger *zap.Logger,
	task *domain.FetchTask,
	batch *domain.SearchBatch,
	sourceName string,
	fetchErr error,
) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	repeated := task.LastError != nil && *task.LastError == fetchErr.Error()
	if isTerminal(fetchErr) || repeated {
		logger.Warn("fetch task failed terminally",
			zap.String("source", sourceName),
			zap.Error(fetchErr),
		)
		if err := c.tasks.MarkFailed(ctx, task.ID, fetchErr.Error()); err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.IncFetchTask(task.Kind.String(), sourceName, "failed")
		}
		return c.checkBatchExhausted(ctx, batch, task.Kind)
	}

	return c.scheduleRetryOrFail(ctx, logger, task, batch, sourceName, fetchErr.Error())
}

// scheduleRetryOrFail requeues the task after a growing fixed backoff, or
// fails it terminally once the attempt budget is spent. The retry scanner
// republishes the task when its delay elapses; nothing sleeps inline.
func (c *Coordinator) scheduleRetryOrFail(
	ctx context.Context,
	logger *zap.Logger,
	task *domain.FetchTask,
	batch *domain.SearchBatch,
	sourceName string,
	reason string,
) error {
	if task.AttemptCount >= task.MaxAttempts {
		logger.Warn("fetch task exhausted retries",
			zap.String("source", sourceName),
			zap.Int("attempts", task.AttemptCount),
			zap.String("reason", reason),
		)
		if err := c.tasks.MarkFailed(ctx, task.ID, reason); err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.IncFetchTask(task.Kind.String(), sourceName, "failed")
		}
		return c.checkBatchExhausted(ctx, batch, task.Kind)
	}

	delay := time.Duration(task.AttemptCount) * emptyRetryBaseDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	nextRetryAt := c.now().Add(delay)
	if err := c.tasks.ScheduleRetry(ctx, task.ID, reason, nextRetryAt); err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	if c.metrics != nil {
		c.metrics.IncRetryScheduled(task.Kind.String())
	}

	logger.Info("fetch task scheduled for retry",
		zap.String("source", sourceName),
		zap.Int("attempt", task.AttemptCount),
		zap.Duration("delay", delay),
		zap.String("reason", reason),
	)
	return nil
}

// checkBatchExhausted fails the batch when every task that could still
// resolve the given leg is terminally failed and the leg never produced
// data. A single terminal task does not fail the batch while a sibling
// source can still answer the same leg.
func (c *Coordinator) checkBatchExhausted(ctx context.Context, batch *domain.SearchBatch, kind domain.TaskKind) error {
	unfinished, err := c.tasks.CountUnfinished(ctx, batch.ID, kind)
	if err != nil {
		return fmt.Errorf("failed to count unfinished tasks: %w", err)
	}
	if unfinished > 0 {
		return nil
	}

	flagKey := batchstore.HaveFlightsKey(batch.ID)
	if kind == domain.TaskHotels {
		flagKey = batchstore.HaveHotelsKey(batch.ID)
	}
	if kind == domain.TaskPriceGrid {
		// Grids enrich a batch but never gate it.
		return nil
	}

	var resolved bool
	ok, err := c.store.Get(ctx, flagKey, &resolved)
	if err != nil {
		return fmt.Errorf("failed to read completion flag: %w", err)
	}
	if ok && resolved {
		return nil
	}

	return c.failBatch(ctx, batch, fmt.Sprintf("all %s sources exhausted", strings.ToLower(kind.String())))
}

// resumeAssembly re-runs the assembly check for a redelivered message whose
// task already finished. Without it a batch whose assembly failed after the
// last task succeeded would stay READY with no package forever.
func (c *Coordinator) resumeAssembly(ctx context.Context, batchID string) error {
	batch, err := c.batches.GetByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load batch: %w", err)
	}
	if batch.Status.IsTerminal() {
		return nil
	}
	return c.maybeAssemble(ctx, batch)
}

func (c *Coordinator) maybeAssemble(ctx context.Context, batch *domain.SearchBatch) error {
	var haveFlights, haveHotels bool
	if ok, err := c.store.Get(ctx, batchstore.HaveFlightsKey(batch.ID), &haveFlights); err != nil {
		return fmt.Errorf("failed to read have-flights flag: %w", err)
	} else if !ok || !haveFlights {
		return nil
	}
	if ok, err := c.store.Get(ctx, batchstore.HaveHotelsKey(batch.ID), &haveHotels); err != nil {
		return fmt.Errorf("failed to read have-hotels flag: %w", err)
	} else if !ok || !haveHotels {
		return nil
	}

	if err := c.batches.UpdateStatus(ctx, batch.ID, domain.BatchStatusReady); err != nil && !errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("failed to mark batch ready: %w", err)
	}

	// Claim assembly. Exactly one worker wins; the placeholder has no
	// package id yet so pollers keep waiting until the real package lands.
	claim := domain.Package{BatchID: batch.ID, Category: batch.Category}
	won, err := c.store.PutNX(ctx, batchstore.PackageKey(batch.ID), claim, c.ttl)
	if err != nil {
		return fmt.Errorf("failed to claim assembly: %w", err)
	}
	if !won {
		return nil
	}

	if err := c.assemble(ctx, batch); err != nil {
		// Release the claim so a redelivery can reassemble.
		if forgetErr := c.store.Forget(ctx, batchstore.PackageKey(batch.ID)); forgetErr != nil {
			c.logger.Error("failed to release assembly claim",
				zap.String("batchId", batch.ID),
				zap.Error(forgetErr),
			)
		}
		return err
	}
	return nil
}

func (c *Coordinator) assemble(ctx context.Context, batch *domain.SearchBatch) error {
	var flights []domain.FlightCandidate
	ok, err := c.store.Get(ctx, batchstore.FlightsKey(batch.ID), &flights)
	if err != nil {
		return fmt.Errorf("failed to read flight candidates: %w", err)
	}
	if !ok {
		return c.failBatch(ctx, batch, "flight candidates expired before assembly")
	}

	var hotels []domain.HotelCandidate
	ok, err = c.store.Get(ctx, batchstore.HotelsKey(batch.ID), &hotels)
	if err != nil {
		return fmt.Errorf("failed to read hotel candidates: %w", err)
	}
	if !ok {
		return c.failBatch(ctx, batch, "hotel candidates expired before assembly")
	}

	route, err := c.routes.GetRoute(ctx, batch.Origin, batch.Destination)
	if err != nil {
		return fmt.Errorf("failed to load route for assembly: %w", err)
	}

	selected := selection.Select(flights, route.Policy)
	if len(selected) == 0 {
		return c.failBatch(ctx, batch, "no flights survived selection")
	}

	outbound, ret := splitRoundTripFare(selected[0])
	pkg, err := c.assembler.AssembleBest(ctx, *batch, outbound, ret, hotels, route.Policy)
	if err != nil {
		if errors.Is(err, domain.ErrNoCandidates) {
			return c.failBatch(ctx, batch, "no hotel offers to assemble")
		}
		return fmt.Errorf("assembly failed: %w", err)
	}

	if err := c.store.Put(ctx, batchstore.PackageKey(batch.ID), *pkg, c.ttl); err != nil {
		return fmt.Errorf("failed to store assembled package: %w", err)
	}
	if err := c.store.Put(ctx, batchstore.StatusKey(batch.ID), domain.BatchStatusAssembled, c.ttl); err != nil {
		return fmt.Errorf("failed to store batch status: %w", err)
	}
	if err := c.batches.UpdateStatus(ctx, batch.ID, domain.BatchStatusAssembled); err != nil && !errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("failed to mark batch assembled: %w", err)
	}

	if c.metrics != nil {
		c.metrics.IncBatchResolved(batch.Category.String(), "assembled")
	}

	if batch.SweepID != nil {
		resolution := domain.BatchResolution{
			BatchID:    batch.ID,
			PackageID:  pkg.ID,
			ResolvedAt: c.now().UTC(),
		}
		if err := c.resolver.Resolve(ctx, *batch.SweepID, resolution); err != nil {
			return fmt.Errorf("failed to resolve sweep membership: %w", err)
		}
	}
	return nil
}

func (c *Coordinator) failBatch(ctx context.Context, batch *domain.SearchBatch, reason string) error {
	c.logger.Warn("batch failed",
		zap.String("batchId", batch.ID),
		zap.String("reason", reason),
	)

	if err := c.batches.UpdateStatus(ctx, batch.ID, domain.BatchStatusFailed); err != nil && !errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("failed to mark batch failed: %w", err)
	}
	if err := c.store.Put(ctx, batchstore.StatusKey(batch.ID), domain.BatchStatusFailed, c.ttl); err != nil {
		return fmt.Errorf("failed to store batch status: %w", err)
	}
	if c.metrics != nil {
		c.metrics.IncBatchResolved(batch.Category.String(), "failed")
	}

	if batch.SweepID != nil {
		resolution := domain.BatchResolution{
			BatchID:    batch.ID,
			Failed:     true,
			Reason:     reason,
			ResolvedAt: c.now().UTC(),
		}
		if err := c.resolver.Resolve(ctx, *batch.SweepID, resolution); err != nil {
			return fmt.Errorf("failed to resolve sweep membership: %w", err)
		}
	}
	return nil
}

// markProgress moves a freshly queued batch into the partially-ready state.
// Conflicts mean a concurrent worker already advanced it further.
func (c *Coordinator) markProgress(ctx context.Context, batch *domain.SearchBatch) {
	err := c.batches.UpdateStatus(ctx, batch.ID, domain.BatchStatusPartiallyReady)
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		c.logger.Warn("failed to mark batch partially ready",
			zap.String("batchId", batch.ID),
			zap.Error(err),
		)
	}
}

// recordAlternates appends a late source's candidates to the batch's
// alternates set. The member is the source plus payload, so redeliveries of
// the same result collapse into one entry.
func (c *Coordinator) recordAlternates(
	ctx context.Context,
	batchID string,
	source domain.FlightSource,
	candidates []domain.FlightCandidate,
) error {
	payload, err := json.Marshal(candidates)
	if err != nil {
		return err
	}
	member := fmt.Sprintf("%s:%s", source, payload)
	_, err = c.store.AddToSet(ctx, batchstore.AlternatesKey(batchID), member, c.ttl)
	return err
}

// splitRoundTripFare carries half the quoted round-trip fare on each
// directional record so the assembled pricing sums back to the quote.
func splitRoundTripFare(candidate domain.FlightCandidate) (outbound, ret domain.FlightCandidate) {
	outbound = candidate
	ret = candidate
	outbound.Price = candidate.Price / 2
	ret.Price = candidate.Price - outbound.Price
	return outbound, ret
}
