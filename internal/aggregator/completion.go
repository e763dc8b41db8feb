// Package aggregator tracks the sibling batches of one sweep and hands the
// finished set to the export collaborator exactly once. Resolutions arrive
// out of order and possibly more than once; membership bookkeeping is built
// on idempotent set-adds so duplicates collapse instead of double-counting.
package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Julianhima91/himatrips-backend/internal/batchstore"
	"github.com/Julianhima91/himatrips-backend/internal/domain"
	"github.com/Julianhima91/himatrips-backend/internal/observability"
	"github.com/Julianhima91/himatrips-backend/internal/repository"
)

const (
	defaultAggregationWindow = 2 * time.Hour
	defaultSweepInterval     = 30 * time.Second
)

// Exporter receives the finalized resolution set for one sweep. Invoked at
// most once per sweep; partial marks a window timeout with unresolved
// members remaining.
type Exporter interface {
	Export(ctx context.Context, sweepID string, resolutions []domain.BatchResolution, partial bool) error
}

type Aggregator struct {
	store     batchstore.Store
	exporter  Exporter
	adConfigs repository.AdConfigRepository
	logger    *zap.Logger
	metrics   *observability.Metrics
	window    time.Duration
	interval  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	deadlines map[string]time.Time
}

func New(
	store batchstore.Store,
	exporter Exporter,
	adConfigs repository.AdConfigRepository,
	window time.Duration,
	logger *zap.Logger,
) (*Aggregator, error) {
	if store == nil {
		return nil, fmt.Errorf("batch store is required")
	}
	if exporter == nil {
		return nil, fmt.Errorf("exporter is required")
	}
	if adConfigs == nil {
		return nil, fmt.Errorf("ad config repository is required")
	}
	if window <= 0 {
		window = defaultAggregationWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		store:     store,
		exporter:  exporter,
		adConfigs: adConfigs,
		logger:    logger,
		window:    window,
		interval:  defaultSweepInterval,
		now:       time.Now,
		deadlines: make(map[string]time.Time),
	}, nil
}

func (a *Aggregator) SetMetrics(metrics *observability.Metrics) {
	if a == nil {
		return
	}
	a.metrics = metrics
}

// Register records the expected sibling set for a sweep before any of its
// batches run. The store TTL outlives the aggregation window so a legitimate
// completion is never lost to expiry.
func (a *Aggregator) Register(ctx context.Context, sweepID string, batchIDs []string) error {
	if sweepID == "" {
		return fmt.Errorf("%w: sweep id is required", domain.ErrValidation)
	}
	if len(batchIDs) == 0 {
		return fmt.Errorf("%w: expected batch set is empty", domain.ErrValidation)
	}

	ttl := a.storeTTL()
	for _, batchID := range batchIDs {
		if _, err := a.store.AddToSet(ctx, batchstore.SweepExpectedKey(sweepID), batchID, ttl); err != nil {
			return fmt.Errorf("failed to register expected batch: %w", err)
		}
	}

	a.mu.Lock()
	a.deadlines[sweepID] = a.now().Add(a.window)
	a.mu.Unlock()

	if err := a.adConfigs.UpdateStatus(ctx, sweepID, repository.AdStatusRunning, nil); err != nil {
		a.logger.Warn("failed to mark ad config running",
			zap.String("sweepId", sweepID),
			zap.Error(err),
		)
	}

	a.logger.Info("sweep registered",
		zap.String("sweepId", sweepID),
		zap.Int("expected", len(batchIDs)),
	)
	return nil
}

// Resolve records one batch's terminal outcome. The set-add is idempotent,
// so double delivery of the same batch id cannot inflate the resolved count.
// When the resolved set covers the expected set, the sweep exports.
func (a *Aggregator) Resolve(ctx context.Context, sweepID string, resolution domain.BatchResolution) error {
	if sweepID == "" || resolution.BatchID == "" {
		return fmt.Errorf("%w: sweep id and batch id are required", domain.ErrValidation)
	}

	ttl := a.storeTTL()
	if err := a.store.Put(ctx, batchstore.SweepResolutionKey(sweepID, resolution.BatchID), resolution, ttl); err != nil {
		return fmt.Errorf("failed to store resolution: %w", err)
	}

	first, err := a.store.AddToSet(ctx, batchstore.SweepResolvedKey(sweepID), resolution.BatchID, ttl)
	if err != nil {
		return fmt.Errorf("failed to record resolution: %w", err)
	}
	if !first {
		a.logger.Debug("duplicate resolution ignored",
			zap.String("sweepId", sweepID),
			zap.String("batchId", resolution.BatchID),
		)
	}

	return a.maybeExport(ctx, sweepID, false)
}

// Start runs the aggregation-window watchdog: sweeps that outlive their
// window export partially with whatever resolved.
func (a *Aggregator) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.sweepExpired(ctx)
		}
	}
}

func (a *Aggregator) sweepExpired(ctx context.Context) {
	now := a.now()

	a.mu.Lock()
	var due []string
	for sweepID, deadline := range a.deadlines {
		if !deadline.After(now) {
			due = append(due, sweepID)
		}
	}
	a.mu.Unlock()

	for _, sweepID := range due {
		if err := a.maybeExport(ctx, sweepID, true); err != nil {
			a.logger.Error("partial export failed",
				zap.String("sweepId", sweepID),
				zap.Error(err),
			)
		}
	}
}

// maybeExport exports the sweep when it is complete, or when force is set
// and the window elapsed. The exported flag is claimed with PutNX so
// concurrent resolutions and the watchdog cannot export twice.
func (a *Aggregator) maybeExport(ctx context.Context, sweepID string, force bool) error {
	expected, err := a.store.SetSize(ctx, batchstore.SweepExpectedKey(sweepID))
	if err != nil {
		return fmt.Errorf("failed to read expected set: %w", err)
	}
	if expected == 0 {
		// Expired or never registered; nothing to export.
		a.forget(sweepID)
		return nil
	}

	resolved, err := a.store.SetSize(ctx, batchstore.SweepResolvedKey(sweepID))
	if err != nil {
		return fmt.Errorf("failed to read resolved set: %w", err)
	}

	complete := resolved >= expected
	if !complete && !force {
		return nil
	}

	won, err := a.store.PutNX(ctx, batchstore.SweepExportedKey(sweepID), true, a.storeTTL())
	if err != nil {
		return fmt.Errorf("failed to claim export: %w", err)
	}
	if !won {
		a.forget(sweepID)
		return nil
	}

	resolutions, err := a.collectResolutions(ctx, sweepID)
	if err != nil {
		return err
	}

	partial := !complete
	if err := a.exporter.Export(ctx, sweepID, resolutions, partial); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	status := repository.AdStatusExported
	completeness := "complete"
	if partial {
		status = repository.AdStatusPartial
		completeness = "partial"
	}
	if err := a.adConfigs.MarkExported(ctx, sweepID, status, a.now().UTC()); err != nil {
		a.logger.Warn("failed to mark ad config exported",
			zap.String("sweepId", sweepID),
			zap.Error(err),
		)
	}
	if a.metrics != nil {
		a.metrics.IncSweepExported(completeness)
	}

	a.forget(sweepID)
	a.logger.Info("sweep exported",
		zap.String("sweepId", sweepID),
		zap.Int64("expected", expected),
		zap.Int64("resolved", resolved),
		zap.Bool("partial", partial),
	)
	return nil
}

func (a *Aggregator) collectResolutions(ctx context.Context, sweepID string) ([]domain.BatchResolution, error) {
	batchIDs, err := a.store.SetMembers(ctx, batchstore.SweepResolvedKey(sweepID))
	if err != nil {
		return nil, fmt.Errorf("failed to list resolved batches: %w", err)
	}

	resolutions := make([]domain.BatchResolution, 0, len(batchIDs))
	for _, batchID := range batchIDs {
		var resolution domain.BatchResolution
		ok, err := a.store.Get(ctx, batchstore.SweepResolutionKey(sweepID, batchID), &resolution)
		if err != nil {
			return nil, fmt.Errorf("failed to read resolution: %w", err)
		}
		if !ok {
			// Record expired between the set-add and this read; the
			// membership still counts, the detail is gone.
			resolution = domain.BatchResolution{BatchID: batchID, Failed: true, Reason: "resolution record expired"}
		}
		resolutions = append(resolutions, resolution)
	}
	return resolutions, nil
}

func (a *Aggregator) forget(sweepID string) {
	a.mu.Lock()
	delete(a.deadlines, sweepID)
	a.mu.Unlock()
}

// storeTTL keeps sweep bookkeeping alive past the aggregation window so the
// watchdog can still read it at the deadline edge.
func (a *Aggregator) storeTTL() time.Duration {
	return a.window * 2
}

// LogExporter is the default export collaborator: it logs the finalized set.
// Real delivery artifacts are produced by downstream tooling.
type LogExporter struct {
	logger *zap.Logger
}

func NewLogExporter(logger *zap.Logger) *LogExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogExporter{logger: logger}
}

func (e *LogExporter) Export(ctx context.Context, sweepID string, resolutions []domain.BatchResolution, partial bool) error {
	succeeded := 0
	for _, r := range resolutions {
		if !r.Failed {
			succeeded++
		}
	}

	e.logger.Info("sweep export",
		zap.String("sweepId", sweepID),
		zap.Int("resolutions", len(resolutions)),
		zap.Int("succeeded", succeeded),
		zap.Bool("partial", partial),
	)
	return nil
}
