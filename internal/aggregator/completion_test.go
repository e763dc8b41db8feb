package aggregator

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Julianhima91/himatrips-backend/internal/batchstore"
	"github.com/Julianhima91/himatrips-backend/internal/domain"
	"github.com/Julianhima91/himatrips-backend/internal/repository"
)

type fakeExporter struct {
	exportFn func(ctx context.Context, sweepID string, resolutions []domain.BatchResolution, partial bool) error
	calls    int
}

func (f *fakeExporter) Export(ctx context.Context, sweepID string, resolutions []domain.BatchResolution, partial bool) error {
	f.calls++
	if f.exportFn != nil {
		return f.exportFn(ctx, sweepID, resolutions, partial)
	}
	return nil
}

type fakeAdConfigRepo struct {
	updateStatusFn func(ctx context.Context, id string, status string, detail *string) error
	markExportedFn func(ctx context.Context, id string, status string, exportedAt time.Time) error
}

func (f *fakeAdConfigRepo) Create(ctx context.Context, cfg *repository.AdConfigModel) error {
	return nil
}
func (f *fakeAdConfigRepo) UpdateStatus(ctx context.Context, id string, status string, detail *string) error {
	if f.updateStatusFn != nil {
		return f.updateStatusFn(ctx, id, status, detail)
	}
	return nil
}
func (f *fakeAdConfigRepo) MarkExported(ctx context.Context, id string, status string, exportedAt time.Time) error {
	if f.markExportedFn != nil {
		return f.markExportedFn(ctx, id, status, exportedAt)
	}
	return nil
}

func newTestAggregator(t *testing.T, exporter *fakeExporter, adConfigs *fakeAdConfigRepo) (*Aggregator, *batchstore.MemoryStore) {
	t.Helper()

	store := batchstore.NewMemoryStore()
	if exporter == nil {
		exporter = &fakeExporter{}
	}
	if adConfigs == nil {
		adConfigs = &fakeAdConfigRepo{}
	}

	agg, err := New(store, exporter, adConfigs, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	agg.now = func() time.Time { return time.Unix(1_760_000_000, 0) }
	return agg, store
}

func resolution(batchID string, failed bool) domain.BatchResolution {
	res := domain.BatchResolution{
		BatchID:    batchID,
		ResolvedAt: time.Unix(1_760_000_000, 0),
	}
	if failed {
		res.Failed = true
		res.Reason = "no flights"
	} else {
		res.PackageID = "pkg-" + batchID
	}
	return res
}

func TestResolveExportsWhenComplete(t *testing.T) {
	t.Parallel()

	var exported []domain.BatchResolution
	var exportedPartial bool
	exporter := &fakeExporter{
		exportFn: func(ctx context.Context, sweepID string, resolutions []domain.BatchResolution, partial bool) error {
			exported = resolutions
			exportedPartial = partial
			return nil
		},
	}

	var markedStatus string
	adConfigs := &fakeAdConfigRepo{
		markExportedFn: func(ctx context.Context, id string, status string, exportedAt time.Time) error {
			markedStatus = status
			return nil
		},
	}

	agg, _ := newTestAggregator(t, exporter, adConfigs)
	ctx := context.Background()

	if err := agg.Register(ctx, "s1", []string{"b1", "b2", "b3"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := agg.Resolve(ctx, "s1", resolution("b1", false)); err != nil {
		t.Fatalf("Resolve(b1) error = %v", err)
	}
	if exporter.calls != 0 {
		t.Fatal("export must not fire before the set is complete")
	}

	if err := agg.Resolve(ctx, "s1", resolution("b2", true)); err != nil {
		t.Fatalf("Resolve(b2) error = %v", err)
	}
	if err := agg.Resolve(ctx, "s1", resolution("b3", false)); err != nil {
		t.Fatalf("Resolve(b3) error = %v", err)
	}

	if exporter.calls != 1 {
		t.Fatalf("export calls = %d, want 1", exporter.calls)
	}
	if exportedPartial {
		t.Fatal("complete sweep must not export as partial")
	}
	if len(exported) != 3 {
		t.Fatalf("exported resolutions = %d, want 3", len(exported))
	}
	if markedStatus != repository.AdStatusExported {
		t.Fatalf("ad config status = %q, want EXPORTED", markedStatus)
	}
}

func TestResolveToleratesDuplicatesAndOutOfOrder(t *testing.T) {
	t.Parallel()

	exporter := &fakeExporter{}
	agg, _ := newTestAggregator(t, exporter, nil)
	ctx := context.Background()

	if err := agg.Register(ctx, "s1", []string{"b1", "b2"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// b2 before b1, and b2 delivered twice.
	if err := agg.Resolve(ctx, "s1", resolution("b2", false)); err != nil {
		t.Fatalf("Resolve(b2) error = %v", err)
	}
	if err := agg.Resolve(ctx, "s1", resolution("b2", false)); err != nil {
		t.Fatalf("Resolve(b2 duplicate) error = %v", err)
	}
	if exporter.calls != 0 {
		t.Fatal("duplicate resolution must not complete the sweep")
	}

	if err := agg.Resolve(ctx, "s1", resolution("b1", false)); err != nil {
		t.Fatalf("Resolve(b1) error = %v", err)
	}
	if exporter.calls != 1 {
		t.Fatalf("export calls = %d, want 1", exporter.calls)
	}
}

func TestExportHappensExactlyOnce(t *testing.T) {
	t.Parallel()

	exporter := &fakeExporter{}
	agg, _ := newTestAggregator(t, exporter, nil)
	ctx := context.Background()

	if err := agg.Register(ctx, "s1", []string{"b1"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := agg.Resolve(ctx, "s1", resolution("b1", false)); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	// A late duplicate after export must not export again.
	if err := agg.Resolve(ctx, "s1", resolution("b1", false)); err != nil {
		t.Fatalf("Resolve(duplicate) error = %v", err)
	}

	if exporter.calls != 1 {
		t.Fatalf("export calls = %d, want 1", exporter.calls)
	}
}

func TestWindowTimeoutExportsPartial(t *testing.T) {
	t.Parallel()

	var exportedPartial bool
	var exportedCount int
	exporter := &fakeExporter{
		exportFn: func(ctx context.Context, sweepID string, resolutions []domain.BatchResolution, partial bool) error {
			exportedPartial = partial
			exportedCount = len(resolutions)
			return nil
		},
	}

	var markedStatus string
	adConfigs := &fakeAdConfigRepo{
		markExportedFn: func(ctx context.Context, id string, status string, exportedAt time.Time) error {
			markedStatus = status
			return nil
		},
	}

	agg, _ := newTestAggregator(t, exporter, adConfigs)
	ctx := context.Background()

	if err := agg.Register(ctx, "s1", []string{"b1", "b2", "b3"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := agg.Resolve(ctx, "s1", resolution("b1", false)); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	// Advance past the aggregation window and run the watchdog.
	agg.now = func() time.Time { return time.Unix(1_760_000_000, 0).Add(2 * time.Hour) }
	agg.sweepExpired(ctx)

	if exporter.calls != 1 {
		t.Fatalf("export calls = %d, want 1", exporter.calls)
	}
	if !exportedPartial {
		t.Fatal("timeout export should be marked partial")
	}
	if exportedCount != 1 {
		t.Fatalf("exported resolutions = %d, want 1", exportedCount)
	}
	if markedStatus != repository.AdStatusPartial {
		t.Fatalf("ad config status = %q, want PARTIAL", markedStatus)
	}
}

func TestWatchdogSkipsSweepStillInsideWindow(t *testing.T) {
	t.Parallel()

	exporter := &fakeExporter{}
	agg, _ := newTestAggregator(t, exporter, nil)
	ctx := context.Background()

	if err := agg.Register(ctx, "s1", []string{"b1", "b2"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	agg.sweepExpired(ctx)

	if exporter.calls != 0 {
		t.Fatalf("export calls = %d, want 0", exporter.calls)
	}
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	agg, _ := newTestAggregator(t, nil, nil)
	ctx := context.Background()

	if err := agg.Register(ctx, "", []string{"b1"}); err == nil {
		t.Fatal("empty sweep id should be rejected")
	}
	if err := agg.Register(ctx, "s1", nil); err == nil {
		t.Fatal("empty batch set should be rejected")
	}
}
