package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Julianhima91/himatrips-backend/internal/batchstore"
	"github.com/Julianhima91/himatrips-backend/internal/domain"
	"github.com/Julianhima91/himatrips-backend/internal/queue"
	"github.com/Julianhima91/himatrips-backend/internal/repository"
)

type fakeBatchRepo struct {
	created *domain.SearchBatch
	getFn   func(ctx context.Context, id string) (*domain.SearchBatch, error)
}

func (f *fakeBatchRepo) Create(ctx context.Context, b *domain.SearchBatch) error {
	f.created = b
	return nil
}
func (f *fakeBatchRepo) GetByID(ctx context.Context, id string) (*domain.SearchBatch, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}
func (f *fakeBatchRepo) UpdateStatus(ctx context.Context, id string, status domain.BatchStatus) error {
	return nil
}
func (f *fakeBatchRepo) ListBySweep(ctx context.Context, sweepID string) ([]domain.SearchBatch, error) {
	return nil, nil
}

type fakeTaskRepo struct {
	created []domain.FetchTask
	due     []domain.FetchTask
	failed  map[string]string
	cleared []string
}

func (f *fakeTaskRepo) Create(ctx context.Context, t *domain.FetchTask) error {
	f.created = append(f.created, *t)
	return nil
}
func (f *fakeTaskRepo) GetByID(ctx context.Context, id string) (*domain.FetchTask, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeTaskRepo) LockForRun(ctx context.Context, id string) (*domain.FetchTask, error) {
	return nil, nil
}
func (f *fakeTaskRepo) MarkSucceeded(ctx context.Context, id string) error { return nil }
func (f *fakeTaskRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	if f.failed == nil {
		f.failed = make(map[string]string)
	}
	f.failed[id] = reason
	return nil
}
func (f *fakeTaskRepo) ScheduleRetry(ctx context.Context, id string, reason string, nextRetryAt time.Time) error {
	return nil
}
func (f *fakeTaskRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.FetchTask, error) {
	return f.due, nil
}
func (f *fakeTaskRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	f.cleared = append(f.cleared, id)
	return nil
}
func (f *fakeTaskRepo) CountUnfinished(ctx context.Context, batchID string, kind domain.TaskKind) (int64, error) {
	return 0, nil
}

type fakeRouteRepo struct {
	routes map[string]*repository.Route
}

func (f *fakeRouteRepo) GetRoute(ctx context.Context, origin, destination string) (*repository.Route, error) {
	route, ok := f.routes[origin+"-"+destination]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return route, nil
}
func (f *fakeRouteRepo) ListDestinations(ctx context.Context, origin string) ([]string, error) {
	return nil, nil
}

type fakePublisher struct {
	published []queue.FetchTaskMessage
	queues    []string
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.FetchTaskMessage) error {
	f.published = append(f.published, msg)
	f.queues = append(f.queues, queueName)
	return nil
}
func (f *fakePublisher) Close() error { return nil }

type serviceHarness struct {
	svc       *SearchService
	batches   *fakeBatchRepo
	tasks     *fakeTaskRepo
	publisher *fakePublisher
	store     *batchstore.MemoryStore
	clock     *fakeClock
}

// fakeClock drives both now() and the poll sleeps so tests never wait.
type fakeClock struct {
	current time.Time
	sleeps  int
	onSleep func(n int)
}

func (c *fakeClock) now() time.Time { return c.current }

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	c.current = c.current.Add(d)
	c.sleeps++
	if c.onSleep != nil {
		c.onSleep(c.sleeps)
	}
	return nil
}

func newHarness(t *testing.T) *serviceHarness {
	t.Helper()

	batches := &fakeBatchRepo{}
	tasks := &fakeTaskRepo{}
	routes := &fakeRouteRepo{routes: map[string]*repository.Route{
		"TIA-FCO": {ID: "r1", HotelIDs: []string{"h1"}, Policy: domain.SelectionPolicy{RouteID: "r1"}},
	}}
	publisher := &fakePublisher{}
	store := batchstore.NewMemoryStore()

	svc, err := NewSearchService(
		batches,
		tasks,
		routes,
		store,
		publisher,
		[]domain.FlightSource{domain.SourceAmadeus, domain.SourceSabre},
		500*time.Millisecond,
		5*time.Second,
		time.Minute,
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("NewSearchService() error = %v", err)
	}

	clock := &fakeClock{current: time.Unix(1_760_000_000, 0)}
	svc.now = clock.now
	svc.sleep = clock.sleep

	ids := 0
	svc.newID = func() string {
		ids++
		if ids == 1 {
			return "batch-1"
		}
		return "task-" + string(rune('0'+ids))
	}

	return &serviceHarness{svc: svc, batches: batches, tasks: tasks, publisher: publisher, store: store, clock: clock}
}

func validRequest() SearchRequest {
	return SearchRequest{
		Origin:      "TIA",
		Destination: "FCO",
		DepartDate:  time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		ReturnDate:  time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
		Pax:         domain.Pax{Adults: 2},
	}
}

func TestSearchReturnsPackageWhenAssembled(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	// The package lands while the search is polling.
	h.clock.onSleep = func(n int) {
		if n == 2 {
			pkg := domain.Package{ID: "p1", BatchID: "batch-1", Category: domain.CategoryLive, TotalPrice: 550}
			if err := h.store.Put(ctx, batchstore.PackageKey("batch-1"), pkg, time.Minute); err != nil {
				t.Errorf("seed package: %v", err)
			}
		}
	}

	result, err := h.svc.Search(ctx, validRequest())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !result.Found {
		t.Fatal("result should be found")
	}
	if result.Package == nil || result.Package.ID != "p1" {
		t.Fatal("result should carry the assembled package")
	}

	// 2 flight sources + 1 hotels task.
	if len(h.tasks.created) != 3 {
		t.Fatalf("created tasks = %d, want 3", len(h.tasks.created))
	}
	if len(h.publisher.published) != 3 {
		t.Fatalf("published messages = %d, want 3", len(h.publisher.published))
	}
	for _, msg := range h.publisher.published {
		if msg.Category != domain.CategoryLive {
			t.Fatalf("message category = %s, want LIVE", msg.Category)
		}
	}
}

func TestSearchIgnoresAssemblyClaimPlaceholder(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	// An assembly claim without a package id must not satisfy the poll.
	claim := domain.Package{BatchID: "batch-1", Category: domain.CategoryLive}
	if err := h.store.Put(ctx, batchstore.PackageKey("batch-1"), claim, time.Minute); err != nil {
		t.Fatalf("seed claim: %v", err)
	}

	h.clock.onSleep = func(n int) {
		if n == 1 {
			pkg := domain.Package{ID: "p1", BatchID: "batch-1", Category: domain.CategoryLive, TotalPrice: 550}
			if err := h.store.Put(ctx, batchstore.PackageKey("batch-1"), pkg, time.Minute); err != nil {
				t.Errorf("seed package: %v", err)
			}
		}
	}

	result, err := h.svc.Search(ctx, validRequest())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !result.Found {
		t.Fatal("result should be found once the real package lands")
	}
	if h.clock.sleeps == 0 {
		t.Fatal("poll should have waited past the placeholder")
	}
}

func TestSearchTimesOutWithNoPackagesFound(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	result, err := h.svc.Search(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Found {
		t.Fatal("timed-out search must report not found")
	}
	if result.BatchID != "batch-1" {
		t.Fatalf("batch id = %q, want batch-1", result.BatchID)
	}

	// 5s ceiling at 500ms polls.
	if h.clock.sleeps < 8 {
		t.Fatalf("sleeps = %d, want at least 8", h.clock.sleeps)
	}
}

func TestSearchFailedBatchReturnsNotFoundEarly(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	if err := h.store.Put(ctx, batchstore.StatusKey("batch-1"), domain.BatchStatusFailed, time.Minute); err != nil {
		t.Fatalf("seed status: %v", err)
	}

	result, err := h.svc.Search(ctx, validRequest())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Found {
		t.Fatal("failed batch must report not found")
	}
	if h.clock.sleeps != 0 {
		t.Fatalf("sleeps = %d, want 0 for an early failure", h.clock.sleeps)
	}
}

func TestSearchUnknownRouteRejected(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	req := validRequest()
	req.Destination = "CDG"
	_, err := h.svc.Search(context.Background(), req)
	if err == nil {
		t.Fatal("unconfigured route should be rejected")
	}
	if h.batches.created != nil {
		t.Fatal("no batch should be created for an unconfigured route")
	}
}

func TestSearchRequestValidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	cases := []struct {
		name   string
		mutate func(*SearchRequest)
	}{
		{"missing origin", func(r *SearchRequest) { r.Origin = "" }},
		{"missing destination", func(r *SearchRequest) { r.Destination = "" }},
		{"return before departure", func(r *SearchRequest) { r.ReturnDate = r.DepartDate.AddDate(0, 0, -1) }},
		{"no adults", func(r *SearchRequest) { r.Pax = domain.Pax{Children: 1} }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			if _, err := h.svc.Search(context.Background(), req); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
