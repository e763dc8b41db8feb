package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Julianhima91/himatrips-backend/internal/domain"
	"github.com/Julianhima91/himatrips-backend/internal/service"
	"github.com/Julianhima91/himatrips-backend/internal/transport"
)

type stubSearchService struct {
	searchFn func(ctx context.Context, req service.SearchRequest) (*service.SearchResult, error)
}

func (s *stubSearchService) Search(ctx context.Context, req service.SearchRequest) (*service.SearchResult, error) {
	return s.searchFn(ctx, req)
}

type stubPackageReader struct {
	getFn func(ctx context.Context, batchID string) (*domain.Package, error)
}

func (s *stubPackageReader) GetByBatchID(ctx context.Context, batchID string) (*domain.Package, error) {
	if s.getFn != nil {
		return s.getFn(ctx, batchID)
	}
	return nil, domain.ErrNotFound
}

type stubDestinationLister struct {
	listFn func(ctx context.Context, origin string) ([]string, error)
}

func (s *stubDestinationLister) ListDestinations(ctx context.Context, origin string) ([]string, error) {
	if s.listFn != nil {
		return s.listFn(ctx, origin)
	}
	return nil, nil
}

func assembledPackage() *domain.Package {
	return &domain.Package{
		ID:       "p1",
		BatchID:  "b1",
		Category: domain.CategoryLive,
		Outbound: domain.FlightCandidate{Price: 100, Currency: "EUR"},
		Return:   domain.FlightCandidate{Price: 100, Currency: "EUR"},
		Hotel:    domain.HotelCandidate{HotelID: "h1", Name: "Hotel Roma"},
		Offer: domain.HotelOffer{
			OfferID:  "o1",
			Basis:    domain.BasisBreakfast,
			Price:    300,
			Currency: "EUR",
		},
		TransferPrice: 30,
		Commission:    80,
		TotalPrice:    610,
		CreatedAt:     time.Unix(1_760_000_000, 0).UTC(),
	}
}

func newSearchTestApp(t *testing.T, svc SearchService, packages PackageReader) *fiber.App {
	return newSearchTestAppWithDestinations(t, svc, packages, &stubDestinationLister{})
}

func newSearchTestAppWithDestinations(t *testing.T, svc SearchService, packages PackageReader, destinations DestinationLister) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterSearchRoutes(app, svc, packages, destinations); err != nil {
		t.Fatalf("RegisterSearchRoutes() error = %v", err)
	}

	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

const searchPath = "/v1/search?origin=TIA&destination=FCO&departDate=2026-09-10&returnDate=2026-09-14&adults=2"

func TestSearchReturnsPackage(t *testing.T) {
	t.Parallel()

	svc := &stubSearchService{
		searchFn: func(ctx context.Context, req service.SearchRequest) (*service.SearchResult, error) {
			if req.Origin != "TIA" || req.Destination != "FCO" {
				t.Fatalf("route = %s-%s, want TIA-FCO", req.Origin, req.Destination)
			}
			if req.Pax.Adults != 2 {
				t.Fatalf("adults = %d, want 2", req.Pax.Adults)
			}
			return &service.SearchResult{BatchID: "b1", Found: true, Package: assembledPackage()}, nil
		},
	}

	app := newSearchTestApp(t, svc, &stubPackageReader{})

	resp, body := performRequest(t, app, http.MethodGet, searchPath)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if !result.Found {
		t.Fatal("found = false, want true")
	}
	if len(result.Packages) != 1 {
		t.Fatalf("packages = %d, want 1", len(result.Packages))
	}
	if result.Packages[0].TotalPrice != 610 {
		t.Fatalf("total price = %v, want 610", result.Packages[0].TotalPrice)
	}
	if result.Meta.Total != 1 {
		t.Fatalf("meta total = %d, want 1", result.Meta.Total)
	}
}

func TestSearchNoPackagesFound(t *testing.T) {
	t.Parallel()

	svc := &stubSearchService{
		searchFn: func(ctx context.Context, req service.SearchRequest) (*service.SearchResult, error) {
			return &service.SearchResult{BatchID: "b1", Found: false}, nil
		},
	}

	app := newSearchTestApp(t, svc, &stubPackageReader{})

	resp, body := performRequest(t, app, http.MethodGet, searchPath)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 for a structured empty result", resp.StatusCode)
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if result.Found {
		t.Fatal("found = true, want false")
	}
	if result.Message != "no packages found" {
		t.Fatalf("message = %q, want %q", result.Message, "no packages found")
	}
	if len(result.Packages) != 0 {
		t.Fatalf("packages = %d, want 0", len(result.Packages))
	}
}

func TestSearchValidatesParameters(t *testing.T) {
	t.Parallel()

	svc := &stubSearchService{
		searchFn: func(ctx context.Context, req service.SearchRequest) (*service.SearchResult, error) {
			t.Fatal("service should not be reached on invalid parameters")
			return nil, nil
		},
	}
	app := newSearchTestApp(t, svc, &stubPackageReader{})

	cases := []struct {
		name string
		path string
	}{
		{"missing depart date", "/v1/search?origin=TIA&destination=FCO&returnDate=2026-09-14&adults=2"},
		{"malformed date", "/v1/search?origin=TIA&destination=FCO&departDate=10-09-2026&returnDate=2026-09-14&adults=2"},
		{"bad page", searchPath + "&page=0"},
		{"oversized page size", searchPath + "&pageSize=500"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := performRequest(t, app, http.MethodGet, tc.path)
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestSearchServiceValidationErrorMapsTo400(t *testing.T) {
	t.Parallel()

	svc := &stubSearchService{
		searchFn: func(ctx context.Context, req service.SearchRequest) (*service.SearchResult, error) {
			return nil, domain.ErrValidation
		},
	}
	app := newSearchTestApp(t, svc, &stubPackageReader{})

	resp, _ := performRequest(t, app, http.MethodGet, searchPath)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetBatchPackage(t *testing.T) {
	t.Parallel()

	packages := &stubPackageReader{
		getFn: func(ctx context.Context, batchID string) (*domain.Package, error) {
			if batchID != "b1" {
				return nil, domain.ErrNotFound
			}
			return assembledPackage(), nil
		},
	}
	svc := &stubSearchService{
		searchFn: func(ctx context.Context, req service.SearchRequest) (*service.SearchResult, error) {
			return nil, nil
		},
	}
	app := newSearchTestApp(t, svc, packages)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/batches/b1/package")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var pkg packageResponse
	if err := json.Unmarshal(body, &pkg); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if pkg.ID != "p1" || pkg.HotelName != "Hotel Roma" {
		t.Fatalf("unexpected package %+v", pkg)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/batches/unknown/package")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListDestinations(t *testing.T) {
	t.Parallel()

	destinations := &stubDestinationLister{
		listFn: func(ctx context.Context, origin string) ([]string, error) {
			if origin != "TIA" {
				t.Fatalf("origin = %q, want TIA", origin)
			}
			return []string{"FCO", "VIE"}, nil
		},
	}
	svc := &stubSearchService{
		searchFn: func(ctx context.Context, req service.SearchRequest) (*service.SearchResult, error) {
			return nil, nil
		},
	}
	app := newSearchTestAppWithDestinations(t, svc, &stubPackageReader{}, destinations)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/destinations?origin=TIA")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var result struct {
		Origin       string   `json:"origin"`
		Destinations []string `json:"destinations"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if result.Origin != "TIA" || len(result.Destinations) != 2 {
		t.Fatalf("unexpected response %+v", result)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/destinations")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status without origin = %d, want 400", resp.StatusCode)
	}
}
