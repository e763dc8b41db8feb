package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Julianhima91/himatrips-backend/internal/domain"
)

func TestRESTGatewaySearchRoundTripSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/flights/round-trip" {
			t.Errorf("path = %s, want /v1/flights/round-trip", r.URL.Path)
		}
		if got := r.URL.Query().Get("origin"); got != "TIA" {
			t.Errorf("origin = %s, want TIA", got)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"itineraries":[
			{"carrier":"AZ","price":189.5,"currency":"EUR",
			 "outbound":{"origin":"TIA","destination":"FCO","departureAt":"2026-06-01T07:00:00Z","arrivalAt":"2026-06-01T08:30:00Z","stops":0},
			 "return":{"origin":"FCO","destination":"TIA","departureAt":"2026-06-08T19:00:00Z","arrivalAt":"2026-06-08T20:30:00Z","stops":0}},
			{"carrier":"XX","price":-5,"currency":"EUR",
			 "outbound":{"departureAt":"2026-06-01T07:00:00Z","arrivalAt":"2026-06-01T08:30:00Z"},
			 "return":{"departureAt":"2026-06-08T19:00:00Z","arrivalAt":"2026-06-08T20:30:00Z"}}
		]}`)
	}))
	defer server.Close()

	gateway, err := NewRESTGateway(server.URL, "", domain.SourceAmadeus)
	if err != nil {
		t.Fatalf("NewRESTGateway() error = %v", err)
	}

	candidates, err := gateway.SearchRoundTrip(context.Background(), RoundTripRequest{
		Origin:      "TIA",
		Destination: "FCO",
		DepartDate:  time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		ReturnDate:  time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC),
		Pax:         domain.Pax{Adults: 2},
	})
	if err != nil {
		t.Fatalf("SearchRoundTrip() error = %v", err)
	}

	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1 (malformed row dropped at boundary)", len(candidates))
	}
	if candidates[0].Source != domain.SourceAmadeus {
		t.Fatalf("source = %s, want AMADEUS", candidates[0].Source)
	}
	if candidates[0].Price != 189.5 {
		t.Fatalf("price = %v, want 189.5", candidates[0].Price)
	}
	if !candidates[0].Direct() {
		t.Fatal("candidate should be direct")
	}
}

func TestRESTGatewayStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		wantTransient bool
	}{
		{name: "too many requests is transient", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "internal error is transient", statusCode: http.StatusInternalServerError, wantTransient: true},
		{name: "bad request is permanent", statusCode: http.StatusBadRequest, wantTransient: false},
		{name: "not found is permanent", statusCode: http.StatusNotFound, wantTransient: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.statusCode)
			}))
			defer server.Close()

			gateway, err := NewRESTGateway(server.URL, "key", domain.SourceSabre)
			if err != nil {
				t.Fatalf("NewRESTGateway() error = %v", err)
			}

			_, err = gateway.SearchRoundTrip(context.Background(), RoundTripRequest{Origin: "TIA", Destination: "FCO"})
			if err == nil {
				t.Fatal("SearchRoundTrip() error = nil, want error")
			}

			var gatewayErr *GatewayError
			if !errors.As(err, &gatewayErr) {
				t.Fatalf("error type = %T, want *GatewayError", err)
			}
			if gatewayErr.Transient != tc.wantTransient {
				t.Fatalf("Transient = %v, want %v", gatewayErr.Transient, tc.wantTransient)
			}
			if IsTransient(err) != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", IsTransient(err), tc.wantTransient)
			}
		})
	}
}

func TestRESTGatewaySearchPriceGridDropsUnpricedDays(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("month"); got != "2026-06" {
			t.Errorf("month = %s, want 2026-06", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"days":[{"day":1,"price":100,"direct":true},{"day":2,"price":0},{"day":40,"price":50}]}`)
	}))
	defer server.Close()

	gateway, err := NewRESTGateway(server.URL, "", domain.SourceAmadeus)
	if err != nil {
		t.Fatalf("NewRESTGateway() error = %v", err)
	}

	grid, err := gateway.SearchPriceGrid(context.Background(), PriceGridRequest{
		Origin: "TIA", Destination: "FCO", Year: 2026, Month: 6,
	})
	if err != nil {
		t.Fatalf("SearchPriceGrid() error = %v", err)
	}

	if len(grid.Points) != 1 {
		t.Fatalf("points = %d, want 1 usable day", len(grid.Points))
	}
	if price, ok := grid.PriceOn(1); !ok || price != 100 {
		t.Fatalf("PriceOn(1) = %v/%v, want 100/true", price, ok)
	}
}

func TestRESTGatewaySearchHotels(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("hotels"); got != "h1,h2" {
			t.Errorf("hotels = %s, want h1,h2", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"hotels":[
			{"hotelId":"h1","name":"Hotel Adriatik","offers":[
				{"offerId":"o1","basis":"BB","roomType":"double","price":320,"currency":"EUR"},
				{"offerId":"o2","basis":"??","roomType":"double","price":280,"currency":"EUR"}
			]}
		]}`)
	}))
	defer server.Close()

	gateway, err := NewRESTGateway(server.URL, "", domain.SourceInternal)
	if err != nil {
		t.Fatalf("NewRESTGateway() error = %v", err)
	}

	hotels, err := gateway.SearchHotels(context.Background(), HotelSearchRequest{
		HotelIDs: []string{"h1", "h2"},
		CheckIn:  time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Nights:   7,
		Rooms:    1,
		Pax:      domain.Pax{Adults: 2},
	})
	if err != nil {
		t.Fatalf("SearchHotels() error = %v", err)
	}

	if len(hotels) != 1 {
		t.Fatalf("hotels = %d, want 1", len(hotels))
	}
	if len(hotels[0].Offers) != 1 {
		t.Fatalf("offers = %d, want 1 (unknown basis dropped)", len(hotels[0].Offers))
	}
	if hotels[0].Offers[0].Basis != domain.BasisBreakfast {
		t.Fatalf("basis = %s, want BB", hotels[0].Offers[0].Basis)
	}
}

func TestNewRESTGatewayValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewRESTGateway("", "", domain.SourceAmadeus); err == nil {
		t.Fatal("empty base url accepted")
	}
	if _, err := NewRESTGateway("http://example.com", "", domain.FlightSource("NOPE")); err == nil {
		t.Fatal("invalid source accepted")
	}
}
