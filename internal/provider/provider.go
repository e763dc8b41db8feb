package provider

import (
	"context"
	"time"

	"github.com/Julianhima91/himatrips-backend/internal/domain"
)

// Gateway is the outbound port to one external travel provider. Errors are
// opaque to callers beyond "did it return usable data": retry policy lives
// with the coordinator, never inside the gateway.
type Gateway interface {
	// SearchRoundTrip returns itinerary candidates for a fixed date pair.
	SearchRoundTrip(ctx context.Context, req RoundTripRequest) ([]domain.FlightCandidate, error)
	// SearchPriceGrid returns per-day lowest prices for one direction and
	// month.
	SearchPriceGrid(ctx context.Context, req PriceGridRequest) (domain.PriceGrid, error)
	// SearchHotels returns hotel availability for a stay.
	SearchHotels(ctx context.Context, req HotelSearchRequest) ([]domain.HotelCandidate, error)
	// Source identifies this provider in first-writer-wins bookkeeping.
	Source() domain.FlightSource
}

type RoundTripRequest struct {
	Origin      string
	Destination string
	DepartDate  time.Time
	ReturnDate  time.Time
	Pax         domain.Pax
}

type PriceGridRequest struct {
	Origin      string
	Destination string
	Year        int
	Month       int
}

type HotelSearchRequest struct {
	HotelIDs []string
	CheckIn  time.Time
	Nights   int
	Rooms    int
	Pax      domain.Pax
}
