package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/Julianhima91/himatrips-backend/internal/domain"
)

const defaultGatewayTimeout = 20 * time.Second

// RESTGateway talks to a provider's search API over HTTP. One instance per
// configured source; client-side retries stay off because the coordinator
// owns the retry policy.
type RESTGateway struct {
	client  *resty.Client
	baseURL string
	source  domain.FlightSource
}

func NewRESTGateway(baseURL, apiKey string, source domain.FlightSource) (*RESTGateway, error) {
	client := resty.New()
	client.SetTimeout(defaultGatewayTimeout)
	client.SetRetryCount(0)
	if strings.TrimSpace(apiKey) != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}

	return NewRESTGatewayWithClient(baseURL, source, client)
}

func NewRESTGatewayWithClient(baseURL string, source domain.FlightSource, client *resty.Client) (*RESTGateway, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("provider base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid provider base url: %w", err)
	}
	if !source.IsValid() {
		return nil, fmt.Errorf("invalid provider source %q", source)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultGatewayTimeout)
	}
	client.SetRetryCount(0)

	return &RESTGateway{
		client:  client,
		baseURL: trimmed,
		source:  source,
	}, nil
}

func (g *RESTGateway) Source() domain.FlightSource {
	return g.source
}

type roundTripResponse struct {
	Itineraries []flightPayload `json:"itineraries"`
}

type flightPayload struct {
	Carrier  string     `json:"carrier"`
	Price    float64    `json:"price"`
	Currency string     `json:"currency"`
	Outbound legPayload `json:"outbound"`
	Return   legPayload `json:"return"`
}

type legPayload struct {
	Origin       string    `json:"origin"`
	Destination  string    `json:"destination"`
	DepartureAt  time.Time `json:"departureAt"`
	ArrivalAt    time.Time `json:"arrivalAt"`
	Stops        int       `json:"stops"`
	MaxWaitMins  int       `json:"maxWaitMinutes"`
}

func (g *RESTGateway) SearchRoundTrip(ctx context.Context, req RoundTripRequest) ([]domain.FlightCandidate, error) {
	var payload roundTripResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"origin":      req.Origin,
			"destination": req.Destination,
			"depart":      req.DepartDate.Format("2006-01-02"),
			"return":      req.ReturnDate.Format("2006-01-02"),
			"adults":      fmt.Sprint(req.Pax.Adults),
			"children":    fmt.Sprint(req.Pax.Children),
			"infants":     fmt.Sprint(req.Pax.Infants),
		}).
		SetResult(&payload).
		Get(g.baseURL + "/v1/flights/round-trip")
	if err := g.checkResponse(resp, err); err != nil {
		return nil, err
	}

	candidates := make([]domain.FlightCandidate, 0, len(payload.Itineraries))
	for _, it := range payload.Itineraries {
		candidate := domain.FlightCandidate{
			Source:   g.source,
			Carrier:  it.Carrier,
			Price:    it.Price,
			Currency: it.Currency,
			Outbound: legFromPayload(it.Outbound),
			Return:   legFromPayload(it.Return),
			Pax:      req.Pax,
		}
		if err := candidate.Validate(); err != nil {
			// Malformed rows are dropped at the boundary so downstream
			// stages never need null checks.
			continue
		}
		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

type priceGridResponse struct {
	Days []struct {
		Day    int     `json:"day"`
		Price  float64 `json:"price"`
		Direct bool    `json:"direct"`
	} `json:"days"`
}

func (g *RESTGateway) SearchPriceGrid(ctx context.Context, req PriceGridRequest) (domain.PriceGrid, error) {
	var payload priceGridResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"origin":      req.Origin,
			"destination": req.Destination,
			"month":       fmt.Sprintf("%04d-%02d", req.Year, req.Month),
		}).
		SetResult(&payload).
		Get(g.baseURL + "/v1/flights/price-grid")
	if err := g.checkResponse(resp, err); err != nil {
		return domain.PriceGrid{}, err
	}

	grid := domain.PriceGrid{
		Origin:      req.Origin,
		Destination: req.Destination,
		Year:        req.Year,
		Month:       req.Month,
	}
	for _, day := range payload.Days {
		if day.Price <= 0 || day.Day < 1 || day.Day > 31 {
			continue
		}
		grid.Points = append(grid.Points, domain.PriceGridPoint{
			Day:    day.Day,
			Price:  day.Price,
			Direct: day.Direct,
		})
	}

	return grid, nil
}

type hotelSearchResponse struct {
	Hotels []struct {
		HotelID string `json:"hotelId"`
		Name    string `json:"name"`
		Offers  []struct {
			OfferID              string    `json:"offerId"`
			Basis                string    `json:"basis"`
			RoomType             string    `json:"roomType"`
			Price                float64   `json:"price"`
			Currency             string    `json:"currency"`
			CancellationDeadline time.Time `json:"cancellationDeadline"`
		} `json:"offers"`
	} `json:"hotels"`
}

func (g *RESTGateway) SearchHotels(ctx context.Context, req HotelSearchRequest) ([]domain.HotelCandidate, error) {
	var payload hotelSearchResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"hotels":  strings.Join(req.HotelIDs, ","),
			"checkin": req.CheckIn.Format("2006-01-02"),
			"nights":  fmt.Sprint(req.Nights),
			"rooms":   fmt.Sprint(req.Rooms),
			"adults":  fmt.Sprint(req.Pax.Adults),
		}).
		SetResult(&payload).
		Get(g.baseURL + "/v1/hotels/search")
	if err := g.checkResponse(resp, err); err != nil {
		return nil, err
	}

	candidates := make([]domain.HotelCandidate, 0, len(payload.Hotels))
	for _, h := range payload.Hotels {
		candidate := domain.HotelCandidate{
			HotelID: h.HotelID,
			Name:    h.Name,
			CheckIn: req.CheckIn,
			Nights:  req.Nights,
			Rooms:   req.Rooms,
			Pax:     req.Pax,
		}
		for _, o := range h.Offers {
			basis, err := domain.ParseRoomBasisFromString(o.Basis)
			if err != nil {
				continue
			}
			candidate.Offers = append(candidate.Offers, domain.HotelOffer{
				OfferID:              o.OfferID,
				Basis:                basis,
				RoomType:             o.RoomType,
				Price:                o.Price,
				Currency:             o.Currency,
				CancellationDeadline: o.CancellationDeadline,
			})
		}
		if err := candidate.Validate(); err != nil {
			continue
		}
		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

func (g *RESTGateway) checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return &GatewayError{
			Message:   "provider request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if resp == nil {
		return &GatewayError{Message: "provider returned empty response", Transient: true}
	}

	statusCode := resp.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &GatewayError{
		StatusCode: statusCode,
		Message:    fmt.Sprintf("provider returned status %d", statusCode),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func legFromPayload(p legPayload) domain.Leg {
	return domain.Leg{
		Origin:      p.Origin,
		Destination: p.Destination,
		DepartureAt: p.DepartureAt,
		ArrivalAt:   p.ArrivalAt,
		Stops:       p.Stops,
		MaxWait:     time.Duration(p.MaxWaitMins) * time.Minute,
	}
}
