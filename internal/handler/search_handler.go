package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Julianhima91/himatrips-backend/internal/domain"
	"github.com/Julianhima91/himatrips-backend/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100

	dateLayout = "2006-01-02"
)

type SearchService interface {
	Search(ctx context.Context, req service.SearchRequest) (*service.SearchResult, error)
}

type PackageReader interface {
	GetByBatchID(ctx context.Context, batchID string) (*domain.Package, error)
}

// DestinationLister exposes the routes an origin airport can search.
type DestinationLister interface {
	ListDestinations(ctx context.Context, origin string) ([]string, error)
}

type SearchHandler struct {
	service      SearchService
	packages     PackageReader
	destinations DestinationLister
}

func NewSearchHandler(svc SearchService, packages PackageReader, destinations DestinationLister) (*SearchHandler, error) {
	if svc == nil {
		return nil, fmt.Errorf("search service is required")
	}
	if packages == nil {
		return nil, fmt.Errorf("package reader is required")
	}
	if destinations == nil {
		return nil, fmt.Errorf("destination lister is required")
	}
	return &SearchHandler{service: svc, packages: packages, destinations: destinations}, nil
}

func RegisterSearchRoutes(router fiber.Router, svc SearchService, packages PackageReader, destinations DestinationLister) error {
	h, err := NewSearchHandler(svc, packages, destinations)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/search", h.Search)
	v1.Get("/batches/:batchId/package", h.GetBatchPackage)
	v1.Get("/destinations", h.ListDestinations)

	return nil
}

type packageResponse struct {
	ID            string    `json:"id"`
	BatchID       string    `json:"batchId"`
	Category      string    `json:"category"`
	HotelID       string    `json:"hotelId"`
	HotelName     string    `json:"hotelName"`
	RoomBasis     string    `json:"roomBasis"`
	OutboundPrice float64   `json:"outboundPrice"`
	ReturnPrice   float64   `json:"returnPrice"`
	HotelPrice    float64   `json:"hotelPrice"`
	TransferPrice float64   `json:"transferPrice"`
	Commission    float64   `json:"commission"`
	TotalPrice    float64   `json:"totalPrice"`
	CreatedAt     time.Time `json:"createdAt"`
}

type searchResponse struct {
	BatchID  string            `json:"batchId"`
	Found    bool              `json:"found"`
	Message  string            `json:"message,omitempty"`
	Packages []packageResponse `json:"packages"`
	Meta     listMeta          `json:"meta"`
}

type listMeta struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}

func (h *SearchHandler) Search(c *fiber.Ctx) error {
	req, err := parseSearchRequest(c)
	if err != nil {
		return toHTTPError(err)
	}

	page, pageSize, err := parsePagination(c)
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.service.Search(c.Context(), req)
	if err != nil {
		return toHTTPError(err)
	}

	if !result.Found {
		return c.Status(fiber.StatusOK).JSON(searchResponse{
			BatchID:  result.BatchID,
			Found:    false,
			Message:  "no packages found",
			Packages: []packageResponse{},
			Meta:     listMeta{Page: page, PageSize: pageSize, Total: 0},
		})
	}

	packages := paginate([]packageResponse{toPackageResponse(result.Package)}, page, pageSize)
	return c.Status(fiber.StatusOK).JSON(searchResponse{
		BatchID:  result.BatchID,
		Found:    true,
		Packages: packages,
		Meta:     listMeta{Page: page, PageSize: pageSize, Total: 1},
	})
}

func (h *SearchHandler) GetBatchPackage(c *fiber.Ctx) error {
	batchID := strings.TrimSpace(c.Params("batchId"))
	if batchID == "" {
		return toHTTPError(fmt.Errorf("%w: batch id is required", domain.ErrValidation))
	}

	pkg, err := h.packages.GetByBatchID(c.Context(), batchID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toPackageResponse(pkg))
}

func (h *SearchHandler) ListDestinations(c *fiber.Ctx) error {
	origin := strings.TrimSpace(c.Query("origin"))
	if origin == "" {
		return toHTTPError(fmt.Errorf("%w: origin is required", domain.ErrValidation))
	}

	destinations, err := h.destinations.ListDestinations(c.Context(), origin)
	if err != nil {
		return toHTTPError(err)
	}
	if destinations == nil {
		destinations = []string{}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"origin":       strings.ToUpper(origin),
		"destinations": destinations,
	})
}

func parseSearchRequest(c *fiber.Ctx) (service.SearchRequest, error) {
	departDate, err := parseDate(c.Query("departDate"), "departDate")
	if err != nil {
		return service.SearchRequest{}, err
	}
	returnDate, err := parseDate(c.Query("returnDate"), "returnDate")
	if err != nil {
		return service.SearchRequest{}, err
	}

	adults := c.QueryInt("adults", 0)
	children := c.QueryInt("children", 0)
	infants := c.QueryInt("infants", 0)

	return service.SearchRequest{
		Origin:      strings.TrimSpace(c.Query("origin")),
		Destination: strings.TrimSpace(c.Query("destination")),
		DepartDate:  departDate,
		ReturnDate:  returnDate,
		Pax: domain.Pax{
			Adults:   adults,
			Children: children,
			Infants:  infants,
		},
	}, nil
}

func parseDate(value, field string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", domain.ErrValidation, field)
	}
	date, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be a YYYY-MM-DD date", domain.ErrValidation, field)
	}
	return date, nil
}

func parsePagination(c *fiber.Ctx) (page int, pageSize int, err error) {
	page = c.QueryInt("page", defaultPage)
	pageSize = c.QueryInt("pageSize", defaultPageSize)

	if page < 1 {
		return 0, 0, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if pageSize < 1 || pageSize > maxPageSize {
		return 0, 0, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}
	return page, pageSize, nil
}

func paginate(items []packageResponse, page, pageSize int) []packageResponse {
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []packageResponse{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func toPackageResponse(pkg *domain.Package) packageResponse {
	return packageResponse{
		ID:            pkg.ID,
		BatchID:       pkg.BatchID,
		Category:      pkg.Category.String(),
		HotelID:       pkg.Hotel.HotelID,
		HotelName:     pkg.Hotel.Name,
		RoomBasis:     string(pkg.Offer.Basis),
		OutboundPrice: pkg.Outbound.Price,
		ReturnPrice:   pkg.Return.Price,
		HotelPrice:    pkg.Offer.Price,
		TransferPrice: pkg.TransferPrice,
		Commission:    pkg.Commission,
		TotalPrice:    pkg.TotalPrice,
		CreatedAt:     pkg.CreatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
