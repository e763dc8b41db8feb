package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Julianhima91/himatrips-backend/internal/domain"
	"gorm.io/gorm"
)

// Route bundles what the pipeline needs to know about one configured
// origin/destination pair.
type Route struct {
	ID       string
	Policy   domain.SelectionPolicy
	HotelIDs []string
}

// RouteRepository is the read-only configuration collaborator: selection
// policy, transfer rates, and hotel inventory per route.
type RouteRepository interface {
	GetRoute(ctx context.Context, origin, destination string) (*Route, error)
	ListDestinations(ctx context.Context, origin string) ([]string, error)
}

type GormRouteRepo struct {
	db *gorm.DB
}

func NewGormRouteRepo(db *gorm.DB) *GormRouteRepo {
	return &GormRouteRepo{db: db}
}

func (r *GormRouteRepo) GetRoute(ctx context.Context, origin, destination string) (*Route, error) {
	var model RouteModel
	err := r.db.WithContext(ctx).
		Where("origin = ? AND destination = ?", strings.ToUpper(origin), strings.ToUpper(destination)).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return routeModelToDomain(&model), nil
}

func (r *GormRouteRepo) ListDestinations(ctx context.Context, origin string) ([]string, error) {
	var destinations []string
	err := r.db.WithContext(ctx).
		Model(&RouteModel{}).
		Where("origin = ?", strings.ToUpper(origin)).
		Order("destination ASC").
		Pluck("destination", &destinations).Error
	if err != nil {
		return nil, err
	}
	return destinations, nil
}

func routeModelToDomain(m *RouteModel) *Route {
	policy := domain.SelectionPolicy{
		RouteID:         m.ID,
		PreferDirect:    m.PreferDirect,
		MorningOutbound: m.MorningOutbound,
		EveningReturn:   m.EveningReturn,
		OutboundWindow:  domain.TimeWindow{FromMinute: m.OutboundFromMinute, ToMinute: m.OutboundToMinute},
		ReturnWindow:    domain.TimeWindow{FromMinute: m.ReturnFromMinute, ToMinute: m.ReturnToMinute},
		MaxStops:        m.MaxStops,
		MaxTransitWait:  time.Duration(m.MaxTransitMins) * time.Minute,
		MinNights:       m.MinNights,
		MaxNights:       m.MaxNights,
		Commission: domain.CommissionRule{
			FixedAmount: m.FixedCommission,
			Percentage:  m.CommissionPct,
		},
		Transfer: domain.TransferRates{
			PerAdult: m.TransferPerAdult,
			PerChild: m.TransferPerChild,
		},
	}

	var hotelIDs []string
	for _, id := range strings.Split(m.HotelIDs, ",") {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			hotelIDs = append(hotelIDs, trimmed)
		}
	}

	return &Route{ID: m.ID, Policy: policy, HotelIDs: hotelIDs}
}
