package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/Julianhima91/himatrips-backend/internal/domain"
	"gorm.io/gorm"
)

type PackageRepository interface {
	CreatePackage(ctx context.Context, pkg *domain.Package) error
	DeletePackage(ctx context.Context, id string) error
	GetByBatchID(ctx context.Context, batchID string) (*domain.Package, error)
}

// FlightRecordRepository persists per-leg flight snapshots for audit.
type FlightRecordRepository interface {
	RecordFlights(ctx context.Context, batchID string, outbound, ret domain.FlightCandidate) error
}

type GormPackageRepo struct {
	db *gorm.DB
}

func NewGormPackageRepo(db *gorm.DB) *GormPackageRepo {
	return &GormPackageRepo{db: db}
}

func (r *GormPackageRepo) CreatePackage(ctx context.Context, pkg *domain.Package) error {
	payload, err := json.Marshal(pkg)
	if err != nil {
		return err
	}

	model := &PackageModel{
		ID:            pkg.ID,
		BatchID:       pkg.BatchID,
		Category:      pkg.Category,
		HotelID:       pkg.Hotel.HotelID,
		OfferID:       pkg.Offer.OfferID,
		RoomBasis:     pkg.Offer.Basis,
		OutboundPrice: pkg.Outbound.Price,
		ReturnPrice:   pkg.Return.Price,
		HotelPrice:    pkg.Offer.Price,
		TransferPrice: pkg.TransferPrice,
		Commission:    pkg.Commission,
		TotalPrice:    pkg.TotalPrice,
		Payload:       payload,
		CreatedAt:     pkg.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *GormPackageRepo) DeletePackage(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&PackageModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormPackageRepo) GetByBatchID(ctx context.Context, batchID string) (*domain.Package, error) {
	var model PackageModel
	err := r.db.WithContext(ctx).First(&model, "batch_id = ?", batchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return packageModelToDomain(&model)
}

func packageModelToDomain(m *PackageModel) (*domain.Package, error) {
	var pkg domain.Package
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &pkg); err != nil {
			return nil, err
		}
	}

	// Columns win over the payload snapshot for the fields we index on.
	pkg.ID = m.ID
	pkg.BatchID = m.BatchID
	pkg.Category = m.Category
	pkg.TransferPrice = m.TransferPrice
	pkg.Commission = m.Commission
	pkg.TotalPrice = m.TotalPrice
	pkg.CreatedAt = m.CreatedAt
	return &pkg, nil
}

type GormFlightRecordRepo struct {
	db *gorm.DB
}

func NewGormFlightRecordRepo(db *gorm.DB) *GormFlightRecordRepo {
	return &GormFlightRecordRepo{db: db}
}

func (r *GormFlightRecordRepo) RecordFlights(ctx context.Context, batchID string, outbound, ret domain.FlightCandidate) error {
	now := time.Now().UTC()
	rows := []FlightRecordModel{
		flightRecordRow(batchID, "outbound", outbound, now),
		flightRecordRow(batchID, "return", ret, now),
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func flightRecordRow(batchID, direction string, c domain.FlightCandidate, now time.Time) FlightRecordModel {
	leg := c.Outbound
	if direction == "return" {
		leg = c.Return
	}

	return FlightRecordModel{
		ID:          uuid.NewString(),
		BatchID:     batchID,
		Direction:   direction,
		Source:      c.Source,
		Carrier:     c.Carrier,
		DepartureAt: leg.DepartureAt,
		ArrivalAt:   leg.ArrivalAt,
		Stops:       leg.Stops,
		MaxWaitMins: int(leg.MaxWait.Minutes()),
		Price:       c.Price,
		Currency:    c.Currency,
		CreatedAt:   now,
	}
}
