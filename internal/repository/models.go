package repository

import (
	"time"

	"github.com/Julianhima91/himatrips-backend/internal/domain"
)

// BatchModel is the persistence model for the search_batches table.
type BatchModel struct {
	ID          string             `gorm:"type:uuid;primaryKey"`
	SweepID     *string            `gorm:"type:uuid"`
	Origin      string             `gorm:"type:varchar(8);not null"`
	Destination string             `gorm:"type:varchar(8);not null"`
	DepartDate  time.Time          `gorm:"type:date;not null"`
	ReturnDate  time.Time          `gorm:"type:date;not null"`
	Adults      int                `gorm:"not null;default:1"`
	Children    int                `gorm:"not null;default:0"`
	Infants     int                `gorm:"not null;default:0"`
	Category    domain.Category    `gorm:"type:varchar(16);not null"`
	Status      domain.BatchStatus `gorm:"type:varchar(20);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (BatchModel) TableName() string {
	return "search_batches"
}

// FlightRecordModel stores flight snapshots for audit, one row per leg.
// Snapshots survive package pruning on purpose.
type FlightRecordModel struct {
	ID          string              `gorm:"type:uuid;primaryKey"`
	BatchID     string              `gorm:"type:uuid;not null"`
	Direction   string              `gorm:"type:varchar(10);not null"`
	Source      domain.FlightSource `gorm:"type:varchar(16);not null"`
	Carrier     string              `gorm:"type:varchar(8)"`
	DepartureAt time.Time           `gorm:"not null"`
	ArrivalAt   time.Time           `gorm:"not null"`
	Stops       int                 `gorm:"not null;default:0"`
	MaxWaitMins int                 `gorm:"not null;default:0"`
	Price       float64             `gorm:"not null"`
	Currency    string              `gorm:"type:varchar(3)"`
	CreatedAt   time.Time
}

func (FlightRecordModel) TableName() string {
	return "flight_records"
}

// PackageModel is the persistence model for assembled packages.
type PackageModel struct {
	ID            string          `gorm:"type:uuid;primaryKey"`
	BatchID       string          `gorm:"type:uuid;not null"`
	Category      domain.Category `gorm:"type:varchar(16);not null"`
	HotelID       string          `gorm:"type:varchar(64);not null"`
	OfferID       string          `gorm:"type:varchar(64);not null"`
	RoomBasis     domain.RoomBasis `gorm:"type:varchar(4);not null"`
	OutboundPrice float64         `gorm:"not null"`
	ReturnPrice   float64         `gorm:"not null"`
	HotelPrice    float64         `gorm:"not null"`
	TransferPrice float64         `gorm:"not null;default:0"`
	Commission    float64         `gorm:"not null"`
	TotalPrice    float64         `gorm:"not null"`
	Payload       []byte          `gorm:"type:jsonb"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (PackageModel) TableName() string {
	return "packages"
}

// FetchTaskModel is the persistence model for fetch_tasks, the durable
// retry bookkeeping behind the broker messages.
type FetchTaskModel struct {
	ID           string              `gorm:"type:uuid;primaryKey"`
	BatchID      string              `gorm:"type:uuid;not null"`
	Kind         domain.TaskKind     `gorm:"type:varchar(16);not null"`
	Source       domain.FlightSource `gorm:"type:varchar(16)"`
	Status       domain.TaskStatus   `gorm:"type:varchar(16);not null"`
	AttemptCount int                 `gorm:"not null;default:0"`
	MaxAttempts  int                 `gorm:"not null;default:3"`
	LastError    *string             `gorm:"type:text"`
	NextRetryAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (FetchTaskModel) TableName() string {
	return "fetch_tasks"
}

// RouteModel carries the per-route selection policy and assembly rates.
// Read-only during a batch's lifetime; maintained by the admin side, which
// is outside this service.
type RouteModel struct {
	ID                 string  `gorm:"type:uuid;primaryKey"`
	Origin             string  `gorm:"type:varchar(8);not null"`
	Destination        string  `gorm:"type:varchar(8);not null"`
	PreferDirect       bool    `gorm:"not null;default:true"`
	MorningOutbound    bool    `gorm:"not null;default:false"`
	EveningReturn      bool    `gorm:"not null;default:false"`
	OutboundFromMinute int     `gorm:"not null;default:0"`
	OutboundToMinute   int     `gorm:"not null;default:0"`
	ReturnFromMinute   int     `gorm:"not null;default:0"`
	ReturnToMinute     int     `gorm:"not null;default:0"`
	MaxStops           int     `gorm:"not null;default:1"`
	MaxTransitMins     int     `gorm:"not null;default:240"`
	MinNights          int     `gorm:"not null;default:0"`
	MaxNights          int     `gorm:"not null;default:0"`
	FixedCommission    float64 `gorm:"not null;default:0"`
	CommissionPct      float64 `gorm:"not null;default:0"`
	TransferPerAdult   float64 `gorm:"not null;default:0"`
	TransferPerChild   float64 `gorm:"not null;default:0"`
	HotelIDs           string  `gorm:"type:text"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (RouteModel) TableName() string {
	return "routes"
}

// AdConfigModel tracks the status of one campaign sweep. Background sweeps
// surface failures only here and in logs, never to an end user.
type AdConfigModel struct {
	ID          string          `gorm:"type:uuid;primaryKey"`
	Destination string          `gorm:"type:varchar(8);not null"`
	Category    domain.Category `gorm:"type:varchar(16);not null"`
	Status      string          `gorm:"type:varchar(20);not null"`
	Detail      *string         `gorm:"type:text"`
	ExportedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (AdConfigModel) TableName() string {
	return "ad_configs"
}

func batchModelFromDomain(b *domain.SearchBatch) *BatchModel {
	if b == nil {
		return nil
	}

	return &BatchModel{
		ID:          b.ID,
		SweepID:     b.SweepID,
		Origin:      b.Origin,
		Destination: b.Destination,
		DepartDate:  b.DepartDate,
		ReturnDate:  b.ReturnDate,
		Adults:      b.Pax.Adults,
		Children:    b.Pax.Children,
		Infants:     b.Pax.Infants,
		Category:    b.Category,
		Status:      b.Status,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func batchModelToDomain(m *BatchModel) *domain.SearchBatch {
	if m == nil {
		return nil
	}

	return &domain.SearchBatch{
		ID:          m.ID,
		SweepID:     m.SweepID,
		Origin:      m.Origin,
		Destination: m.Destination,
		DepartDate:  m.DepartDate,
		ReturnDate:  m.ReturnDate,
		Pax:         domain.Pax{Adults: m.Adults, Children: m.Children, Infants: m.Infants},
		Category:    m.Category,
		Status:      m.Status,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func fetchTaskModelFromDomain(t *domain.FetchTask) *FetchTaskModel {
	if t == nil {
		return nil
	}

	return &FetchTaskModel{
		ID:           t.ID,
		BatchID:      t.BatchID,
		Kind:         t.Kind,
		Source:       t.Source,
		Status:       t.Status,
		AttemptCount: t.AttemptCount,
		MaxAttempts:  t.MaxAttempts,
		LastError:    t.LastError,
		NextRetryAt:  t.NextRetryAt,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func fetchTaskModelToDomain(m *FetchTaskModel) *domain.FetchTask {
	if m == nil {
		return nil
	}

	return &domain.FetchTask{
		ID:           m.ID,
		BatchID:      m.BatchID,
		Kind:         m.Kind,
		Source:       m.Source,
		Status:       m.Status,
		AttemptCount: m.AttemptCount,
		MaxAttempts:  m.MaxAttempts,
		LastError:    m.LastError,
		NextRetryAt:  m.NextRetryAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
