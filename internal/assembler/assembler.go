// Package assembler turns a selected flight pair and hotel offers into
// priced packages and enforces the one-surviving-package-per-batch rule.
package assembler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/Julianhima91/himatrips-backend/internal/domain"
	"github.com/Julianhima91/himatrips-backend/internal/observability"
	"go.uber.org/zap"
)

// FlightRecorder persists flight snapshots for audit. Snapshots are written
// for every assembled candidate, including ones later pruned; losing the
// pricing trail of a discarded competitor costs more in support time than
// the duplicate rows do in storage.
type FlightRecorder interface {
	RecordFlights(ctx context.Context, batchID string, outbound, ret domain.FlightCandidate) error
}

// PackageStore persists assembled packages and deletes pruned ones.
type PackageStore interface {
	CreatePackage(ctx context.Context, pkg *domain.Package) error
	DeletePackage(ctx context.Context, id string) error
}

type Assembler struct {
	flights  FlightRecorder
	packages PackageStore
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
	newID    func() string
}

func New(flights FlightRecorder, packages PackageStore, logger *zap.Logger) (*Assembler, error) {
	if flights == nil {
		return nil, fmt.Errorf("flight recorder is required")
	}
	if packages == nil {
		return nil, fmt.Errorf("package store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Assembler{
		flights:  flights,
		packages: packages,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

func (a *Assembler) SetMetrics(metrics *observability.Metrics) {
	if a == nil {
		return
	}
	a.metrics = metrics
}

// Assemble prices one package from a flight pair and a hotel offer.
// Commission takes the greater of the policy's fixed amount and its
// percentage over the pre-commission base (flights + transfer + hotel).
func Assemble(
	outbound, ret domain.FlightCandidate,
	hotel domain.HotelCandidate,
	offer domain.HotelOffer,
	policy domain.SelectionPolicy,
	batch domain.SearchBatch,
) domain.Package {
	transfer := policy.Transfer.For(batch.Pax)
	base := outbound.Price + ret.Price + transfer + offer.Price
	commission := policy.Commission.Apply(base)

	return domain.Package{
		BatchID:       batch.ID,
		Category:      batch.Category,
		Outbound:      outbound,
		Return:        ret,
		Hotel:         hotel,
		Offer:         offer,
		TransferPrice: transfer,
		Commission:    commission,
		TotalPrice:    base + commission,
	}
}

// AssembleBest builds one package per hotel offer in the batch, persists
// every candidate's flight snapshots, then prunes down to the single
// minimum-total-price package. The pruned competitors' package rows are
// deleted; their flight snapshots stay.
func (a *Assembler) AssembleBest(
	ctx context.Context,
	batch domain.SearchBatch,
	outbound, ret domain.FlightCandidate,
	hotels []domain.HotelCandidate,
	policy domain.SelectionPolicy,
) (*domain.Package, error) {
	candidates := make([]domain.Package, 0, len(hotels))
	for _, hotel := range hotels {
		for _, offer := range hotel.Offers {
			pkg := Assemble(outbound, ret, hotel, offer, policy, batch)
			pkg.ID = a.newID()
			pkg.CreatedAt = a.now().UTC()
			candidates = append(candidates, pkg)
		}
	}
	if len(candidates) == 0 {
		return nil, domain.ErrNoCandidates
	}

	if err := a.flights.RecordFlights(ctx, batch.ID, outbound, ret); err != nil {
		return nil, fmt.Errorf("failed to record flight snapshots: %w", err)
	}

	for i := range candidates {
		if err := a.packages.CreatePackage(ctx, &candidates[i]); err != nil {
			return nil, fmt.Errorf("failed to persist package candidate: %w", err)
		}
	}

	winner, discarded := PruneCheapest(candidates)
	if a.metrics != nil {
		a.metrics.AddPackagesPruned(len(discarded))
	}
	for _, loser := range discarded {
		if err := a.packages.DeletePackage(ctx, loser.ID); err != nil {
			a.logger.Warn("failed to delete pruned package",
				zap.String("packageId", loser.ID),
				zap.String("batchId", batch.ID),
				zap.Error(err),
			)
		}
	}

	a.logger.Info("package assembled",
		zap.String("batchId", batch.ID),
		zap.String("packageId", winner.ID),
		zap.Float64("totalPrice", winner.TotalPrice),
		zap.Int("pruned", len(discarded)),
	)

	return &winner, nil
}

// PruneCheapest keeps the minimum-total-price package and returns the rest.
// Ties break toward the earliest candidate so pruning stays deterministic.
func PruneCheapest(candidates []domain.Package) (domain.Package, []domain.Package) {
	winnerIdx := 0
	for i, pkg := range candidates {
		if pkg.TotalPrice < candidates[winnerIdx].TotalPrice {
			winnerIdx = i
		}
	}

	discarded := make([]domain.Package, 0, len(candidates)-1)
	for i, pkg := range candidates {
		if i != winnerIdx {
			discarded = append(discarded, pkg)
		}
	}
	return candidates[winnerIdx], discarded
}
