package domain

import (
	"fmt"
	"time"
)

// Package is the final assembled offer for one batch: a chosen outbound and
// return flight, one hotel offer, and the computed pricing. Exactly one
// package survives per successful batch; competitors are pruned.
type Package struct {
	ID            string          `json:"id"`
	BatchID       string          `json:"batchId"`
	Category      Category        `json:"category"`
	Outbound      FlightCandidate `json:"outbound"`
	Return        FlightCandidate `json:"return"`
	Hotel         HotelCandidate  `json:"hotel"`
	Offer         HotelOffer      `json:"offer"`
	TransferPrice float64         `json:"transferPrice"`
	Commission    float64         `json:"commission"`
	TotalPrice    float64         `json:"totalPrice"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func (p *Package) Validate() error {
	if p.BatchID == "" {
		return fmt.Errorf("%w: batch id is required", ErrValidation)
	}
	if !p.Category.IsValid() {
		return fmt.Errorf("%w: invalid category %q", ErrValidation, p.Category)
	}
	if p.TotalPrice <= 0 {
		return fmt.Errorf("%w: total price must be positive", ErrValidation)
	}
	if p.Commission < 0 {
		return fmt.Errorf("%w: negative commission", ErrValidation)
	}
	return nil
}

// BatchResolution records how one sibling batch of a sweep ended.
type BatchResolution struct {
	BatchID    string    `json:"batchId"`
	PackageID  string    `json:"packageId,omitempty"`
	Failed     bool      `json:"failed"`
	Reason     string    `json:"reason,omitempty"`
	ResolvedAt time.Time `json:"resolvedAt"`
}
