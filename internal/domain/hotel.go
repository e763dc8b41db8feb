package domain

import (
	"fmt"
	"strings"
	"time"
)

// RoomBasis represents the board basis of a hotel offer.
type RoomBasis string

const (
	BasisRoomOnly     RoomBasis = "RO"
	BasisBreakfast    RoomBasis = "BB"
	BasisHalfBoard    RoomBasis = "HB"
	BasisFullBoard    RoomBasis = "FB"
	BasisAllInclusive RoomBasis = "AI"
)

func (b RoomBasis) String() string { return string(b) }

func (b RoomBasis) IsValid() bool {
	switch b {
	case BasisRoomOnly, BasisBreakfast, BasisHalfBoard, BasisFullBoard, BasisAllInclusive:
		return true
	}
	return false
}

func ParseRoomBasisFromString(s string) (RoomBasis, error) {
	b := RoomBasis(strings.ToUpper(strings.TrimSpace(s)))
	if !b.IsValid() {
		return "", fmt.Errorf("%w: invalid room basis %q", ErrValidation, s)
	}
	return b, nil
}

// HotelOffer is one bookable rate inside a hotel candidate.
type HotelOffer struct {
	OfferID              string    `json:"offerId"`
	Basis                RoomBasis `json:"basis"`
	RoomType             string    `json:"roomType"`
	Price                float64   `json:"price"`
	Currency             string    `json:"currency"`
	CancellationDeadline time.Time `json:"cancellationDeadline"`
}

func (o *HotelOffer) Validate() error {
	if strings.TrimSpace(o.OfferID) == "" {
		return fmt.Errorf("%w: offer id is required", ErrValidation)
	}
	if !o.Basis.IsValid() {
		return fmt.Errorf("%w: invalid room basis %q", ErrValidation, o.Basis)
	}
	if o.Price <= 0 {
		return fmt.Errorf("%w: offer price must be positive", ErrValidation)
	}
	return nil
}

// HotelCandidate is one hotel's availability returned by a provider, owning
// a list of offers. Same lifecycle as FlightCandidate.
type HotelCandidate struct {
	HotelID string       `json:"hotelId"`
	Name    string       `json:"name"`
	CheckIn time.Time    `json:"checkIn"`
	Nights  int          `json:"nights"`
	Rooms   int          `json:"rooms"`
	Pax     Pax          `json:"pax"`
	Offers  []HotelOffer `json:"offers"`
}

func (h *HotelCandidate) Validate() error {
	if strings.TrimSpace(h.HotelID) == "" {
		return fmt.Errorf("%w: hotel id is required", ErrValidation)
	}
	if h.Nights < 1 {
		return fmt.Errorf("%w: at least one night is required", ErrValidation)
	}
	if h.Rooms < 1 {
		return fmt.Errorf("%w: at least one room is required", ErrValidation)
	}
	for i := range h.Offers {
		if err := h.Offers[i].Validate(); err != nil {
			return fmt.Errorf("offer %d: %w", i, err)
		}
	}
	return nil
}
