package domain

import (
	"fmt"
	"strings"
	"time"
)

// FlightSource identifies the provider a candidate came from.
type FlightSource string

const (
	SourceAmadeus  FlightSource = "AMADEUS"
	SourceSabre    FlightSource = "SABRE"
	SourceSkyScan  FlightSource = "SKYSCAN"
	SourceInternal FlightSource = "INTERNAL"
)

func (s FlightSource) String() string { return string(s) }

func (s FlightSource) IsValid() bool {
	switch s {
	case SourceAmadeus, SourceSabre, SourceSkyScan, SourceInternal:
		return true
	}
	return false
}

func ParseFlightSourceFromString(s string) (FlightSource, error) {
	src := FlightSource(strings.ToUpper(strings.TrimSpace(s)))
	if !src.IsValid() {
		return "", fmt.Errorf("%w: invalid flight source %q", ErrValidation, s)
	}
	return src, nil
}

// Leg describes one direction of a round trip.
type Leg struct {
	Origin      string        `json:"origin"`
	Destination string        `json:"destination"`
	DepartureAt time.Time     `json:"departureAt"`
	ArrivalAt   time.Time     `json:"arrivalAt"`
	Stops       int           `json:"stops"`
	MaxWait     time.Duration `json:"maxWait"`
}

// FlightCandidate is a single round-trip itinerary returned by a provider,
// immutable once produced.
type FlightCandidate struct {
	Source   FlightSource `json:"source"`
	Carrier  string       `json:"carrier"`
	Outbound Leg          `json:"outbound"`
	Return   Leg          `json:"return"`
	Price    float64      `json:"price"`
	Currency string       `json:"currency"`
	Pax      Pax          `json:"pax"`
}

// Direct reports whether both legs are nonstop.
func (f FlightCandidate) Direct() bool {
	return f.Outbound.Stops == 0 && f.Return.Stops == 0
}

// MaxStops returns the worse stop count of the two legs.
func (f FlightCandidate) MaxStops() int {
	if f.Outbound.Stops > f.Return.Stops {
		return f.Outbound.Stops
	}
	return f.Return.Stops
}

// WorstWait returns the longest per-leg transit wait of the itinerary.
func (f FlightCandidate) WorstWait() time.Duration {
	if f.Outbound.MaxWait > f.Return.MaxWait {
		return f.Outbound.MaxWait
	}
	return f.Return.MaxWait
}

func (f *FlightCandidate) Validate() error {
	if !f.Source.IsValid() {
		return fmt.Errorf("%w: invalid flight source %q", ErrValidation, f.Source)
	}
	if f.Price <= 0 {
		return fmt.Errorf("%w: flight price must be positive", ErrValidation)
	}
	if f.Outbound.Stops < 0 || f.Return.Stops < 0 {
		return fmt.Errorf("%w: negative stop count", ErrValidation)
	}
	if f.Outbound.ArrivalAt.Before(f.Outbound.DepartureAt) {
		return fmt.Errorf("%w: outbound arrival before departure", ErrValidation)
	}
	if f.Return.ArrivalAt.Before(f.Return.DepartureAt) {
		return fmt.Errorf("%w: return arrival before departure", ErrValidation)
	}
	return nil
}
