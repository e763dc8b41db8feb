package domain

import (
	"fmt"
	"time"
)

// TimeWindow is an intraday departure window, e.g. 06:00-12:00 for morning
// outbound flights. Times are minutes since midnight on the leg's own
// calendar day.
type TimeWindow struct {
	FromMinute int `json:"fromMinute"`
	ToMinute   int `json:"toMinute"`
}

// Contains reports whether t's clock time falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	minute := t.Hour()*60 + t.Minute()
	return minute >= w.FromMinute && minute <= w.ToMinute
}

func (w TimeWindow) IsZero() bool { return w.FromMinute == 0 && w.ToMinute == 0 }

func (w TimeWindow) Validate() error {
	if w.FromMinute < 0 || w.ToMinute > 24*60 || w.FromMinute > w.ToMinute {
		return fmt.Errorf("%w: invalid time window [%d,%d]", ErrValidation, w.FromMinute, w.ToMinute)
	}
	return nil
}

// CommissionRule computes the agency commission for an assembled package.
// The greater of the fixed amount and the percentage of the base always
// wins.
type CommissionRule struct {
	FixedAmount float64 `json:"fixedAmount"`
	Percentage  float64 `json:"percentage"`
}

// Apply returns the commission for a package base amount.
func (r CommissionRule) Apply(base float64) float64 {
	pct := r.Percentage * base
	if r.FixedAmount > pct {
		return r.FixedAmount
	}
	return pct
}

// TransferRates are per-person ground transfer prices for a destination.
type TransferRates struct {
	PerAdult float64 `json:"perAdult"`
	PerChild float64 `json:"perChild"`
}

// For returns the total transfer price for a passenger composition.
// Infants travel free.
func (t TransferRates) For(pax Pax) float64 {
	return t.PerAdult*float64(pax.Adults) + t.PerChild*float64(pax.Children)
}

// SelectionPolicy is the per-route rule set applied when ranking flight
// candidates and assembling offers. Read-only for the lifetime of a batch.
type SelectionPolicy struct {
	RouteID          string         `json:"routeId"`
	PreferDirect     bool           `json:"preferDirect"`
	MorningOutbound  bool           `json:"morningOutbound"`
	EveningReturn    bool           `json:"eveningReturn"`
	OutboundWindow   TimeWindow     `json:"outboundWindow"`
	ReturnWindow     TimeWindow     `json:"returnWindow"`
	MaxStops         int            `json:"maxStops"`
	MaxTransitWait   time.Duration  `json:"maxTransitWait"`
	MinNights        int            `json:"minNights"`
	MaxNights        int            `json:"maxNights"`
	Commission       CommissionRule `json:"commission"`
	Transfer         TransferRates  `json:"transfer"`
}

func (p *SelectionPolicy) Validate() error {
	if p.MaxStops < 0 {
		return fmt.Errorf("%w: negative max stops", ErrValidation)
	}
	if p.MinNights < 0 || (p.MaxNights > 0 && p.MaxNights < p.MinNights) {
		return fmt.Errorf("%w: invalid nights range [%d,%d]", ErrValidation, p.MinNights, p.MaxNights)
	}
	if err := p.OutboundWindow.Validate(); err != nil {
		return err
	}
	if err := p.ReturnWindow.Validate(); err != nil {
		return err
	}
	if p.Commission.Percentage < 0 || p.Commission.FixedAmount < 0 {
		return fmt.Errorf("%w: negative commission", ErrValidation)
	}
	return nil
}

// HasNightsRange reports whether the policy carries the min/max nights a
// sweep needs. Sweeps skip routes without it.
func (p *SelectionPolicy) HasNightsRange() bool {
	return p.MinNights > 0 && p.MaxNights >= p.MinNights
}
