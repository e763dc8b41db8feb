package domain

import "fmt"

// PriceGridPoint is the lowest observed price for one calendar day in one
// direction of travel.
type PriceGridPoint struct {
	Day    int     `json:"day"`
	Price  float64 `json:"price"`
	Direct bool    `json:"direct"`
}

// PriceGrid is a calendar-indexed table of per-day lowest prices for one
// (origin, destination, month) direction. Days without availability are
// simply absent.
type PriceGrid struct {
	Origin      string           `json:"origin"`
	Destination string           `json:"destination"`
	Year        int              `json:"year"`
	Month       int              `json:"month"`
	Points      []PriceGridPoint `json:"points"`
}

// PriceOn returns the price for a day of month, or false when the grid has
// no availability for that day.
func (g *PriceGrid) PriceOn(day int) (float64, bool) {
	for i := range g.Points {
		if g.Points[i].Day == day {
			return g.Points[i].Price, true
		}
	}
	return 0, false
}

func (g *PriceGrid) Validate() error {
	if g.Month < 1 || g.Month > 12 {
		return fmt.Errorf("%w: invalid month %d", ErrValidation, g.Month)
	}
	seen := make(map[int]bool, len(g.Points))
	for _, p := range g.Points {
		if p.Day < 1 || p.Day > 31 {
			return fmt.Errorf("%w: invalid day %d", ErrValidation, p.Day)
		}
		if seen[p.Day] {
			return fmt.Errorf("%w: duplicate day %d", ErrValidation, p.Day)
		}
		seen[p.Day] = true
		if p.Price <= 0 {
			return fmt.Errorf("%w: grid price must be positive", ErrValidation)
		}
	}
	return nil
}
