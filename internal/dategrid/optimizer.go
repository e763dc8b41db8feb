// Package dategrid combines two independent daily price grids into the
// cheapest valid (outbound, return) date pair for flexible-date searches.
package dategrid

import "github.com/Julianhima91/himatrips-backend/internal/domain"

// Combination is the winning (outbound day, return day) pair with its
// combined price.
type Combination struct {
	OutboundDay   int     `json:"outboundDay"`
	ReturnDay     int     `json:"returnDay"`
	OutboundPrice float64 `json:"outboundPrice"`
	ReturnPrice   float64 `json:"returnPrice"`
	TotalPrice    float64 `json:"totalPrice"`
}

// CheapestCombination scans every priced outbound day d, pairs it with the
// return grid at d+minNights, and tracks the minimum combined price. Ties
// break toward the earliest outbound day. Returns false when no day pair
// satisfies the offset; the caller reports the batch as empty rather than
// failing.
//
// The function is pure and idempotent: rerunning it on the same grids yields
// the same pair.
func CheapestCombination(outbound, ret domain.PriceGrid, minNights int) (Combination, bool) {
	if minNights < 0 {
		return Combination{}, false
	}

	best := Combination{}
	found := false

	for day := 1; day <= 31; day++ {
		outPrice, ok := outbound.PriceOn(day)
		if !ok {
			continue
		}
		returnDay := day + minNights
		retPrice, ok := ret.PriceOn(returnDay)
		if !ok {
			continue
		}

		total := outPrice + retPrice
		if !found || total < best.TotalPrice {
			best = Combination{
				OutboundDay:   day,
				ReturnDay:     returnDay,
				OutboundPrice: outPrice,
				ReturnPrice:   retPrice,
				TotalPrice:    total,
			}
			found = true
		}
	}

	return best, found
}
