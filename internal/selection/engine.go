// Package selection ranks and filters competing flight itineraries for one
// route. Every caller (live search, economic/weekend/holiday sweeps) depends
// on this single implementation.
package selection

import (
	"sort"

	"github.com/Julianhima91/himatrips-backend/internal/domain"
)

// Select orders candidates best-first under the route policy. It is pure and
// deterministic: no I/O, no clock, and a given (candidates, policy) pair
// always yields the same result. An empty input yields an empty result,
// never an error.
//
// Stages run in a fixed order. Each stage only replaces the working set when
// its own result is non-empty; an empty stage result skips the stage rather
// than emptying the list:
//
//  1. direct flights, when the policy prefers them and any exist
//  2. morning-outbound / evening-return departure windows
//  3. stop count and transit wait limits, only when stage 1 kept nothing,
//     with a least-observed-stops fallback
//  4. stable sort by (stops, price)
func Select(candidates []domain.FlightCandidate, policy domain.SelectionPolicy) []domain.FlightCandidate {
	working := make([]domain.FlightCandidate, 0, len(candidates))
	working = append(working, candidates...)
	if len(working) == 0 {
		return working
	}

	hadDirect := false
	if policy.PreferDirect {
		if direct := keepDirect(working); len(direct) > 0 {
			working = direct
			hadDirect = true
		}
	}

	working = applyTimeWindows(working, policy)

	if !hadDirect {
		working = applyStopLimits(working, policy)
	}

	sort.SliceStable(working, func(i, j int) bool {
		if working[i].MaxStops() != working[j].MaxStops() {
			return working[i].MaxStops() < working[j].MaxStops()
		}
		return working[i].Price < working[j].Price
	})

	return working
}

func keepDirect(candidates []domain.FlightCandidate) []domain.FlightCandidate {
	var direct []domain.FlightCandidate
	for _, c := range candidates {
		if c.Direct() {
			direct = append(direct, c)
		}
	}
	return direct
}

// applyTimeWindows narrows to candidates whose relevant leg departs inside
// the configured window on its own calendar day. A window that matches
// nothing is skipped.
func applyTimeWindows(candidates []domain.FlightCandidate, policy domain.SelectionPolicy) []domain.FlightCandidate {
	if policy.MorningOutbound && !policy.OutboundWindow.IsZero() {
		var kept []domain.FlightCandidate
		for _, c := range candidates {
			if policy.OutboundWindow.Contains(c.Outbound.DepartureAt) {
				kept = append(kept, c)
			}
		}
		if len(kept) > 0 {
			candidates = kept
		}
	}

	if policy.EveningReturn && !policy.ReturnWindow.IsZero() {
		var kept []domain.FlightCandidate
		for _, c := range candidates {
			if policy.ReturnWindow.Contains(c.Return.DepartureAt) {
				kept = append(kept, c)
			}
		}
		if len(kept) > 0 {
			candidates = kept
		}
	}

	return candidates
}

// applyStopLimits keeps candidates within the policy's stop and transit
// bounds. When nothing qualifies, it degrades to the candidates matching the
// smallest observed stop count instead of returning nothing: showing a
// two-stop itinerary beats showing no itinerary at all.
func applyStopLimits(candidates []domain.FlightCandidate, policy domain.SelectionPolicy) []domain.FlightCandidate {
	var kept []domain.FlightCandidate
	for _, c := range candidates {
		if c.MaxStops() > policy.MaxStops {
			continue
		}
		if c.MaxStops() > 0 && policy.MaxTransitWait > 0 && c.WorstWait() > policy.MaxTransitWait {
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) > 0 {
		return kept
	}

	minStops := -1
	for _, c := range candidates {
		if minStops < 0 || c.MaxStops() < minStops {
			minStops = c.MaxStops()
		}
	}
	if minStops < 0 {
		return candidates
	}

	var fallback []domain.FlightCandidate
	for _, c := range candidates {
		if c.MaxStops() == minStops {
			fallback = append(fallback, c)
		}
	}
	return fallback
}
