// Package performance derives live returns and track-record statistics
// from stored positions.
package performance

import (
	"sort"

	"PriceSentinel/internal/calculator"
	"PriceSentinel/internal/model"
)

// TopN is the number of best calls reported in the statistics.
const TopN = 5

// LiveReturn is the return shown for p: the frozen realised return once the
// position is closed, the return at the current price while it is active.
func LiveReturn(p model.Position) *float64 {
	if p.Status.Closed() {
		return p.RealisedPct
	}
	if p.CurrentPrice == nil {
		return nil
	}
	avg, ok := calculator.AverageEntry(p.AverageEntry, p.EntryZone)
	if !ok {
		return nil
	}
	pct, ok := calculator.ReturnPct(*p.CurrentPrice, avg)
	if !ok {
		return nil
	}
	return &pct
}

// PotentialReturn is the return still available if the target is hit.
func PotentialReturn(p model.Position) *float64 {
	avg, ok := calculator.AverageEntry(p.AverageEntry, p.EntryZone)
	if !ok {
		return nil
	}
	target, ok := calculator.ParsePrice(p.Target)
	if !ok {
		return nil
	}
	pct, ok := calculator.ReturnPct(target, avg)
	if !ok {
		return nil
	}
	return &pct
}

// Enrich attaches live and potential returns to p.
func Enrich(p model.Position) model.EnrichedPosition {
	return model.EnrichedPosition{
		Position:     p,
		ReturnPct:    LiveReturn(p),
		PotentialPct: PotentialReturn(p),
	}
}

// Compute summarises the track record. Only positions with a realised
// return count towards accuracy and averages; a zero return is a loss.
func Compute(positions []model.Position) model.PerformanceStats {
	var (
		stats           model.PerformanceStats
		withReturns     []model.Position
		winSum, lossSum float64
		downsideSum     float64
		downsideN       int
	)
	stats.TotalPositions = len(positions)

	for _, p := range positions {
		switch p.Status {
		case model.StatusEntry, model.StatusHold, model.StatusExit:
			stats.ActivePositions++
		case model.StatusExited:
			stats.ExitedPositions++
		}
		if p.RealisedPct == nil {
			continue
		}
		withReturns = append(withReturns, p)
		if *p.RealisedPct > 0 {
			stats.WinningCalls++
			winSum += *p.RealisedPct
		} else {
			stats.LosingCalls++
			lossSum += *p.RealisedPct
		}
		if d, ok := downside(p); ok {
			downsideSum += d
			downsideN++
		}
	}

	if n := len(withReturns); n > 0 {
		stats.AccuracyRatio = calculator.Round2(float64(stats.WinningCalls) / float64(n) * 100)
	}
	if stats.WinningCalls > 0 {
		stats.AvgWinningReturn = calculator.Round2(winSum / float64(stats.WinningCalls))
	}
	if stats.LosingCalls > 0 {
		stats.AvgLosingReturn = calculator.Round2(lossSum / float64(stats.LosingCalls))
	}
	if downsideN > 0 {
		stats.AvgDownside = calculator.Round2(downsideSum / float64(downsideN))
	}

	sort.SliceStable(withReturns, func(i, j int) bool {
		return *withReturns[i].RealisedPct > *withReturns[j].RealisedPct
	})
	if len(withReturns) > TopN {
		withReturns = withReturns[:TopN]
	}
	stats.TopPerformers = withReturns
	return stats
}

// downside is the planned loss at the stop-loss, relative to average entry.
func downside(p model.Position) (float64, bool) {
	stop, ok := calculator.ParsePrice(p.StopLoss)
	if !ok {
		return 0, false
	}
	avg, ok := calculator.AverageEntry(p.AverageEntry, p.EntryZone)
	if !ok || avg == 0 {
		return 0, false
	}
	return (stop - avg) / avg * 100, true
}
