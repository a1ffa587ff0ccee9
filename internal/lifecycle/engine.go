package lifecycle

import (
	"time"

	"PriceSentinel/internal/calculator"
	"PriceSentinel/internal/model"
)

// Reason explains which rule produced a status.
type Reason string

const (
	ReasonStopLoss    Reason = "stop_loss"
	ReasonTarget      Reason = "target"
	ReasonInZone      Reason = "in_entry_zone"
	ReasonOutsideZone Reason = "outside_entry_zone"
	ReasonUnevaluable Reason = "unevaluable"
)

// Result is the outcome of reconciling a position against a fresh price.
type Result struct {
	Status      model.Status
	RealisedPct *float64
	ExitedAt    *time.Time
	Reason      Reason
	// Evaluated is false when the entry zone or stop-loss could not be
	// parsed; the other fields then echo the position unchanged.
	Evaluated bool
}

// Changed reports whether the result moves the position to a new status.
func (r Result) Changed(prev model.Status) bool {
	return r.Status != prev
}

// Update turns the result into the persisted field set for price.
func (r Result) Update(price float64, at time.Time) model.PriceUpdate {
	return model.PriceUpdate{
		CurrentPrice:    price,
		LastPriceUpdate: at,
		Status:          r.Status,
		RealisedPct:     r.RealisedPct,
		ExitedAt:        r.ExitedAt,
	}
}

// classify maps a price onto the status a fresh evaluation would give,
// ignoring history. Stop-loss is checked before target.
func classify(price float64, zone calculator.PriceRange, stop float64, target string) (model.Status, Reason) {
	if price <= stop {
		return model.StatusExit, ReasonStopLoss
	}
	if t, ok := calculator.ParsePrice(target); ok && price >= t {
		return model.StatusExit, ReasonTarget
	}
	if zone.Contains(price) {
		return model.StatusEntry, ReasonInZone
	}
	return model.StatusHold, ReasonOutsideZone
}

// Reconcile computes the new lifecycle state of p at price.
//
// The realised return and exit time are frozen on the first transition into
// exit and survive every later evaluation that keeps the position closed. A
// closed position whose price returns to entry or hold territory is reopened
// with both fields cleared. Price evaluation never produces exited; a position
// already archived as exited stays exited while the price keeps it closed.
func Reconcile(p *model.Position, price float64, now time.Time) Result {
	res := Result{
		Status:      p.Status,
		RealisedPct: p.RealisedPct,
		ExitedAt:    p.ExitedAt,
		Reason:      ReasonUnevaluable,
	}

	zone, ok := calculator.ParseRange(p.EntryZone)
	if !ok {
		return res
	}
	stop, ok := calculator.ParsePrice(p.StopLoss)
	if !ok {
		return res
	}

	next, reason := classify(price, zone, stop, p.Target)
	res.Evaluated = true
	res.Reason = reason

	wasClosed := p.Status.Closed()
	switch {
	case next == model.StatusExit && wasClosed:
		// keep the frozen figures, and keep exited archived
		res.Status = p.Status
	case next == model.StatusExit:
		res.Status = next
		if avg, ok := calculator.AverageEntry(p.AverageEntry, p.EntryZone); ok {
			if pct, ok := calculator.ReturnPct(price, avg); ok {
				res.RealisedPct = &pct
				res.ExitedAt = model.Time(now)
			}
		}
	default:
		res.Status = next
		res.RealisedPct = nil
		res.ExitedAt = nil
	}

	if res.RealisedPct != nil {
		res.RealisedPct = model.Float(calculator.Round2(*res.RealisedPct))
	}
	return res
}
