package notifier

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"PriceSentinel/internal/collector"
	"PriceSentinel/internal/lifecycle"
	"PriceSentinel/internal/markethours"
	"PriceSentinel/internal/model"
	"PriceSentinel/internal/refresher"
	"PriceSentinel/internal/store"
)

var statusIcons = map[model.Status]string{
	model.StatusEntry:  "🟢",
	model.StatusHold:   "🟡",
	model.StatusExit:   "🔴",
	model.StatusExited: "📁",
}

func icon(s model.Status) string {
	if i, ok := statusIcons[s]; ok {
		return i
	}
	return "•"
}

func pct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", *v)
}

func rupees(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("₹%.2f", *v)
}

// FormatStatusChange formats a lifecycle transition alert.
func FormatStatusChange(p model.Position, c model.StatusChange) string {
	var b strings.Builder

	title := "Status change"
	switch {
	case c.To == model.StatusExit && c.Reason == string(lifecycle.ReasonStopLoss):
		title = "Stop-loss hit"
	case c.To == model.StatusExit && c.Reason == string(lifecycle.ReasonTarget):
		title = "Target achieved"
	case c.From.Closed() && c.To.Active():
		title = "Re-entered"
	}

	b.WriteString(fmt.Sprintf("%s <b>%s</b> | %s\n\n", icon(c.To), title, html.EscapeString(c.Symbol)))
	if p.CompanyName != "" {
		b.WriteString(fmt.Sprintf("%s\n", html.EscapeString(p.CompanyName)))
	}
	b.WriteString(fmt.Sprintf("Status: %s → <b>%s</b>\n", c.From, c.To))
	b.WriteString(fmt.Sprintf("Price: ₹%.2f\n", c.Price))
	b.WriteString(fmt.Sprintf("Entry: %s | Target: %s | SL: %s\n",
		html.EscapeString(p.EntryZone), html.EscapeString(p.Target), html.EscapeString(p.StopLoss)))
	if c.RealisedPct != nil {
		b.WriteString(fmt.Sprintf("Returns: <b>%s</b>\n", pct(c.RealisedPct)))
	}
	b.WriteString(fmt.Sprintf("Time: %s IST", c.At.In(markethours.IST).Format("2006-01-02 15:04")))
	return b.String()
}

// FormatPerformanceStats formats the daily digest.
func FormatPerformanceStats(s model.PerformanceStats, now time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>PriceSentinel digest</b> | %s\n\n", now.In(markethours.IST).Format("2006-01-02")))
	b.WriteString(fmt.Sprintf("Tracked: %d | Active: %d | Past: %d\n", s.TotalPositions, s.ActivePositions, s.ExitedPositions))
	b.WriteString(fmt.Sprintf("Accuracy: <b>%.2f%%</b> (%d wins / %d losses)\n", s.AccuracyRatio, s.WinningCalls, s.LosingCalls))
	b.WriteString(fmt.Sprintf("Avg win: %+.2f%% | Avg loss: %+.2f%%\n", s.AvgWinningReturn, s.AvgLosingReturn))
	b.WriteString(fmt.Sprintf("Avg downside at SL: %+.2f%%\n", s.AvgDownside))

	if len(s.TopPerformers) > 0 {
		b.WriteString("\n🏆 <b>Top performers</b>\n")
		for i, p := range s.TopPerformers {
			b.WriteString(fmt.Sprintf("  %d. %s %s\n", i+1, html.EscapeString(p.Symbol), pct(p.RealisedPct)))
		}
	}
	return b.String()
}

// FormatRefreshSummary formats the outcome of a manual batch refresh.
func FormatRefreshSummary(r refresher.Result, took time.Duration) string {
	msg := fmt.Sprintf("🔄 <b>Refresh done</b>\n\nUpdated: %d\nErrors: %d\n", r.Updated, r.Errors)
	if r.Skipped > 0 {
		msg += fmt.Sprintf("Skipped: %d\n", r.Skipped)
	}
	return msg + fmt.Sprintf("Took: %s", took.Round(time.Millisecond))
}

// FormatPosition formats one position with its live figures and, when
// given, its status history.
func FormatPosition(e model.EnrichedPosition, history []model.StatusChange) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>%s</b> [%s]\n", icon(e.Status), html.EscapeString(e.Symbol), e.Status))
	if e.CompanyName != "" {
		b.WriteString(fmt.Sprintf("%s\n", html.EscapeString(e.CompanyName)))
	}
	b.WriteString(fmt.Sprintf("ID: <code>%s</code>\n\n", html.EscapeString(e.ID)))
	b.WriteString(fmt.Sprintf("Entry: %s | Target: %s | SL: %s\n",
		html.EscapeString(e.EntryZone), html.EscapeString(e.Target), html.EscapeString(e.StopLoss)))
	b.WriteString(fmt.Sprintf("Price: %s", rupees(e.CurrentPrice)))
	if e.LastPriceUpdate != nil {
		b.WriteString(fmt.Sprintf(" (%s IST)", e.LastPriceUpdate.In(markethours.IST).Format("02 Jan 15:04")))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Returns: %s | Potential: %s\n", pct(e.ReturnPct), pct(e.PotentialPct)))
	if e.ExitedAt != nil {
		b.WriteString(fmt.Sprintf("Exited: %s IST\n", e.ExitedAt.In(markethours.IST).Format("2006-01-02 15:04")))
	}

	if len(history) > 0 {
		b.WriteString("\n<b>History</b>\n")
		for _, c := range history {
			b.WriteString(fmt.Sprintf("  %s %s → %s @ ₹%.2f\n",
				c.At.In(markethours.IST).Format("02 Jan 15:04"), c.From, c.To, c.Price))
		}
	}
	return b.String()
}

// FormatError turns a refresh failure into a user-facing message naming the
// failing stage.
func FormatError(err error) string {
	var se *refresher.StageError
	if !errors.As(err, &se) {
		return fmt.Sprintf("❌ %s", html.EscapeString(err.Error()))
	}
	var reason string
	switch {
	case errors.Is(err, store.ErrNotFound):
		reason = "position not found"
	case errors.Is(err, collector.ErrQuoteUnavailable):
		reason = "no price available from the exchange"
	case errors.Is(err, collector.ErrUpstreamAuth):
		reason = "exchange rejected the session"
	case errors.Is(err, refresher.ErrUnevaluable):
		reason = "entry zone or stop-loss is not a price"
	default:
		reason = se.Err.Error()
	}
	return fmt.Sprintf("❌ Failed at <b>%s</b>: %s", se.Stage, html.EscapeString(reason))
}
