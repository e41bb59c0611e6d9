package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/Rhymond/go-money"

	"EquityWatch/internal/model"
	"EquityWatch/internal/watchlist"
)

// DefaultCurrency is used when no display currency is configured.
const DefaultCurrency = money.USD

func formatMoney(amount float64, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	return money.NewFromFloat(amount, currency).Display()
}

func formatOptional(v *float64, format string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v)
}

// FormatCandidates formats the ranked screen output.
func FormatCandidates(candidates []model.Candidate, policy string, asOf time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🔎 <b>Screen</b> (%s) | %s\n\n", html.EscapeString(policy), asOf.Format("2006-01-02")))
	if len(candidates) == 0 {
		b.WriteString("No instruments match the pullback band.")
		return b.String()
	}
	for i, c := range candidates {
		b.WriteString(fmt.Sprintf("%d. <b>%s</b> %s\n", i+1, html.EscapeString(c.InstrumentID), html.EscapeString(c.Name)))
		b.WriteString(fmt.Sprintf("   %.2f vs high %.2f (-%.1f%%)\n", c.CurrentPrice, c.YearHigh, c.PercentBelowHigh))
	}
	return b.String()
}

// FormatWatchlist formats an owner's watchlist.
func FormatWatchlist(ownerID string, entries []model.WatchlistEntry) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("👀 <b>Watchlist</b> | %s\n\n", html.EscapeString(ownerID)))
	if len(entries) == 0 {
		b.WriteString("Empty.")
		return b.String()
	}
	for _, e := range entries {
		b.WriteString(fmt.Sprintf("<b>%s</b> %.2f → %.2f (%+.2f%%)\n",
			html.EscapeString(e.InstrumentID), e.PriceWhenAdded, e.CurrentPrice, e.PriceChangePct))
		b.WriteString(fmt.Sprintf("   %.1f%% below high %.2f | since %s\n",
			e.PercentBelowHigh, e.WeekHigh52, e.FirstAdded.Format("2006-01-02")))
	}
	return b.String()
}

// FormatValuation formats a portfolio valuation.
func FormatValuation(v *model.Valuation, currency string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("💼 <b>Portfolio %s</b> | %s\n\n", html.EscapeString(v.PortfolioID), v.AsOf.Format("2006-01-02")))
	for _, p := range v.Positions {
		b.WriteString(fmt.Sprintf("<b>%s</b> x%d @ %s → %s (%+.2f%%)\n",
			html.EscapeString(p.InstrumentID), p.Quantity,
			formatMoney(p.AverageCost.InexactFloat64(), currency),
			formatMoney(p.MarketValue.InexactFloat64(), currency),
			p.GainLossPct.InexactFloat64()))
	}
	b.WriteString("  ─────────────────\n")
	b.WriteString(fmt.Sprintf("Value: %s\n", formatMoney(v.TotalValue.InexactFloat64(), currency)))
	b.WriteString(fmt.Sprintf("Cost: %s\n", formatMoney(v.TotalCost.InexactFloat64(), currency)))
	b.WriteString(fmt.Sprintf("Gain/Loss: %+.2f%%\n", v.TotalGainLossPct.InexactFloat64()))
	if len(v.Unpriced) > 0 {
		b.WriteString(fmt.Sprintf("\n⚠️ No price for: %s\n", html.EscapeString(strings.Join(v.Unpriced, ", "))))
	}
	return b.String()
}

// FormatReconcile summarises a reconcile pass.
func FormatReconcile(ownerID string, res watchlist.ReconcileResult) string {
	return fmt.Sprintf("✅ Watchlist %s reconciled: %d candidates, %d added, %d refreshed",
		html.EscapeString(ownerID), res.Candidates, res.Added, res.Refreshed)
}

// FormatSnapshot formats the latest indicator values of an instrument.
func FormatSnapshot(s *model.IndicatorSnapshot) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>%s</b> | %s\n\n", html.EscapeString(s.InstrumentID), s.Date.Format("2006-01-02")))
	b.WriteString(fmt.Sprintf("Close: %.2f\n", s.Close))
	b.WriteString(fmt.Sprintf("SMA20: %s | SMA50: %s | SMA200: %s\n",
		formatOptional(s.SMA20, "%.2f"), formatOptional(s.SMA50, "%.2f"), formatOptional(s.SMA200, "%.2f")))
	b.WriteString(fmt.Sprintf("Bands: %s / %s\n", formatOptional(s.LowerBand, "%.2f"), formatOptional(s.UpperBand, "%.2f")))
	b.WriteString(fmt.Sprintf("RSI: %s\n", formatOptional(s.RSI, "%.1f")))
	b.WriteString(fmt.Sprintf("52w: %.2f - %.2f (position %.0f%%)\n", s.Low52w, s.High52w, s.Position52w*100))
	return b.String()
}

// FormatPerformance formats trailing returns.
func FormatPerformance(instrumentID string, p model.Performance) string {
	rows := []struct {
		label string
		value *float64
	}{
		{"5d", p.Days5}, {"10d", p.Days10}, {"1m", p.Month1}, {"3m", p.Months3},
		{"6m", p.Months6}, {"YTD", p.YTD}, {"1y", p.Year1}, {"2y", p.Years2},
		{"5y", p.Years5}, {"10y", p.Years10},
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📈 <b>%s</b> performance | %s\n\n", html.EscapeString(instrumentID), p.AsOf.Format("2006-01-02")))
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("%-4s %s\n", r.label, formatOptional(r.value, "%+.2f%%")))
	}
	return b.String()
}

// FormatFailure reports a failed scheduled pass.
func FormatFailure(pass string, err error) string {
	return fmt.Sprintf("❌ <b>%s failed</b>\n%s", html.EscapeString(pass), html.EscapeString(err.Error()))
}
