package ledger

import (
	"math"

	"papertraderv1/internal/model"
)

// ComputePnL returns the profit or loss, in USDT, that closing the
// position at the current price would realize. Pure function of its
// inputs: it never errors and never mutates state.
//
// A symbol missing from prices is treated as price 0, not a failure —
// the position would simply show its full notional as a loss (long) or
// gain (short) until a price arrives. An entry price of 0 cannot occur
// for positions created through Ledger.Open, but is guarded here anyway
// and yields zero P&L instead of dividing by zero.
//
// The result is rounded to cents, half away from zero.
func ComputePnL(prices map[string]float64, p model.Position) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}

	qty := p.Size / p.EntryPrice
	current := prices[p.Symbol]

	pnl := (current - p.EntryPrice) * qty
	if p.Side == model.SideShort {
		pnl = -pnl
	}
	return round2(pnl)
}

// round2 rounds to 2 decimal places, half away from zero.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
