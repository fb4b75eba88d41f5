// Package model holds the shared domain types: price points, trade ticks,
// and simulated positions.
package model

import "time"

// Side is the direction of a simulated position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// PricePoint is the latest known price for one tracked base asset.
// Price 0 means no data has been observed yet.
type PricePoint struct {
	Symbol string  `json:"symbol"` // base asset, e.g. "BTC"
	Price  float64 `json:"price"`
}

// Tick is a single trade tick as received from the market-data stream,
// before symbol normalization.
type Tick struct {
	Pair  string    `json:"pair"`  // exchange pair, e.g. "BTCUSDT"
	Price float64   `json:"price"` // last traded price in quote currency
	At    time.Time `json:"at"`    // receive timestamp, UTC
}

// Position is a simulated position. Immutable once created; the ledger
// removes it from the open set on close.
type Position struct {
	ID         string    `json:"id"` // ULID, time-sortable
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Size       float64   `json:"size"`        // USDT notional committed
	EntryPrice float64   `json:"entry_price"` // market price at open
	OpenedAt   time.Time `json:"opened_at"`
}

// Quantity returns the implied base-asset quantity bought with the
// position's notional at entry. Zero when the entry price is unset.
func (p *Position) Quantity() float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return p.Size / p.EntryPrice
}
