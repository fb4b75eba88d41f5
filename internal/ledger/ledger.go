// Package ledger owns the virtual USDT balance and the set of open
// simulated positions.
//
// All mutations go through Fund, Open and Close, which are serialized by
// a single mutex so the invariants hold after every call:
//
//	locked == sum of sizes of all open positions
//	balance - locked >= 0
//
// The balance only moves on Close (by the realized P&L); Open merely
// locks notional.
package ledger

import (
	"errors"
	"log"
	"sync"
	"time"

	"papertraderv1/internal/model"
	"papertraderv1/pkg/id"
)

var (
	// ErrInsufficientBalance rejects an open whose size exceeds the
	// available (unlocked) balance. Surfaced to the user as-is.
	ErrInsufficientBalance = errors.New("insufficient available balance")

	// ErrPositionNotFound is returned by Close for an unknown or
	// already-closed position id. Callers should treat it as benign: a
	// duplicate close trigger is expected, not a bug.
	ErrPositionNotFound = errors.New("position not found")

	// ErrPriceUnavailable rejects an open for a symbol with no known
	// price yet. Opening at price 0 would corrupt P&L math.
	ErrPriceUnavailable = errors.New("no price available for symbol")

	// ErrInvalidSize rejects a non-positive position size or funding amount.
	ErrInvalidSize = errors.New("size must be positive")

	// ErrAlreadyFunded is returned by Fund after the session's funding
	// event has happened. The initial balance is recorded once.
	ErrAlreadyFunded = errors.New("session already funded")
)

// Ledger is the session's position book and virtual balance.
type Ledger struct {
	mu             sync.RWMutex
	balance        float64
	locked         float64
	initialBalance float64
	funded         bool
	positions      []model.Position // insertion order
}

// New returns an empty, unfunded ledger. Until Fund is called the
// available balance is 0, so every open is rejected.
func New() *Ledger {
	return &Ledger{}
}

// Fund credits the session's starting balance and records it as the
// initial balance for session P&L. Only the first call succeeds.
func (l *Ledger) Fund(amount float64) error {
	if amount <= 0 {
		return ErrInvalidSize
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.funded {
		return ErrAlreadyFunded
	}
	l.balance = amount
	l.initialBalance = amount
	l.funded = true
	log.Printf("[ledger] session funded with %.2f USDT", amount)
	return nil
}

// Open creates a new position at the given current price, locking its
// size. The caller resolves currentPrice from the price feed; a zero or
// negative price is rejected rather than silently opening a broken
// position. The balance is not touched.
func (l *Ledger) Open(symbol string, side model.Side, size, currentPrice float64) (model.Position, error) {
	if size <= 0 {
		return model.Position{}, ErrInvalidSize
	}
	if currentPrice <= 0 {
		return model.Position{}, ErrPriceUnavailable
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if size > l.balance-l.locked {
		return model.Position{}, ErrInsufficientBalance
	}

	pos := model.Position{
		ID:         id.New(),
		Symbol:     symbol,
		Side:       side,
		Size:       size,
		EntryPrice: currentPrice,
		OpenedAt:   time.Now().UTC(),
	}
	l.positions = append(l.positions, pos)
	l.locked += size

	log.Printf("[ledger] opened %s %s size=%.2f entry=%.2f id=%s",
		side, symbol, size, currentPrice, pos.ID)
	return pos, nil
}

// Close realizes the position's P&L against the given price snapshot,
// credits it to the balance, releases the locked size and removes the
// position. At most one Close succeeds per id; concurrent duplicates
// observe ErrPositionNotFound and leave the balance untouched.
func (l *Ledger) Close(positionID string, prices map[string]float64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i := range l.positions {
		if l.positions[i].ID == positionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, ErrPositionNotFound
	}

	pos := l.positions[idx]
	pnl := ComputePnL(prices, pos)

	l.balance += pnl
	l.locked -= pos.Size
	l.positions = append(l.positions[:idx], l.positions[idx+1:]...)

	log.Printf("[ledger] closed %s %s pnl=%.2f balance=%.2f id=%s",
		pos.Side, pos.Symbol, pnl, l.balance, pos.ID)
	return pnl, nil
}

// Balance returns the virtual USDT balance (realized P&L included).
func (l *Ledger) Balance() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balance
}

// Locked returns the sum of sizes of all open positions.
func (l *Ledger) Locked() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.locked
}

// Available returns balance minus locked — the ceiling for new opens.
func (l *Ledger) Available() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balance - l.locked
}

// SessionPnL returns cumulative realized P&L since the funding event.
func (l *Ledger) SessionPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balance - l.initialBalance
}

// Funded reports whether the session funding event has happened.
func (l *Ledger) Funded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.funded
}

// Positions returns a copy of the open positions in insertion order.
func (l *Ledger) Positions() []model.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := make([]model.Position, len(l.positions))
	copy(cp, l.positions)
	return cp
}

// PositionView is a position annotated with its live valuation.
type PositionView struct {
	model.Position
	CurrentPrice float64 `json:"current_price"`
	PnL          float64 `json:"pnl"`
}

// Snapshot is a consistent read of the whole ledger, valued against one
// price snapshot. This is what the gateway pushes to clients.
type Snapshot struct {
	Balance    float64        `json:"balance"`
	Locked     float64        `json:"locked"`
	Available  float64        `json:"available"`
	SessionPnL float64        `json:"session_pnl"`
	Funded     bool           `json:"funded"`
	Positions  []PositionView `json:"positions"`
}

// Snapshot values every open position against prices and returns the
// balances alongside. Read-only.
func (l *Ledger) Snapshot(prices map[string]float64) Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	views := make([]PositionView, len(l.positions))
	for i, p := range l.positions {
		views[i] = PositionView{
			Position:     p,
			CurrentPrice: prices[p.Symbol],
			PnL:          ComputePnL(prices, p),
		}
	}
	return Snapshot{
		Balance:    l.balance,
		Locked:     l.locked,
		Available:  l.balance - l.locked,
		SessionPnL: l.balance - l.initialBalance,
		Funded:     l.funded,
		Positions:  views,
	}
}
