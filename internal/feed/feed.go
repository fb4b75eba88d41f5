// Package feed maintains the latest known price per tracked symbol from
// a streaming market-data source.
//
// The feed owns a symbol→price table seeded at 0 ("no data yet") for the
// subscribed set. A background loop keeps one streaming connection open
// via the injected Source and reconnects after a fixed delay on any
// transport failure — indefinitely, because this is a best-effort
// display feed, not an execution path. The table survives reconnects;
// only the connection is torn down and rebuilt.
package feed

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"papertraderv1/internal/model"
)

// DefaultReconnectDelay is the fixed wait before redialing the stream.
const DefaultReconnectDelay = 3 * time.Second

// Source opens one streaming connection to a market-data endpoint and
// pushes ticks into out until the connection fails or ctx is cancelled.
// It returns the transport error that ended the connection, or nil on
// cancellation. The feed handles all reconnection.
type Source interface {
	Run(ctx context.Context, pairs []string, out chan<- model.Tick) error
}

// Config holds feed tuning knobs.
type Config struct {
	// ReconnectDelay is the fixed wait between reconnect attempts.
	// Defaults to DefaultReconnectDelay if zero.
	ReconnectDelay time.Duration
}

// Feed tracks live prices for a fixed symbol set.
type Feed struct {
	source Source
	delay  time.Duration

	// Optional hooks, wired to metrics by the caller.
	OnTick      func(model.Tick)
	OnReconnect func()
	OnDrop      func() // tick for an unsubscribed symbol

	mu       sync.RWMutex
	symbols  []string // base symbols in subscription order
	prices   map[string]float64
	lastTick time.Time
	running  bool

	parent context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Feed over the given source.
func New(source Source, cfg Config) *Feed {
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	return &Feed{
		source: source,
		delay:  cfg.ReconnectDelay,
		prices: make(map[string]float64),
	}
}

// Normalize strips the quote-currency suffix from an exchange pair,
// recovering the base asset ticker: "BTCUSDT" → "BTC".
func Normalize(pair string) string {
	return strings.TrimSuffix(strings.ToUpper(pair), "USDT")
}

// Start initializes the price table for the given pairs (price 0 until
// data arrives) and launches the streaming loop in the background.
// Cancel ctx to tear the feed down; teardown closes the connection and
// schedules no further reconnects. Starting with an already-cancelled
// ctx is a no-op: the feed is never marked running with a dead loop.
func (f *Feed) Start(ctx context.Context, pairs []string) {
	if ctx.Err() != nil {
		return
	}
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.parent = ctx
	f.initTableLocked(pairs)
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	done := f.done
	f.mu.Unlock()

	go f.loop(runCtx, pairs, done)
}

// Stop tears down the connection and stops the reconnect loop. Blocks
// until the loop has exited, so no timer fires afterwards.
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	cancel, done := f.cancel, f.done
	f.running = false
	f.mu.Unlock()

	cancel()
	<-done
}

// Resubscribe replaces the subscribed pair set: the current connection
// is torn down, table entries for removed symbols are pruned, and a
// fresh connection is opened for the new set. Known prices for symbols
// present in both sets are kept.
func (f *Feed) Resubscribe(pairs []string) {
	f.mu.RLock()
	parent := f.parent
	f.mu.RUnlock()
	if parent == nil || parent.Err() != nil {
		return
	}

	f.Stop()

	f.mu.Lock()
	keep := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		sym := Normalize(pair)
		keep[sym] = f.prices[sym] // 0 for newly added symbols
	}
	f.prices = keep
	f.mu.Unlock()

	f.Start(parent, pairs)
}

// initTableLocked seeds the table. Caller holds f.mu.
func (f *Feed) initTableLocked(pairs []string) {
	f.symbols = f.symbols[:0]
	for _, pair := range pairs {
		sym := Normalize(pair)
		f.symbols = append(f.symbols, sym)
		if _, ok := f.prices[sym]; !ok {
			f.prices[sym] = 0
		}
	}
}

// loop runs one connection at a time, reconnecting after the fixed
// delay. Exits only on ctx cancellation.
func (f *Feed) loop(ctx context.Context, pairs []string, done chan struct{}) {
	defer close(done)

	tickCh := make(chan model.Tick, 256)
	for {
		err := f.runOnce(ctx, pairs, tickCh)
		if ctx.Err() != nil {
			return
		}

		log.Printf("[feed] stream disconnected (%v), reconnecting in %s", err, f.delay)
		if f.OnReconnect != nil {
			f.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.delay):
		}
	}
}

// runOnce drives a single connection, applying ticks until the source
// returns.
func (f *Feed) runOnce(ctx context.Context, pairs []string, tickCh chan model.Tick) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- f.source.Run(ctx, pairs, tickCh)
	}()

	for {
		select {
		case err := <-errCh:
			// Drain ticks that raced with the disconnect.
			for {
				select {
				case t := <-tickCh:
					f.apply(t)
				default:
					return err
				}
			}
		case t := <-tickCh:
			f.apply(t)
		}
	}
}

// apply updates the matching table entry and leaves all others
// unchanged. Ticks for unsubscribed symbols are dropped silently.
func (f *Feed) apply(t model.Tick) {
	sym := Normalize(t.Pair)

	f.mu.Lock()
	_, tracked := f.prices[sym]
	if tracked {
		f.prices[sym] = t.Price
		f.lastTick = t.At
	}
	f.mu.Unlock()

	if !tracked {
		if f.OnDrop != nil {
			f.OnDrop()
		}
		return
	}
	if f.OnTick != nil {
		f.OnTick(t)
	}
}

// Seed fills in prices that are still 0 from a one-shot snapshot keyed
// by exchange pair. Live ticks always win over the snapshot.
func (f *Feed) Seed(pairPrices map[string]float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for pair, price := range pairPrices {
		sym := Normalize(pair)
		if cur, ok := f.prices[sym]; ok && cur == 0 && price > 0 {
			f.prices[sym] = price
		}
	}
}

// Price returns the latest price for a base symbol. ok is false for
// untracked symbols; a tracked symbol with no data yet returns (0, true).
func (f *Feed) Price(symbol string) (price float64, ok bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	price, ok = f.prices[symbol]
	return price, ok
}

// PriceMap returns a copy of the symbol→price table.
func (f *Feed) PriceMap() map[string]float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	cp := make(map[string]float64, len(f.prices))
	for k, v := range f.prices {
		cp[k] = v
	}
	return cp
}

// Snapshot returns the tracked price points in subscription order.
func (f *Feed) Snapshot() []model.PricePoint {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]model.PricePoint, len(f.symbols))
	for i, sym := range f.symbols {
		out[i] = model.PricePoint{Symbol: sym, Price: f.prices[sym]}
	}
	return out
}

// Symbols returns the tracked base symbols in subscription order.
func (f *Feed) Symbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	cp := make([]string, len(f.symbols))
	copy(cp, f.symbols)
	return cp
}

// LastTick returns the receive time of the most recent applied tick.
func (f *Feed) LastTick() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastTick
}
