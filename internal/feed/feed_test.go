package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"papertraderv1/internal/model"
)

// scriptSource replays a per-connection script, letting tests drive the
// reconnect loop deterministically.
type scriptSource struct {
	mu   sync.Mutex
	runs int
	fn   func(run int, ctx context.Context, out chan<- model.Tick) error
}

func (s *scriptSource) Run(ctx context.Context, pairs []string, out chan<- model.Tick) error {
	s.mu.Lock()
	s.runs++
	run := s.runs
	s.mu.Unlock()
	return s.fn(run, ctx, out)
}

func (s *scriptSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// blockSource holds the connection open until cancelled.
func blockSource() *scriptSource {
	return &scriptSource{fn: func(_ int, ctx context.Context, _ chan<- model.Tick) error {
		<-ctx.Done()
		return nil
	}}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		pair string
		want string
	}{
		{"BTCUSDT", "BTC"},
		{"ethusdt", "ETH"},
		{"SOLUSDT", "SOL"},
		{"BTC", "BTC"},
		{"USDT", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.pair); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.pair, got, tt.want)
		}
	}
}

func TestStart_SeedsTableAtZero(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := New(blockSource(), Config{ReconnectDelay: 10 * time.Millisecond})
	f.Start(ctx, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})
	defer f.Stop()

	snap := f.Snapshot()
	want := []model.PricePoint{{Symbol: "BTC"}, {Symbol: "ETH"}, {Symbol: "SOL"}}
	if len(snap) != len(want) {
		t.Fatalf("snapshot length: got %d, want %d", len(snap), len(want))
	}
	for i := range want {
		if snap[i] != want[i] {
			t.Errorf("snapshot[%d] = %+v, want %+v", i, snap[i], want[i])
		}
	}

	if price, ok := f.Price("BTC"); !ok || price != 0 {
		t.Errorf("Price(BTC) = %v, %v; want 0, true", price, ok)
	}
	if _, ok := f.Price("DOGE"); ok {
		t.Error("Price(DOGE) reported tracked")
	}
}

func TestFeed_AppliesTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &scriptSource{fn: func(_ int, ctx context.Context, out chan<- model.Tick) error {
		out <- model.Tick{Pair: "BTCUSDT", Price: 50000, At: time.Now()}
		out <- model.Tick{Pair: "btcusdt", Price: 50100, At: time.Now()}
		<-ctx.Done()
		return nil
	}}

	f := New(src, Config{ReconnectDelay: 10 * time.Millisecond})
	var ticks atomic.Int64
	f.OnTick = func(model.Tick) { ticks.Add(1) }
	f.Start(ctx, []string{"BTCUSDT", "ETHUSDT"})
	defer f.Stop()

	waitFor(t, func() bool {
		p, _ := f.Price("BTC")
		return p == 50100
	}, "BTC price to update")

	if p, _ := f.Price("ETH"); p != 0 {
		t.Errorf("ETH price moved without a tick: %v", p)
	}
	if got := ticks.Load(); got != 2 {
		t.Errorf("tick hook fired %d times, want 2", got)
	}
	if f.LastTick().IsZero() {
		t.Error("LastTick not recorded")
	}
}

func TestFeed_DropsUnsubscribedSymbols(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &scriptSource{fn: func(_ int, ctx context.Context, out chan<- model.Tick) error {
		out <- model.Tick{Pair: "DOGEUSDT", Price: 0.4, At: time.Now()}
		out <- model.Tick{Pair: "BTCUSDT", Price: 50000, At: time.Now()}
		<-ctx.Done()
		return nil
	}}

	f := New(src, Config{ReconnectDelay: 10 * time.Millisecond})
	var drops atomic.Int64
	f.OnDrop = func() { drops.Add(1) }
	f.Start(ctx, []string{"BTCUSDT"})
	defer f.Stop()

	waitFor(t, func() bool {
		p, _ := f.Price("BTC")
		return p == 50000
	}, "BTC price to update")

	if got := drops.Load(); got != 1 {
		t.Errorf("drop hook fired %d times, want 1", got)
	}
	if _, ok := f.Price("DOGE"); ok {
		t.Error("unsubscribed symbol entered the table")
	}
}

func TestFeed_ReconnectKeepsPrices(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &scriptSource{fn: func(run int, ctx context.Context, out chan<- model.Tick) error {
		switch run {
		case 1:
			out <- model.Tick{Pair: "BTCUSDT", Price: 50000, At: time.Now()}
			return errors.New("stream closed")
		default:
			out <- model.Tick{Pair: "ETHUSDT", Price: 3000, At: time.Now()}
			<-ctx.Done()
			return nil
		}
	}}

	f := New(src, Config{ReconnectDelay: 10 * time.Millisecond})
	var reconnects atomic.Int64
	f.OnReconnect = func() { reconnects.Add(1) }
	f.Start(ctx, []string{"BTCUSDT", "ETHUSDT"})
	defer f.Stop()

	waitFor(t, func() bool {
		p, _ := f.Price("ETH")
		return p == 3000
	}, "price from second connection")

	if got := reconnects.Load(); got == 0 {
		t.Error("reconnect hook never fired")
	}
	if p, _ := f.Price("BTC"); p != 50000 {
		t.Errorf("BTC price lost across reconnect: got %v, want 50000", p)
	}
}

func TestStop_NoReconnectAfterwards(t *testing.T) {
	src := &scriptSource{fn: func(_ int, ctx context.Context, _ chan<- model.Tick) error {
		<-ctx.Done()
		return nil
	}}

	f := New(src, Config{ReconnectDelay: 5 * time.Millisecond})
	f.Start(context.Background(), []string{"BTCUSDT"})

	waitFor(t, func() bool { return src.count() == 1 }, "first connection")
	f.Stop()

	runs := src.count()
	time.Sleep(30 * time.Millisecond)
	if got := src.count(); got != runs {
		t.Errorf("source ran %d more times after Stop", got-runs)
	}

	// Stop is safe to call again on a stopped feed.
	f.Stop()
}

func TestResubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &scriptSource{fn: func(run int, ctx context.Context, out chan<- model.Tick) error {
		if run == 1 {
			out <- model.Tick{Pair: "ETHUSDT", Price: 3000, At: time.Now()}
		}
		<-ctx.Done()
		return nil
	}}

	f := New(src, Config{ReconnectDelay: 10 * time.Millisecond})
	f.Start(ctx, []string{"BTCUSDT", "ETHUSDT"})
	defer f.Stop()

	waitFor(t, func() bool {
		p, _ := f.Price("ETH")
		return p == 3000
	}, "ETH price")

	f.Resubscribe([]string{"ETHUSDT", "SOLUSDT"})
	waitFor(t, func() bool { return src.count() == 2 }, "second connection")

	if _, ok := f.Price("BTC"); ok {
		t.Error("removed symbol still tracked")
	}
	if p, ok := f.Price("ETH"); !ok || p != 3000 {
		t.Errorf("retained symbol lost its price: %v, %v", p, ok)
	}
	if p, ok := f.Price("SOL"); !ok || p != 0 {
		t.Errorf("added symbol not seeded at 0: %v, %v", p, ok)
	}

	syms := f.Symbols()
	if len(syms) != 2 || syms[0] != "ETH" || syms[1] != "SOL" {
		t.Errorf("symbols after resubscribe: %v", syms)
	}
}

func TestStart_CancelledContextIsNoOp(t *testing.T) {
	src := blockSource()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(src, Config{ReconnectDelay: time.Millisecond})
	f.Start(ctx, []string{"BTCUSDT"})

	time.Sleep(20 * time.Millisecond)
	if got := src.count(); got != 0 {
		t.Errorf("source ran %d times with a dead context", got)
	}

	// Stop on a never-started feed must not block.
	f.Stop()
}

func TestResubscribe_AfterShutdownIsNoOp(t *testing.T) {
	src := blockSource()
	ctx, cancel := context.WithCancel(context.Background())

	f := New(src, Config{ReconnectDelay: time.Millisecond})
	f.Start(ctx, []string{"BTCUSDT"})
	waitFor(t, func() bool { return src.count() == 1 }, "first connection")

	cancel()
	time.Sleep(20 * time.Millisecond)

	f.Resubscribe([]string{"ETHUSDT"})
	time.Sleep(20 * time.Millisecond)
	if got := src.count(); got != 1 {
		t.Errorf("resubscribe restarted a shut-down feed (%d runs)", got)
	}
	if _, ok := f.Price("BTC"); !ok {
		t.Error("table pruned by a no-op resubscribe")
	}

	f.Stop()
}

func TestSeed_OnlyFillsMissing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &scriptSource{fn: func(_ int, ctx context.Context, out chan<- model.Tick) error {
		out <- model.Tick{Pair: "BTCUSDT", Price: 50000, At: time.Now()}
		<-ctx.Done()
		return nil
	}}

	f := New(src, Config{ReconnectDelay: 10 * time.Millisecond})
	f.Start(ctx, []string{"BTCUSDT", "ETHUSDT"})
	defer f.Stop()

	waitFor(t, func() bool {
		p, _ := f.Price("BTC")
		return p == 50000
	}, "live BTC price")

	f.Seed(map[string]float64{
		"BTCUSDT":  49000, // live tick already applied, must not regress
		"ETHUSDT":  3000,
		"DOGEUSDT": 0.4, // untracked, ignored
	})

	if p, _ := f.Price("BTC"); p != 50000 {
		t.Errorf("seed overwrote live price: got %v, want 50000", p)
	}
	if p, _ := f.Price("ETH"); p != 3000 {
		t.Errorf("seed did not fill empty entry: got %v, want 3000", p)
	}
	if _, ok := f.Price("DOGE"); ok {
		t.Error("seed added an untracked symbol")
	}
}
