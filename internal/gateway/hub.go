// Package gateway is the presentation boundary: it streams state
// snapshots to browser WebSocket clients, mirrors them over REST, and
// turns user intents (open/close/size/select/wallet) into ledger calls.
// It renders nothing itself.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"papertraderv1/internal/feed"
	"papertraderv1/internal/ledger"
	"papertraderv1/internal/model"
	"papertraderv1/internal/wallet"
)

// Config holds gateway behavior knobs.
type Config struct {
	// InitialBalance is the fixed session stake used at the funding
	// event unless FundFromWallet applies.
	InitialBalance float64

	// FundFromWallet reconciles the session stake against the connected
	// wallet's token balance: when true and the wallet reports a
	// positive balance, that amount funds the session instead of
	// InitialBalance.
	FundFromWallet bool

	// BroadcastInterval is the state push cadence. Defaults to 1s.
	BroadcastInterval time.Duration
}

// Hub manages WebSocket clients and owns the fan-out of state snapshots.
// Ledger mutations from both WS intents and REST all funnel through the
// hub so the two surfaces share one code path.
type Hub struct {
	feed   *feed.Feed
	book   *ledger.Ledger
	wallet *wallet.Client
	cfg    Config

	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64

	// Latency tracks tick-receipt→broadcast delay percentiles.
	Latency *LatencyTracker

	// Optional metric hooks.
	OnOpened      func()
	OnClosed      func(pnl float64)
	OnRejected    func(reason string)
	OnClientCount func(n int)
}

// NewHub wires the gateway over the feed, ledger and wallet provider.
func NewHub(f *feed.Feed, book *ledger.Ledger, w *wallet.Client, cfg Config) *Hub {
	if cfg.BroadcastInterval == 0 {
		cfg.BroadcastInterval = time.Second
	}
	return &Hub{
		feed:    f,
		book:    book,
		wallet:  w,
		cfg:     cfg,
		clients: make(map[*Client]bool),
		Latency: NewLatencyTracker(4096),
	}
}

// HandleWSRequest registers an upgraded connection and starts its pumps.
func (h *Hub) HandleWSRequest(conn *websocket.Conn) {
	symbols := h.feed.Symbols()
	selected := ""
	if len(symbols) > 0 {
		selected = symbols[0]
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 256),
		hub:    h,
		symbol: selected,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}

	go client.writePump()
	go client.readPump()

	// Initial state so the client renders without waiting for the ticker.
	if env, err := h.stateEnvelope(); err == nil {
		client.enqueue(env)
	}
}

// RemoveClient unregisters a client and closes its send channel.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.closeSend()
		if h.OnClientCount != nil {
			h.OnClientCount(count)
		}
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BuildState assembles the full presentation snapshot: prices in
// subscription order and the ledger valued against the same snapshot.
func (h *Hub) BuildState() StatePayload {
	prices := h.feed.PriceMap()
	p50, p95, p99 := h.Latency.Percentiles()
	return StatePayload{
		Prices:     h.feed.Snapshot(),
		Ledger:     h.book.Snapshot(prices),
		LastTickAt: h.feed.LastTick(),
		LatencyP50: p50,
		LatencyP95: p95,
		LatencyP99: p99,
	}
}

func (h *Hub) stateEnvelope() ([]byte, error) {
	data, err := json.Marshal(h.BuildState())
	if err != nil {
		return nil, err
	}
	return h.envelope("state", data), nil
}

// StartStateBroadcast pushes the state snapshot to all clients on the
// configured cadence. Blocks until ctx is cancelled.
func (h *Hub) StartStateBroadcast(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.BroadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.pushState()
		}
	}
}

// pushState broadcasts the current state immediately. Called by the
// ticker and after every successful mutation so opens and closes are
// reflected without waiting a full interval.
func (h *Hub) pushState() {
	data, err := json.Marshal(h.BuildState())
	if err != nil {
		log.Printf("[gateway] state marshal error: %v", err)
		return
	}
	h.Broadcast("state", data)
}

// OpenPosition resolves the current price from the feed and opens a
// position. The price is read at call time, never from a stale capture.
func (h *Hub) OpenPosition(symbol string, side model.Side, size float64) (model.Position, error) {
	if !side.Valid() {
		h.reject("invalid_side")
		return model.Position{}, errors.New("side must be LONG or SHORT")
	}

	price, tracked := h.feed.Price(symbol)
	if !tracked {
		h.reject("unknown_symbol")
		return model.Position{}, errors.New("unknown symbol " + symbol)
	}

	pos, err := h.book.Open(symbol, side, size, price)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientBalance):
			h.reject("insufficient_balance")
		case errors.Is(err, ledger.ErrPriceUnavailable):
			h.reject("price_unavailable")
		default:
			h.reject("invalid_size")
		}
		return model.Position{}, err
	}

	if h.OnOpened != nil {
		h.OnOpened()
	}
	h.pushState()
	return pos, nil
}

// ClosePosition closes by id against the authoritative price snapshot
// read at call time. ErrPositionNotFound passes through untouched so
// callers can treat duplicate closes as benign.
func (h *Hub) ClosePosition(id string) (float64, error) {
	pnl, err := h.book.Close(id, h.feed.PriceMap())
	if err != nil {
		return 0, err
	}
	if h.OnClosed != nil {
		h.OnClosed(pnl)
	}
	h.pushState()
	return pnl, nil
}

// WalletBalances looks up on-chain balances for display. Read-only: it
// never touches the ledger. RPC failures degrade to zero balances; only
// a malformed address is an error the caller sees.
func (h *Hub) WalletBalances(ctx context.Context, address string) (wallet.Balances, error) {
	bal, err := h.wallet.Balances(ctx, address)
	if err != nil {
		if errors.Is(err, wallet.ErrInvalidAddress) {
			return wallet.Balances{}, err
		}
		log.Printf("[gateway] wallet lookup degraded to zero balances: %v", err)
		bal = wallet.Balances{Address: address}
	}
	return bal, nil
}

// ConnectWallet is the mutating counterpart: the balance lookup plus
// the one-time session funding event. Only an explicit connect (WS
// WALLET intent or POST /api/wallet/connect) funds the session.
func (h *Hub) ConnectWallet(ctx context.Context, address string) (wallet.Balances, error) {
	bal, err := h.WalletBalances(ctx, address)
	if err != nil {
		return wallet.Balances{}, err
	}
	h.fundSession(bal)
	return bal, nil
}

// fundSession performs the one-time session funding on wallet connect.
func (h *Hub) fundSession(bal wallet.Balances) {
	if h.book.Funded() {
		return
	}
	amount := h.cfg.InitialBalance
	if h.cfg.FundFromWallet && bal.Token > 0 {
		amount = bal.Token
	}
	err := h.book.Fund(amount)
	if err != nil && !errors.Is(err, ledger.ErrAlreadyFunded) {
		log.Printf("[gateway] session funding failed: %v", err)
		return
	}
	if err == nil {
		h.pushState()
	}
}

func (h *Hub) reject(reason string) {
	if h.OnRejected != nil {
		h.OnRejected(reason)
	}
}
