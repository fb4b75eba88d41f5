package gateway

import (
	"time"

	"papertraderv1/internal/ledger"
	"papertraderv1/internal/model"
	"papertraderv1/internal/wallet"
)

// ── Inbound intents (browser → gateway) ──

// OpenMsg opens a position on the client's selected symbol using its
// pending size: {"type":"OPEN","side":"LONG"}.
type OpenMsg struct {
	Type string `json:"type"`
	Side string `json:"side"`
}

// CloseMsg closes a position by id: {"type":"CLOSE","id":"..."}.
type CloseMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// SizeMsg sets the client's pending position size in USDT.
type SizeMsg struct {
	Type string  `json:"type"`
	Size float64 `json:"size"`
}

// SelectMsg switches the client's selected symbol.
type SelectMsg struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// WalletMsg requests on-chain balances for a connected account.
type WalletMsg struct {
	Type    string `json:"type"`
	Address string `json:"address"`
}

// ── Outbound payloads (gateway → browser) ──

// StatePayload is the full presentation snapshot pushed on the "state"
// channel: every price, the ledger valued against the same snapshot,
// and feed health.
type StatePayload struct {
	Prices     []model.PricePoint `json:"prices"`
	Ledger     ledger.Snapshot    `json:"ledger"`
	LastTickAt time.Time          `json:"last_tick_at"`
	LatencyP50 float64            `json:"latency_p50_ms"`
	LatencyP95 float64            `json:"latency_p95_ms"`
	LatencyP99 float64            `json:"latency_p99_ms"`
}

// OpenedPayload acknowledges a successful open.
type OpenedPayload struct {
	Type     string         `json:"type"`
	Position model.Position `json:"position"`
}

// ClosedPayload acknowledges a close. AlreadyClosed marks the benign
// duplicate-close case: no balance change happened.
type ClosedPayload struct {
	Type          string  `json:"type"`
	ID            string  `json:"id"`
	PnL           float64 `json:"pnl"`
	AlreadyClosed bool    `json:"already_closed,omitempty"`
}

// WalletPayload carries display balances for a connected account.
type WalletPayload struct {
	Type     string          `json:"type"`
	Balances wallet.Balances `json:"balances"`
}

// ErrorPayload surfaces an actionable message for a rejected intent.
type ErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
