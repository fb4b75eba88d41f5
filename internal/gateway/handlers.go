package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"papertraderv1/internal/ledger"
	"papertraderv1/internal/model"
	"papertraderv1/internal/wallet"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers the WS endpoint and the REST mirror of the
// gateway surface on the provided mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		hub.HandleWSRequest(conn)
	})

	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			return
		}
		writeJSON(w, http.StatusOK, hub.BuildState())
	})

	mux.HandleFunc("/api/prices", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			return
		}
		writeJSON(w, http.StatusOK, hub.feed.Snapshot())
	})

	mux.HandleFunc("/api/positions", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			return
		}
		snap := hub.book.Snapshot(hub.feed.PriceMap())
		writeJSON(w, http.StatusOK, snap.Positions)
	})

	mux.HandleFunc("/api/balance", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			return
		}
		snap := hub.book.Snapshot(nil)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"balance":     snap.Balance,
			"locked":      snap.Locked,
			"available":   snap.Available,
			"session_pnl": snap.SessionPnL,
			"funded":      snap.Funded,
		})
	})

	mux.HandleFunc("/api/positions/open", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			Symbol string  `json:"symbol"`
			Side   string  `json:"side"`
			Size   float64 `json:"size"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		pos, err := hub.OpenPosition(strings.ToUpper(req.Symbol), model.Side(strings.ToUpper(req.Side)), req.Size)
		if err != nil {
			writeError(w, err.Error(), openErrorStatus(err))
			return
		}
		writeJSON(w, http.StatusCreated, pos)
	})

	mux.HandleFunc("/api/positions/close", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		pnl, err := hub.ClosePosition(req.ID)
		if errors.Is(err, ledger.ErrPositionNotFound) {
			writeError(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": req.ID, "pnl": pnl})
	})

	mux.HandleFunc("/api/wallet", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			return
		}

		address := r.URL.Query().Get("address")
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		bal, err := hub.WalletBalances(ctx, address)
		if err != nil {
			writeWalletError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, bal)
	})

	mux.HandleFunc("/api/wallet/connect", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			Address string `json:"address"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		bal, err := hub.ConnectWallet(ctx, req.Address)
		if err != nil {
			writeWalletError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, bal)
	})

	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"symbols":          hub.feed.Symbols(),
			"initial_balance":  hub.cfg.InitialBalance,
			"fund_from_wallet": hub.cfg.FundFromWallet,
		})
	})
}

// openErrorStatus maps ledger rejections to HTTP codes: bad input is
// 400, a business rejection the user can act on is 422.
func openErrorStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrPriceUnavailable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func writeWalletError(w http.ResponseWriter, err error) {
	if errors.Is(err, wallet.ErrInvalidAddress) {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeError(w, err.Error(), http.StatusBadGateway)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
