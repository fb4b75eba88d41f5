package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"papertraderv1/internal/ledger"
	"papertraderv1/internal/model"
)

// Client is a single WebSocket peer. It carries per-browser session
// state: the pending position size and the currently selected symbol.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu          sync.Mutex
	closed      bool
	pendingSize float64
	symbol      string
}

// enqueue drops the message rather than blocking when the client is
// slow; the next state broadcast supersedes anything missed. Replies
// that race with a disconnect (a wallet lookup finishing after the
// reader exited) are dropped, not sent on the closed channel.
func (c *Client) enqueue(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// closeSend closes the send channel exactly once and marks the client
// so late enqueues become no-ops.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) session() (size float64, symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingSize, c.symbol
}

func (c *Client) setPendingSize(size float64) {
	c.mu.Lock()
	c.pendingSize = size
	c.mu.Unlock()
}

func (c *Client) setSymbol(symbol string) {
	c.mu.Lock()
	c.symbol = symbol
	c.mu.Unlock()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var base struct {
			Type string `json:"type"`
			Ping int64  `json:"ping"`
		}
		if json.Unmarshal(msg, &base) != nil {
			continue
		}

		switch base.Type {
		case "OPEN":
			var open OpenMsg
			if err := json.Unmarshal(msg, &open); err != nil {
				c.sendError("invalid OPEN: " + err.Error())
				continue
			}
			c.handleOpen(open)

		case "CLOSE":
			var cls CloseMsg
			if err := json.Unmarshal(msg, &cls); err != nil {
				c.sendError("invalid CLOSE: " + err.Error())
				continue
			}
			c.handleClose(cls)

		case "SET_SIZE":
			var sz SizeMsg
			if err := json.Unmarshal(msg, &sz); err != nil {
				c.sendError("invalid SET_SIZE: " + err.Error())
				continue
			}
			c.handleSetSize(sz)

		case "SELECT":
			var sel SelectMsg
			if err := json.Unmarshal(msg, &sel); err != nil {
				c.sendError("invalid SELECT: " + err.Error())
				continue
			}
			c.handleSelect(sel)

		case "WALLET":
			var wm WalletMsg
			if err := json.Unmarshal(msg, &wm); err != nil {
				c.sendError("invalid WALLET: " + err.Error())
				continue
			}
			// RPC round-trip; keep it off the read loop.
			go c.handleWallet(wm)

		default:
			if base.Ping > 0 {
				pong, _ := json.Marshal(map[string]interface{}{
					"type":      "pong",
					"ping":      base.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				c.enqueue(pong)
			}
		}
	}
}

func (c *Client) handleOpen(msg OpenMsg) {
	size, symbol := c.session()
	if size <= 0 {
		c.sendError("set a position size first")
		return
	}
	if symbol == "" {
		c.sendError("no symbol selected")
		return
	}

	pos, err := c.hub.OpenPosition(symbol, model.Side(strings.ToUpper(msg.Side)), size)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	// A successful open consumes the pending size.
	c.setPendingSize(0)
	c.sendJSON(OpenedPayload{Type: "opened", Position: pos})
}

func (c *Client) handleClose(msg CloseMsg) {
	pnl, err := c.hub.ClosePosition(msg.ID)
	if errors.Is(err, ledger.ErrPositionNotFound) {
		// Benign: the position raced with another close trigger.
		c.sendJSON(ClosedPayload{Type: "closed", ID: msg.ID, AlreadyClosed: true})
		return
	}
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.sendJSON(ClosedPayload{Type: "closed", ID: msg.ID, PnL: pnl})
}

func (c *Client) handleSetSize(msg SizeMsg) {
	if msg.Size < 0 {
		c.sendError("size cannot be negative")
		return
	}
	if available := c.hub.book.Available(); msg.Size > available {
		c.sendError("size exceeds available balance")
		return
	}
	c.setPendingSize(msg.Size)
}

func (c *Client) handleSelect(msg SelectMsg) {
	symbol := strings.ToUpper(msg.Symbol)
	if _, tracked := c.hub.feed.Price(symbol); !tracked {
		c.sendError("unknown symbol " + symbol)
		return
	}
	c.setSymbol(symbol)
}

func (c *Client) handleWallet(msg WalletMsg) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bal, err := c.hub.ConnectWallet(ctx, msg.Address)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.sendJSON(WalletPayload{Type: "wallet", Balances: bal})
}

func (c *Client) sendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[gateway] marshal error: %v", err)
		return
	}
	c.enqueue(data)
}

func (c *Client) sendError(message string) {
	c.sendJSON(ErrorPayload{Type: "error", Message: message})
}
