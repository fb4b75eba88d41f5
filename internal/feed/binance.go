package feed

import (
	"encoding/json"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"context"

	"github.com/gorilla/websocket"

	"papertraderv1/internal/model"
)

// DefaultStreamURL is the Binance spot raw-stream endpoint.
const DefaultStreamURL = "wss://stream.binance.com:9443/ws"

// BinanceSource streams trade ticks from the Binance combined trade
// stream. One Run call is one connection; the Feed reconnect loop sits
// on top.
type BinanceSource struct {
	baseURL string
	dialer  *websocket.Dialer
}

// NewBinanceSource creates a source against the given stream endpoint
// (DefaultStreamURL for production, a test server URL in tests).
func NewBinanceSource(baseURL string) (*BinanceSource, error) {
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, err
	}
	return &BinanceSource{
		baseURL: baseURL,
		dialer:  websocket.DefaultDialer,
	}, nil
}

// streamPath joins "<pair>@trade" segments onto the endpoint, e.g.
// wss://…/ws/btcusdt@trade/ethusdt@trade/solusdt@trade.
func (s *BinanceSource) streamPath(pairs []string) string {
	segs := make([]string, len(pairs))
	for i, p := range pairs {
		segs[i] = strings.ToLower(p) + "@trade"
	}
	return strings.TrimSuffix(s.baseURL, "/") + "/" + strings.Join(segs, "/")
}

// tradeMsg is the subset of the Binance trade event we consume:
// {"s":"BTCUSDT","p":"50123.45",...}. The price arrives as a string.
type tradeMsg struct {
	Pair  string `json:"s"`
	Price string `json:"p"`
}

// Run dials the stream and pushes ticks into out until the connection
// drops or ctx is cancelled. Ticks are dropped rather than blocking
// when out is full.
func (s *BinanceSource) Run(ctx context.Context, pairs []string, out chan<- model.Tick) error {
	target := s.streamPath(pairs)
	conn, _, err := s.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[feed] connected to %s", target)

	// Context watcher — closes the connection so the read below unblocks
	// immediately on teardown.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-watchDone:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var msg tradeMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[feed] parse error: %v (raw: %s)", err, raw)
			continue
		}
		if msg.Pair == "" || msg.Price == "" {
			continue
		}

		price, err := strconv.ParseFloat(msg.Price, 64)
		if err != nil || price < 0 {
			log.Printf("[feed] bad price %q for %s", msg.Price, msg.Pair)
			continue
		}

		tick := model.Tick{Pair: msg.Pair, Price: price, At: time.Now().UTC()}
		select {
		case out <- tick:
		default:
			log.Println("[feed] tick channel full, dropping tick")
		}
	}
}
