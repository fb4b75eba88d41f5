package gateway

import (
	"strconv"
	"time"
)

// Broadcast sends data on a named channel to every connected client,
// wrapped in the envelope {"channel":...,"data":...,"ts":...,"seq":N}.
// The envelope is hand-crafted rather than json.Marshal'd — data is
// already encoded and this sits on the broadcast hot path.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	// Tick-receipt → broadcast latency for the state channel.
	if h.Latency != nil && channel == "state" {
		if last := h.feed.LastTick(); !last.IsZero() {
			ms := float64(now.Sub(last).Microseconds()) / 1000.0
			if ms >= 0 {
				h.Latency.Record(ms)
			}
		}
	}

	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	buf := h.envelopeWith(channel, data, now, seq)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- buf:
		default:
		}
	}
}

// envelope builds the wire envelope with the current time and next seq.
func (h *Hub) envelope(channel string, data []byte) []byte {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.mu.Unlock()
	return h.envelopeWith(channel, data, time.Now().UTC(), seq)
}

func (h *Hub) envelopeWith(channel string, data []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+96)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}
