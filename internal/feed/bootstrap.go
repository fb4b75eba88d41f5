package feed

import (
	"context"
	"log"
	"strconv"

	binance "github.com/adshao/go-binance/v2"
)

// Bootstrap fetches a one-shot REST price snapshot for the given pairs
// and seeds the feed, so consumers see prices before the first trade
// tick lands on the stream. Best-effort: any failure is logged and the
// feed simply starts from 0.
func Bootstrap(ctx context.Context, f *Feed, pairs []string) {
	client := binance.NewClient("", "") // public endpoint, no credentials

	res, err := client.NewListPricesService().Symbols(pairs).Do(ctx)
	if err != nil {
		log.Printf("[feed] REST bootstrap failed: %v (waiting for stream)", err)
		return
	}

	snapshot := make(map[string]float64, len(res))
	for _, sp := range res {
		price, err := strconv.ParseFloat(sp.Price, 64)
		if err != nil {
			continue
		}
		snapshot[sp.Symbol] = price
	}
	f.Seed(snapshot)
	log.Printf("[feed] seeded %d symbols from REST snapshot", len(snapshot))
}
