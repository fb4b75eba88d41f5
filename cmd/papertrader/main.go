package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"papertraderv1/config"
	"papertraderv1/internal/feed"
	"papertraderv1/internal/gateway"
	"papertraderv1/internal/ledger"
	"papertraderv1/internal/logger"
	"papertraderv1/internal/metrics"
	"papertraderv1/internal/model"
	"papertraderv1/internal/wallet"
)

func main() {
	cfg := config.Load()
	logger.Init("papertrader", logger.ParseLevel(cfg.LogLevel))
	log.Println("[papertrader] starting...")

	pairs := cfg.ParseSymbols()
	if len(pairs) == 0 {
		log.Fatal("[papertrader] no symbols configured")
	}
	log.Printf("[papertrader] tracking %v", pairs)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Shutdown context ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Price feed ----
	source, err := feed.NewBinanceSource(cfg.StreamURL)
	if err != nil {
		log.Fatalf("[papertrader] bad stream URL: %v", err)
	}
	pf := feed.New(source, feed.Config{ReconnectDelay: cfg.ReconnectDelay})
	pf.OnTick = func(t model.Tick) {
		prom.TicksTotal.Inc()
		health.SetFeedConnected(true)
		health.SetLastTickTime(t.At)
	}
	pf.OnReconnect = func() {
		prom.FeedReconnects.Inc()
		health.SetFeedConnected(false)
	}
	pf.OnDrop = func() {
		prom.DroppedTicks.Inc()
	}
	pf.Start(ctx, pairs)
	go feed.Bootstrap(ctx, pf, pairs)

	// ---- Ledger ----
	book := ledger.New()
	if !cfg.FundFromWallet {
		// Fixed-stake policy: fund at startup. With FundFromWallet the
		// funding event waits for the first wallet connect.
		if err := book.Fund(cfg.InitialBalance); err != nil {
			log.Fatalf("[papertrader] funding failed: %v", err)
		}
	}

	// ---- Wallet display provider ----
	wclient := wallet.NewClient(cfg.EthRPCURL, cfg.USDTContract, 6)

	// ---- Gateway ----
	hub := gateway.NewHub(pf, book, wclient, gateway.Config{
		InitialBalance:    cfg.InitialBalance,
		FundFromWallet:    cfg.FundFromWallet,
		BroadcastInterval: cfg.BroadcastInterval,
	})
	hub.OnOpened = func() { prom.PositionsOpened.Inc() }
	hub.OnClosed = func(pnl float64) {
		prom.PositionsClosed.Inc()
		prom.RealizedPnL.Set(book.SessionPnL())
	}
	hub.OnRejected = func(reason string) { prom.OpenRejects.WithLabelValues(reason).Inc() }
	hub.OnClientCount = func(n int) { prom.WSClients.Set(float64(n)) }
	go hub.StartStateBroadcast(ctx)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub)
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	go func() {
		log.Printf("[papertrader] gateway listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[papertrader] gateway server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("[papertrader] shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	pf.Stop()

	log.Println("[papertrader] bye")
}
