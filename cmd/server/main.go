// The Observatory server: a persistent world for autonomous agents, with a
// write-side agent gateway and a read-only observer API.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/CloudKingTV/The-Observatory/internal/api"
	"github.com/CloudKingTV/The-Observatory/internal/config"
	"github.com/CloudKingTV/The-Observatory/internal/economy"
	"github.com/CloudKingTV/The-Observatory/internal/events"
	"github.com/CloudKingTV/The-Observatory/internal/gateway"
	"github.com/CloudKingTV/The-Observatory/internal/identity"
	"github.com/CloudKingTV/The-Observatory/internal/ledger"
	"github.com/CloudKingTV/The-Observatory/internal/lifecycle"
	"github.com/CloudKingTV/The-Observatory/internal/messaging"
	"github.com/CloudKingTV/The-Observatory/internal/metrics"
	"github.com/CloudKingTV/The-Observatory/internal/world"
)

func main() {
	cfg := config.FromEnv()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// World state: resume from the snapshot when one exists.
	state := world.NewState(cfg.StateFile)
	resumed, err := state.Load()
	if err != nil {
		log.Fatalf("load world state: %v", err)
	}
	if resumed {
		total, alive, _ := state.Stats()
		slog.Info("world resumed from snapshot", "tick", state.Tick(), "total_agents", total, "alive_agents", alive)
	} else {
		slog.Info("starting fresh world", "state_file", cfg.StateFile)
	}

	eventLedger := ledger.Open(cfg.LedgerFile)

	// Live feed: ledger events are republished to websocket observers and,
	// when configured, to Redis.
	liveBus := events.NewBus()
	hub := events.NewHub(liveBus)
	redisFanout := events.NewRedisFanout(cfg.RedisAddr, liveBus)

	onEvent := func(data world.EventData) {
		eventLedger.Record(data)
		liveBus.Publish(events.NewEnvelope(data))
	}

	msgBus := messaging.NewBus()
	accounting := economy.NewAccounting()
	trades := economy.NewTradeLedger(state, accounting, m)

	engine := world.NewEngine(state, cfg.TickInterval(), onEvent, msgBus, trades, m)

	verifier := identity.Verifier{AllowHMACFallback: cfg.AllowHMACFallback}
	gw := gateway.New(state, engine, verifier, msgBus, trades, m, onEvent, cfg.Domain)
	lc := lifecycle.NewManager(state)

	server := api.New(cfg, state, gw, lc, eventLedger, msgBus, trades, accounting, hub, onEvent, registry)

	engine.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}
		engine.Stop()
		if err := redisFanout.Close(); err != nil {
			slog.Warn("redis fanout close error", "error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
	slog.Info("server stopped")
}
