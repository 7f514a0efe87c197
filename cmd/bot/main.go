// Grid Bot — an automated spot-market grid trading bot.
//
// Architecture:
//
//	main.go                    — entry point: loads config, wires components, waits for SIGINT/SIGTERM
//	internal/exchange          — signed, rate-limited, retrying REST client over the venue
//	internal/store             — GORM-backed durable record of baskets, orders, fills, snapshots
//	internal/strategy          — pure grid algorithm: levels, VWAP, take-profit curve, reanchor
//	internal/reconcile         — pure diff between desired and venue-observed order sets
//	internal/executor          — applies a reconciliation plan through the Exchange Client
//	internal/orchestrator      — fixed-cadence loop: fetch, strategy, reconcile, execute, per basket
//	internal/emergency         — on-demand manual override: cancel all, exit residual position
//	internal/gate              — persisted running/stopped toggle checked before every Executor call
//	internal/validator         — cached venue filters (tick/lot/min-notional) plus spec validation
//	internal/metrics           — Prometheus counters/gauges/histograms for cycle health
//	internal/ids               — basket id generation and the client-order-id grammar
//
// How it makes money:
//
//	The bot lays a ladder of buy orders below an anchor price, each sized by
//	an allocation weight. As levels fill, it computes a volume-weighted
//	average entry price and posts a three-leg take-profit exit (TP1, TP2,
//	trailing) that tightens as more of the ladder fills. A hard-stop or
//	reanchor path protects against a sustained move away from the anchor.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/config"
	"gridbot/internal/emergency"
	"gridbot/internal/exchange"
	"gridbot/internal/executor"
	"gridbot/internal/gate"
	"gridbot/internal/ids"
	"gridbot/internal/orchestrator"
	"gridbot/internal/store"
	"gridbot/internal/strategy"
	"gridbot/internal/validator"
)

func main() {
	emergencyBasketID := flag.String("emergency-close", "", "basket id to run the Emergency Closer against, then exit")
	newBasketPair := flag.String("new-basket", "", "pair:anchor_price — create a new basket seeded from grid defaults, then exit")
	flag.Parse()

	cfgPath := "configs/config.yaml"
	if p := os.Getenv("GRID_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	st, err := store.Open(store.Driver(cfg.Store.Driver), cfg.Store.DSN)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	auth := exchange.NewAuth(cfg.Exchange.APIKey, cfg.Exchange.APISecret)
	client := exchange.NewClient(cfg.Exchange.BaseURL, auth, cfg.DryRun, logger)
	filters := validator.NewCache(client)
	g := gate.New(st)

	if *newBasketPair != "" {
		runNewBasket(client, st, logger, cfg, *newBasketPair)
		return
	}

	if *emergencyBasketID != "" {
		runEmergencyClose(client, st, logger, cfg, *emergencyBasketID)
		return
	}

	ex := executor.New(client, st, filters, logger)
	orch := orchestrator.New(client, st, filters, g, ex, logger, cfg.CycleInterval())

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}
	logger.Info("grid bot started", "cycle_interval", cfg.CycleInterval(), "dry_run", cfg.DryRun)

	ctx, cancel := context.WithCancel(context.Background())
	orch.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	cancel()
	orch.Stop()
}

func runEmergencyClose(client *exchange.Client, st *store.Store, logger *slog.Logger, cfg *config.Config, basketID string) {
	basket, err := st.Basket(basketID)
	if err != nil {
		logger.Error("emergency close: basket lookup failed", "basket_id", basketID, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	filters, err := client.ExchangeInfo(ctx, basket.Pair)
	if err != nil {
		logger.Error("emergency close: filter lookup failed", "error", err)
		os.Exit(1)
	}

	safetyMargin := cfg.Grid.EmergencySafetyMarginPct
	if safetyMargin.IsZero() {
		safetyMargin = decimal.RequireFromString("0.03")
	}
	closer := emergency.New(client, st, logger, safetyMargin, filters.TickSize, filters.LotSize)

	result := closer.Close(ctx, basket.Pair, basketID)
	fmt.Printf("success=%v canceled_count=%d exit_order_placed=%v message=%q\n",
		result.Success, result.CanceledCount, result.ExitOrderPlaced, result.Message)
	if !result.Success {
		os.Exit(1)
	}
}

// runNewBasket creates a basket manually (spec.md §3: "Created manually
// or by the reanchor path"). arg is "pair:anchor_price"; the basket's
// config snapshot is seeded from the grid defaults plus venue filters.
func runNewBasket(client *exchange.Client, st *store.Store, logger *slog.Logger, cfg *config.Config, arg string) {
	pair, anchorStr, ok := strings.Cut(arg, ":")
	if !ok {
		logger.Error("new basket: expected pair:anchor_price", "arg", arg)
		os.Exit(1)
	}
	anchor, err := decimal.NewFromString(anchorStr)
	if err != nil {
		logger.Error("new basket: invalid anchor_price", "value", anchorStr, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	filters, err := client.ExchangeInfo(ctx, pair)
	if err != nil {
		logger.Error("new basket: filter lookup failed", "error", err)
		os.Exit(1)
	}

	strategyCfg := strategy.Config{
		Pair:                pair,
		AnchorPrice:         anchor,
		LevelsPct:           cfg.Grid.LevelsPct,
		AllocWeights:        cfg.Grid.AllocWeights,
		MaxGridCapitalQuote: cfg.Grid.MaxGridCapitalQuote,
		TickSize:            filters.TickSize,
		LotSize:             filters.LotSize,
		MinNotional:         filters.MinNotional,
		TPStartPct:          cfg.Grid.TPStartPct,
		TPStepPct:           cfg.Grid.TPStepPct,
		TPMinPct:            cfg.Grid.TPMinPct,
		TP2DeltaPct:         cfg.Grid.TP2DeltaPct,
		TP1Share:            cfg.Grid.TP1Share,
		TP2Share:            cfg.Grid.TP2Share,
		TrailShare:          cfg.Grid.TrailShare,
		TrailingCallbackPct: cfg.Grid.TrailingCallbackPct,
		HardStopMode:        strategy.HardStopMode(cfg.Grid.HardStopMode),
		HardStopPct:         cfg.Grid.HardStopPct,
		PlaceMode:           strategy.PlaceMode(cfg.Grid.PlaceMode),
		KNext:               cfg.Grid.KNext,
		Reanchor: strategy.ReanchorRules{
			CloseRatio: cfg.Grid.ReanchorCloseRatio,
			TimeTTLSec: cfg.Grid.ReanchorTimeTTLSec,
		},
	}
	if err := strategyCfg.Validate(); err != nil {
		logger.Error("new basket: invalid grid config", "error", err)
		os.Exit(1)
	}

	configJSON, err := json.Marshal(strategyCfg)
	if err != nil {
		logger.Error("new basket: marshal config", "error", err)
		os.Exit(1)
	}

	basket := &store.Basket{
		ID:          ids.NewBasketID(),
		Pair:        pair,
		AnchorPrice: anchor,
		Status:      store.BasketActive,
		ConfigJSON:  string(configJSON),
		CreatedAt:   time.Now(),
	}
	if err := st.CreateBasket(basket); err != nil {
		logger.Error("new basket: create failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("created basket_id=%s pair=%s anchor_price=%s\n", basket.ID, pair, anchor)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
