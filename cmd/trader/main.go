package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/varun432/algotrader/internal/alert"
	"github.com/varun432/algotrader/internal/broker"
	"github.com/varun432/algotrader/internal/config"
	"github.com/varun432/algotrader/internal/engine"
	"github.com/varun432/algotrader/internal/logger"
	"github.com/varun432/algotrader/internal/market"
)

func main() {
	params, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zl, err := logger.New(params.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	journal, err := engine.NewJournal(params.JournalPath)
	if err != nil {
		zl.Fatal("trade journal open failed", zap.String("path", params.JournalPath), zap.Error(err))
	}
	defer func() {
		if err := journal.Close(); err != nil {
			zl.Error("trade journal close failed", zap.Error(err))
		}
	}()

	// Mock mode still wants live quotes; only order placement is
	// short-circuited inside the engine. Replay never touches a broker.
	var brk broker.Brokerage = broker.NewMock()
	if !params.IsReplay() && params.APIKey != "" && params.APISecret != "" {
		brk = broker.NewAlpaca(params.APIKey, params.APISecret, params.BrokerURL, zl)
	}

	var alerter alert.Alerter = alert.LogAlerter{Log: zl}
	if params.IsReplay() {
		alerter = alert.Nop{}
	}

	eng := engine.New(engine.Options{
		Params:  params,
		Broker:  brk,
		Session: market.NewEquitySession(),
		Alerter: alerter,
		Journal: journal,
		Log:     zl,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalChan
		zl.Info("shutdown signal received")
		cancel()
	}()

	zl.Info("starting trader",
		zap.String("mode", string(params.Mode)),
		zap.String("symbol", params.Symbol),
		zap.String("run_id", journal.RunID()))

	if err := eng.Prolog(ctx); err != nil {
		zl.Fatal("prolog failed", zap.Error(err))
	}

	if params.IsReplay() {
		runReplay(ctx, eng, params, zl)
	} else {
		runLive(ctx, eng, brk, params, zl)
	}

	if err := eng.Epilog(ctx); err != nil {
		zl.Error("epilog finished with error", zap.Error(err))
	}
	zl.Info("trader shutdown complete", zap.String("symbol", params.Symbol))
}

func runReplay(ctx context.Context, eng *engine.Engine, params config.AlgoParams, zl *zap.Logger) {
	ticks, err := market.ReadReplayFile(params.ReplayTickFile)
	if err != nil {
		zl.Fatal("replay file load failed", zap.String("path", params.ReplayTickFile), zap.Error(err))
	}
	zl.Info("replaying ticks", zap.String("path", params.ReplayTickFile), zap.Int("count", len(ticks)))

	for _, tick := range ticks {
		if ctx.Err() != nil {
			return
		}
		if err := eng.ProcessTick(ctx, tick); err != nil {
			zl.Error("tick processing error", zap.Time("tick_time", tick.Time), zap.Error(err))
		}
	}
}

func runLive(ctx context.Context, eng *engine.Engine, brk broker.Brokerage, params config.AlgoParams, zl *zap.Logger) {
	if err := brk.LoginIfNeeded(ctx, false); err != nil {
		zl.Fatal("broker login failed", zap.Error(err))
	}
	defer brk.Logout(ctx)

	ticker := time.NewTicker(params.TickInterval)
	defer ticker.Stop()

	var seq int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick, err := brk.Quote(ctx, params.Symbol, params.InstrumentType, params.Expiry)
			if err != nil {
				zl.Warn("quote fetch failed", zap.String("symbol", params.Symbol), zap.Error(err))
				continue
			}
			if tick.IsZero() {
				continue
			}
			seq++
			tick.Seq = seq
			if tick.Time.IsZero() {
				tick.Time = time.Now()
			}
			if err := eng.ProcessTick(ctx, tick); err != nil {
				zl.Error("tick processing error", zap.Time("tick_time", tick.Time), zap.Error(err))
			}
		}
	}
}
