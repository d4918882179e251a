package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"backsim/services/engine"
	"backsim/services/store"
	"backsim/strategies"
)

func main() {
	var (
		csvPath  = flag.String("csv", "", "candle CSV file (open_time_ms,open,high,low,close,volume)")
		chDSN    = flag.String("ch-dsn", "", "ClickHouse DSN, used when -csv is not set")
		symbol   = flag.String("symbol", "BTCUSDT", "trading symbol")
		from     = flag.String("from", "", "range start, RFC 3339 (ClickHouse source only)")
		to       = flag.String("to", "", "range end, RFC 3339 (ClickHouse source only)")
		strat    = flag.String("strategy", "rsi_reversal", "strategy name")
		tf       = flag.Duration("tf", time.Hour, "signal timeframe")
		policy   = flag.String("fill-policy", "neutral", "fill policy: optimistic, neutral, strict")
		path     = flag.String("price-path", "neutral", "intrabar price path: neutral, optimistic, realistic")
		leverage = flag.Float64("leverage", 1, "position leverage")
		capital  = flag.Float64("capital", 10000, "initial capital")
		quantity = flag.Float64("quantity", 0.1, "default order quantity")
		trigger  = flag.Bool("setup-trigger", false, "enable the setup-trigger execution model")
		window   = flag.Duration("window", time.Hour, "setup validity window")
		takerFee = flag.Float64("taker-fee", 0.0004, "taker fee rate")
		makerFee = flag.Float64("maker-fee", 0.0002, "maker fee rate")
		saveRuns = flag.Bool("save", false, "persist trades to ClickHouse after the run")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	logger := buildLogger(*verbose)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fp, err := engine.ParseFillPolicy(*policy)
	if err != nil {
		fatal(logger, err)
	}
	pp, err := engine.ParsePricePath(*path)
	if err != nil {
		fatal(logger, err)
	}

	cfg := engine.Config{
		Symbol:              *symbol,
		SignalTimeframe:     *tf,
		FillPolicy:          fp,
		PricePath:           pp,
		EnableSetupTrigger:  *trigger,
		SetupValidityWindow: *window,
		Leverage:            *leverage,
		InitialCapital:      *capital,
		Quantity:            *quantity,
		MakerFee:            *makerFee,
		TakerFee:            *takerFee,
		Strategy:            *strat,
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		fatal(logger, err)
	}

	candles, ch, err := loadCandles(ctx, *csvPath, *chDSN, *symbol, *from, *to, logger)
	if err != nil {
		fatal(logger, err)
	}
	if ch != nil {
		defer ch.Close()
	}
	if len(candles) == 0 {
		fatal(logger, fmt.Errorf("no candles in range"))
	}
	logger.Info("candles loaded",
		zap.Int("count", len(candles)),
		zap.String("symbol", *symbol))

	reg := engine.NewRegistry()
	if err := strategies.RegisterBuiltins(reg); err != nil {
		fatal(logger, err)
	}

	bt, err := engine.New(cfg, reg, engine.WithLogger(logger))
	if err != nil {
		fatal(logger, err)
	}
	res, err := bt.Run(ctx, engine.NewSliceSource(candles))
	if err != nil {
		fatal(logger, err)
	}

	printTrades(res.Trades)
	printSummary(res.Summary)
	fmt.Printf("run %s  config %s  events %d\n",
		res.RunID, res.Manifest.ConfigHash[:12], len(res.Events))

	if *saveRuns && ch != nil {
		if err := ch.SaveTrades(ctx, res.RunID, res.Trades); err != nil {
			fatal(logger, fmt.Errorf("save trades: %w", err))
		}
		logger.Info("trades saved", zap.String("run_id", res.RunID))
	}
}

func loadCandles(ctx context.Context, csvPath, dsn, symbol, from, to string, logger *zap.Logger) ([]engine.Candle, *store.ClickHouse, error) {
	if csvPath != "" {
		candles, err := store.ReadCandlesCSV(csvPath)
		return candles, nil, err
	}
	if dsn == "" {
		return nil, nil, fmt.Errorf("either -csv or -ch-dsn is required")
	}
	f, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return nil, nil, fmt.Errorf("-from: %w", err)
	}
	t, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return nil, nil, fmt.Errorf("-to: %w", err)
	}
	ch, err := store.OpenClickHouse(ctx, dsn, logger)
	if err != nil {
		return nil, nil, err
	}
	candles, err := ch.Candles(ctx, symbol, f, t)
	if err != nil {
		ch.Close()
		return nil, nil, err
	}
	return candles, ch, nil
}

func printTrades(trades []engine.Trade) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SIDE\tENTRY\tEXIT\tQTY\tPNL\tREASON\tDELAY")
	for _, t := range trades {
		fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.4f\t%s\t%s\t%dm\n",
			t.Side, t.EntryPrice, t.ExitPrice, t.Quantity,
			t.RealizedPnl.StringFixed(4), t.ExitReason,
			t.ExecutionDelay/60000)
	}
	w.Flush()
}

func printSummary(s engine.Summary) {
	fmt.Printf("\ntrades %d  wins %d  losses %d  liquidations %d\n",
		s.TotalTrades, s.Wins, s.Losses, s.Liquidations)
	fmt.Printf("net pnl %s  win rate %s  profit factor %s\n",
		s.NetPnl.StringFixed(4), s.WinRate.StringFixed(4), s.ProfitFactor.StringFixed(4))
	fmt.Printf("fees %s  max drawdown %s\n",
		s.TotalFees.StringFixed(4), s.MaxDrawdown.StringFixed(4))
}

func buildLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, _ := cfg.Build()
	return logger
}

func fatal(logger *zap.Logger, err error) {
	logger.Error("backtest failed", zap.Error(err))
	os.Exit(1)
}
