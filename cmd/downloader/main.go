// Command downloader fetches historical 1-minute futures klines from
// Binance and writes them to a CSV file or straight into ClickHouse, ready
// for backtesting.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"backsim/services/engine"
	"backsim/services/store"
)

const klineBatch = 1000

func main() {
	var (
		symbol = flag.String("symbol", "BTCUSDT", "trading symbol")
		from   = flag.String("from", "", "range start, RFC 3339")
		to     = flag.String("to", "", "range end, RFC 3339")
		out    = flag.String("out", "", "output CSV path")
		chDSN  = flag.String("ch-dsn", "", "ClickHouse DSN, used when -out is not set")
		rps    = flag.Float64("rps", 5, "kline requests per second")
	)
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start, err := time.Parse(time.RFC3339, *from)
	if err != nil {
		fatal(logger, fmt.Errorf("-from: %w", err))
	}
	end, err := time.Parse(time.RFC3339, *to)
	if err != nil {
		fatal(logger, fmt.Errorf("-to: %w", err))
	}
	if *out == "" && *chDSN == "" {
		fatal(logger, fmt.Errorf("either -out or -ch-dsn is required"))
	}

	client := futures.NewClient(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_SECRET_KEY"))
	limiter := rate.NewLimiter(rate.Limit(*rps), 1)

	candles, err := fetchRange(ctx, client, limiter, *symbol, start, end, logger)
	if err != nil {
		fatal(logger, err)
	}
	logger.Info("download complete", zap.Int("candles", len(candles)))

	if *out != "" {
		if err := store.WriteCandlesCSV(*out, candles); err != nil {
			fatal(logger, err)
		}
		logger.Info("csv written", zap.String("path", *out))
		return
	}

	ch, err := store.OpenClickHouse(ctx, *chDSN, logger)
	if err != nil {
		fatal(logger, err)
	}
	defer ch.Close()
	if err := ch.EnsureSchema(ctx); err != nil {
		fatal(logger, err)
	}
	if err := ch.InsertCandles(ctx, *symbol, candles); err != nil {
		fatal(logger, err)
	}
	logger.Info("candles stored", zap.String("symbol", *symbol))
}

// fetchRange pages through the klines endpoint in 1000-candle batches,
// throttled by the limiter.
func fetchRange(ctx context.Context, client *futures.Client, limiter *rate.Limiter, symbol string, start, end time.Time, logger *zap.Logger) ([]engine.Candle, error) {
	var candles []engine.Candle
	cursor := start.UnixMilli()
	endMs := end.UnixMilli()

	for cursor < endMs {
		if err := limiter.Wait(ctx); err != nil {
			return candles, err
		}
		klines, err := client.NewKlinesService().
			Symbol(symbol).
			Interval("1m").
			StartTime(cursor).
			EndTime(endMs).
			Limit(klineBatch).
			Do(ctx)
		if err != nil {
			return candles, fmt.Errorf("fetch klines from %d: %w", cursor, err)
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			c, err := klineToCandle(k)
			if err != nil {
				return candles, err
			}
			candles = append(candles, c)
		}
		cursor = klines[len(klines)-1].OpenTime + engine.BaseInterval.Milliseconds()
		logger.Debug("batch fetched",
			zap.Int("count", len(klines)),
			zap.Int64("next_cursor", cursor))
	}
	return candles, nil
}

func klineToCandle(k *futures.Kline) (engine.Candle, error) {
	c := engine.Candle{OpenTime: k.OpenTime}
	for _, f := range []struct {
		dst *float64
		src string
	}{
		{&c.Open, k.Open},
		{&c.High, k.High},
		{&c.Low, k.Low},
		{&c.Close, k.Close},
		{&c.Volume, k.Volume},
	} {
		v, err := strconv.ParseFloat(f.src, 64)
		if err != nil {
			return engine.Candle{}, fmt.Errorf("kline at %d: %w", k.OpenTime, err)
		}
		*f.dst = v
	}
	return c, nil
}

func fatal(logger *zap.Logger, err error) {
	logger.Error("download failed", zap.Error(err))
	os.Exit(1)
}
