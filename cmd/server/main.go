// Package main runs the backtest HTTP service: submit a configuration,
// poll its status, fetch trades and events, replay single trades and
// export results as Arrow IPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"backsim/config"
	"backsim/services/engine"
	"backsim/services/store"
	"backsim/strategies"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	reg := engine.NewRegistry()
	if err := strategies.RegisterBuiltins(reg); err != nil {
		logger.Fatal("strategy registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ch *store.ClickHouse
	if cfg.ClickHouse.DSN != "" {
		ch, err = store.OpenClickHouse(ctx, cfg.ClickHouse.DSN, logger)
		if err != nil {
			logger.Fatal("clickhouse connection failed", zap.Error(err))
		}
		defer ch.Close()
		if err := ch.EnsureSchema(ctx); err != nil {
			logger.Fatal("clickhouse schema setup failed", zap.Error(err))
		}
	}

	r := newRunner(reg, ch, cfg.Server.Workers, logger)
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: newRouter(r, logger),
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	r.cancelAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stderr), level),
	}
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotating), level))
	}
	return zap.New(zapcore.NewTee(cores...)), nil
}
