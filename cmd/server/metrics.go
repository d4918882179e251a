package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backsim_runs_started_total",
		Help: "Backtest runs submitted.",
	})
	runsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backsim_runs_finished_total",
		Help: "Backtest runs finished, by terminal status.",
	}, []string{"status"})
	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "backsim_run_duration_seconds",
		Help:    "Wall-clock duration of a backtest run.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	})
)
