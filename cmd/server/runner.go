package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"backsim/services/engine"
	"backsim/services/store"
)

// runner executes backtests on a bounded worker pool. Every run gets its
// own engine instance; nothing is shared between runs but the registry and
// the candle store, both of which are read-only after startup.
type runner struct {
	reg     *engine.Registry
	store   *store.ClickHouse
	logger  *zap.Logger
	workers chan struct{}

	mu   sync.RWMutex
	runs map[string]*runState
}

type runState struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"` // running, completed, failed, canceled
	Error       string         `json:"error,omitempty"`
	Result      *engine.Result `json:"-"`
	SubmittedAt time.Time      `json:"submitted_at"`
	cancel      context.CancelFunc
}

func newRunner(reg *engine.Registry, ch *store.ClickHouse, workers int, logger *zap.Logger) *runner {
	return &runner{
		reg:     reg,
		store:   ch,
		logger:  logger,
		workers: make(chan struct{}, workers),
		runs:    make(map[string]*runState),
	}
}

// submit validates the configuration, loads the candle range and starts
// the run asynchronously. Returns the job ID.
func (r *runner) submit(cfg engine.Config, from, to time.Time) (string, error) {
	bt, err := engine.New(cfg, r.reg, engine.WithLogger(r.logger))
	if err != nil {
		return "", err
	}
	if r.store == nil {
		return "", fmt.Errorf("no candle store configured")
	}

	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	state := &runState{
		ID:          id,
		Status:      "running",
		SubmittedAt: time.Now(),
		cancel:      cancel,
	}
	r.mu.Lock()
	r.runs[id] = state
	r.mu.Unlock()

	runsStarted.Inc()
	go func() {
		defer cancel()
		r.workers <- struct{}{}
		defer func() { <-r.workers }()

		start := time.Now()
		candles, err := r.store.Candles(ctx, cfg.Symbol, from, to)
		if err != nil {
			r.finish(state, nil, fmt.Errorf("load candles: %w", err))
			return
		}
		res, err := bt.Run(ctx, engine.NewSliceSource(candles))
		runDuration.Observe(time.Since(start).Seconds())
		r.finish(state, res, err)
	}()
	return id, nil
}

func (r *runner) finish(state *runState, res *engine.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state.Result = res
	switch {
	case err != nil:
		state.Status = "failed"
		state.Error = err.Error()
		runsFinished.WithLabelValues("failed").Inc()
		r.logger.Error("run failed", zap.String("id", state.ID), zap.Error(err))
	case res != nil && res.Canceled:
		state.Status = "canceled"
		runsFinished.WithLabelValues("canceled").Inc()
	default:
		state.Status = "completed"
		runsFinished.WithLabelValues("completed").Inc()
	}
}

// get returns a snapshot of the run's state taken under the lock. The run
// goroutine keeps mutating the live state, so handlers must never hold a
// reference into it. The embedded Result is immutable once set.
func (r *runner) get(id string) (runState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.runs[id]
	if !ok {
		return runState{}, false
	}
	snap := *s
	snap.cancel = nil
	return snap, true
}

func (r *runner) cancel(id string) bool {
	r.mu.RLock()
	s, ok := r.runs[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	s.cancel()
	return true
}

func (r *runner) cancelAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.runs {
		s.cancel()
	}
}
