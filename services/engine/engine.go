// Package engine implements a deterministic, offline backtest simulation:
// given an ordered base-resolution candle stream and a configuration, it
// replays the range one candle at a time, evaluates a strategy at the
// configured cadence, simulates order fills, tracks leveraged positions to
// the point of liquidation and emits an auditable trade and event record.
// There is no network I/O and no wall-clock dependence inside a run.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EngineVersion goes into every run manifest.
const EngineVersion = "1.0.0"

// Result is everything a run produces. On an aborted run the trades and
// events recorded up to the failure point are still returned and valid.
type Result struct {
	RunID       string        `json:"run_id"`
	Trades      []Trade       `json:"trades"`
	Events      []Event       `json:"events"`
	EquityCurve []EquityPoint `json:"equity_curve"`
	Summary     Summary       `json:"summary"`
	Manifest    RunManifest   `json:"manifest"`
	Canceled    bool          `json:"canceled,omitempty"`
}

// Backtester wires the pipeline for one run: aggregator -> evaluator ->
// (setup tracker) -> fill simulator <-> ledger -> recorder. One instance
// per run; it is single-threaded and holds no shared state.
type Backtester struct {
	cfg     Config
	strat   Strategy
	agg     *Aggregator
	tracker *SetupTracker
	sim     *FillSimulator
	ledger  *Ledger
	rec     *Recorder
	events  *EventLog
	logger  *zap.Logger

	val        streamValidator
	history    []Candle
	equity     []EquityPoint
	peakEquity decimal.Decimal
	candles    int
	lastClose  int64
}

// Option configures a Backtester.
type Option func(*Backtester)

func WithLogger(l *zap.Logger) Option {
	return func(b *Backtester) { b.logger = l }
}

// New builds a run pipeline from a validated configuration. The strategy is
// resolved through the registry passed in; there is no global lookup.
func New(cfg Config, reg *Registry, opts ...Option) (*Backtester, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	strat, err := reg.Create(cfg.Strategy, cfg.StrategyParams)
	if err != nil {
		return nil, err
	}
	if cfg.EnableSetupTrigger {
		if _, ok := strat.(TriggerStrategy); !ok {
			return nil, fmt.Errorf("strategy %q does not provide a trigger predicate; setup-trigger mode needs one", cfg.Strategy)
		}
	}

	events := NewEventLog()
	b := &Backtester{
		cfg:    cfg,
		strat:  strat,
		agg:    NewAggregator(cfg.SignalTimeframe),
		sim: NewFillSimulator(
			cfg.FillPolicy,
			cfg.StrictWickRatio,
			cfg.StrictSpread,
			PercentSlippage{Percent: cfg.SlippagePercent},
			FixedRateFees{Maker: cfg.MakerFee, Taker: cfg.TakerFee},
			events,
		),
		ledger: NewLedger(cfg.Symbol, cfg.InitialCapital, cfg.Leverage, events),
		rec:    NewRecorder(events),
		events: events,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	b.tracker = NewSetupTracker(cfg.SetupValidityWindow, events, b.logger)
	return b, nil
}

// Run replays the candle source to exhaustion. Cancellation is cooperative:
// the context is checked once per base candle and a canceled run returns
// cleanly with everything finalized so far. A stream violation or a
// strategy failure aborts the run; the partial result accompanies the
// error.
func (b *Backtester) Run(ctx context.Context, src CandleSource) (*Result, error) {
	runID := uuid.New().String()
	b.logger.Info("backtest run starting",
		zap.String("run_id", runID),
		zap.String("symbol", b.cfg.Symbol),
		zap.String("strategy", b.cfg.Strategy),
		zap.String("fill_policy", b.cfg.FillPolicy.String()),
		zap.Duration("signal_timeframe", b.cfg.SignalTimeframe),
	)

	canceled := false
loop:
	for {
		select {
		case <-ctx.Done():
			canceled = true
			break loop
		default:
		}
		c, ok, err := src.Next()
		if err != nil {
			return b.assemble(runID, canceled), fmt.Errorf("candle source: %w", err)
		}
		if !ok {
			break
		}
		if err := b.val.check(c); err != nil {
			return b.assemble(runID, canceled), err
		}
		if err := b.step(c); err != nil {
			return b.assemble(runID, canceled), err
		}
		b.candles++
	}

	res := b.assemble(runID, canceled)
	b.logger.Info("backtest run finished",
		zap.String("run_id", runID),
		zap.Int("candles", b.candles),
		zap.Int("trades", len(res.Trades)),
		zap.Int("events", len(res.Events)),
		zap.Bool("canceled", canceled),
	)
	return res, nil
}

// step advances the whole pipeline by one base candle.
func (b *Backtester) step(c Candle) error {
	// Exits for a position entered on an earlier candle. The liquidation
	// check against this candle's close preempts TP/SL evaluation.
	if p := b.ledger.Position(); p != nil && p.EntryTime < c.OpenTime {
		if b.ledger.WouldLiquidate(c.Close) {
			b.liquidate(c)
		} else if touch, price, conds := b.sim.CheckExit(c, p, b.cfg.PricePath); touch != TouchNone {
			b.exitPosition(c, p, touch, price, conds)
		}
	}

	// Pending setup: expire or trigger. A triggered setup hands its order
	// to the simulator dated this candle, so it executes at this candle.
	if b.cfg.EnableSetupTrigger {
		trig := b.strat.(TriggerStrategy)
		if s := b.tracker.OnCandle(c, trig.Trigger); s != nil {
			b.submitEntry(s.Signal, s.ID, c.OpenTime)
		}
	}

	b.applyFills(c)

	if fundingDue(b.lastClose, c.CloseTime()) && b.cfg.FundingRate != 0 {
		if paid := b.ledger.AccrueFunding(b.cfg.FundingRate, c.Close); paid != 0 {
			b.logger.Debug("funding accrued", zap.Float64("payment", paid), zap.Int64("ts", c.CloseTime()))
		}
	}

	// Signal-timeframe close: evaluate the strategy exactly once per closed
	// bucket, never on a partial one.
	if htf, ok := b.agg.Feed(c); ok {
		closeTs := htf.OpenTime + b.agg.TimeframeMs()
		if !b.agg.Identity() {
			b.events.Append(Event{
				Timestamp: closeTs,
				Type:      EventHTFCandleClosed,
				Payload: map[string]string{
					"open_time": istr(htf.OpenTime),
					"close":     fstr(htf.Close),
				},
			})
		}
		b.history = append(b.history, htf)
		sig, err := b.evaluate(htf, closeTs)
		if err != nil {
			return err
		}
		b.routeSignal(sig)
	}

	// Mark-to-market at the candle close. A position opened this very
	// candle can already breach its liquidation level here.
	if b.ledger.MarkToMarket(c) {
		if p := b.ledger.Position(); p != nil && p.EntryTime == c.OpenTime {
			b.liquidate(c)
		}
	}
	eq := b.ledger.Equity()
	if eq.GreaterThan(b.peakEquity) {
		b.peakEquity = eq
	}
	b.equity = append(b.equity, EquityPoint{
		Timestamp: c.CloseTime(),
		Equity:    eq,
		Drawdown:  b.peakEquity.Sub(eq),
	})
	b.lastClose = c.CloseTime()
	return nil
}

// evaluate invokes the strategy once for a closed signal candle. A panic or
// an invalid signal kind aborts the run with the failing candle attributed;
// trades and events recorded so far remain valid.
func (b *Backtester) evaluate(c Candle, closeTs int64) (sig Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %q panicked at signal candle %d: %v", b.strat.Name(), c.OpenTime, r)
		}
	}()
	sig = b.strat.Evaluate(c, b.history, b.ledger.Position())
	if !sig.Kind.valid() {
		return Signal{}, fmt.Errorf("strategy %q returned invalid signal kind %d at signal candle %d", b.strat.Name(), int(sig.Kind), c.OpenTime)
	}
	sig.GeneratedAt = closeTs
	return sig, nil
}

func (b *Backtester) routeSignal(sig Signal) {
	// Orders born at a signal close are stamped with that close time; events
	// stay time-ordered relative to the HTF close that produced them.
	switch sig.Kind {
	case SignalNone:
	case SignalClose:
		if b.ledger.Position() == nil {
			return
		}
		b.sim.CancelAll(sig.GeneratedAt, "close_signal")
		b.sim.Submit(&Order{
			Side:       closeSide(b.ledger.Position().Side),
			Type:       OrderMarket,
			Quantity:   b.ledger.Position().Quantity,
			Reduce:     true,
			SignalTime: sig.GeneratedAt,
			CreatedAt:  sig.GeneratedAt,
		})
	case SignalOpenLong, SignalOpenShort:
		if b.cfg.EnableSetupTrigger {
			b.tracker.OnSignal(sig)
			return
		}
		b.submitEntry(sig, "", sig.GeneratedAt)
	}
}

// submitEntry turns an intent into concrete orders: grid legs become limit
// orders, everything else a single market order.
func (b *Backtester) submitEntry(sig Signal, setupID string, ts int64) {
	side := Buy
	if sig.Kind == SignalOpenShort {
		side = Sell
	}
	if len(sig.GridLegs) > 0 {
		for _, leg := range sig.GridLegs {
			qty := leg.Quantity
			if qty == 0 {
				qty = b.cfg.Quantity
			}
			b.sim.Submit(&Order{
				Side:       side,
				Type:       OrderLimit,
				Price:      leg.Price,
				Quantity:   qty,
				TakeProfit: sig.TakeProfit,
				StopLoss:   sig.StopLoss,
				SetupID:    setupID,
				SignalTime: sig.GeneratedAt,
				CreatedAt:  ts,
			})
		}
		return
	}
	qty := sig.Quantity
	if qty == 0 {
		qty = b.cfg.Quantity
	}
	b.sim.Submit(&Order{
		Side:       side,
		Type:       OrderMarket,
		Quantity:   qty,
		TakeProfit: sig.TakeProfit,
		StopLoss:   sig.StopLoss,
		SetupID:    setupID,
		SignalTime: sig.GeneratedAt,
		CreatedAt:  ts,
	})
}

// applyFills asks the simulator which orders this candle executes and
// applies each against the ledger, re-checking the margin constraint per
// fill. Margin-rejected fills are canceled, not clamped.
func (b *Backtester) applyFills(c Candle) {
	for _, f := range b.sim.Advance(c) {
		if f.Reduce {
			b.applyReduceFill(c, f)
			continue
		}
		pos := b.ledger.Position()
		if pos != nil && pos.Side != entrySide(f.Side) {
			b.sim.Reject(f.Order, c.OpenTime, "position_conflict")
			continue
		}
		if !b.ledger.CanAccept(f.Price, f.Quantity) {
			b.sim.Reject(f.Order, c.OpenTime, "margin_rejected")
			continue
		}
		p, opened := b.ledger.ApplyFill(f, f.Order.SignalTime, f.Order.TakeProfit, f.Order.StopLoss)
		b.sim.MarkFilled(f.Order)
		b.events.Append(Event{
			Timestamp: f.Time,
			Type:      EventOrderFilled,
			TradeID:   p.TradeID,
			Payload: map[string]string{
				"order_id":   f.OrderID,
				"price":      fstr(f.Price),
				"quantity":   fstr(f.Quantity),
				"fee":        fstr(f.Fee),
				"maker":      boolstr(f.Maker),
				"conditions": joinConds(f.Conditions),
			},
		})
		if opened {
			b.events.Append(Event{
				Timestamp: f.Time,
				Type:      EventPositionOpened,
				TradeID:   p.TradeID,
				Payload: map[string]string{
					"symbol":            p.Symbol,
					"side":              p.Side.String(),
					"quantity":          fstr(p.Quantity),
					"entry_price":       fstr(p.AvgEntryPrice),
					"leverage":          fstr(p.Leverage),
					"initial_margin":    fstr(p.InitialMargin),
					"liquidation_price": fstr(p.LiquidationPrice),
					"signal_time":       istr(p.SignalTime),
				},
			})
		}
	}
}

func (b *Backtester) applyReduceFill(c Candle, f Fill) {
	p := b.ledger.Position()
	if p == nil {
		b.sim.Reject(f.Order, c.OpenTime, "no_position")
		return
	}
	b.sim.MarkFilled(f.Order)
	b.events.Append(Event{
		Timestamp: f.Time,
		Type:      EventOrderFilled,
		TradeID:   p.TradeID,
		Payload: map[string]string{
			"order_id":   f.OrderID,
			"price":      fstr(f.Price),
			"quantity":   fstr(f.Quantity),
			"fee":        fstr(f.Fee),
			"conditions": joinConds(f.Conditions),
		},
	})
	b.closeAndRecord(c, f.Time, f.Price, ExitManualClose, f.Fee, f.Conditions)
}

func (b *Backtester) exitPosition(c Candle, p *Position, touch ExitTouch, price float64, conds []string) {
	reason := ExitTakeProfit
	evt := EventTPHit
	if touch == TouchSL {
		reason = ExitStopLoss
		evt = EventSLHit
	}
	b.events.Append(Event{
		Timestamp: c.OpenTime,
		Type:      evt,
		TradeID:   p.TradeID,
		Payload: map[string]string{
			"level": fstr(price),
		},
	})
	b.closeAndRecord(c, c.OpenTime, price, reason, b.sim.ExitFee(price, p.Quantity), conds)
}

// liquidate force-closes the full position at the liquidation price,
// bypassing fill-policy logic entirely.
func (b *Backtester) liquidate(c Candle) {
	p := b.ledger.Position()
	if p == nil {
		return
	}
	b.events.Append(Event{
		Timestamp: c.OpenTime,
		Type:      EventLiquidation,
		TradeID:   p.TradeID,
		Payload: map[string]string{
			"liquidation_price": fstr(p.LiquidationPrice),
			"mark_price":        fstr(c.Close),
		},
	})
	b.closeAndRecord(c, c.OpenTime, p.LiquidationPrice, ExitLiquidation, 0, []string{"liquidation"})
}

func (b *Backtester) closeAndRecord(c Candle, ts int64, price float64, reason ExitReason, fee float64, conds []string) {
	p := b.ledger.Close(ts, price, reason, fee, b.cfg.FillPolicy, conds)
	if p == nil {
		return
	}
	// Remaining entry legs die with the position they were scaling into.
	b.sim.CancelAll(ts, "position_closed")
	t, err := b.rec.Finalize(p.TradeID)
	if err != nil {
		b.logger.Error("trade finalization failed", zap.String("trade_id", p.TradeID), zap.Error(err))
		return
	}
	b.logger.Debug("trade closed",
		zap.String("trade_id", t.TradeID),
		zap.String("exit_reason", string(t.ExitReason)),
		zap.String("realized_pnl", t.RealizedPnl.String()),
	)
}

func (b *Backtester) assemble(runID string, canceled bool) *Result {
	trades := b.rec.Trades()
	return &Result{
		RunID:       runID,
		Trades:      trades,
		Events:      b.events.Events(),
		EquityCurve: b.equity,
		Summary:     Summarize(trades, b.equity, b.ledger.Fees()),
		Manifest: RunManifest{
			RunID:         runID,
			Symbol:        b.cfg.Symbol,
			Strategy:      b.cfg.Strategy,
			ConfigHash:    b.cfg.Hash(),
			EngineVersion: EngineVersion,
			FillPolicy:    b.cfg.FillPolicy.String(),
			PricePath:     b.cfg.PricePath.String(),
			CandlesFed:    b.candles,
			CreatedAt:     time.Now().UnixMilli(),
		},
		Canceled: canceled,
	}
}

// EventLog exposes the run's audit trail for replay queries.
func (b *Backtester) EventLog() *EventLog { return b.events }

func entrySide(s OrderSide) PositionSide {
	if s == Buy {
		return SideLong
	}
	return SideShort
}

func closeSide(s PositionSide) OrderSide {
	if s == SideLong {
		return Sell
	}
	return Buy
}
