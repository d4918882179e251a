package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ExitReason explains why a position reached zero quantity.
type ExitReason string

// An expired setup never opens a position, so setup expiry can never be a
// trade's exit reason; it surfaces only as a SETUP_EXPIRED event.
const (
	ExitTakeProfit  ExitReason = "TAKE_PROFIT"
	ExitStopLoss    ExitReason = "STOP_LOSS"
	ExitManualClose ExitReason = "MANUAL_CLOSE"
	ExitLiquidation ExitReason = "LIQUIDATION"
)

// Trade is the immutable record finalized when a position fully closes.
type Trade struct {
	TradeID           string          `json:"trade_id"`
	Symbol            string          `json:"symbol"`
	Side              string          `json:"side"`
	SignalTime        int64           `json:"signal_time"`
	EntryTime         int64           `json:"entry_time"`
	EntryPrice        float64         `json:"entry_price"`
	ExitTime          int64           `json:"exit_time"`
	ExitPrice         float64         `json:"exit_price"`
	ExitReason        ExitReason      `json:"exit_reason"`
	Quantity          float64         `json:"quantity"`
	RealizedPnl       decimal.Decimal `json:"realized_pnl"`
	ExecutionDelay    int64           `json:"execution_delay"`
	MaxDrawdown       float64         `json:"max_drawdown"`
	MaxRunup          float64         `json:"max_runup"`
	FillPolicyUsed    string          `json:"fill_policy_used"`
	FillConditionsMet []string        `json:"fill_conditions_met"`
	Clamped           bool            `json:"clamped,omitempty"`
}

// Recorder finalizes trade records from position-closing events. It holds
// no state of its own beyond the finalized list; every trade it emits is
// derived purely from the event log, so replaying the log reproduces the
// record exactly.
type Recorder struct {
	log    *EventLog
	trades []Trade
}

func NewRecorder(log *EventLog) *Recorder {
	return &Recorder{log: log}
}

// Finalize builds the trade record for a just-closed position from its
// event sequence and appends it to the trade list.
func (r *Recorder) Finalize(tradeID string) (Trade, error) {
	t, err := ReplayTrade(r.log, tradeID)
	if err != nil {
		return Trade{}, err
	}
	r.trades = append(r.trades, t)
	return t, nil
}

// Trades returns all finalized trades in close order.
func (r *Recorder) Trades() []Trade { return r.trades }

// ReplayTrade reconstructs a trade record purely from the event log. The
// original run and any later replay produce identical records because the
// POSITION_CLOSED payload carries every finalized field.
func ReplayTrade(log *EventLog, tradeID string) (Trade, error) {
	events := log.ByTradeID(tradeID)
	if len(events) == 0 {
		return Trade{}, fmt.Errorf("no events for trade %s", tradeID)
	}
	var closed *Event
	for i := range events {
		if events[i].Type == EventPositionClosed {
			closed = &events[i]
			break
		}
	}
	if closed == nil {
		return Trade{}, fmt.Errorf("trade %s has no POSITION_CLOSED event", tradeID)
	}
	p := closed.Payload
	t := Trade{
		TradeID:        tradeID,
		Symbol:         p["symbol"],
		Side:           p["side"],
		SignalTime:     pint(p, "signal_time"),
		EntryTime:      pint(p, "entry_time"),
		EntryPrice:     pfloat(p, "entry_price"),
		ExitTime:       closed.Timestamp,
		ExitPrice:      pfloat(p, "exit_price"),
		ExitReason:     ExitReason(p["exit_reason"]),
		Quantity:       pfloat(p, "quantity"),
		RealizedPnl:    decimal.NewFromFloat(pfloat(p, "realized_pnl")),
		MaxDrawdown:    pfloat(p, "max_drawdown"),
		MaxRunup:       pfloat(p, "max_runup"),
		FillPolicyUsed: p["fill_policy"],
		Clamped:        p["clamped"] == "true",
	}
	t.ExecutionDelay = t.EntryTime - t.SignalTime
	if conds := p["conditions"]; conds != "" {
		t.FillConditionsMet = strings.Split(conds, ",")
	}
	return t, nil
}

func pfloat(p map[string]string, key string) float64 {
	v, _ := strconv.ParseFloat(p[key], 64)
	return v
}

func pint(p map[string]string, key string) int64 {
	v, _ := strconv.ParseInt(p[key], 10, 64)
	return v
}
