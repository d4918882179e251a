package engine

import (
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaintenanceMarginRate is fixed for every symbol in v1 of the margin model.
const MaintenanceMarginRate = 0.005

type PositionSide int

const (
	SideFlat PositionSide = iota
	SideLong
	SideShort
)

func (s PositionSide) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	}
	return "flat"
}

// Position is the ledger's record of open exposure under isolated margin.
// Quantity is always the sum of the constituent fills; the liquidation
// price is recomputed on every fill that moves the average entry price.
type Position struct {
	TradeID          string
	Symbol           string
	Side             PositionSide
	Quantity         float64
	AvgEntryPrice    float64
	Leverage         float64
	InitialMargin    float64
	LiquidationPrice float64
	UnrealizedPnl    float64
	MaxDrawdown      float64 // most negative unrealized excursion
	MaxRunup         float64 // most positive unrealized excursion
	TakeProfit       float64
	StopLoss         float64
	SignalTime       int64
	EntryTime        int64
	Fills            []Fill
	Clamped          bool // a degenerate ratio was clamped during computation
}

// Notional returns position size in quote currency at the average entry.
func (p *Position) Notional() float64 { return p.AvgEntryPrice * p.Quantity }

// liquidationPrice implements the isolated-margin liquidation level:
// long  = entry * (1 - 1/leverage + MMR)
// short = entry * (1 + 1/leverage - MMR)
func liquidationPrice(side PositionSide, entry, leverage float64) (float64, bool) {
	lev, clamped := clampLeverage(leverage)
	if side == SideLong {
		return entry * (1 - 1/lev + MaintenanceMarginRate), clamped
	}
	return entry * (1 + 1/lev - MaintenanceMarginRate), clamped
}

// clampLeverage guards the margin ratios against degenerate input. A
// non-finite or sub-1 leverage is clamped to 1 and flagged rather than
// propagated into stored values.
func clampLeverage(lev float64) (float64, bool) {
	if math.IsNaN(lev) || math.IsInf(lev, 0) || lev < 1 {
		return 1, true
	}
	return lev, false
}

// Ledger owns all open positions for a run, computes unrealized PnL and
// margin usage, and forces liquidation closes. One open position per symbol
// per run; the engine runs a single symbol, so at most one position total.
type Ledger struct {
	symbol         string
	initialCapital float64
	leverage       float64
	marginUsed     float64
	pos            *Position
	realized       decimal.Decimal
	fees           decimal.Decimal
	funding        decimal.Decimal
	log            *EventLog
}

func NewLedger(symbol string, initialCapital, leverage float64, log *EventLog) *Ledger {
	return &Ledger{
		symbol:         symbol,
		initialCapital: initialCapital,
		leverage:       leverage,
		log:            log,
	}
}

// Position returns the open position, or nil when flat.
func (l *Ledger) Position() *Position { return l.pos }

func (l *Ledger) RealizedPnl() decimal.Decimal { return l.realized }
func (l *Ledger) Fees() decimal.Decimal        { return l.fees }
func (l *Ledger) FundingPaid() decimal.Decimal { return l.funding }

// Equity returns initial capital plus realized and unrealized PnL, net of
// fees and funding.
func (l *Ledger) Equity() decimal.Decimal {
	eq := decimal.NewFromFloat(l.initialCapital).
		Add(l.realized).
		Sub(l.fees).
		Sub(l.funding)
	if l.pos != nil {
		eq = eq.Add(decimal.NewFromFloat(l.pos.UnrealizedPnl))
	}
	return eq
}

// CanAccept reports whether a prospective fill's initial margin fits within
// the run's initial capital. Over-fills are rejected outright, never
// clamped to the remaining capacity.
func (l *Ledger) CanAccept(price, qty float64) bool {
	lev, _ := clampLeverage(l.leverage)
	m := price * qty / lev
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return false
	}
	return l.marginUsed+m <= l.initialCapital
}

// ApplyFill opens a position or scales into the existing one. The caller
// must have passed CanAccept first. Returns the position and whether this
// fill opened it.
func (l *Ledger) ApplyFill(f Fill, signalTime int64, tp, sl float64) (*Position, bool) {
	lev, clamped := clampLeverage(l.leverage)
	margin := f.Price * f.Quantity / lev
	l.marginUsed += margin

	opened := l.pos == nil
	if opened {
		side := SideLong
		if f.Side == Sell {
			side = SideShort
		}
		l.pos = &Position{
			TradeID:       uuid.New().String(),
			Symbol:        l.symbol,
			Side:          side,
			Quantity:      f.Quantity,
			AvgEntryPrice: f.Price,
			Leverage:      lev,
			InitialMargin: margin,
			TakeProfit:    tp,
			StopLoss:      sl,
			SignalTime:    signalTime,
			EntryTime:     f.Time,
			Clamped:       clamped,
		}
	} else {
		p := l.pos
		p.AvgEntryPrice = weightedAvg(p.AvgEntryPrice, p.Quantity, f.Price, f.Quantity)
		p.Quantity += f.Quantity
		p.InitialMargin += margin
		p.Clamped = p.Clamped || clamped
	}
	p := l.pos
	p.Fills = append(p.Fills, f)
	p.LiquidationPrice, clamped = liquidationPrice(p.Side, p.AvgEntryPrice, p.Leverage)
	p.Clamped = p.Clamped || clamped

	l.fees = l.fees.Add(decimal.NewFromFloat(f.Fee))
	return p, opened
}

// MarkToMarket revalues the open position at the candle's close, updating
// unrealized PnL and the running drawdown/runup extremes. It reports
// whether the close breached the liquidation price.
func (l *Ledger) MarkToMarket(c Candle) bool {
	p := l.pos
	if p == nil {
		return false
	}
	if p.Side == SideLong {
		p.UnrealizedPnl = (c.Close - p.AvgEntryPrice) * p.Quantity
	} else {
		p.UnrealizedPnl = (p.AvgEntryPrice - c.Close) * p.Quantity
	}
	if p.UnrealizedPnl < p.MaxDrawdown {
		p.MaxDrawdown = p.UnrealizedPnl
	}
	if p.UnrealizedPnl > p.MaxRunup {
		p.MaxRunup = p.UnrealizedPnl
	}
	return l.WouldLiquidate(c.Close)
}

// WouldLiquidate reports whether the mark price breaches the liquidation
// level of the open position.
func (l *Ledger) WouldLiquidate(mark float64) bool {
	p := l.pos
	if p == nil {
		return false
	}
	if p.Side == SideLong {
		return mark <= p.LiquidationPrice
	}
	return mark >= p.LiquidationPrice
}

// AccrueFunding charges the funding payment for one interval against the
// open position and returns the amount paid (negative = received).
func (l *Ledger) AccrueFunding(rate, mark float64) float64 {
	p := l.pos
	if p == nil || rate == 0 {
		return 0
	}
	payment := mark * p.Quantity * rate
	if p.Side == SideShort {
		payment = -payment
	}
	l.funding = l.funding.Add(decimal.NewFromFloat(payment))
	return payment
}

// Close flattens the open position at the given price, realizes its PnL,
// releases its margin and appends the POSITION_CLOSED record carrying every
// field the trade recorder needs.
func (l *Ledger) Close(ts int64, price float64, reason ExitReason, exitFee float64, policy FillPolicy, conditions []string) *Position {
	p := l.pos
	if p == nil {
		return nil
	}
	var realized float64
	if p.Side == SideLong {
		realized = (price - p.AvgEntryPrice) * p.Quantity
	} else {
		realized = (p.AvgEntryPrice - price) * p.Quantity
	}
	if math.IsNaN(realized) || math.IsInf(realized, 0) {
		realized = 0
		p.Clamped = true
	}
	l.realized = l.realized.Add(decimal.NewFromFloat(realized))
	l.fees = l.fees.Add(decimal.NewFromFloat(exitFee))
	l.marginUsed -= p.InitialMargin
	if l.marginUsed < 0 {
		l.marginUsed = 0
	}
	l.pos = nil

	conds := append(collectFillConditions(p), conditions...)
	l.log.Append(Event{
		Timestamp: ts,
		Type:      EventPositionClosed,
		TradeID:   p.TradeID,
		Payload: map[string]string{
			"symbol":       p.Symbol,
			"side":         p.Side.String(),
			"quantity":     fstr(p.Quantity),
			"entry_price":  fstr(p.AvgEntryPrice),
			"entry_time":   istr(p.EntryTime),
			"signal_time":  istr(p.SignalTime),
			"exit_price":   fstr(price),
			"exit_reason":  string(reason),
			"realized_pnl": fstr(realized),
			"max_drawdown": fstr(p.MaxDrawdown),
			"max_runup":    fstr(p.MaxRunup),
			"fill_policy":  policy.String(),
			"conditions":   strings.Join(conds, ","),
			"clamped":      boolstr(p.Clamped),
		},
	})
	return p
}

func collectFillConditions(p *Position) []string {
	var out []string
	for _, f := range p.Fills {
		out = append(out, f.Conditions...)
	}
	return out
}

func weightedAvg(p1, q1, p2, q2 float64) float64 {
	if q1+q2 == 0 {
		return 0
	}
	return (p1*q1 + p2*q2) / (q1 + q2)
}

func boolstr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
