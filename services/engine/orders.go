package engine

import "fmt"

type OrderSide int

const (
	Buy OrderSide = iota
	Sell
)

func (s OrderSide) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

type OrderType int

const (
	OrderMarket OrderType = iota
	OrderLimit
)

func (t OrderType) String() string {
	if t == OrderMarket {
		return "market"
	}
	return "limit"
}

type OrderState int

const (
	OrderPending OrderState = iota
	OrderFilled
	OrderRejected
	OrderCanceled
)

// Order is a pending instruction owned by the fill simulator until it
// fills, at which point the resulting exposure transfers to the ledger.
type Order struct {
	ID         string
	Side       OrderSide
	Type       OrderType
	Price      float64 // limit price; unused for market orders
	Quantity   float64
	State      OrderState
	Reduce     bool // closes exposure instead of opening it
	TakeProfit float64
	StopLoss   float64
	SetupID    string
	SignalTime int64
	CreatedAt  int64 // open time of the candle the order was created on
}

// FillPolicy is the rule set deciding whether a pending limit order
// executes against a candle.
type FillPolicy int

const (
	// FillOptimistic fills on any touch of the order price within [low, high].
	FillOptimistic FillPolicy = iota
	// FillNeutral requires the candle body to cross the price level.
	FillNeutral
	// FillStrict is neutral plus a wick-ratio filter and an adverse spread
	// offset on the fill price.
	FillStrict
)

func (p FillPolicy) String() string {
	switch p {
	case FillOptimistic:
		return "optimistic"
	case FillNeutral:
		return "neutral"
	case FillStrict:
		return "strict"
	}
	return "unknown"
}

func ParseFillPolicy(s string) (FillPolicy, error) {
	switch s {
	case "optimistic":
		return FillOptimistic, nil
	case "neutral":
		return FillNeutral, nil
	case "strict":
		return FillStrict, nil
	}
	return 0, fmt.Errorf("unknown fill policy %q", s)
}

// limitTouched reports whether the candle traded through the limit level at
// all. This is the outer bound for every policy.
func limitTouched(side OrderSide, limit float64, c Candle) bool {
	if side == Buy {
		return c.Low <= limit
	}
	return c.High >= limit
}

// gappedThrough reports whether the candle opened already past the limit in
// the favorable direction. A buy limit whose open is at or below the limit
// fills at the open, never at the stale limit above the gap.
func gappedThrough(side OrderSide, limit float64, c Candle) bool {
	if side == Buy {
		return c.Open <= limit
	}
	return c.Open >= limit
}

// bodyCrossed reports whether the candle body (open to close) straddles the
// level, i.e. the level was crossed rather than merely wicked.
func bodyCrossed(limit float64, c Candle) bool {
	lo, hi := c.Open, c.Close
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo <= limit && limit <= hi
}

// wickRatio returns how deep the candle penetrated beyond the limit level,
// as a fraction of the candle's full range. Thin ratios indicate a wick-only
// touch that the strict policy rejects.
func wickRatio(side OrderSide, limit float64, c Candle) float64 {
	rng := c.High - c.Low
	if rng <= 0 {
		return 0
	}
	if side == Buy {
		return (limit - c.Low) / rng
	}
	return (c.High - limit) / rng
}
