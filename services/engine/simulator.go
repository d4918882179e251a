package engine

import (
	"sort"

	"github.com/google/uuid"
)

// Fill is one executed order quantity at a concrete price. The Conditions
// slice records which fill-policy checks were met, and is carried through
// to the finalized trade as fill_conditions_met.
type Fill struct {
	Order      *Order
	OrderID    string
	Time       int64
	Price      float64
	Quantity   float64
	Side       OrderSide
	Reduce     bool
	Maker      bool
	Fee        float64
	Conditions []string
}

// FillSimulator owns all pending orders and decides whether, when, and at
// what price they execute against each base candle. Whether a detected fill
// is accepted is the caller's decision (margin constraint); the simulator
// only applies price logic.
type FillSimulator struct {
	policy       FillPolicy
	wickRatioMin float64
	strictSpread float64
	slippage     SlippageModel
	fees         FeeModel
	orders       []*Order
	log          *EventLog
}

func NewFillSimulator(policy FillPolicy, wickRatioMin, strictSpread float64, slippage SlippageModel, fees FeeModel, log *EventLog) *FillSimulator {
	return &FillSimulator{
		policy:       policy,
		wickRatioMin: wickRatioMin,
		strictSpread: strictSpread,
		slippage:     slippage,
		fees:         fees,
		log:          log,
	}
}

func (s *FillSimulator) Policy() FillPolicy { return s.policy }

// Pending returns the orders still awaiting execution.
func (s *FillSimulator) Pending() []*Order { return s.orders }

// Submit registers a pending order and records its creation.
func (s *FillSimulator) Submit(o *Order) {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	o.State = OrderPending
	s.orders = append(s.orders, o)
	s.log.Append(Event{
		Timestamp: o.CreatedAt,
		Type:      EventOrderCreated,
		Payload: map[string]string{
			"order_id": o.ID,
			"side":     o.Side.String(),
			"type":     o.Type.String(),
			"price":    fstr(o.Price),
			"quantity": fstr(o.Quantity),
			"reduce":   boolstr(o.Reduce),
			"setup_id": o.SetupID,
		},
	})
}

// CancelAll cancels every pending order, recording the reason.
func (s *FillSimulator) CancelAll(ts int64, reason string) {
	for _, o := range s.orders {
		o.State = OrderCanceled
		s.log.Append(Event{
			Timestamp: ts,
			Type:      EventOrderCanceled,
			Payload: map[string]string{
				"order_id": o.ID,
				"reason":   reason,
			},
		})
	}
	s.orders = nil
}

// Reject drops one pending order, recording why. Used for margin-rejected
// fills, which are normal outcomes rather than errors.
func (s *FillSimulator) Reject(o *Order, ts int64, reason string) {
	o.State = OrderRejected
	s.remove(o)
	s.log.Append(Event{
		Timestamp: ts,
		Type:      EventOrderCanceled,
		Payload: map[string]string{
			"order_id": o.ID,
			"reason":   reason,
		},
	})
}

// MarkFilled removes an accepted order from the pending set.
func (s *FillSimulator) MarkFilled(o *Order) {
	o.State = OrderFilled
	s.remove(o)
}

func (s *FillSimulator) remove(o *Order) {
	for i, cur := range s.orders {
		if cur == o {
			s.orders = append(s.orders[:i], s.orders[i+1:]...)
			return
		}
	}
}

// Advance evaluates every pending order against one base candle and returns
// the fills the candle produces, in execution priority order: market orders
// first, then buy legs highest-price-first, then sell legs
// lowest-price-first. Orders stay pending when the policy does not fill
// them; that is a normal outcome, not an event.
func (s *FillSimulator) Advance(c Candle) []Fill {
	var markets, buys, sells []*Order
	for _, o := range s.orders {
		switch {
		case o.Type == OrderMarket:
			markets = append(markets, o)
		case o.Side == Buy:
			buys = append(buys, o)
		default:
			sells = append(sells, o)
		}
	}
	sort.SliceStable(buys, func(i, j int) bool { return buys[i].Price > buys[j].Price })
	sort.SliceStable(sells, func(i, j int) bool { return sells[i].Price < sells[j].Price })

	var fills []Fill
	for _, o := range markets {
		fills = append(fills, s.fillMarket(o, c))
	}
	for _, o := range append(buys, sells...) {
		if f, ok := s.fillLimit(o, c); ok {
			fills = append(fills, f)
		}
	}
	return fills
}

func (s *FillSimulator) fillMarket(o *Order, c Candle) Fill {
	// A setup-trigger order is born mid-candle, so it executes at this
	// candle's close; everything else executes at the open, the first
	// tradable price after the order was placed.
	price := c.Open
	cond := "market_at_open"
	if o.SetupID != "" && o.CreatedAt == c.OpenTime {
		price = c.Close
		cond = "market_at_trigger"
	}
	price = s.slippage.Adjust(o.Side, price)
	return Fill{
		Order:      o,
		OrderID:    o.ID,
		Time:       c.OpenTime,
		Price:      price,
		Quantity:   o.Quantity,
		Side:       o.Side,
		Reduce:     o.Reduce,
		Maker:      false,
		Fee:        s.fees.Fee(price, o.Quantity, false),
		Conditions: []string{cond},
	}
}

func (s *FillSimulator) fillLimit(o *Order, c Candle) (Fill, bool) {
	// Gap detection runs before any policy check: a candle that opens
	// already past the limit in the favorable direction fills at the open,
	// never at the stale limit price across the gap.
	if gappedThrough(o.Side, o.Price, c) {
		price := c.Open
		return s.makerFill(o, c, price, []string{"gap_fill_at_open"}), true
	}
	if !limitTouched(o.Side, o.Price, c) {
		return Fill{}, false
	}
	conds := []string{"limit_touch"}
	switch s.policy {
	case FillOptimistic:
		// any touch fills at the limit
	case FillNeutral:
		if !bodyCrossed(o.Price, c) {
			return Fill{}, false
		}
		conds = append(conds, "body_cross")
	case FillStrict:
		if !bodyCrossed(o.Price, c) {
			return Fill{}, false
		}
		if wickRatio(o.Side, o.Price, c) < s.wickRatioMin {
			return Fill{}, false
		}
		conds = append(conds, "body_cross", "wick_depth_ok")
	}
	price := o.Price
	if s.policy == FillStrict && s.strictSpread > 0 {
		// spread offset applied against the trader
		if o.Side == Buy {
			price *= 1 + s.strictSpread
		} else {
			price *= 1 - s.strictSpread
		}
		conds = append(conds, "strict_spread")
	}
	return s.makerFill(o, c, price, conds), true
}

func (s *FillSimulator) makerFill(o *Order, c Candle, price float64, conds []string) Fill {
	return Fill{
		Order:      o,
		OrderID:    o.ID,
		Time:       c.OpenTime,
		Price:      price,
		Quantity:   o.Quantity,
		Side:       o.Side,
		Reduce:     o.Reduce,
		Maker:      true,
		Fee:        s.fees.Fee(price, o.Quantity, true),
		Conditions: conds,
	}
}

// CheckExit evaluates TP/SL for the open position against one candle using
// the configured price-path assumption. Only meaningful on candles after
// the entry candle. Returns the touch, the exit price, and the condition
// notes to record on the trade.
func (s *FillSimulator) CheckExit(c Candle, p *Position, path PricePath) (ExitTouch, float64, []string) {
	touch := resolveExit(p.Side, c, p.TakeProfit, p.StopLoss, path)
	if touch == TouchNone {
		return TouchNone, 0, nil
	}
	level := p.TakeProfit
	name := "tp_touch"
	if touch == TouchSL {
		level = p.StopLoss
		name = "sl_touch"
	}
	price := level
	conds := []string{name, "path_" + path.String()}
	// A candle that opens beyond the level exits at the open: adverse gaps
	// cannot fill at the stale level.
	if p.Side == SideLong && touch == TouchSL && c.Open <= level ||
		p.Side == SideLong && touch == TouchTP && c.Open >= level ||
		p.Side == SideShort && touch == TouchSL && c.Open >= level ||
		p.Side == SideShort && touch == TouchTP && c.Open <= level {
		price = c.Open
		conds = append(conds, "gap_exit_at_open")
	}
	return touch, price, conds
}

// ExitFee computes the taker fee for flattening qty at price.
func (s *FillSimulator) ExitFee(price, qty float64) float64 {
	return s.fees.Fee(price, qty, false)
}
