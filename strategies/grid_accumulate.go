package strategies

import (
	"strconv"

	"backsim/services/engine"
)

// GridAccumulate lays a ladder of limit buy legs at stepped discounts below
// an oversold signal close. Legs scale the position in as price falls; the
// shared TP/SL brackets the averaged entry. Legs that would push initial
// margin past the run's capital are rejected by the ledger, which is the
// expected way a ladder bottoms out.
type GridAccumulate struct {
	Legs     int
	StepPct  float64
	Oversold float64
	TpPct    float64
	SlPct    float64
	rsiLen   int
}

func NewGridAccumulate(params map[string]string) (engine.Strategy, error) {
	s := &GridAccumulate{
		Legs:     3,
		StepPct:  0.005,
		Oversold: 35,
		TpPct:    0.02,
		SlPct:    0.03,
		rsiLen:   14,
	}
	if err := applyFloatParams(params, map[string]*float64{
		"step_pct": &s.StepPct,
		"oversold": &s.Oversold,
		"tp_pct":   &s.TpPct,
		"sl_pct":   &s.SlPct,
	}); err != nil {
		return nil, err
	}
	if v, ok := params["legs"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.Legs = n
		}
	}
	return s, nil
}

func (s *GridAccumulate) Name() string { return "grid_accumulate" }

func (s *GridAccumulate) Evaluate(c engine.Candle, history []engine.Candle, pos *engine.Position) engine.Signal {
	if pos != nil {
		return engine.Signal{Kind: engine.SignalNone}
	}
	v := rsi(closesOf(history), s.rsiLen)
	if v < 0 || v > s.Oversold {
		return engine.Signal{Kind: engine.SignalNone}
	}
	legs := make([]engine.GridLeg, s.Legs)
	for i := range legs {
		legs[i] = engine.GridLeg{
			Price: c.Close * (1 - s.StepPct*float64(i+1)),
		}
	}
	return engine.Signal{
		Kind:       engine.SignalOpenLong,
		GridLegs:   legs,
		TakeProfit: c.Close * (1 + s.TpPct),
		StopLoss:   c.Close * (1 - s.SlPct),
	}
}
