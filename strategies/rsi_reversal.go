package strategies

import (
	"fmt"
	"strconv"

	"backsim/services/engine"
)

// RSIReversal opens long on an oversold signal-timeframe close and short on
// an overbought one, bracketing the entry with percentage TP/SL levels. An
// open position is closed when RSI crosses back through the midline.
type RSIReversal struct {
	Period     int
	Oversold   float64
	Overbought float64
	TpPct      float64
	SlPct      float64
}

func NewRSIReversal(params map[string]string) (engine.Strategy, error) {
	s := &RSIReversal{
		Period:     14,
		Oversold:   30,
		Overbought: 70,
		TpPct:      0.02,
		SlPct:      0.01,
	}
	if err := applyFloatParams(params, map[string]*float64{
		"oversold":   &s.Oversold,
		"overbought": &s.Overbought,
		"tp_pct":     &s.TpPct,
		"sl_pct":     &s.SlPct,
	}); err != nil {
		return nil, err
	}
	if v, ok := params["period"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("rsi_reversal: bad period %q", v)
		}
		s.Period = n
	}
	return s, nil
}

func (s *RSIReversal) Name() string { return "rsi_reversal" }

func (s *RSIReversal) Evaluate(c engine.Candle, history []engine.Candle, pos *engine.Position) engine.Signal {
	v := rsi(closesOf(history), s.Period)
	if v < 0 {
		return engine.Signal{Kind: engine.SignalNone}
	}
	if pos != nil {
		// Exit once momentum has mean-reverted past the midline.
		if pos.Side == engine.SideLong && v >= 50 || pos.Side == engine.SideShort && v <= 50 {
			return engine.Signal{Kind: engine.SignalClose}
		}
		return engine.Signal{Kind: engine.SignalNone}
	}
	switch {
	case v <= s.Oversold:
		return engine.Signal{
			Kind:       engine.SignalOpenLong,
			TakeProfit: c.Close * (1 + s.TpPct),
			StopLoss:   c.Close * (1 - s.SlPct),
			Metadata:   map[string]string{"rsi": strconv.FormatFloat(v, 'f', 2, 64)},
		}
	case v >= s.Overbought:
		return engine.Signal{
			Kind:       engine.SignalOpenShort,
			TakeProfit: c.Close * (1 - s.TpPct),
			StopLoss:   c.Close * (1 + s.SlPct),
			Metadata:   map[string]string{"rsi": strconv.FormatFloat(v, 'f', 2, 64)},
		}
	}
	return engine.Signal{Kind: engine.SignalNone}
}

func applyFloatParams(params map[string]string, dst map[string]*float64) error {
	for key, ptr := range dst {
		v, ok := params[key]
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("bad parameter %s=%q: %w", key, v, err)
		}
		*ptr = f
	}
	return nil
}
