package strategies

import (
	"strconv"

	"backsim/services/engine"
)

// LevelBreakout signals when a signal-timeframe close clears the rolling
// channel extreme, then requires a finer-resolution confirmation: the setup
// triggers only when a base candle actually trades through the breakout
// level. Designed for the setup-trigger model; it degrades to plain
// close-confirmed entries when that model is disabled.
type LevelBreakout struct {
	ChannelLen int
	TpPct      float64
	SlPct      float64
}

func NewLevelBreakout(params map[string]string) (engine.Strategy, error) {
	s := &LevelBreakout{
		ChannelLen: 20,
		TpPct:      0.03,
		SlPct:      0.015,
	}
	if err := applyFloatParams(params, map[string]*float64{
		"tp_pct": &s.TpPct,
		"sl_pct": &s.SlPct,
	}); err != nil {
		return nil, err
	}
	if v, ok := params["channel_len"]; ok {
		n, err := strconv.Atoi(v)
		if err == nil && n > 0 {
			s.ChannelLen = n
		}
	}
	return s, nil
}

func (s *LevelBreakout) Name() string { return "level_breakout" }

func (s *LevelBreakout) Evaluate(c engine.Candle, history []engine.Candle, pos *engine.Position) engine.Signal {
	if pos != nil || len(history) <= s.ChannelLen {
		return engine.Signal{Kind: engine.SignalNone}
	}
	hi := highest(history, s.ChannelLen)
	lo := lowest(history, s.ChannelLen)
	switch {
	case hi > 0 && c.Close > hi:
		return engine.Signal{
			Kind:       engine.SignalOpenLong,
			TakeProfit: c.Close * (1 + s.TpPct),
			StopLoss:   c.Close * (1 - s.SlPct),
			Metadata:   map[string]string{"level": strconv.FormatFloat(hi, 'g', -1, 64)},
		}
	case lo > 0 && c.Close < lo:
		return engine.Signal{
			Kind:       engine.SignalOpenShort,
			TakeProfit: c.Close * (1 - s.TpPct),
			StopLoss:   c.Close * (1 + s.SlPct),
			Metadata:   map[string]string{"level": strconv.FormatFloat(lo, 'g', -1, 64)},
		}
	}
	return engine.Signal{Kind: engine.SignalNone}
}

// Trigger confirms the breakout on base resolution: the candle must trade
// through the level in the signal's direction.
func (s *LevelBreakout) Trigger(setup *engine.Setup, c engine.Candle) bool {
	level, err := strconv.ParseFloat(setup.Signal.Metadata["level"], 64)
	if err != nil {
		return false
	}
	if setup.Signal.Kind == engine.SignalOpenLong {
		return c.High >= level
	}
	return c.Low <= level
}
