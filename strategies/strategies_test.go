package strategies

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backsim/services/engine"
)

func candlesFromCloses(closes []float64) []engine.Candle {
	out := make([]engine.Candle, len(closes))
	for i, cl := range closes {
		out[i] = engine.Candle{
			OpenTime: int64(i) * 60_000,
			Open:     cl, High: cl + 0.5, Low: cl - 0.5, Close: cl,
			Volume: 1,
		}
	}
	return out
}

// fifteen falling closes push RSI(14) to 0; rising closes to 100.
func fallingCloses() []float64 {
	out := make([]float64, 16)
	v := 100.0
	for i := range out {
		out[i] = v
		v -= 1
	}
	return out
}

func risingCloses() []float64 {
	out := make([]float64, 16)
	v := 100.0
	for i := range out {
		out[i] = v
		v += 1
	}
	return out
}

func TestRSI(t *testing.T) {
	assert.Equal(t, -1.0, rsi([]float64{1, 2, 3}, 14), "insufficient history")
	assert.Equal(t, 0.0, rsi(fallingCloses(), 14))
	assert.Equal(t, 100.0, rsi(risingCloses(), 14))

	// Half gains, half losses of equal size -> RSI 50.
	alternating := []float64{100, 101, 100, 101, 100, 101, 100, 101, 100, 101, 100, 101, 100, 101, 100}
	assert.InDelta(t, 50, rsi(alternating, 14), 1e-9)
}

func TestRSIReversalSignals(t *testing.T) {
	s, err := NewRSIReversal(nil)
	require.NoError(t, err)

	hist := candlesFromCloses(fallingCloses())
	last := hist[len(hist)-1]
	sig := s.Evaluate(last, hist, nil)
	assert.Equal(t, engine.SignalOpenLong, sig.Kind)
	assert.InDelta(t, last.Close*1.02, sig.TakeProfit, 1e-9)
	assert.InDelta(t, last.Close*0.99, sig.StopLoss, 1e-9)

	hist = candlesFromCloses(risingCloses())
	last = hist[len(hist)-1]
	sig = s.Evaluate(last, hist, nil)
	assert.Equal(t, engine.SignalOpenShort, sig.Kind)
}

func TestRSIReversalMidlineExit(t *testing.T) {
	s, err := NewRSIReversal(nil)
	require.NoError(t, err)
	pos := &engine.Position{Side: engine.SideLong}

	// RSI back at 100 with a long open: close it.
	hist := candlesFromCloses(risingCloses())
	sig := s.Evaluate(hist[len(hist)-1], hist, pos)
	assert.Equal(t, engine.SignalClose, sig.Kind)

	// Still oversold with a long open: hold, never pyramid.
	hist = candlesFromCloses(fallingCloses())
	sig = s.Evaluate(hist[len(hist)-1], hist, pos)
	assert.Equal(t, engine.SignalNone, sig.Kind)
}

func TestRSIReversalParams(t *testing.T) {
	s, err := NewRSIReversal(map[string]string{"period": "7", "oversold": "25"})
	require.NoError(t, err)
	r := s.(*RSIReversal)
	assert.Equal(t, 7, r.Period)
	assert.Equal(t, 25.0, r.Oversold)

	_, err = NewRSIReversal(map[string]string{"period": "zero"})
	assert.Error(t, err)
	_, err = NewRSIReversal(map[string]string{"tp_pct": "not-a-float"})
	assert.Error(t, err)
}

func TestLevelBreakoutSignalAndTrigger(t *testing.T) {
	s, err := NewLevelBreakout(map[string]string{"channel_len": "5"})
	require.NoError(t, err)

	closes := []float64{100, 101, 100, 102, 101, 100, 108}
	hist := candlesFromCloses(closes)
	last := hist[len(hist)-1]

	sig := s.Evaluate(last, hist, nil)
	require.Equal(t, engine.SignalOpenLong, sig.Kind)
	require.Contains(t, sig.Metadata, "level")

	lb := s.(*LevelBreakout)
	setup := &engine.Setup{Signal: sig}

	// Channel high is 102.5 (close 102 + 0.5 wick). A base candle reaching
	// it confirms; one below it does not.
	at := engine.Candle{OpenTime: 0, Open: 102, High: 102.6, Low: 101, Close: 102.2}
	below := engine.Candle{OpenTime: 0, Open: 101, High: 102, Low: 100, Close: 101.5}
	assert.True(t, lb.Trigger(setup, at))
	assert.False(t, lb.Trigger(setup, below))
}

func TestLevelBreakoutShort(t *testing.T) {
	s, err := NewLevelBreakout(map[string]string{"channel_len": "5"})
	require.NoError(t, err)

	closes := []float64{100, 101, 100, 102, 101, 100, 92}
	hist := candlesFromCloses(closes)
	sig := s.Evaluate(hist[len(hist)-1], hist, nil)
	assert.Equal(t, engine.SignalOpenShort, sig.Kind)
}

func TestLevelBreakoutNeedsHistory(t *testing.T) {
	s, err := NewLevelBreakout(nil)
	require.NoError(t, err)
	hist := candlesFromCloses([]float64{100, 101, 102})
	sig := s.Evaluate(hist[len(hist)-1], hist, nil)
	assert.Equal(t, engine.SignalNone, sig.Kind)
}

func TestGridAccumulateLadder(t *testing.T) {
	s, err := NewGridAccumulate(map[string]string{"legs": "4", "step_pct": "0.01"})
	require.NoError(t, err)

	hist := candlesFromCloses(fallingCloses())
	last := hist[len(hist)-1]
	sig := s.Evaluate(last, hist, nil)
	require.Equal(t, engine.SignalOpenLong, sig.Kind)
	require.Len(t, sig.GridLegs, 4)
	for i, leg := range sig.GridLegs {
		want := last.Close * (1 - 0.01*float64(i+1))
		assert.InDelta(t, want, leg.Price, 1e-9, "leg %d", i)
	}
	assert.Greater(t, sig.TakeProfit, last.Close)
	assert.Less(t, sig.StopLoss, last.Close)
}

func TestGridAccumulateHoldsWhilePositioned(t *testing.T) {
	s, err := NewGridAccumulate(nil)
	require.NoError(t, err)
	hist := candlesFromCloses(fallingCloses())
	sig := s.Evaluate(hist[len(hist)-1], hist, &engine.Position{Side: engine.SideLong})
	assert.Equal(t, engine.SignalNone, sig.Kind)
}

func TestRegisterBuiltins(t *testing.T) {
	reg := engine.NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))
	assert.Equal(t, []string{"grid_accumulate", "level_breakout", "rsi_reversal"}, reg.Names())

	// A second registration must collide.
	assert.Error(t, RegisterBuiltins(reg))
}
