package strategies

import "backsim/services/engine"

// Indicator helpers shared by the built-in strategies. All of them operate
// on closed candles only; the newest element of the input is the candle
// being evaluated.

// rsi computes RSI over the trailing period of closes. Returns -1 while
// there is not enough history.
func rsi(closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return -1
	}
	var gain, loss float64
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

func closesOf(candles []engine.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// highest returns the maximum high over the n candles preceding the newest.
func highest(candles []engine.Candle, n int) float64 {
	hi := 0.0
	end := len(candles) - 1
	for i := end - n; i < end; i++ {
		if i < 0 {
			continue
		}
		if candles[i].High > hi {
			hi = candles[i].High
		}
	}
	return hi
}

// lowest returns the minimum low over the n candles preceding the newest.
func lowest(candles []engine.Candle, n int) float64 {
	lo := 0.0
	end := len(candles) - 1
	for i := end - n; i < end; i++ {
		if i < 0 {
			continue
		}
		if lo == 0 || candles[i].Low < lo {
			lo = candles[i].Low
		}
	}
	return lo
}
