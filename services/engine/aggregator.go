package engine

import "time"

// Aggregator folds the base candle stream into closed higher-timeframe
// candles on fixed time-grid boundaries with right-edge alignment: a bucket
// is only visible downstream on the base candle whose close coincides with
// the bucket boundary. The leading partial bucket of a date range is
// discarded so no signal ever fires on incomplete data.
type Aggregator struct {
	tfMs        int64
	bucketStart int64
	acc         Candle
	accBars     int
	aligned     bool
}

// NewAggregator builds an aggregator for the given timeframe. A timeframe
// at or below the base interval yields the identity aggregator, which
// passes every base candle straight through.
func NewAggregator(tf time.Duration) *Aggregator {
	ms := int64(tf / time.Millisecond)
	if ms < baseIntervalMs {
		ms = baseIntervalMs
	}
	return &Aggregator{tfMs: ms}
}

// Identity reports whether the aggregator passes base candles through
// unchanged.
func (a *Aggregator) Identity() bool { return a.tfMs == baseIntervalMs }

// TimeframeMs returns the configured bucket size in milliseconds.
func (a *Aggregator) TimeframeMs() int64 { return a.tfMs }

// Feed folds one base candle into the current bucket. It returns a closed
// higher-timeframe candle only on the base candle that completes the
// bucket; the accumulator resets immediately after emitting.
func (a *Aggregator) Feed(c Candle) (Candle, bool) {
	if a.Identity() {
		return c, true
	}
	bucket := c.OpenTime - floorMod(c.OpenTime, a.tfMs)
	if !a.aligned {
		// Skip until a candle opens exactly on a bucket boundary.
		if c.OpenTime != bucket {
			return Candle{}, false
		}
		a.aligned = true
	}
	if a.accBars == 0 {
		a.bucketStart = bucket
		a.acc = Candle{
			OpenTime: bucket,
			Open:     c.Open,
			High:     c.High,
			Low:      c.Low,
			Close:    c.Close,
			Volume:   c.Volume,
		}
		a.accBars = 1
	} else {
		if c.High > a.acc.High {
			a.acc.High = c.High
		}
		if c.Low < a.acc.Low {
			a.acc.Low = c.Low
		}
		a.acc.Close = c.Close
		a.acc.Volume += c.Volume
		a.accBars++
	}
	if c.CloseTime() == a.bucketStart+a.tfMs {
		out := a.acc
		a.acc = Candle{}
		a.accBars = 0
		return out, true
	}
	return Candle{}, false
}

func floorMod(v, m int64) int64 {
	r := v % m
	if r < 0 {
		r += m
	}
	return r
}
