package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// genCandles builds a contiguous 1m stream starting at start (ms), with a
// deterministic walk so tests are repeatable.
func genCandles(start int64, n int, seed int64) []Candle {
	rng := rand.New(rand.NewSource(seed))
	out := make([]Candle, n)
	price := 100.0
	for i := range out {
		open := price
		move := (rng.Float64() - 0.5) * 2
		close := open + move
		high := open
		if close > high {
			high = close
		}
		high += rng.Float64() * 0.5
		low := open
		if close < low {
			low = close
		}
		low -= rng.Float64() * 0.5
		out[i] = Candle{
			OpenTime: start + int64(i)*baseIntervalMs,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    close,
			Volume:   1 + rng.Float64(),
		}
		price = close
	}
	return out
}

func TestAggregatorIdentity(t *testing.T) {
	agg := NewAggregator(time.Minute)
	require.True(t, agg.Identity())

	c := Candle{OpenTime: 60_000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3}
	out, ok := agg.Feed(c)
	require.True(t, ok)
	assert.Equal(t, c, out)
}

func TestAggregatorDiscardsLeadingPartialBucket(t *testing.T) {
	// Stream starts 30 minutes into an hour bucket: the aggregator must not
	// emit anything until the first full bucket closes.
	start := int64(30 * 60 * 1000)
	candles := genCandles(start, 120, 1)
	agg := NewAggregator(time.Hour)

	var emitted []Candle
	for _, c := range candles {
		if htf, ok := agg.Feed(c); ok {
			emitted = append(emitted, htf)
		}
	}
	require.Len(t, emitted, 1)
	assert.Equal(t, int64(3_600_000), emitted[0].OpenTime)
}

func TestAggregatorEmitsOncePerBucket(t *testing.T) {
	for _, tf := range []time.Duration{5 * time.Minute, 15 * time.Minute, time.Hour, 4 * time.Hour} {
		bars := int(tf / time.Minute)
		n := bars * 7
		candles := genCandles(0, n, 2)
		agg := NewAggregator(tf)

		count := 0
		for _, c := range candles {
			if _, ok := agg.Feed(c); ok {
				count++
			}
		}
		assert.Equal(t, 7, count, "timeframe %s", tf)
	}
}

func TestAggregatorFoldsOHLCV(t *testing.T) {
	candles := []Candle{
		{OpenTime: 0, Open: 10, High: 12, Low: 9, Close: 11, Volume: 1},
		{OpenTime: 60_000, Open: 11, High: 15, Low: 10, Close: 14, Volume: 2},
		{OpenTime: 120_000, Open: 14, High: 14.5, Low: 8, Close: 9, Volume: 3},
	}
	agg := NewAggregator(3 * time.Minute)

	var out Candle
	var ok bool
	for _, c := range candles {
		out, ok = agg.Feed(c)
	}
	require.True(t, ok)
	assert.Equal(t, int64(0), out.OpenTime)
	assert.Equal(t, 10.0, out.Open)
	assert.Equal(t, 15.0, out.High)
	assert.Equal(t, 8.0, out.Low)
	assert.Equal(t, 9.0, out.Close)
	assert.Equal(t, 6.0, out.Volume)
}

func TestAggregatorRightEdgeAlignment(t *testing.T) {
	// The bucket must close on the candle whose close time lands on the
	// boundary, not on the first candle of the next bucket.
	candles := genCandles(0, 60, 3)
	agg := NewAggregator(time.Hour)

	for i, c := range candles {
		_, ok := agg.Feed(c)
		if i < 59 {
			assert.False(t, ok, "premature emit at bar %d", i)
		} else {
			assert.True(t, ok, "no emit on the closing bar")
		}
	}
}
