package engine

import (
	"errors"
	"fmt"
	"time"
)

// BaseInterval is the resolution of the input candle stream.
const BaseInterval = time.Minute

const baseIntervalMs = int64(BaseInterval / time.Millisecond)

var (
	ErrNonMonotonic    = errors.New("candle stream not monotonically increasing")
	ErrGappedStream    = errors.New("candle stream has a gap")
	ErrMalformedCandle = errors.New("malformed candle")
)

// Candle is a single OHLCV bar. OpenTime is unix milliseconds. Immutable
// once closed.
type Candle struct {
	OpenTime int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// CloseTime returns the instant the candle closes, in unix milliseconds.
func (c Candle) CloseTime() int64 { return c.OpenTime + baseIntervalMs }

// Bullish reports whether the candle closed at or above its open.
func (c Candle) Bullish() bool { return c.Close >= c.Open }

// CandleSource supplies an ordered base-resolution candle stream. Next
// returns false when the stream is exhausted.
type CandleSource interface {
	Next() (Candle, bool, error)
}

// SliceSource adapts an in-memory candle slice to CandleSource.
type SliceSource struct {
	candles []Candle
	i       int
}

func NewSliceSource(candles []Candle) *SliceSource {
	return &SliceSource{candles: candles}
}

func (s *SliceSource) Next() (Candle, bool, error) {
	if s.i >= len(s.candles) {
		return Candle{}, false, nil
	}
	c := s.candles[s.i]
	s.i++
	return c, true, nil
}

// streamValidator enforces the input contract: strictly increasing open
// times on an exact base-interval grid. Violations are fatal; the engine
// never silently reindexes.
type streamValidator struct {
	lastOpen int64
	seen     bool
}

func (v *streamValidator) check(c Candle) error {
	if c.High < c.Low || c.Open <= 0 || c.Close <= 0 || c.High <= 0 || c.Low <= 0 {
		return fmt.Errorf("%w: ohlc out of order at %d", ErrMalformedCandle, c.OpenTime)
	}
	if c.High < c.Open || c.High < c.Close || c.Low > c.Open || c.Low > c.Close {
		return fmt.Errorf("%w: open/close outside high-low range at %d", ErrMalformedCandle, c.OpenTime)
	}
	if v.seen {
		if c.OpenTime <= v.lastOpen {
			return fmt.Errorf("%w: %d after %d", ErrNonMonotonic, c.OpenTime, v.lastOpen)
		}
		if c.OpenTime != v.lastOpen+baseIntervalMs {
			return fmt.Errorf("%w: %d ms missing after %d", ErrGappedStream, c.OpenTime-v.lastOpen-baseIntervalMs, v.lastOpen)
		}
	}
	v.lastOpen = c.OpenTime
	v.seen = true
	return nil
}
