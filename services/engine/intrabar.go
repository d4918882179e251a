package engine

import "fmt"

// PricePath is the tie-break rule for resolving which of TP/SL is hit first
// when both levels fall inside one candle's range.
type PricePath int

const (
	// PathNeutral resolves the stop-loss first (conservative).
	PathNeutral PricePath = iota
	// PathOptimistic resolves the take-profit first.
	PathOptimistic
	// PathRealistic infers the touch order from the candle's net direction:
	// an up candle reaches the level above its open first, a down candle the
	// level below.
	PathRealistic
)

func (p PricePath) String() string {
	switch p {
	case PathNeutral:
		return "neutral"
	case PathOptimistic:
		return "optimistic"
	case PathRealistic:
		return "realistic"
	}
	return "unknown"
}

func ParsePricePath(s string) (PricePath, error) {
	switch s {
	case "neutral":
		return PathNeutral, nil
	case "optimistic":
		return PathOptimistic, nil
	case "realistic":
		return PathRealistic, nil
	}
	return 0, fmt.Errorf("unknown price path assumption %q", s)
}

// ExitTouch indicates which exit level a candle reached first.
type ExitTouch int

const (
	TouchNone ExitTouch = iota
	TouchTP
	TouchSL
)

// resolveExit decides which of TP/SL an open position hits within one
// candle. Zero levels are disarmed. The same input always yields the same
// result; the price path only matters when both levels are inside the
// candle's range.
func resolveExit(side PositionSide, c Candle, tp, sl float64, path PricePath) ExitTouch {
	var tpHit, slHit bool
	if side == SideLong {
		tpHit = tp > 0 && c.High >= tp
		slHit = sl > 0 && c.Low <= sl
	} else {
		tpHit = tp > 0 && c.Low <= tp
		slHit = sl > 0 && c.High >= sl
	}
	switch {
	case tpHit && slHit:
		return resolveBoth(side, c, path)
	case slHit:
		return TouchSL
	case tpHit:
		return TouchTP
	}
	return TouchNone
}

func resolveBoth(side PositionSide, c Candle, path PricePath) ExitTouch {
	switch path {
	case PathOptimistic:
		return TouchTP
	case PathRealistic:
		// Up candle touches the level above the open first. For a long the
		// TP sits above and the SL below; for a short the reverse.
		if c.Bullish() {
			if side == SideLong {
				return TouchTP
			}
			return TouchSL
		}
		if side == SideLong {
			return TouchSL
		}
		return TouchTP
	default: // PathNeutral
		return TouchSL
	}
}
