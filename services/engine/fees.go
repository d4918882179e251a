package engine

// FeeModel computes the fee charged for a fill, in quote currency.
type FeeModel interface {
	Fee(price, qty float64, maker bool) float64
}

// FixedRateFees charges flat maker/taker rates as fractions of notional.
type FixedRateFees struct {
	Maker float64
	Taker float64
}

func (m FixedRateFees) Fee(price, qty float64, maker bool) float64 {
	rate := m.Taker
	if maker {
		rate = m.Maker
	}
	return price * qty * rate
}

// SlippageModel shifts an execution price against the trader.
type SlippageModel interface {
	Adjust(side OrderSide, price float64) float64
}

// PercentSlippage applies a fixed percentage against the order side.
type PercentSlippage struct {
	Percent float64
}

func (s PercentSlippage) Adjust(side OrderSide, price float64) float64 {
	if s.Percent == 0 {
		return price
	}
	if side == Buy {
		return price * (1 + s.Percent/100)
	}
	return price * (1 - s.Percent/100)
}

// fundingIntervalMs is the standard 8-hour perpetual funding interval.
const fundingIntervalMs = int64(8 * 60 * 60 * 1000)

// fundingDue reports whether an 8h funding boundary falls inside
// (prev, now].
func fundingDue(prev, now int64) bool {
	if prev <= 0 {
		return false
	}
	return now/fundingIntervalMs > prev/fundingIntervalMs
}
