package engine

import "github.com/shopspring/decimal"

// EquityPoint is one sample of the run's equity curve, taken at every base
// candle close.
type EquityPoint struct {
	Timestamp int64           `json:"timestamp"`
	Equity    decimal.Decimal `json:"equity"`
	Drawdown  decimal.Decimal `json:"drawdown"`
}

// Summary aggregates a run's trade list into headline statistics.
type Summary struct {
	TotalTrades  int             `json:"total_trades"`
	Wins         int             `json:"wins"`
	Losses       int             `json:"losses"`
	Liquidations int             `json:"liquidations"`
	WinRate      decimal.Decimal `json:"win_rate"`
	NetPnl       decimal.Decimal `json:"net_pnl"`
	GrossProfit  decimal.Decimal `json:"gross_profit"`
	GrossLoss    decimal.Decimal `json:"gross_loss"`
	ProfitFactor decimal.Decimal `json:"profit_factor"`
	TotalFees    decimal.Decimal `json:"total_fees"`
	MaxDrawdown  decimal.Decimal `json:"max_drawdown"`
}

// Summarize computes headline statistics from the finalized trades and the
// equity curve. Max drawdown is the deepest peak-to-trough equity decline.
func Summarize(trades []Trade, equity []EquityPoint, fees decimal.Decimal) Summary {
	s := Summary{TotalFees: fees}
	for _, t := range trades {
		s.TotalTrades++
		s.NetPnl = s.NetPnl.Add(t.RealizedPnl)
		if t.RealizedPnl.IsPositive() {
			s.Wins++
			s.GrossProfit = s.GrossProfit.Add(t.RealizedPnl)
		} else {
			s.Losses++
			s.GrossLoss = s.GrossLoss.Add(t.RealizedPnl.Abs())
		}
		if t.ExitReason == ExitLiquidation {
			s.Liquidations++
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = decimal.NewFromInt(int64(s.Wins)).
			Div(decimal.NewFromInt(int64(s.TotalTrades)))
	}
	if s.GrossLoss.IsPositive() {
		s.ProfitFactor = s.GrossProfit.Div(s.GrossLoss)
	}
	peak := decimal.Zero
	for _, p := range equity {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
		}
		dd := peak.Sub(p.Equity)
		if dd.GreaterThan(s.MaxDrawdown) {
			s.MaxDrawdown = dd
		}
	}
	return s
}
