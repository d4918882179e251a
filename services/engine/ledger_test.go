package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiquidationPriceFormula(t *testing.T) {
	// entry 50000 at 10x: long liq = 50000 * (1 - 0.1 + 0.005) = 45250
	price, clamped := liquidationPrice(SideLong, 50_000, 10)
	assert.False(t, clamped)
	assert.InDelta(t, 45_250, price, 1e-9)

	// short liq = 50000 * (1 + 0.1 - 0.005) = 54750
	price, _ = liquidationPrice(SideShort, 50_000, 10)
	assert.InDelta(t, 54_750, price, 1e-9)
}

func TestClampLeverage(t *testing.T) {
	for _, lev := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 0, 0.5, -3} {
		got, clamped := clampLeverage(lev)
		assert.Equal(t, 1.0, got)
		assert.True(t, clamped)
	}
	got, clamped := clampLeverage(25)
	assert.Equal(t, 25.0, got)
	assert.False(t, clamped)
}

func TestLedgerMarginRejectsNeverClamps(t *testing.T) {
	log := NewEventLog()
	l := NewLedger("BTCUSDT", 10_000, 1, log)

	// 100 * 99 = 9900 margin fits; another 100 * 2 = 200 does not.
	require.True(t, l.CanAccept(100, 99))
	l.ApplyFill(Fill{Price: 100, Quantity: 99, Side: Buy, Time: 60_000}, 0, 0, 0)
	assert.False(t, l.CanAccept(100, 2), "over-fill must be rejected outright")
	// A fill that still fits is fine.
	assert.True(t, l.CanAccept(100, 1))
}

func TestLedgerScaleInRecomputesLiquidation(t *testing.T) {
	log := NewEventLog()
	l := NewLedger("BTCUSDT", 1_000_000, 10, log)

	p, opened := l.ApplyFill(Fill{Price: 50_000, Quantity: 1, Side: Buy, Time: 60_000}, 0, 0, 0)
	require.True(t, opened)
	firstLiq := p.LiquidationPrice

	p, opened = l.ApplyFill(Fill{Price: 48_000, Quantity: 1, Side: Buy, Time: 120_000}, 0, 0, 0)
	require.False(t, opened)
	assert.InDelta(t, 49_000, p.AvgEntryPrice, 1e-9)
	assert.Equal(t, 2.0, p.Quantity)
	assert.Less(t, p.LiquidationPrice, firstLiq, "cheaper scale-in must lower the long liq price")

	want, _ := liquidationPrice(SideLong, 49_000, 10)
	assert.InDelta(t, want, p.LiquidationPrice, 1e-9)
}

func TestLedgerWouldLiquidate(t *testing.T) {
	log := NewEventLog()
	l := NewLedger("BTCUSDT", 100_000, 10, log)
	l.ApplyFill(Fill{Price: 50_000, Quantity: 1, Side: Buy, Time: 60_000}, 0, 0, 0)

	assert.False(t, l.WouldLiquidate(45_251))
	assert.True(t, l.WouldLiquidate(45_249))
	assert.True(t, l.WouldLiquidate(44_000))
}

func TestLedgerCloseRealizesAndReleasesMargin(t *testing.T) {
	log := NewEventLog()
	l := NewLedger("BTCUSDT", 10_000, 2, log)

	l.ApplyFill(Fill{Price: 100, Quantity: 10, Side: Buy, Time: 60_000, Fee: 0.4}, 30_000, 0, 0)
	p := l.Close(120_000, 110, ExitManualClose, 0.44, FillNeutral, nil)
	require.NotNil(t, p)
	assert.Nil(t, l.Position())
	assert.Equal(t, "100", l.RealizedPnl().String())

	// Margin released: a full-size fill fits again.
	assert.True(t, l.CanAccept(100, 10))

	events := log.ByType(EventPositionClosed)
	require.Len(t, events, 1)
	pl := events[0].Payload
	assert.Equal(t, "100", pl["realized_pnl"])
	assert.Equal(t, "long", pl["side"])
	assert.Equal(t, "MANUAL_CLOSE", pl["exit_reason"])
	assert.Equal(t, "60000", pl["entry_time"])
	assert.Equal(t, "30000", pl["signal_time"])
}

func TestLedgerShortPnl(t *testing.T) {
	log := NewEventLog()
	l := NewLedger("ETHUSDT", 10_000, 5, log)
	l.ApplyFill(Fill{Price: 2_000, Quantity: 1, Side: Sell, Time: 60_000}, 0, 0, 0)

	require.False(t, l.MarkToMarket(Candle{OpenTime: 120_000, Open: 1_950, High: 1_960, Low: 1_900, Close: 1_900}))
	assert.InDelta(t, 100, l.Position().UnrealizedPnl, 1e-9)
	assert.InDelta(t, 100, l.Position().MaxRunup, 1e-9)

	p := l.Close(180_000, 2_100, ExitStopLoss, 0, FillNeutral, nil)
	assert.Equal(t, "-100", l.RealizedPnl().String())
	assert.Equal(t, SideShort, p.Side)
}

func TestLedgerFundingDirection(t *testing.T) {
	log := NewEventLog()
	l := NewLedger("BTCUSDT", 10_000, 1, log)
	l.ApplyFill(Fill{Price: 100, Quantity: 10, Side: Buy, Time: 60_000}, 0, 0, 0)

	paid := l.AccrueFunding(0.0001, 100)
	assert.InDelta(t, 0.1, paid, 1e-9, "long pays positive funding")

	l.Close(120_000, 100, ExitManualClose, 0, FillNeutral, nil)
	l.ApplyFill(Fill{Price: 100, Quantity: 10, Side: Sell, Time: 180_000}, 0, 0, 0)
	paid = l.AccrueFunding(0.0001, 100)
	assert.InDelta(t, -0.1, paid, 1e-9, "short receives positive funding")
}

func TestFundingDue(t *testing.T) {
	eightH := int64(8 * 60 * 60 * 1000)
	assert.False(t, fundingDue(0, eightH))
	assert.False(t, fundingDue(eightH-120_000, eightH-60_000))
	assert.True(t, fundingDue(eightH-60_000, eightH))
	assert.False(t, fundingDue(eightH, eightH+60_000))
}
