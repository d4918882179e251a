package arrowstream

import (
	"bytes"
	"testing"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backsim/services/engine"
)

func TestCandleStreamRoundTrip(t *testing.T) {
	candles := []engine.Candle{
		{OpenTime: 0, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 3},
		{OpenTime: 60_000, Open: 100.5, High: 102, Low: 100, Close: 101.75, Volume: 7.25},
	}
	buf, err := EncodeCandles(candles)
	require.NoError(t, err)

	got, err := DecodeCandles(buf)
	require.NoError(t, err)
	assert.Equal(t, candles, got)
}

func TestEncodeCandlesRejectsEmpty(t *testing.T) {
	_, err := EncodeCandles(nil)
	assert.Error(t, err)
}

func TestEncodeTradesCarriesExactPnl(t *testing.T) {
	pnl := decimal.RequireFromString("123.456789012345678901")
	trades := []engine.Trade{{
		TradeID:        "t1",
		Symbol:         "BTCUSDT",
		Side:           "long",
		SignalTime:     3_600_000,
		EntryTime:      3_600_000,
		EntryPrice:     50_000,
		ExitTime:       7_200_000,
		ExitPrice:      51_000,
		ExitReason:     engine.ExitTakeProfit,
		Quantity:       0.5,
		RealizedPnl:    pnl,
		FillPolicyUsed: "neutral",
	}}
	buf, err := EncodeTrades(trades)
	require.NoError(t, err)

	r, err := ipc.NewReader(bytes.NewReader(buf))
	require.NoError(t, err)
	defer r.Release()
	require.True(t, r.Next())
	rec := r.Record()

	assert.Equal(t, int64(1), rec.NumRows())
	assert.Equal(t, "t1", rec.Column(0).(*array.String).Value(0))
	assert.Equal(t, "TAKE_PROFIT", rec.Column(8).(*array.String).Value(0))
	// PnL travels as its decimal string, with no float truncation.
	assert.Equal(t, pnl.String(), rec.Column(10).(*array.String).Value(0))
}

func TestDecodeCandlesRejectsGarbage(t *testing.T) {
	_, err := DecodeCandles([]byte("not an arrow stream"))
	assert.Error(t, err)
}
