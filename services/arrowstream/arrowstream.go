// Package arrowstream serializes candle batches and run results as Apache
// Arrow IPC streams for bulk export and re-import.
package arrowstream

import (
	"bytes"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"backsim/services/engine"
)

var candleSchema = arrow.NewSchema([]arrow.Field{
	{Name: "open_time_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
}, nil)

var tradeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "trade_id", Type: arrow.BinaryTypes.String},
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "side", Type: arrow.BinaryTypes.String},
	{Name: "signal_time", Type: arrow.PrimitiveTypes.Int64},
	{Name: "entry_time", Type: arrow.PrimitiveTypes.Int64},
	{Name: "entry_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit_time", Type: arrow.PrimitiveTypes.Int64},
	{Name: "exit_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit_reason", Type: arrow.BinaryTypes.String},
	{Name: "quantity", Type: arrow.PrimitiveTypes.Float64},
	{Name: "realized_pnl", Type: arrow.BinaryTypes.String},
	{Name: "fill_policy", Type: arrow.BinaryTypes.String},
}, nil)

// EncodeCandles serializes candles as one Arrow IPC stream.
func EncodeCandles(candles []engine.Candle) ([]byte, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles to encode")
	}
	pool := memory.NewGoAllocator()
	b := array.NewRecordBuilder(pool, candleSchema)
	defer b.Release()

	for _, c := range candles {
		b.Field(0).(*array.Int64Builder).Append(c.OpenTime)
		b.Field(1).(*array.Float64Builder).Append(c.Open)
		b.Field(2).(*array.Float64Builder).Append(c.High)
		b.Field(3).(*array.Float64Builder).Append(c.Low)
		b.Field(4).(*array.Float64Builder).Append(c.Close)
		b.Field(5).(*array.Float64Builder).Append(c.Volume)
	}
	return writeRecord(b.NewRecord(), candleSchema)
}

// DecodeCandles reads candles back from an Arrow IPC stream produced by
// EncodeCandles.
func DecodeCandles(data []byte) ([]engine.Candle, error) {
	r, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open arrow stream: %w", err)
	}
	defer r.Release()

	var out []engine.Candle
	for r.Next() {
		rec := r.Record()
		times := rec.Column(0).(*array.Int64)
		opens := rec.Column(1).(*array.Float64)
		highs := rec.Column(2).(*array.Float64)
		lows := rec.Column(3).(*array.Float64)
		closes := rec.Column(4).(*array.Float64)
		volumes := rec.Column(5).(*array.Float64)
		for i := 0; i < int(rec.NumRows()); i++ {
			out = append(out, engine.Candle{
				OpenTime: times.Value(i),
				Open:     opens.Value(i),
				High:     highs.Value(i),
				Low:      lows.Value(i),
				Close:    closes.Value(i),
				Volume:   volumes.Value(i),
			})
		}
	}
	if err := r.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read arrow stream: %w", err)
	}
	return out, nil
}

// EncodeTrades serializes a run's finalized trades as an Arrow IPC stream.
// Realized PnL travels as its exact decimal string.
func EncodeTrades(trades []engine.Trade) ([]byte, error) {
	if len(trades) == 0 {
		return nil, fmt.Errorf("no trades to encode")
	}
	pool := memory.NewGoAllocator()
	b := array.NewRecordBuilder(pool, tradeSchema)
	defer b.Release()

	for _, t := range trades {
		b.Field(0).(*array.StringBuilder).Append(t.TradeID)
		b.Field(1).(*array.StringBuilder).Append(t.Symbol)
		b.Field(2).(*array.StringBuilder).Append(t.Side)
		b.Field(3).(*array.Int64Builder).Append(t.SignalTime)
		b.Field(4).(*array.Int64Builder).Append(t.EntryTime)
		b.Field(5).(*array.Float64Builder).Append(t.EntryPrice)
		b.Field(6).(*array.Int64Builder).Append(t.ExitTime)
		b.Field(7).(*array.Float64Builder).Append(t.ExitPrice)
		b.Field(8).(*array.StringBuilder).Append(string(t.ExitReason))
		b.Field(9).(*array.Float64Builder).Append(t.Quantity)
		b.Field(10).(*array.StringBuilder).Append(t.RealizedPnl.String())
		b.Field(11).(*array.StringBuilder).Append(t.FillPolicyUsed)
	}
	return writeRecord(b.NewRecord(), tradeSchema)
}

func writeRecord(rec arrow.Record, schema *arrow.Schema) ([]byte, error) {
	defer rec.Release()
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	if err := w.Write(rec); err != nil {
		return nil, fmt.Errorf("write arrow record: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close arrow writer: %w", err)
	}
	return buf.Bytes(), nil
}
