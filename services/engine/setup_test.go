package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLifecycleTriggered(t *testing.T) {
	log := NewEventLog()
	tr := NewSetupTracker(time.Hour, log, nil)

	s := tr.OnSignal(Signal{Kind: SignalOpenLong, GeneratedAt: 3_600_000})
	require.NotNil(t, s)
	assert.Equal(t, SetupPendingTrigger, s.State)
	assert.Equal(t, int64(7_200_000), s.Deadline)
	require.Len(t, log.ByType(EventSetupConfirmed), 1)

	// Trigger fires on the second base candle inside the window.
	c := Candle{OpenTime: 3_720_000, Open: 100, High: 101, Low: 99, Close: 100}
	trigger := func(_ *Setup, _ Candle) bool { return true }

	got := tr.OnCandle(c, trigger)
	require.NotNil(t, got)
	assert.Equal(t, SetupTriggered, got.State)
	assert.Nil(t, tr.Pending())
	require.Len(t, log.ByType(EventTriggerHit), 1)
}

func TestSetupExpiresWithoutTrigger(t *testing.T) {
	log := NewEventLog()
	tr := NewSetupTracker(time.Hour, log, nil)
	tr.OnSignal(Signal{Kind: SignalOpenLong, GeneratedAt: 3_600_000})

	never := func(_ *Setup, _ Candle) bool { return false }

	// Candles up to and including the deadline keep the setup alive.
	alive := Candle{OpenTime: 7_200_000, Open: 100, High: 101, Low: 99, Close: 100}
	assert.Nil(t, tr.OnCandle(alive, never))
	require.NotNil(t, tr.Pending())

	// The first candle past the deadline expires it; no order results.
	late := Candle{OpenTime: 7_260_000, Open: 100, High: 101, Low: 99, Close: 100}
	assert.Nil(t, tr.OnCandle(late, never))
	assert.Nil(t, tr.Pending())
	require.Len(t, log.ByType(EventSetupExpired), 1)
	assert.Empty(t, log.ByType(EventTriggerHit))
}

func TestSetupDropsSignalWhilePending(t *testing.T) {
	log := NewEventLog()
	tr := NewSetupTracker(time.Hour, log, nil)

	first := tr.OnSignal(Signal{Kind: SignalOpenLong, GeneratedAt: 3_600_000})
	require.NotNil(t, first)

	second := tr.OnSignal(Signal{Kind: SignalOpenShort, GeneratedAt: 7_200_000})
	assert.Nil(t, second, "signal while pending must be dropped")
	assert.Equal(t, first.ID, tr.Pending().ID)
	assert.Len(t, log.ByType(EventSetupConfirmed), 1)
}

func TestSetupIgnoresNoneSignal(t *testing.T) {
	tr := NewSetupTracker(time.Hour, NewEventLog(), nil)
	assert.Nil(t, tr.OnSignal(Signal{Kind: SignalNone}))
	assert.Nil(t, tr.Pending())
}
