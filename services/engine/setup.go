package engine

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SetupState int

const (
	SetupPendingTrigger SetupState = iota
	SetupTriggered
	SetupExpired
)

func (s SetupState) String() string {
	switch s {
	case SetupPendingTrigger:
		return "PENDING_TRIGGER"
	case SetupTriggered:
		return "TRIGGERED"
	case SetupExpired:
		return "EXPIRED"
	}
	return "unknown"
}

// Setup is a confirmed higher-timeframe signal waiting for a
// finer-resolution trigger within its validity window.
type Setup struct {
	ID        string
	Signal    Signal
	CreatedAt int64
	Deadline  int64
	State     SetupState
}

// SetupTracker is the IDLE -> PENDING_TRIGGER -> {TRIGGERED, EXPIRED} state
// machine. At most one setup is pending at a time; a signal arriving while
// one is pending is dropped.
type SetupTracker struct {
	windowMs int64
	pending  *Setup
	log      *EventLog
	logger   *zap.Logger
}

func NewSetupTracker(window time.Duration, log *EventLog, logger *zap.Logger) *SetupTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SetupTracker{
		windowMs: int64(window / time.Millisecond),
		log:      log,
		logger:   logger,
	}
}

// Pending returns the setup currently awaiting its trigger, or nil.
func (t *SetupTracker) Pending() *Setup { return t.pending }

// OnSignal converts a non-none signal into a pending setup. Returns nil if
// the signal was dropped because a setup is already pending.
func (t *SetupTracker) OnSignal(sig Signal) *Setup {
	if sig.Kind == SignalNone {
		return nil
	}
	if t.pending != nil {
		t.logger.Debug("signal dropped while setup pending",
			zap.String("setup_id", t.pending.ID),
			zap.String("kind", sig.Kind.String()),
			zap.Int64("signal_time", sig.GeneratedAt),
		)
		return nil
	}
	s := &Setup{
		ID:        uuid.New().String(),
		Signal:    sig,
		CreatedAt: sig.GeneratedAt,
		Deadline:  sig.GeneratedAt + t.windowMs,
		State:     SetupPendingTrigger,
	}
	t.pending = s
	t.log.Append(Event{
		Timestamp: sig.GeneratedAt,
		Type:      EventSetupConfirmed,
		Payload: map[string]string{
			"setup_id": s.ID,
			"kind":     sig.Kind.String(),
			"deadline": istr(s.Deadline),
		},
	})
	return s
}

// OnCandle advances the pending setup against one base candle: it expires
// the setup past its deadline, or returns it as triggered when the trigger
// predicate is satisfied. Terminal outcomes return the tracker to idle.
func (t *SetupTracker) OnCandle(c Candle, trigger func(*Setup, Candle) bool) *Setup {
	if t.pending == nil {
		return nil
	}
	if c.OpenTime > t.pending.Deadline {
		s := t.pending
		s.State = SetupExpired
		t.pending = nil
		t.log.Append(Event{
			Timestamp: c.OpenTime,
			Type:      EventSetupExpired,
			Payload: map[string]string{
				"setup_id": s.ID,
				"deadline": istr(s.Deadline),
			},
		})
		return nil
	}
	if trigger != nil && trigger(t.pending, c) {
		s := t.pending
		s.State = SetupTriggered
		t.pending = nil
		t.log.Append(Event{
			Timestamp: c.OpenTime,
			Type:      EventTriggerHit,
			Payload: map[string]string{
				"setup_id": s.ID,
				"kind":     s.Signal.Kind.String(),
			},
		})
		return s
	}
	return nil
}
