package engine

import (
	"strconv"
	"strings"
)

// EventType identifies an entry in the audit log. The taxonomy is
// append-only; types are never renamed or reused.
type EventType string

const (
	EventHTFCandleClosed EventType = "HTF_CANDLE_CLOSED"
	EventSetupConfirmed  EventType = "SETUP_CONFIRMED"
	EventSetupExpired    EventType = "SETUP_EXPIRED"
	EventOrderCreated    EventType = "ORDER_CREATED"
	EventOrderCanceled   EventType = "ORDER_CANCELED"
	EventTriggerHit      EventType = "TRIGGER_HIT"
	EventOrderFilled     EventType = "ORDER_FILLED"
	EventTPHit           EventType = "TP_HIT"
	EventSLHit           EventType = "SL_HIT"
	EventLiquidation     EventType = "LIQUIDATION"
	EventPositionOpened  EventType = "POSITION_OPENED"
	EventPositionClosed  EventType = "POSITION_CLOSED"
)

// Event is one record in the ordered audit trail of a run. Events carrying
// a trade ID form the full replayable history of that trade.
type Event struct {
	Timestamp int64             `json:"timestamp"`
	Type      EventType         `json:"type"`
	TradeID   string            `json:"trade_id,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
}

// EventLog is the append-only, strictly time-ordered audit trail for a
// single run. Entries are never mutated after Append.
type EventLog struct {
	events []Event
}

func NewEventLog() *EventLog { return &EventLog{} }

func (l *EventLog) Append(e Event) { l.events = append(l.events, e) }

func (l *EventLog) Len() int { return len(l.events) }

// Events returns the full ordered log.
func (l *EventLog) Events() []Event { return l.events }

// ByTradeID returns the ordered event sequence for one trade.
func (l *EventLog) ByTradeID(id string) []Event {
	var out []Event
	for _, e := range l.events {
		if e.TradeID == id {
			out = append(out, e)
		}
	}
	return out
}

// ByType returns all events of one type, in log order.
func (l *EventLog) ByType(t EventType) []Event {
	var out []Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// fstr formats a float for event payloads. The 'g'/-1 form round-trips
// exactly, which replay correctness depends on.
func fstr(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func istr(v int64) string {
	return strconv.FormatInt(v, 10)
}

func joinConds(conds []string) string {
	return strings.Join(conds, ",")
}
