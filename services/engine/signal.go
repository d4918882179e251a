package engine

import (
	"fmt"
	"sort"
)

// SignalKind is the intent a strategy proposes at a signal-timeframe close.
type SignalKind int

const (
	SignalNone SignalKind = iota
	SignalOpenLong
	SignalOpenShort
	SignalClose
)

func (k SignalKind) String() string {
	switch k {
	case SignalNone:
		return "none"
	case SignalOpenLong:
		return "open_long"
	case SignalOpenShort:
		return "open_short"
	case SignalClose:
		return "close"
	}
	return fmt.Sprintf("invalid(%d)", int(k))
}

func (k SignalKind) valid() bool {
	return k >= SignalNone && k <= SignalClose
}

// GridLeg is one scale-in leg of a grid/DCA entry.
type GridLeg struct {
	Price    float64
	Quantity float64
}

// Signal is a strategy's proposed intent. Produced at most once per closed
// signal-timeframe candle.
type Signal struct {
	Kind        SignalKind
	GeneratedAt int64 // close time of the candle that produced it, ms
	Quantity    float64
	TakeProfit  float64 // 0 = no take-profit
	StopLoss    float64 // 0 = no stop-loss
	GridLegs    []GridLeg
	Metadata    map[string]string
}

// Strategy proposes intent once per closed signal-timeframe candle. It may
// inspect the position the ledger currently holds but never mutates ledger
// state directly.
type Strategy interface {
	Name() string
	Evaluate(c Candle, history []Candle, pos *Position) Signal
}

// TriggerStrategy adds the finer-resolution entry confirmation used by the
// setup-trigger model. Trigger is evaluated against each base candle while
// a setup is pending.
type TriggerStrategy interface {
	Strategy
	Trigger(s *Setup, c Candle) bool
}

// StrategyFactory builds a strategy instance from string parameters.
type StrategyFactory func(params map[string]string) (Strategy, error)

// Registry maps strategy names to factories. It is constructed at
// application startup and passed into the engine explicitly; there is no
// ambient process-wide registry.
type Registry struct {
	factories map[string]StrategyFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]StrategyFactory)}
}

func (r *Registry) Register(name string, f StrategyFactory) error {
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("strategy %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

func (r *Registry) Create(name string, params map[string]string) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	return f(params)
}

// Names returns registered strategy names in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
