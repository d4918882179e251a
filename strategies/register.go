// Package strategies holds the built-in strategy implementations. They are
// wired into an explicit engine registry at application startup; nothing in
// this package registers itself globally.
package strategies

import "backsim/services/engine"

// RegisterBuiltins adds every built-in strategy to the registry.
func RegisterBuiltins(reg *engine.Registry) error {
	for name, factory := range map[string]engine.StrategyFactory{
		"rsi_reversal":    NewRSIReversal,
		"level_breakout":  NewLevelBreakout,
		"grid_accumulate": NewGridAccumulate,
	} {
		if err := reg.Register(name, factory); err != nil {
			return err
		}
	}
	return nil
}
