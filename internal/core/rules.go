package core

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
// The rules re-check, against the recorded changes, what the Service already
// enforces, so a store mutation that bypasses the Service cannot commit an
// illegal status or a status change without its history row.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(LifecycleTransitionRule())
	engine.Register(HistoryContinuityRule())
	return engine
}
