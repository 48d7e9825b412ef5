package core

import "pbxcore/pkg/domain"

// DefaultRulesEngine returns an engine with the built-in invariant rules
// registered. Stores created through OpenPersistentStore use it unless the
// caller supplies a custom engine.
func DefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(LivenessTransitionRule())
	engine.Register(StepSequenceRule())
	return engine
}

// baseOf extracts the common Base fields from a change payload. Payloads are
// the concrete family structs recorded by the store.
func baseOf(payload any) (Base, bool) {
	switch v := payload.(type) {
	case DialListMaster:
		return v.Base, true
	case DialEntry:
		return v.Base, true
	case DialplanMaster:
		return v.Base, true
	case DialplanStep:
		return v.Base, true
	case User:
		return v.Base, true
	case Permission:
		return v.Base, true
	case Contact:
		return v.Base, true
	case Trunk:
		return v.Base, true
	default:
		return Base{}, false
	}
}
