package model

// ResolutionState is a step of the resolver state machine.
type ResolutionState string

// Resolution states. RESOLVED, UNRESOLVED and SKIPPED are terminal.
const (
	StateNotStarted     ResolutionState = "NOT_STARTED"
	StateRuleChecked    ResolutionState = "RULE_CHECKED"
	StateKeywordChecked ResolutionState = "KEYWORD_CHECKED"
	StateCacheChecked   ResolutionState = "CACHE_CHECKED"
	StateExternalCalled ResolutionState = "EXTERNAL_CALLED"
	StateResolved       ResolutionState = "RESOLVED"
	StateUnresolved     ResolutionState = "UNRESOLVED"
	StateSkipped        ResolutionState = "SKIPPED"
)

// Terminal reports whether no further transition is possible.
func (s ResolutionState) Terminal() bool {
	return s == StateResolved || s == StateUnresolved || s == StateSkipped
}

// CheckedState maps a tier to the state entered after consulting it.
func CheckedState(source VerdictSource) ResolutionState {
	switch source {
	case SourceRule:
		return StateRuleChecked
	case SourceKeyword:
		return StateKeywordChecked
	case SourceCache:
		return StateCacheChecked
	case SourceExternal:
		return StateExternalCalled
	default:
		return StateNotStarted
	}
}
