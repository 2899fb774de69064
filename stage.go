package gravsim

import "fmt"

// Stage identifies one phase of the simulation compute cycle.
//
// Stages form a closed set. Loading has no pipeline; PreUpdate owns a
// pipeline but is never an orchestrator state, it runs as the first
// dispatch of every physics stage.
type Stage int

const (
	// StageLoading waits for the init pipeline. Nothing is dispatched.
	StageLoading Stage = iota

	// StageInit fills the world from the uploaded state and draws it.
	StageInit

	// StagePreUpdate clears per-cycle accumulators before a physics pass.
	StagePreUpdate

	// StageGravity accumulates the gravity field.
	StageGravity

	// StageImpulse converts gravity into impulse.
	StageImpulse

	// StagePosition moves particles by their impulse.
	StagePosition

	// StageCount is the number of stages.
	StageCount
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageLoading:
		return "Loading"
	case StageInit:
		return "Init"
	case StagePreUpdate:
		return "PreUpdate"
	case StageGravity:
		return "Gravity"
	case StageImpulse:
		return "Impulse"
	case StagePosition:
		return "Position"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// EntryPoint returns the default shader entry point for the stage, or ""
// for Loading.
func (s Stage) EntryPoint() string {
	switch s {
	case StageInit:
		return "init"
	case StagePreUpdate:
		return "pre_update"
	case StageGravity:
		return "update_gravity"
	case StageImpulse:
		return "update_impulse"
	case StagePosition:
		return "update_position"
	default:
		return ""
	}
}

// IsPhysics reports whether the stage can be part of the steady-state cycle.
func (s Stage) IsPhysics() bool {
	return s == StageGravity || s == StageImpulse || s == StagePosition
}

// valid reports whether s is inside the closed stage set.
func (s Stage) valid() bool {
	return s >= StageLoading && s < StageCount
}

// DefaultCycle is the gravity, impulse, position physics cycle.
func DefaultCycle() []Stage {
	return []Stage{StageGravity, StageImpulse, StagePosition}
}

// transitionTable maps each orchestrator state to its successor.
//
// Loading goes to Init, Init goes to the first cycle stage, and the cycle
// wraps from its last stage back to its first. Stages outside the table
// have no successor.
type transitionTable struct {
	next  [StageCount]Stage
	has   [StageCount]bool
	cycle []Stage
}

// newTransitionTable builds the table for a physics cycle.
func newTransitionTable(cycle []Stage) (transitionTable, error) {
	var t transitionTable
	if len(cycle) == 0 {
		return t, fmt.Errorf("%w: empty physics cycle", ErrUnknownStage)
	}
	var seen [StageCount]bool
	for _, s := range cycle {
		if !s.IsPhysics() {
			return t, fmt.Errorf("%w: %v cannot be part of the physics cycle", ErrUnknownStage, s)
		}
		if seen[s] {
			return t, fmt.Errorf("%w: %v repeated in physics cycle", ErrUnknownStage, s)
		}
		seen[s] = true
	}

	t.cycle = append([]Stage(nil), cycle...)
	t.set(StageLoading, StageInit)
	t.set(StageInit, cycle[0])
	for i, s := range cycle {
		t.set(s, cycle[(i+1)%len(cycle)])
	}
	return t, nil
}

func (t *transitionTable) set(from, to Stage) {
	t.next[from] = to
	t.has[from] = true
}

// successor returns the state after s.
func (t *transitionTable) successor(s Stage) (Stage, bool) {
	if !s.valid() || !t.has[s] {
		return s, false
	}
	return t.next[s], true
}

// states returns every orchestrator state in visiting order.
func (t *transitionTable) states() []Stage {
	return append([]Stage{StageLoading, StageInit}, t.cycle...)
}

// pipelineStages returns every stage that needs a compiled pipeline.
func (t *transitionTable) pipelineStages() []Stage {
	return append([]Stage{StageInit, StagePreUpdate}, t.cycle...)
}
