package gravsim

import (
	"fmt"

	"github.com/gogpu/gravsim/gpucore"
)

// Stall describes the orchestrator waiting on a pipeline.
type Stall struct {
	// Current is the stage being re-dispatched while waiting.
	Current Stage

	// Blocked is the stage whose pipeline is not Ready.
	Blocked Stage

	// Ticks is the number of consecutive updates without advancing.
	Ticks uint64

	// Failed is true when the blocking pipeline failed to compile. The
	// stall is then permanent.
	Failed bool

	// Err is the compile error when Failed.
	Err error
}

// Active reports whether the orchestrator is currently waiting.
func (s Stall) Active() bool { return s.Ticks > 0 }

// Orchestrator is the stage state machine.
//
// Each tick the host calls Update, which polls the pipeline of the next
// stage and advances only when it is Ready, and then Run, which emits the
// dispatches of the current stage. The state never regresses except for
// the wrap from the last physics stage to the first.
//
// Orchestrator is driven from a single goroutine.
type Orchestrator struct {
	registry *PipelineRegistry
	geom     Geometry
	table    transitionTable

	state   Stage
	waiting uint64
	ticks   uint64
}

// NewOrchestrator creates an orchestrator in the Loading state for the
// given physics cycle. A nil cycle selects DefaultCycle.
func NewOrchestrator(registry *PipelineRegistry, geom Geometry, cycle []Stage) (*Orchestrator, error) {
	if cycle == nil {
		cycle = DefaultCycle()
	}
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	table, err := newTransitionTable(cycle)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		registry: registry,
		geom:     geom,
		table:    table,
		state:    StageLoading,
	}, nil
}

// Stage returns the current state.
func (o *Orchestrator) Stage() Stage { return o.state }

// Ticks returns the number of Update calls so far.
func (o *Orchestrator) Ticks() uint64 { return o.ticks }

// Next returns the stage Update would advance to.
func (o *Orchestrator) Next() Stage {
	next, _ := o.table.successor(o.state)
	return next
}

// States returns every state in visiting order, Loading first.
func (o *Orchestrator) States() []Stage { return o.table.states() }

// PipelineStages returns every stage that needs a compiled pipeline.
func (o *Orchestrator) PipelineStages() []Stage { return o.table.pipelineStages() }

// Update polls the next stage and advances into it if its pipelines are
// Ready. It reports whether the state changed.
func (o *Orchestrator) Update() bool {
	o.ticks++
	next, ok := o.table.successor(o.state)
	if !ok {
		return false
	}
	if o.stageStatus(next) != PipelineStatusReady {
		o.waiting++
		return false
	}

	prev := o.state
	o.state = next
	o.waiting = 0
	if prev.IsPhysics() && next.IsPhysics() {
		Logger().Debug("gravsim: stage advanced", "from", prev, "to", next)
	} else {
		Logger().Info("gravsim: stage advanced", "from", prev, "to", next)
	}
	return true
}

// stageStatus is the readiness of everything a stage dispatches. Physics
// stages also need the pre-update pipeline.
func (o *Orchestrator) stageStatus(s Stage) PipelineStatus {
	main := o.registry.StageStatus(s)
	if !s.IsPhysics() {
		return main
	}
	pre := o.registry.StageStatus(StagePreUpdate)
	switch {
	case main == PipelineStatusFailed || pre == PipelineStatusFailed:
		return PipelineStatusFailed
	case main == PipelineStatusReady && pre == PipelineStatusReady:
		return PipelineStatusReady
	default:
		return PipelineStatusPending
	}
}

// Stalled describes the current wait, if any.
func (o *Orchestrator) Stalled() Stall {
	next, _ := o.table.successor(o.state)
	s := Stall{Current: o.state, Blocked: next, Ticks: o.waiting}
	if o.waiting == 0 {
		return s
	}
	if o.stageStatus(next) == PipelineStatusFailed {
		s.Failed = true
		s.Err = o.stageErr(next)
	}
	return s
}

func (o *Orchestrator) stageErr(s Stage) error {
	stages := []Stage{s}
	if s.IsPhysics() {
		stages = append(stages, StagePreUpdate)
	}
	for _, st := range stages {
		if h, ok := o.registry.Handle(st); ok {
			if err := o.registry.Err(h); err != nil {
				return err
			}
		}
	}
	return nil
}

// Run returns the dispatches for the current state, all against set:
// nothing for Loading, the init pass for Init, and the pre-update pass
// followed by the stage pass for physics stages.
//
// A set built before the last swap of buffers is rejected with
// ErrStaleBinding.
func (o *Orchestrator) Run(set *BindingSet, buffers *SimulationBuffers) ([]gpucore.Dispatch, error) {
	if o.state == StageLoading {
		return nil, nil
	}
	if set == nil {
		return nil, fmt.Errorf("%w: no binding set", ErrStaleBinding)
	}
	if buffers != nil && set.Stale(buffers) {
		return nil, fmt.Errorf("%w: built for generation %d, buffers at %d",
			ErrStaleBinding, set.Generation(), buffers.Generation())
	}

	x, y, z := o.geom.DispatchCounts()
	var passes []Stage
	if o.state.IsPhysics() {
		passes = []Stage{StagePreUpdate, o.state}
	} else {
		passes = []Stage{o.state}
	}

	dispatches := make([]gpucore.Dispatch, 0, len(passes))
	for _, s := range passes {
		h, ok := o.registry.Handle(s)
		if !ok {
			return nil, fmt.Errorf("%w: %v has no registered pipeline", ErrUnknownStage, s)
		}
		id, _ := o.registry.Pipeline(h)
		dispatches = append(dispatches, gpucore.Dispatch{
			Label:     s.EntryPoint(),
			Pipeline:  id,
			BindGroup: set.ID(),
			X:         x,
			Y:         y,
			Z:         z,
		})
	}
	return dispatches, nil
}
