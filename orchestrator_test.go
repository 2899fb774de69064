package gravsim

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/gogpu/gravsim/gpucore"
)

// rig is an orchestrator wired to a fake device.
type rig struct {
	dev      *fakeDevice
	buffers  *SimulationBuffers
	layout   *BindingLayout
	registry *PipelineRegistry
	orch     *Orchestrator
}

// newRig registers every stage pipeline. Entry points listed in pending
// start Pending on the fake device.
func newRig(t *testing.T, cycle []Stage, pending ...string) *rig {
	t.Helper()
	dev := newFakeDevice()
	dev.holdPending(pending...)

	geom := Geometry{Width: 16, Height: 16, TileX: 8, TileY: 8}
	buffers := newTestBuffers(t, dev, geom.Width, geom.Height)
	layout, err := NewBindingLayout(dev, geom)
	if err != nil {
		t.Fatalf("NewBindingLayout() error = %v", err)
	}
	t.Cleanup(layout.Release)

	registry := NewPipelineRegistry(dev)
	t.Cleanup(registry.Release)

	orch, err := NewOrchestrator(registry, geom, cycle)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	shader := gpucore.ShaderSource{Label: "test", WGSL: "// test"}
	for _, s := range orch.PipelineStages() {
		if _, err := registry.Register(s, layout, shader, s.EntryPoint()); err != nil {
			t.Fatalf("Register(%v) error = %v", s, err)
		}
	}
	return &rig{dev: dev, buffers: buffers, layout: layout, registry: registry, orch: orch}
}

func (r *rig) bind(t *testing.T) *BindingSet {
	t.Helper()
	set, err := BuildBindingSet(r.dev, r.layout, r.buffers)
	if err != nil {
		t.Fatalf("BuildBindingSet() error = %v", err)
	}
	t.Cleanup(set.Release)
	return set
}

func TestOrchestratorStartsLoading(t *testing.T) {
	r := newRig(t, nil, "init")
	if got := r.orch.Stage(); got != StageLoading {
		t.Errorf("initial Stage() = %v, want Loading", got)
	}
	d, err := r.orch.Run(r.bind(t), r.buffers)
	if err != nil || len(d) != 0 {
		t.Errorf("Run() in Loading = %v, %v; want no dispatches", d, err)
	}
}

func TestOrchestratorInitReadinessScenario(t *testing.T) {
	const k = 5
	r := newRig(t, nil, "init")

	for tick := 0; tick <= k; tick++ {
		r.orch.Update()
		if got := r.orch.Stage(); got != StageLoading {
			t.Fatalf("tick %d: Stage() = %v, want Loading", tick, got)
		}
		if tick == k {
			r.dev.complete("init", gpucore.PipelineStatusReady)
		}
	}

	r.orch.Update() // tick k+1
	if got := r.orch.Stage(); got != StageInit {
		t.Fatalf("tick k+1: Stage() = %v, want Init", got)
	}
	r.orch.Update() // tick k+2
	if got := r.orch.Stage(); got != StageGravity {
		t.Fatalf("tick k+2: Stage() = %v, want Gravity", got)
	}
}

func TestOrchestratorVisitsStagesThenCycles(t *testing.T) {
	r := newRig(t, nil)

	want := []Stage{
		StageInit, StageGravity, StageImpulse, StagePosition,
		StageGravity, StageImpulse, StagePosition,
		StageGravity, StageImpulse, StagePosition,
	}
	for i, w := range want {
		if !r.orch.Update() {
			t.Fatalf("update %d did not advance", i)
		}
		if got := r.orch.Stage(); got != w {
			t.Fatalf("update %d: Stage() = %v, want %v", i, got, w)
		}
	}
}

func TestOrchestratorSingleStageCycle(t *testing.T) {
	r := newRig(t, []Stage{StageGravity})
	r.orch.Update()
	r.orch.Update()
	for i := 0; i < 3; i++ {
		if !r.orch.Update() {
			t.Fatalf("update %d in steady state did not advance", i)
		}
		if got := r.orch.Stage(); got != StageGravity {
			t.Fatalf("Stage() = %v, want Gravity", got)
		}
	}
}

func TestOrchestratorNeverAdvancesOntoPending(t *testing.T) {
	entryPoints := []string{"init", "pre_update", "update_gravity", "update_impulse", "update_position"}

	for seed := int64(1); seed <= 50; seed++ {
		r := newRig(t, nil, entryPoints...)
		rng := rand.New(rand.NewSource(seed))
		pending := append([]string(nil), entryPoints...)

		for tick := 0; tick < 60; tick++ {
			if len(pending) > 0 && rng.Intn(3) == 0 {
				i := rng.Intn(len(pending))
				r.dev.complete(pending[i], gpucore.PipelineStatusReady)
				pending = append(pending[:i], pending[i+1:]...)
			}

			from := r.orch.Stage()
			r.orch.Update()
			to := r.orch.Stage()
			if to == StageLoading {
				continue
			}
			if st := r.registry.StageStatus(to); st != PipelineStatusReady {
				t.Fatalf("seed %d tick %d: advanced %v -> %v while %v is %v", seed, tick, from, to, to, st)
			}
			if to.IsPhysics() && r.registry.StageStatus(StagePreUpdate) != PipelineStatusReady {
				t.Fatalf("seed %d tick %d: entered %v before pre-update was ready", seed, tick, to)
			}
		}
	}
}

func TestOrchestratorFailedStageBlocksForever(t *testing.T) {
	r := newRig(t, nil, "update_impulse")
	r.orch.Update()
	r.orch.Update()
	if got := r.orch.Stage(); got != StageGravity {
		t.Fatalf("Stage() = %v, want Gravity", got)
	}
	r.dev.complete("update_impulse", gpucore.PipelineStatusFailed)

	for i := 0; i < 200; i++ {
		if r.orch.Update() {
			t.Fatalf("advanced past a failed stage on tick %d", i)
		}
	}
	if got := r.orch.Stage(); got != StageGravity {
		t.Errorf("Stage() = %v, want Gravity", got)
	}

	stall := r.orch.Stalled()
	if !stall.Active() || !stall.Failed {
		t.Fatalf("Stalled() = %+v, want active permanent stall", stall)
	}
	if stall.Blocked != StageImpulse || stall.Ticks != 200 {
		t.Errorf("Stalled() = %+v, want blocked on Impulse for 200 ticks", stall)
	}
	if !errors.Is(stall.Err, ErrCompilationFailed) {
		t.Errorf("Stalled().Err = %v, want ErrCompilationFailed", stall.Err)
	}

	// The reached stage keeps dispatching.
	d, err := r.orch.Run(r.bind(t), r.buffers)
	if err != nil || len(d) != 2 {
		t.Errorf("Run() while stalled = %d dispatches, %v; want 2, nil", len(d), err)
	}
}

func TestOrchestratorPreUpdateGatesPhysics(t *testing.T) {
	r := newRig(t, nil, "pre_update")
	r.orch.Update()
	for i := 0; i < 10; i++ {
		r.orch.Update()
	}
	if got := r.orch.Stage(); got != StageInit {
		t.Fatalf("Stage() = %v, want Init while pre-update is pending", got)
	}
	if s := r.orch.Stalled(); s.Failed || s.Blocked != StageGravity {
		t.Errorf("Stalled() = %+v, want pending wait on Gravity", s)
	}
	r.dev.complete("pre_update", gpucore.PipelineStatusReady)
	r.orch.Update()
	if got := r.orch.Stage(); got != StageGravity {
		t.Errorf("Stage() = %v, want Gravity", got)
	}
}

func TestOrchestratorRunDispatches(t *testing.T) {
	r := newRig(t, nil)
	set := r.bind(t)

	r.orch.Update()
	d, err := r.orch.Run(set, r.buffers)
	if err != nil {
		t.Fatalf("Run() in Init error = %v", err)
	}
	if len(d) != 1 || r.dev.entryPointOf(d[0].Pipeline) != "init" {
		t.Fatalf("Run() in Init = %+v, want one init dispatch", d)
	}
	if d[0].X != 2 || d[0].Y != 2 || d[0].Z != 1 {
		t.Errorf("init dispatch counts = (%d, %d, %d), want (2, 2, 1)", d[0].X, d[0].Y, d[0].Z)
	}

	r.orch.Update()
	d, err = r.orch.Run(set, r.buffers)
	if err != nil {
		t.Fatalf("Run() in Gravity error = %v", err)
	}
	if len(d) != 2 {
		t.Fatalf("Run() in Gravity returned %d dispatches, want 2", len(d))
	}
	if r.dev.entryPointOf(d[0].Pipeline) != "pre_update" || r.dev.entryPointOf(d[1].Pipeline) != "update_gravity" {
		t.Errorf("dispatch order = %q, %q; want pre_update, update_gravity",
			r.dev.entryPointOf(d[0].Pipeline), r.dev.entryPointOf(d[1].Pipeline))
	}
	for i, disp := range d {
		if disp.BindGroup != set.ID() {
			t.Errorf("dispatch %d bind group = %d, want %d", i, disp.BindGroup, set.ID())
		}
	}
}

func TestOrchestratorRunRejectsStaleBinding(t *testing.T) {
	r := newRig(t, nil)
	set := r.bind(t)
	r.orch.Update()
	r.buffers.Swap()

	if _, err := r.orch.Run(set, r.buffers); !errors.Is(err, ErrStaleBinding) {
		t.Errorf("Run() with stale set error = %v, want ErrStaleBinding", err)
	}
}

func TestNewOrchestratorRejectsBadCycle(t *testing.T) {
	dev := newFakeDevice()
	_, err := NewOrchestrator(NewPipelineRegistry(dev), DefaultGeometry(), []Stage{StageInit})
	if !errors.Is(err, ErrUnknownStage) {
		t.Errorf("NewOrchestrator(Init cycle) error = %v, want ErrUnknownStage", err)
	}
}
