package gravsim

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/gravsim/gpucore"
)

// FrameReport summarizes one tick.
type FrameReport struct {
	// Frame is the 1-based tick number.
	Frame uint64

	// Stage is the state after Update.
	Stage Stage

	// Advanced is true when Update changed the state this tick.
	Advanced bool

	// Dispatches is the number of compute dispatches submitted.
	Dispatches int

	// Swapped is true when the buffers were swapped after submission.
	Swapped bool

	// Generation is the buffer generation after the tick.
	Generation uint64

	// Stall describes the current pipeline wait, if any.
	Stall Stall
}

// FrameObserver receives a report after every tick.
type FrameObserver interface {
	ObserveFrame(FrameReport)
}

// FrameObserverFunc adapts a function to FrameObserver.
type FrameObserverFunc func(FrameReport)

// ObserveFrame calls f(r).
func (f FrameObserverFunc) ObserveFrame(r FrameReport) { f(r) }

// Simulation drives the compute stages of one world on a device.
//
// It owns the buffers, the binding layout, the pipeline registry and the
// orchestrator, and performs the per-tick sequence: update the state
// machine, bind the current buffers, submit the dispatches of the current
// stage, then swap. The device is borrowed and not closed by Close.
//
// Frame and Run must be called from one goroutine. Cells may be called
// between frames.
type Simulation struct {
	mu sync.Mutex

	dev      gpucore.Device
	cfg      Config
	buffers  *SimulationBuffers
	layout   *BindingLayout
	registry *PipelineRegistry
	orch     *Orchestrator
	set      *BindingSet

	frame       uint64
	stallWarned bool
	failLogged  bool
	closed      bool
}

// New allocates a simulation on dev, uploads the initial world and
// requests compilation of every stage pipeline. Pipelines finish compiling
// in the background; the first frames stay in Loading until the init
// pipeline is ready.
func New(dev gpucore.Device, opts ...Option) (*Simulation, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	propagateLogger(dev, Logger())
	s := &Simulation{dev: dev, cfg: cfg}

	var err error
	if s.buffers, err = NewSimulationBuffers(dev, cfg.Geometry); err != nil {
		return nil, err
	}
	if s.layout, err = NewBindingLayout(dev, cfg.Geometry); err != nil {
		s.destroyPartialInit()
		return nil, err
	}

	cells := cfg.InitialCells
	if cells == nil {
		cells = SeedWorld(cfg.Geometry, cfg.Seed)
	}
	if err = s.buffers.Upload(cells); err != nil {
		s.destroyPartialInit()
		return nil, err
	}

	s.registry = NewPipelineRegistry(dev)
	if s.orch, err = NewOrchestrator(s.registry, cfg.Geometry, cfg.Cycle); err != nil {
		s.destroyPartialInit()
		return nil, err
	}
	shader := cfg.shader()
	for _, st := range s.orch.PipelineStages() {
		if _, err = s.registry.Register(st, s.layout, shader, cfg.entryPoint(st)); err != nil {
			s.destroyPartialInit()
			return nil, fmt.Errorf("register %v pipeline: %w", st, err)
		}
	}

	track(s)
	Logger().Info("gravsim: simulation created",
		"adapter", dev.Info().Name,
		"width", cfg.Geometry.Width, "height", cfg.Geometry.Height,
		"stages", len(s.orch.PipelineStages()))
	return s, nil
}

// destroyPartialInit releases whatever New or Close holds, newest first.
func (s *Simulation) destroyPartialInit() {
	if s.set != nil {
		s.set.Release()
		s.set = nil
	}
	if s.registry != nil {
		s.registry.Release()
		s.registry = nil
	}
	if s.layout != nil {
		s.layout.Release()
		s.layout = nil
	}
	if s.buffers != nil {
		s.buffers.Release()
		s.buffers = nil
	}
}

// Config returns the configuration the simulation was created with.
func (s *Simulation) Config() Config { return s.cfg }

// Geometry returns the world geometry.
func (s *Simulation) Geometry() Geometry { return s.cfg.Geometry }

// Stage returns the current orchestrator state.
func (s *Simulation) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orch == nil {
		return StageLoading
	}
	return s.orch.Stage()
}

// Orchestrator returns the stage machine.
func (s *Simulation) Orchestrator() *Orchestrator { return s.orch }

// Registry returns the pipeline registry.
func (s *Simulation) Registry() *PipelineRegistry { return s.registry }

// Buffers returns the cell buffers.
func (s *Simulation) Buffers() *SimulationBuffers { return s.buffers }

// Frame performs one tick.
func (s *Simulation) Frame(ctx context.Context) (FrameReport, error) {
	if err := ctx.Err(); err != nil {
		return FrameReport{}, err
	}
	s.mu.Lock()
	report, err := s.frameLocked()
	s.mu.Unlock()
	if err != nil {
		return report, err
	}
	for _, o := range s.cfg.Observers {
		o.ObserveFrame(report)
	}
	return report, nil
}

func (s *Simulation) frameLocked() (FrameReport, error) {
	if s.closed {
		return FrameReport{}, ErrReleased
	}
	s.frame++
	advanced := s.orch.Update()
	if advanced {
		s.stallWarned = false
	}

	if s.set == nil || s.set.Stale(s.buffers) {
		if s.set != nil {
			s.set.Release()
			s.set = nil
		}
		set, err := BuildBindingSet(s.dev, s.layout, s.buffers)
		if err != nil {
			return FrameReport{}, fmt.Errorf("frame %d: %w", s.frame, err)
		}
		s.set = set
	}

	dispatches, err := s.orch.Run(s.set, s.buffers)
	if err != nil {
		return FrameReport{}, fmt.Errorf("frame %d: %w", s.frame, err)
	}

	swapped := false
	if len(dispatches) > 0 {
		if err := s.dev.Submit(dispatches); err != nil {
			return FrameReport{}, fmt.Errorf("frame %d: submit: %w", s.frame, err)
		}
		s.buffers.Swap()
		swapped = true
	}

	report := FrameReport{
		Frame:      s.frame,
		Stage:      s.orch.Stage(),
		Advanced:   advanced,
		Dispatches: len(dispatches),
		Swapped:    swapped,
		Generation: s.buffers.Generation(),
		Stall:      s.orch.Stalled(),
	}
	s.logStall(report.Stall)

	Logger().Debug("gravsim: frame",
		"frame", report.Frame, "stage", report.Stage,
		"dispatches", report.Dispatches, "generation", report.Generation)
	return report, nil
}

// logStall warns once per wait that exceeds StallWarnAfter and logs a
// permanent stall once.
func (s *Simulation) logStall(st Stall) {
	if !st.Active() {
		return
	}
	if st.Failed {
		if !s.failLogged {
			s.failLogged = true
			Logger().Error("gravsim: simulation stalled permanently",
				"stage", st.Current, "blocked", st.Blocked, "err", st.Err)
		}
		return
	}
	if s.cfg.StallWarnAfter > 0 && st.Ticks >= s.cfg.StallWarnAfter && !s.stallWarned {
		s.stallWarned = true
		Logger().Warn("gravsim: waiting for pipeline",
			"stage", st.Current, "blocked", st.Blocked, "ticks", st.Ticks)
	}
}

// Run performs up to frames ticks and stops early when ctx is done or a
// frame fails. It returns the number of completed frames.
func (s *Simulation) Run(ctx context.Context, frames int) (int, error) {
	for i := 0; i < frames; i++ {
		if _, err := s.Frame(ctx); err != nil {
			return i, err
		}
	}
	return frames, nil
}

// Cells reads back and decodes the committed state.
func (s *Simulation) Cells(ctx context.Context) ([]CellRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrReleased
	}
	return s.buffers.ReadCommitted()
}

// Close releases every resource the simulation created. It is idempotent
// and does not close the device.
func (s *Simulation) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	untrack(s)
	s.destroyPartialInit()
	Logger().Debug("gravsim: simulation closed", "frames", s.frame)
}
