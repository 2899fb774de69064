package gravsim

import (
	"fmt"
	"sync"

	"github.com/gogpu/gravsim/gpucore"
)

// PipelineStatus is the compilation state of a registered stage pipeline.
type PipelineStatus = gpucore.PipelineStatus

// Pipeline compilation states.
const (
	PipelineStatusPending = gpucore.PipelineStatusPending
	PipelineStatusReady   = gpucore.PipelineStatusReady
	PipelineStatusFailed  = gpucore.PipelineStatusFailed
)

// PipelineHandle identifies a pipeline registered with a PipelineRegistry.
// The zero value is invalid.
type PipelineHandle uint32

// pipelineEntry is one registered stage pipeline.
type pipelineEntry struct {
	stage      Stage
	entryPoint string
	layout     *BindingLayout
	id         gpucore.ComputePipelineID

	// status is cached once terminal; Ready and Failed never change.
	status PipelineStatus
	err    error
}

// PipelineRegistry compiles one compute pipeline per stage against a shared
// binding layout and answers readiness queries without blocking.
//
// Compilation is requested exactly once per stage, at Register. A pipeline
// that fails to compile stays Failed; the registry never retries.
//
// PipelineRegistry is safe for concurrent use.
type PipelineRegistry struct {
	mu      sync.RWMutex
	dev     gpucore.Device
	entries []*pipelineEntry // handle-1 indexes entries
	byStage [StageCount]PipelineHandle
}

// NewPipelineRegistry creates an empty registry compiling on dev.
func NewPipelineRegistry(dev gpucore.Device) *PipelineRegistry {
	return &PipelineRegistry{dev: dev}
}

// Register requests asynchronous compilation of the pipeline for stage and
// returns immediately with a Pending handle.
//
// Registering a stage twice returns ErrStageRegistered. Descriptor errors
// reported synchronously by the device are returned as is; compile errors
// surface later as a Failed status.
func (r *PipelineRegistry) Register(stage Stage, layout *BindingLayout, shader gpucore.ShaderSource, entryPoint string) (PipelineHandle, error) {
	if !stage.valid() || stage == StageLoading {
		return 0, fmt.Errorf("%w: %v has no pipeline", ErrUnknownStage, stage)
	}
	if layout == nil {
		return 0, fmt.Errorf("%w: nil layout for %v", ErrLayoutMismatch, stage)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byStage[stage] != 0 {
		return 0, fmt.Errorf("%w: %v", ErrStageRegistered, stage)
	}

	id, err := r.dev.CreateComputePipeline(gpucore.ComputePipelineDesc{
		Label:      "gravsim_" + entryPoint,
		Layout:     layout.id,
		Shader:     shader,
		EntryPoint: entryPoint,
	})
	if err != nil {
		return 0, fmt.Errorf("register %v pipeline: %w", stage, err)
	}

	r.entries = append(r.entries, &pipelineEntry{
		stage:      stage,
		entryPoint: entryPoint,
		layout:     layout,
		id:         id,
		status:     PipelineStatusPending,
	})
	h := PipelineHandle(len(r.entries))
	r.byStage[stage] = h

	Logger().Debug("gravsim: pipeline queued", "stage", stage, "entry_point", entryPoint)
	return h, nil
}

// Status polls the compilation state of h without blocking. Unknown handles
// report Pending: they never become dispatchable.
func (r *PipelineRegistry) Status(h PipelineHandle) PipelineStatus {
	r.mu.RLock()
	e := r.entry(h)
	if e == nil {
		r.mu.RUnlock()
		return PipelineStatusPending
	}
	if e.status != PipelineStatusPending {
		s := e.status
		r.mu.RUnlock()
		return s
	}
	id := e.id
	r.mu.RUnlock()

	status, err := r.dev.PipelineStatus(id)
	if status == PipelineStatusPending {
		return status
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e.status != PipelineStatusPending {
		return e.status
	}
	e.status = status
	switch status {
	case PipelineStatusReady:
		Logger().Info("gravsim: pipeline ready", "stage", e.stage, "entry_point", e.entryPoint)
	case PipelineStatusFailed:
		if err == nil {
			err = fmt.Errorf("entry point %q", e.entryPoint)
		}
		e.err = fmt.Errorf("%w: %v: %w", ErrCompilationFailed, e.stage, err)
		Logger().Error("gravsim: pipeline compilation failed", "stage", e.stage,
			"entry_point", e.entryPoint, "err", err)
	}
	return e.status
}

// StageStatus is Status for the pipeline registered for stage.
func (r *PipelineRegistry) StageStatus(stage Stage) PipelineStatus {
	h, ok := r.Handle(stage)
	if !ok {
		return PipelineStatusPending
	}
	return r.Status(h)
}

// Err returns the compilation error of a Failed pipeline, or nil.
func (r *PipelineRegistry) Err(h PipelineHandle) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e := r.entry(h); e != nil {
		return e.err
	}
	return nil
}

// Handle returns the handle registered for stage.
func (r *PipelineRegistry) Handle(stage Stage) (PipelineHandle, bool) {
	if !stage.valid() {
		return 0, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h := r.byStage[stage]
	return h, h != 0
}

// Pipeline returns the device pipeline behind h.
func (r *PipelineRegistry) Pipeline(h PipelineHandle) (gpucore.ComputePipelineID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e := r.entry(h); e != nil {
		return e.id, true
	}
	return gpucore.InvalidID, false
}

// Len returns the number of registered pipelines.
func (r *PipelineRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Release destroys every registered pipeline. The registry is empty afterwards.
func (r *PipelineRegistry) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		r.dev.DestroyComputePipeline(e.id)
	}
	r.entries = nil
	r.byStage = [StageCount]PipelineHandle{}
}

// entry returns the entry for h. Caller holds r.mu.
func (r *PipelineRegistry) entry(h PipelineHandle) *pipelineEntry {
	if h == 0 || int(h) > len(r.entries) {
		return nil
	}
	return r.entries[h-1]
}
