//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gravsim/gpucore"
)

// CreateComputePipeline registers a Pending pipeline and compiles it on a
// background goroutine. Only descriptor errors are returned here.
func (d *Device) CreateComputePipeline(desc gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	if desc.EntryPoint == "" {
		return gpucore.InvalidID, fmt.Errorf("pipeline %q: empty entry point", desc.Label)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}
	l, ok := d.layouts[desc.Layout]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("pipeline %q layout: %w", desc.Label, gpucore.ErrUnknownResource)
	}

	p := &pipeline{desc: desc}
	p.status.Store(int32(gpucore.PipelineStatusPending))
	id := gpucore.ComputePipelineID(d.id())
	d.pipelines[id] = p

	d.compiles.Add(1)
	go d.compile(p, l)
	return id, nil
}

// compile reflects and compiles the program, then publishes the result.
func (d *Device) compile(p *pipeline, l *bindLayout) {
	defer d.compiles.Done()
	start := time.Now()

	spirv, err := compileProgram(p.desc.Shader, p.desc.EntryPoint, l.entries)

	d.mu.Lock()
	defer d.mu.Unlock()
	if p.destroyed || d.closed {
		return
	}
	if err == nil && l.destroyed {
		err = fmt.Errorf("layout destroyed during compilation: %w", gpucore.ErrUnknownResource)
	}
	if err == nil {
		err = d.createHALPipeline(p, l, spirv)
	}
	if err != nil {
		destroyPipeline(d.device, p)
		p.err = err
		p.status.Store(int32(gpucore.PipelineStatusFailed))
		slogger().Error("gpu: pipeline compilation failed",
			"pipeline", p.desc.Label, "entry_point", p.desc.EntryPoint, "err", err)
		return
	}
	p.status.Store(int32(gpucore.PipelineStatusReady))
	slogger().Debug("gpu: pipeline compiled",
		"pipeline", p.desc.Label, "entry_point", p.desc.EntryPoint, "elapsed", time.Since(start))
}

// createHALPipeline builds the shader module and compute pipeline.
// Called with d.mu held.
func (d *Device) createHALPipeline(p *pipeline, l *bindLayout, spirv []uint32) error {
	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  p.desc.Shader.Label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}
	p.module = module

	raw, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   p.desc.Label,
		Layout:  l.pipe,
		Compute: hal.ComputeState{Module: module, EntryPoint: p.desc.EntryPoint},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	p.raw = raw
	return nil
}

// PipelineStatus reports compilation state without blocking.
func (d *Device) PipelineStatus(id gpucore.ComputePipelineID) (gpucore.PipelineStatus, error) {
	d.mu.Lock()
	p, ok := d.pipelines[id]
	d.mu.Unlock()
	if !ok {
		return gpucore.PipelineStatusFailed, gpucore.ErrUnknownResource
	}
	status := p.load()
	if status != gpucore.PipelineStatusFailed {
		return status, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return status, p.err
}

// DestroyComputePipeline releases a pipeline. A compile still running for
// it is discarded when it finishes.
func (d *Device) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pipelines[id]
	if !ok {
		return
	}
	delete(d.pipelines, id)
	p.destroyed = true
	if !d.closed {
		destroyPipeline(d.device, p)
	}
}

// compileProgram checks the entry point and bindings of src against the
// layout and compiles it to SPIR-V words.
func compileProgram(src gpucore.ShaderSource, entryPoint string, entries []gputypes.BindGroupLayoutEntry) ([]uint32, error) {
	if _, err := Reflect(src.WGSL, entryPoint, entries); err != nil {
		return nil, err
	}
	code, err := naga.Compile(src.WGSL)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src.Label, err)
	}
	return spirvWords(code)
}

// spirvWords converts little-endian SPIR-V bytes to 32-bit words.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code)%4 != 0 || len(code) == 0 {
		return nil, fmt.Errorf("invalid SPIR-V length %d", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}
