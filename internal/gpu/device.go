//go:build !nogpu

// Package gpu implements gpucore.Device on the wgpu hardware abstraction
// layer.
//
// Pipelines compile on background goroutines: WGSL is reflected and
// compiled to SPIR-V with naga, then turned into a HAL compute pipeline.
// The frame loop observes the result through PipelineStatus without
// blocking.
package gpu

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gravsim/gpucore"
)

// Device errors.
var (
	// ErrBackendUnavailable is returned when the requested HAL backend is
	// not registered.
	ErrBackendUnavailable = errors.New("gpu: backend not available")

	// ErrNoAdapter is returned when the backend exposes no adapters.
	ErrNoAdapter = errors.New("gpu: no adapter found")

	// ErrProvider is returned when a device provider does not expose HAL
	// types.
	ErrProvider = errors.New("gpu: provider does not expose HAL types")

	// ErrPipelineNotReady is returned when Submit references a pipeline
	// that is not Ready.
	ErrPipelineNotReady = errors.New("gpu: pipeline not ready")

	// ErrOutOfRange is returned for buffer accesses past the end.
	ErrOutOfRange = errors.New("gpu: buffer range out of bounds")
)

type buffer struct {
	raw  hal.Buffer
	size uint64
}

type texture struct {
	raw  hal.Texture
	view hal.TextureView
}

type bindLayout struct {
	raw       hal.BindGroupLayout
	pipe      hal.PipelineLayout
	entries   []gputypes.BindGroupLayoutEntry
	destroyed bool
}

type pipeline struct {
	desc   gpucore.ComputePipelineDesc
	status atomic.Int32

	// Guarded by Device.mu. err is written before status is published.
	err       error
	module    hal.ShaderModule
	raw       hal.ComputePipeline
	destroyed bool
}

func (p *pipeline) load() gpucore.PipelineStatus {
	return gpucore.PipelineStatus(p.status.Load())
}

// inflight is a submitted command buffer awaiting completion.
type inflight struct {
	index uint64
	cmd   hal.CommandBuffer
}

// Device is a gpucore.Device backed by a hal.Device and hal.Queue.
//
// All methods are safe for concurrent use.
type Device struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	info     gpucore.AdapterInfo
	external bool // true when using shared device (don't destroy on Close)
	closed   bool

	nextID     uint64
	buffers    map[gpucore.BufferID]*buffer
	textures   map[gpucore.TextureID]*texture
	layouts    map[gpucore.BindGroupLayoutID]*bindLayout
	bindGroups map[gpucore.BindGroupID]hal.BindGroup
	pipelines  map[gpucore.ComputePipelineID]*pipeline
	inflight   []inflight

	compiles sync.WaitGroup
}

var _ gpucore.Device = (*Device)(nil)

func newDevice(instance hal.Instance, dev hal.Device, queue hal.Queue, info gpucore.AdapterInfo, external bool) *Device {
	return &Device{
		instance:   instance,
		device:     dev,
		queue:      queue,
		info:       info,
		external:   external,
		buffers:    make(map[gpucore.BufferID]*buffer),
		textures:   make(map[gpucore.TextureID]*texture),
		layouts:    make(map[gpucore.BindGroupLayoutID]*bindLayout),
		bindGroups: make(map[gpucore.BindGroupID]hal.BindGroup),
		pipelines:  make(map[gpucore.ComputePipelineID]*pipeline),
	}
}

func (d *Device) id() uint64 {
	d.nextID++
	return d.nextID
}

// Info describes the adapter the device was opened on.
func (d *Device) Info() gpucore.AdapterInfo { return d.info }

// HalDevice returns the underlying hal.Device.
func (d *Device) HalDevice() any { return d.device }

// HalQueue returns the underlying hal.Queue.
func (d *Device) HalQueue() any { return d.queue }

// CreateBuffer allocates a GPU buffer.
func (d *Device) CreateBuffer(desc gpucore.BufferDesc) (gpucore.BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}
	raw, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create buffer %q: %w", desc.Label, err)
	}
	id := gpucore.BufferID(d.id())
	d.buffers[id] = &buffer{raw: raw, size: desc.Size}
	return id, nil
}

// WriteBuffer uploads data through the queue.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.ErrDeviceClosed
	}
	b, ok := d.buffers[id]
	if !ok {
		return gpucore.ErrUnknownResource
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("%w: write %d bytes at %d into %d", ErrOutOfRange, len(data), offset, b.size)
	}
	return d.queue.WriteBuffer(b.raw, offset, data)
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers[id]; ok {
		delete(d.buffers, id)
		if !d.closed {
			d.device.DestroyBuffer(b.raw)
		}
	}
}

// CreateTexture allocates a 2D texture and its default view.
func (d *Device) CreateTexture(desc gpucore.TextureDesc) (gpucore.TextureID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}
	raw, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create texture %q: %w", desc.Label, err)
	}
	view, err := d.device.CreateTextureView(raw, &hal.TextureViewDescriptor{
		Label:     desc.Label + "_view",
		Format:    desc.Format,
		Dimension: gputypes.TextureViewDimension2D,
		Aspect:    gputypes.TextureAspectAll,
	})
	if err != nil {
		d.device.DestroyTexture(raw)
		return gpucore.InvalidID, fmt.Errorf("create texture view %q: %w", desc.Label, err)
	}
	id := gpucore.TextureID(d.id())
	d.textures[id] = &texture{raw: raw, view: view}
	return id, nil
}

// DestroyTexture releases a texture and its view.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.textures[id]; ok {
		delete(d.textures, id)
		if !d.closed {
			d.device.DestroyTextureView(t.view)
			d.device.DestroyTexture(t.raw)
		}
	}
}

// CreateBindGroupLayout creates a layout and the single-group pipeline
// layout every pipeline on it shares.
func (d *Device) CreateBindGroupLayout(desc gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}
	raw, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: desc.Entries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create bind group layout %q: %w", desc.Label, err)
	}
	pipe, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + "_pipeline",
		BindGroupLayouts: []hal.BindGroupLayout{raw},
	})
	if err != nil {
		d.device.DestroyBindGroupLayout(raw)
		return gpucore.InvalidID, fmt.Errorf("create pipeline layout %q: %w", desc.Label, err)
	}
	id := gpucore.BindGroupLayoutID(d.id())
	d.layouts[id] = &bindLayout{
		raw:     raw,
		pipe:    pipe,
		entries: append([]gputypes.BindGroupLayoutEntry(nil), desc.Entries...),
	}
	return id, nil
}

// DestroyBindGroupLayout releases a layout. Pipelines still compiling
// against it fail.
func (d *Device) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.layouts[id]; ok {
		delete(d.layouts, id)
		l.destroyed = true
		if !d.closed {
			d.device.DestroyPipelineLayout(l.pipe)
			d.device.DestroyBindGroupLayout(l.raw)
		}
	}
}

// CreateBindGroup wires buffers and texture views to a layout.
func (d *Device) CreateBindGroup(desc gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}
	l, ok := d.layouts[desc.Layout]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("bind group %q layout: %w", desc.Label, gpucore.ErrUnknownResource)
	}

	entries := make([]gputypes.BindGroupEntry, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		entry := gputypes.BindGroupEntry{Binding: e.Binding}
		if e.Texture != gpucore.InvalidID {
			t, ok := d.textures[e.Texture]
			if !ok {
				return gpucore.InvalidID, fmt.Errorf("bind group %q binding %d: %w", desc.Label, e.Binding, gpucore.ErrUnknownResource)
			}
			entry.Resource = gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()}
		} else {
			b, ok := d.buffers[e.Buffer]
			if !ok {
				return gpucore.InvalidID, fmt.Errorf("bind group %q binding %d: %w", desc.Label, e.Binding, gpucore.ErrUnknownResource)
			}
			size := e.Size
			if size == 0 {
				size = b.size - e.Offset
			}
			entry.Resource = gputypes.BufferBinding{Buffer: b.raw.NativeHandle(), Offset: e.Offset, Size: size}
		}
		entries = append(entries, entry)
	}

	raw, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  l.raw,
		Entries: entries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create bind group %q: %w", desc.Label, err)
	}
	id := gpucore.BindGroupID(d.id())
	d.bindGroups[id] = raw
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (d *Device) DestroyBindGroup(id gpucore.BindGroupID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if bg, ok := d.bindGroups[id]; ok {
		delete(d.bindGroups, id)
		if !d.closed {
			d.device.DestroyBindGroup(bg)
		}
	}
}

// Submit records one compute pass per dispatch into a single command
// buffer and submits it. Command buffers of earlier frames are freed once
// the queue reports them complete.
func (d *Device) Submit(dispatches []gpucore.Dispatch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.ErrDeviceClosed
	}
	d.retire(d.queue.PollCompleted())
	if len(dispatches) == 0 {
		return nil
	}

	type pass struct {
		label    string
		pipeline hal.ComputePipeline
		group    hal.BindGroup
		x, y, z  uint32
	}
	passes := make([]pass, 0, len(dispatches))
	for _, disp := range dispatches {
		p, ok := d.pipelines[disp.Pipeline]
		if !ok {
			return fmt.Errorf("dispatch %q pipeline: %w", disp.Label, gpucore.ErrUnknownResource)
		}
		if p.load() != gpucore.PipelineStatusReady {
			return fmt.Errorf("%w: dispatch %q", ErrPipelineNotReady, disp.Label)
		}
		bg, ok := d.bindGroups[disp.BindGroup]
		if !ok {
			return fmt.Errorf("dispatch %q bind group: %w", disp.Label, gpucore.ErrUnknownResource)
		}
		passes = append(passes, pass{label: disp.Label, pipeline: p.raw, group: bg, x: disp.X, y: disp.Y, z: disp.Z})
	}

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "gravsim_frame_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("gravsim_frame"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	for _, ps := range passes {
		cp := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: ps.label})
		cp.SetPipeline(ps.pipeline)
		cp.SetBindGroup(0, ps.group, nil)
		cp.Dispatch(ps.x, ps.y, ps.z)
		cp.End()
	}
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	index, err := d.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		d.device.FreeCommandBuffer(cmd)
		return fmt.Errorf("submit: %w", err)
	}
	d.inflight = append(d.inflight, inflight{index: index, cmd: cmd})
	slogger().Debug("gpu: frame submitted", "passes", len(passes), "submission", index)
	return nil
}

// retire frees command buffers whose submission index is at most done.
func (d *Device) retire(done uint64) {
	kept := d.inflight[:0]
	for _, f := range d.inflight {
		if f.index <= done {
			d.device.FreeCommandBuffer(f.cmd)
			continue
		}
		kept = append(kept, f)
	}
	d.inflight = kept
}

// ReadBuffer copies the buffer range into a mappable staging buffer, waits
// for the queue to drain, and returns the mapped bytes.
func (d *Device) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, gpucore.ErrDeviceClosed
	}
	b, ok := d.buffers[id]
	if !ok {
		return nil, gpucore.ErrUnknownResource
	}
	if offset+size > b.size {
		return nil, fmt.Errorf("%w: read %d bytes at %d from %d", ErrOutOfRange, size, offset, b.size)
	}
	if size == 0 {
		return []byte{}, nil
	}

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "gravsim_readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "gravsim_readback_encoder"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("gravsim_readback"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(b.raw, staging, []hal.BufferCopy{
		{SrcOffset: offset, DstOffset: 0, Size: size},
	})
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmd)

	if _, err := d.queue.Submit([]hal.CommandBuffer{cmd}); err != nil {
		return nil, fmt.Errorf("submit readback: %w", err)
	}
	if err := d.device.WaitIdle(); err != nil {
		return nil, fmt.Errorf("wait for GPU: %w", err)
	}
	d.retire(^uint64(0))

	mapping, err := d.device.MapBuffer(staging, 0, size)
	if err != nil {
		return nil, fmt.Errorf("map staging buffer: %w", err)
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(mapping.Ptr), size))
	if err := d.device.UnmapBuffer(staging); err != nil {
		return nil, fmt.Errorf("unmap staging buffer: %w", err)
	}
	return out, nil
}

// Close waits for in-flight compilations, releases every live resource and,
// unless the device is shared, the HAL device and instance.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.compiles.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.device.WaitIdle(); err != nil {
		slogger().Warn("gpu: wait idle on close", "err", err)
	}
	d.retire(^uint64(0))
	for id, p := range d.pipelines {
		destroyPipeline(d.device, p)
		delete(d.pipelines, id)
	}
	for id, bg := range d.bindGroups {
		d.device.DestroyBindGroup(bg)
		delete(d.bindGroups, id)
	}
	for id, l := range d.layouts {
		d.device.DestroyPipelineLayout(l.pipe)
		d.device.DestroyBindGroupLayout(l.raw)
		delete(d.layouts, id)
	}
	for id, t := range d.textures {
		d.device.DestroyTextureView(t.view)
		d.device.DestroyTexture(t.raw)
		delete(d.textures, id)
	}
	for id, b := range d.buffers {
		d.device.DestroyBuffer(b.raw)
		delete(d.buffers, id)
	}

	if !d.external {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
	slogger().Info("gpu: device closed", "adapter", d.info.Name)
}

// destroyPipeline releases the HAL objects of a compiled pipeline.
func destroyPipeline(dev hal.Device, p *pipeline) {
	if p.raw != nil {
		dev.DestroyComputePipeline(p.raw)
		p.raw = nil
	}
	if p.module != nil {
		dev.DestroyShaderModule(p.module)
		p.module = nil
	}
}
