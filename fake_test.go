package gravsim

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gravsim/gpucore"
)

// fakeDevice is an in-memory gpucore.Device with scripted pipeline readiness.
type fakeDevice struct {
	mu sync.Mutex

	nextID uint64

	buffers    map[gpucore.BufferID][]byte
	textures   map[gpucore.TextureID]gpucore.TextureDesc
	layouts    map[gpucore.BindGroupLayoutID]gpucore.BindGroupLayoutDesc
	bindGroups map[gpucore.BindGroupID]gpucore.BindGroupDesc
	pipelines  map[gpucore.ComputePipelineID]*fakePipeline

	// initial is the status new pipelines start with, keyed by entry point.
	// Entry points not listed start Ready.
	initial map[string]gpucore.PipelineStatus

	submits   [][]gpucore.Dispatch
	submitErr error
	closed    bool
	logger    *slog.Logger
}

type fakePipeline struct {
	desc   gpucore.ComputePipelineDesc
	status gpucore.PipelineStatus
	err    error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		buffers:    make(map[gpucore.BufferID][]byte),
		textures:   make(map[gpucore.TextureID]gpucore.TextureDesc),
		layouts:    make(map[gpucore.BindGroupLayoutID]gpucore.BindGroupLayoutDesc),
		bindGroups: make(map[gpucore.BindGroupID]gpucore.BindGroupDesc),
		pipelines:  make(map[gpucore.ComputePipelineID]*fakePipeline),
		initial:    make(map[string]gpucore.PipelineStatus),
	}
}

// holdPending makes pipelines for the given entry points start Pending.
func (d *fakeDevice) holdPending(entryPoints ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ep := range entryPoints {
		d.initial[ep] = gpucore.PipelineStatusPending
	}
}

// complete flips every pipeline for entryPoint to status.
func (d *fakeDevice) complete(entryPoint string, status gpucore.PipelineStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.pipelines {
		if p.desc.EntryPoint == entryPoint && p.status == gpucore.PipelineStatusPending {
			p.status = status
			if status == gpucore.PipelineStatusFailed {
				p.err = fmt.Errorf("entry point %q: syntax error", entryPoint)
			}
		}
	}
}

func (d *fakeDevice) id() uint64 {
	d.nextID++
	return d.nextID
}

func (d *fakeDevice) SetLogger(l *slog.Logger) {
	d.mu.Lock()
	d.logger = l
	d.mu.Unlock()
}

func (d *fakeDevice) Info() gpucore.AdapterInfo {
	return gpucore.AdapterInfo{Name: "fake", Backend: "fake"}
}

func (d *fakeDevice) CreateBuffer(desc gpucore.BufferDesc) (gpucore.BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.BufferID(d.id())
	d.buffers[id] = make([]byte, desc.Size)
	return id, nil
}

func (d *fakeDevice) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[id]
	if !ok {
		return gpucore.ErrUnknownResource
	}
	if offset+uint64(len(data)) > uint64(len(buf)) {
		return errors.New("fake: write out of range")
	}
	copy(buf[offset:], data)
	return nil
}

func (d *fakeDevice) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[id]
	if !ok {
		return nil, gpucore.ErrUnknownResource
	}
	if offset+size > uint64(len(buf)) {
		return nil, errors.New("fake: read out of range")
	}
	return append([]byte(nil), buf[offset:offset+size]...), nil
}

func (d *fakeDevice) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	delete(d.buffers, id)
	d.mu.Unlock()
}

func (d *fakeDevice) CreateTexture(desc gpucore.TextureDesc) (gpucore.TextureID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.TextureID(d.id())
	d.textures[id] = desc
	return id, nil
}

func (d *fakeDevice) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	delete(d.textures, id)
	d.mu.Unlock()
}

func (d *fakeDevice) CreateBindGroupLayout(desc gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.BindGroupLayoutID(d.id())
	d.layouts[id] = desc
	return id, nil
}

func (d *fakeDevice) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	d.mu.Lock()
	delete(d.layouts, id)
	d.mu.Unlock()
}

func (d *fakeDevice) CreateBindGroup(desc gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.layouts[desc.Layout]; !ok {
		return gpucore.InvalidID, gpucore.ErrUnknownResource
	}
	for _, e := range desc.Entries {
		if e.Buffer != gpucore.InvalidID {
			if _, ok := d.buffers[e.Buffer]; !ok {
				return gpucore.InvalidID, gpucore.ErrUnknownResource
			}
		}
	}
	id := gpucore.BindGroupID(d.id())
	d.bindGroups[id] = desc
	return id, nil
}

func (d *fakeDevice) DestroyBindGroup(id gpucore.BindGroupID) {
	d.mu.Lock()
	delete(d.bindGroups, id)
	d.mu.Unlock()
}

func (d *fakeDevice) CreateComputePipeline(desc gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.layouts[desc.Layout]; !ok {
		return gpucore.InvalidID, gpucore.ErrUnknownResource
	}
	status, ok := d.initial[desc.EntryPoint]
	if !ok {
		status = gpucore.PipelineStatusReady
	}
	id := gpucore.ComputePipelineID(d.id())
	d.pipelines[id] = &fakePipeline{desc: desc, status: status}
	return id, nil
}

func (d *fakeDevice) PipelineStatus(id gpucore.ComputePipelineID) (gpucore.PipelineStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pipelines[id]
	if !ok {
		return gpucore.PipelineStatusFailed, gpucore.ErrUnknownResource
	}
	return p.status, p.err
}

func (d *fakeDevice) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	d.mu.Lock()
	delete(d.pipelines, id)
	d.mu.Unlock()
}

func (d *fakeDevice) Submit(dispatches []gpucore.Dispatch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.submitErr != nil {
		return d.submitErr
	}
	for _, disp := range dispatches {
		p, ok := d.pipelines[disp.Pipeline]
		if !ok || p.status != gpucore.PipelineStatusReady {
			return fmt.Errorf("fake: dispatch of non-ready pipeline %d", disp.Pipeline)
		}
		if _, ok := d.bindGroups[disp.BindGroup]; !ok {
			return fmt.Errorf("fake: dispatch with unknown bind group %d", disp.BindGroup)
		}
	}
	d.submits = append(d.submits, append([]gpucore.Dispatch(nil), dispatches...))
	return nil
}

func (d *fakeDevice) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// entryPointOf returns the entry point a pipeline was created with.
func (d *fakeDevice) entryPointOf(id gpucore.ComputePipelineID) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pipelines[id]; ok {
		return p.desc.EntryPoint
	}
	return ""
}

// live returns the number of live resources of every kind.
func (d *fakeDevice) live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers) + len(d.textures) + len(d.layouts) + len(d.bindGroups) + len(d.pipelines)
}
