package gravsim

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gravsim/gpucore"
)

// Binding indices of group 0, shared by every stage entry point.
const (
	BindingDisplay  uint32 = 0
	BindingPrevious uint32 = 1
	BindingNext     uint32 = 2
)

// LayoutEntries returns the bind group layout every stage pipeline is
// compiled against: the display surface, then the previous and next cell
// buffers, each exactly one generation in size.
func LayoutEntries(geom Geometry) []gputypes.BindGroupLayoutEntry {
	cells := geom.CellBufferSize()
	return []gputypes.BindGroupLayoutEntry{
		{
			Binding:    BindingDisplay,
			Visibility: gputypes.ShaderStageCompute,
			StorageTexture: &gputypes.StorageTextureBindingLayout{
				Access:        gputypes.StorageTextureAccessWriteOnly,
				Format:        DisplayFormat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		},
		{
			Binding:    BindingPrevious,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage, MinBindingSize: cells},
		},
		{
			Binding:    BindingNext,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage, MinBindingSize: cells},
		},
	}
}

// BindingLayout is a bind group layout created on a device.
// A layout and the binding sets built against it are a matched pair.
type BindingLayout struct {
	dev     gpucore.Device
	id      gpucore.BindGroupLayoutID
	entries []gputypes.BindGroupLayoutEntry
}

// NewBindingLayout creates the standard stage layout for geom.
func NewBindingLayout(dev gpucore.Device, geom Geometry) (*BindingLayout, error) {
	return NewBindingLayoutWithEntries(dev, "gravsim_stage_layout", LayoutEntries(geom))
}

// NewBindingLayoutWithEntries creates a layout from explicit entries. The
// entries are checked against the stage shape only when a binding set is
// built.
func NewBindingLayoutWithEntries(dev gpucore.Device, label string, entries []gputypes.BindGroupLayoutEntry) (*BindingLayout, error) {
	id, err := dev.CreateBindGroupLayout(gpucore.BindGroupLayoutDesc{Label: label, Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("create bind group layout: %w", err)
	}
	return &BindingLayout{
		dev:     dev,
		id:      id,
		entries: append([]gputypes.BindGroupLayoutEntry(nil), entries...),
	}, nil
}

// ID returns the device layout.
func (l *BindingLayout) ID() gpucore.BindGroupLayoutID { return l.id }

// Entries returns a copy of the layout entries.
func (l *BindingLayout) Entries() []gputypes.BindGroupLayoutEntry {
	return append([]gputypes.BindGroupLayoutEntry(nil), l.entries...)
}

// Release destroys the layout.
func (l *BindingLayout) Release() {
	if l.id != gpucore.InvalidID {
		l.dev.DestroyBindGroupLayout(l.id)
		l.id = gpucore.InvalidID
	}
}

// checkLayout verifies entries have the display/previous/next shape for geom.
func checkLayout(entries []gputypes.BindGroupLayoutEntry, geom Geometry) error {
	if len(entries) != 3 {
		return fmt.Errorf("%w: %d entries, want 3", ErrLayoutMismatch, len(entries))
	}
	seen := [3]bool{}
	for _, e := range entries {
		if e.Binding > BindingNext {
			return fmt.Errorf("%w: unexpected binding %d", ErrLayoutMismatch, e.Binding)
		}
		if seen[e.Binding] {
			return fmt.Errorf("%w: binding %d declared twice", ErrLayoutMismatch, e.Binding)
		}
		seen[e.Binding] = true
		if e.Visibility&gputypes.ShaderStageCompute == 0 {
			return fmt.Errorf("%w: binding %d not visible to compute", ErrLayoutMismatch, e.Binding)
		}

		if e.Binding == BindingDisplay {
			st := e.StorageTexture
			if st == nil || e.Buffer != nil {
				return fmt.Errorf("%w: binding 0 must be a storage texture", ErrLayoutMismatch)
			}
			if st.Format != DisplayFormat || st.ViewDimension != gputypes.TextureViewDimension2D {
				return fmt.Errorf("%w: binding 0 must be a 2D rgba8unorm texture", ErrLayoutMismatch)
			}
			if st.Access != gputypes.StorageTextureAccessWriteOnly && st.Access != gputypes.StorageTextureAccessReadWrite {
				return fmt.Errorf("%w: binding 0 must be writable", ErrLayoutMismatch)
			}
			continue
		}

		b := e.Buffer
		if b == nil || e.StorageTexture != nil || e.Texture != nil || e.Sampler != nil {
			return fmt.Errorf("%w: binding %d must be a storage buffer", ErrLayoutMismatch, e.Binding)
		}
		if b.Type != gputypes.BufferBindingTypeStorage {
			return fmt.Errorf("%w: binding %d must be read-write storage", ErrLayoutMismatch, e.Binding)
		}
		if b.MinBindingSize > geom.CellBufferSize() {
			return fmt.Errorf("%w: binding %d needs %d bytes, buffers hold %d",
				ErrLayoutMismatch, e.Binding, b.MinBindingSize, geom.CellBufferSize())
		}
	}
	return nil
}

// BindingSet is the bind group wiring {display, previous, next} to a layout
// for one buffer generation.
//
// A binding set goes stale when the buffers swap; it must be rebuilt before
// the next dispatch.
type BindingSet struct {
	dev        gpucore.Device
	id         gpucore.BindGroupID
	layout     *BindingLayout
	generation uint64
	prev, next gpucore.BufferID
}

// BuildBindingSet binds the display surface and the current previous and
// next buffers to layout. A layout without the stage shape fails with
// ErrLayoutMismatch before anything is created.
func BuildBindingSet(dev gpucore.Device, layout *BindingLayout, buffers *SimulationBuffers) (*BindingSet, error) {
	if layout == nil || buffers == nil {
		return nil, fmt.Errorf("%w: nil layout or buffers", ErrLayoutMismatch)
	}
	if buffers.released {
		return nil, ErrReleased
	}
	geom := buffers.Geometry()
	if err := checkLayout(layout.entries, geom); err != nil {
		return nil, err
	}

	size := geom.CellBufferSize()
	id, err := dev.CreateBindGroup(gpucore.BindGroupDesc{
		Label:  "gravsim_bind_group",
		Layout: layout.id,
		Entries: []gpucore.BindGroupEntry{
			{Binding: BindingDisplay, Texture: buffers.Display()},
			{Binding: BindingPrevious, Buffer: buffers.Previous(), Size: size},
			{Binding: BindingNext, Buffer: buffers.Next(), Size: size},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group: %w", err)
	}
	return &BindingSet{
		dev:        dev,
		id:         id,
		layout:     layout,
		generation: buffers.Generation(),
		prev:       buffers.Previous(),
		next:       buffers.Next(),
	}, nil
}

// ID returns the device bind group.
func (s *BindingSet) ID() gpucore.BindGroupID { return s.id }

// Generation returns the buffer generation the set was built for.
func (s *BindingSet) Generation() uint64 { return s.generation }

// Stale reports whether buffers swapped since the set was built.
func (s *BindingSet) Stale(buffers *SimulationBuffers) bool {
	return s.generation != buffers.Generation() ||
		s.prev != buffers.Previous() || s.next != buffers.Next()
}

// Release destroys the bind group.
func (s *BindingSet) Release() {
	if s.id != gpucore.InvalidID {
		s.dev.DestroyBindGroup(s.id)
		s.id = gpucore.InvalidID
	}
}
