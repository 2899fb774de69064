package gpucore

import "github.com/gogpu/gputypes"

// Resource IDs
//
// These opaque IDs represent GPU resources. Each device implementation
// maintains a mapping between IDs and actual backend resources.
// IDs are uint64 to accommodate various backend handle sizes.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// TextureID is an opaque handle to a GPU texture (and its default view).
type TextureID uint64

// ComputePipelineID is an opaque handle to a compute pipeline.
type ComputePipelineID uint64

// BindGroupLayoutID is an opaque handle to a bind group layout.
type BindGroupLayoutID uint64

// BindGroupID is an opaque handle to a bind group.
type BindGroupID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// PipelineStatus is the compilation state of a compute pipeline.
//
// A pipeline starts Pending and moves to Ready or Failed exactly once.
type PipelineStatus int32

const (
	// PipelineStatusPending means compilation has been requested but not finished.
	PipelineStatusPending PipelineStatus = iota

	// PipelineStatusReady means the pipeline can be dispatched.
	PipelineStatusReady

	// PipelineStatusFailed means compilation failed. The status is permanent.
	PipelineStatusFailed
)

// String returns the status name.
func (s PipelineStatus) String() string {
	switch s {
	case PipelineStatusPending:
		return "Pending"
	case PipelineStatusReady:
		return "Ready"
	case PipelineStatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// AdapterInfo describes the adapter behind a Device.
type AdapterInfo struct {
	// Name is the adapter or driver name, e.g. "NVIDIA GeForce RTX 4070".
	Name string

	// Backend is the API the device runs on, e.g. "vulkan" or "noop".
	Backend string
}

// BufferDesc describes a GPU buffer.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage is the set of allowed buffer usages.
	Usage gputypes.BufferUsage
}

// TextureDesc describes a 2D texture.
type TextureDesc struct {
	// Label is an optional debug label.
	Label string

	// Width and Height are the texture dimensions in texels.
	Width, Height uint32

	// Format is the texel format.
	Format gputypes.TextureFormat

	// Usage is the set of allowed texture usages.
	Usage gputypes.TextureUsage
}

// BindGroupLayoutDesc describes a bind group layout.
type BindGroupLayoutDesc struct {
	// Label is an optional debug label.
	Label string

	// Entries defines the bindings in this layout.
	Entries []gputypes.BindGroupLayoutEntry
}

// BindGroupEntry describes a single binding in a bind group.
// Exactly one of Buffer and Texture is set.
type BindGroupEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Buffer is the buffer to bind (for buffer bindings).
	Buffer BufferID

	// Offset is the offset into the buffer.
	Offset uint64

	// Size is the size of the buffer range to bind.
	// Use 0 to bind the entire buffer from offset.
	Size uint64

	// Texture is the texture to bind (for storage texture bindings).
	Texture TextureID
}

// BindGroupDesc describes a bind group.
type BindGroupDesc struct {
	// Label is an optional debug label.
	Label string

	// Layout is the bind group layout.
	Layout BindGroupLayoutID

	// Entries are the resource bindings.
	Entries []BindGroupEntry
}

// ShaderSource is WGSL text with a debug label.
type ShaderSource struct {
	Label string
	WGSL  string
}

// ComputePipelineDesc describes a compute pipeline with a single bind group.
type ComputePipelineDesc struct {
	// Label is an optional debug label.
	Label string

	// Layout is the layout of bind group 0.
	Layout BindGroupLayoutID

	// Shader contains the compute shader source.
	Shader ShaderSource

	// EntryPoint is the name of the shader entry point function.
	EntryPoint string
}

// Dispatch is one recorded compute dispatch.
type Dispatch struct {
	// Label is an optional debug label for the compute pass.
	Label string

	Pipeline  ComputePipelineID
	BindGroup BindGroupID

	// X, Y, Z are workgroup counts.
	X, Y, Z uint32
}
