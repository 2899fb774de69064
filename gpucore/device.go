package gpucore

import "errors"

// Common device errors.
var (
	// ErrUnknownResource is returned when an ID does not name a live resource.
	ErrUnknownResource = errors.New("gpucore: unknown resource")

	// ErrDeviceClosed is returned when a closed device is used.
	ErrDeviceClosed = errors.New("gpucore: device closed")
)

// Device abstracts a compute-capable GPU device.
//
// Implementations must be safe for concurrent use: pipeline compilation
// finishes on a background goroutine while the frame loop polls
// PipelineStatus.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - IDs become invalid after destruction and must not be reused
type Device interface {
	// Info describes the underlying adapter.
	Info() AdapterInfo

	// === Buffers ===

	// CreateBuffer allocates a GPU buffer. Contents start zeroed.
	CreateBuffer(desc BufferDesc) (BufferID, error)

	// WriteBuffer uploads data at offset.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// ReadBuffer reads back size bytes at offset. It waits for all
	// submitted work and may stall the GPU.
	ReadBuffer(id BufferID, offset, size uint64) ([]byte, error)

	// DestroyBuffer releases a buffer.
	DestroyBuffer(id BufferID)

	// === Textures ===

	// CreateTexture allocates a 2D texture with a default full view.
	CreateTexture(desc TextureDesc) (TextureID, error)

	// DestroyTexture releases a texture and its view.
	DestroyTexture(id TextureID)

	// === Bindings ===

	// CreateBindGroupLayout creates a bind group layout.
	CreateBindGroupLayout(desc BindGroupLayoutDesc) (BindGroupLayoutID, error)

	// DestroyBindGroupLayout releases a bind group layout.
	DestroyBindGroupLayout(id BindGroupLayoutID)

	// CreateBindGroup wires resources to a layout.
	CreateBindGroup(desc BindGroupDesc) (BindGroupID, error)

	// DestroyBindGroup releases a bind group.
	DestroyBindGroup(id BindGroupID)

	// === Pipelines ===

	// CreateComputePipeline requests compilation and returns immediately.
	// The returned pipeline is Pending until the device finishes compiling.
	// An error is returned only for invalid descriptors; compile errors are
	// reported through PipelineStatus.
	CreateComputePipeline(desc ComputePipelineDesc) (ComputePipelineID, error)

	// PipelineStatus polls compilation state without blocking. For a Failed
	// pipeline the compile error is returned alongside the status.
	PipelineStatus(id ComputePipelineID) (PipelineStatus, error)

	// DestroyComputePipeline releases a pipeline. Destroying a Pending
	// pipeline discards the compile result when it arrives.
	DestroyComputePipeline(id ComputePipelineID)

	// === Execution ===

	// Submit records the dispatches in order into one command buffer and
	// submits it. All dispatched pipelines must be Ready.
	Submit(dispatches []Dispatch) error

	// Close releases the device. Resources not destroyed are leaked to the
	// driver teardown.
	Close()
}
