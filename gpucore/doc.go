// Package gpucore provides the compute device abstraction used by gravsim.
//
// This package defines the [Device] interface, which abstracts over GPU
// backend implementations so the simulation core never touches a driver API:
//   - gogpu/wgpu HAL (Vulkan, or the noop backend for headless runs)
//   - test doubles with scripted pipeline readiness
//
// # Architecture
//
//	               +-----------------+
//	               |     gravsim     |
//	               | (Orchestrator)  |
//	               +--------+--------+
//	                        |
//	               +--------v--------+
//	               | gpucore.Device  |
//	               +--------+--------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|  internal/gpu   |          |   test device   |
//	|  (hal.Device)   |          |   (in-memory)   |
//	+-----------------+          +-----------------+
//
// # Resource Management
//
// GPU resources are managed via opaque IDs ([BufferID], [TextureID], etc.).
// Devices are responsible for tracking the mapping between IDs and actual
// GPU resources.
//
// # Asynchronous Pipelines
//
// [Device.CreateComputePipeline] returns before compilation finishes. The
// caller polls [Device.PipelineStatus], which moves from
// [PipelineStatusPending] to [PipelineStatusReady] or [PipelineStatusFailed]
// exactly once.
package gpucore
