// Package gravsim runs a falling-sand gravity simulation on a GPU compute
// device.
//
// # Overview
//
// The world is a fixed grid of cells. Each cell holds a particle type, a
// mass, an impulse and a sub-cell position, stored as a 36-byte record in
// two storage buffers: the committed state (previous) and the state being
// written (next). Every tick the simulation dispatches the compute stages
// of the gravity shader over the grid and then swaps the two buffers.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/gravsim"
//		"github.com/gogpu/gravsim/backend"
//		_ "github.com/gogpu/gravsim/gpu" // register HAL devices
//	)
//
//	dev, _, err := backend.OpenDefault()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	sim, err := gravsim.New(dev, gravsim.WithWorldSize(512, 512))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sim.Close()
//
//	if _, err := sim.Run(ctx, 600); err != nil {
//		log.Fatal(err)
//	}
//
// # Stages
//
// Pipelines compile asynchronously. The [Orchestrator] starts in
// [StageLoading] and advances through Init, Gravity, Impulse and Position
// (then back to Gravity) only when the pipeline of the next stage reports
// Ready. Until then it keeps dispatching the current stage. A pipeline
// that fails to compile stalls the simulation permanently; [Stall]
// describes the wait and the simulation logs it.
//
// Each physics stage first runs pre_update, which copies the committed
// state into next, and then its own pass.
//
// # Buffers and Bindings
//
// [SimulationBuffers] owns the display texture and the two cell buffers.
// A [BindingSet] captures which buffer is previous and which is next at
// build time; after a swap it is stale and must be rebuilt.
//
// # Devices
//
// The core talks to the GPU only through gpucore.Device. The gpu package
// registers the wgpu HAL backends (Vulkan and a headless noop device) with
// the backend registry.
//
// # Logging
//
// Logging is disabled by default. Use [SetLogger] to route diagnostics
// to a log/slog handler.
package gravsim
