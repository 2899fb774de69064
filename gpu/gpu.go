//go:build !nogpu

// Package gpu registers the wgpu HAL compute devices with the backend
// registry.
//
// Import this package to make the Vulkan device and the headless noop
// device available to backend.Open and backend.OpenDefault. If Vulkan is
// not available at open time (no driver, no adapter), OpenDefault falls
// back to noop.
//
// Usage:
//
//	import _ "github.com/gogpu/gravsim/gpu" // enable HAL devices
package gpu

import (
	"github.com/gogpu/gravsim/backend"
	"github.com/gogpu/gravsim/gpucore"
	gpuimpl "github.com/gogpu/gravsim/internal/gpu"
)

func init() {
	backend.Register(backend.BackendVulkan, func() (gpucore.Device, error) {
		return device(gpuimpl.OpenVulkan())
	})
	backend.Register(backend.BackendNoop, func() (gpucore.Device, error) {
		return device(gpuimpl.OpenNoop())
	})
}

// device keeps a failed open from returning a non-nil interface holding a
// nil *Device.
func device(d *gpuimpl.Device, err error) (gpucore.Device, error) {
	if err != nil {
		return nil, err
	}
	return d, nil
}

// NewDeviceFromProvider wraps a GPU device shared by a host application
// (e.g., gogpu). The provider must expose HalDevice() any and HalQueue()
// any returning hal.Device and hal.Queue. Closing the returned device
// leaves the shared device alive.
func NewDeviceFromProvider(provider any) (gpucore.Device, error) {
	return device(gpuimpl.NewDeviceFromProvider(provider))
}
