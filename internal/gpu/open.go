//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gravsim/gpucore"

	// Register the Vulkan and headless noop backends via init().
	_ "github.com/gogpu/wgpu/hal/noop"
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Open creates an instance of the given HAL backend, picks an adapter
// (discrete, then integrated, then the first listed) and opens a device
// on it.
func Open(variant gputypes.Backend) (*Device, error) {
	backend, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, variant)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create %v instance: %w", variant, err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: %v", ErrNoAdapter, variant)
	}
	selected := selectAdapter(adapters)

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open %s: %w", selected.Info.Name, err)
	}

	info := gpucore.AdapterInfo{Name: selected.Info.Name, Backend: variant.String()}
	slogger().Info("gpu: device opened", "adapter", info.Name, "backend", info.Backend)
	return newDevice(instance, openDev.Device, openDev.Queue, info, false), nil
}

// OpenVulkan opens a device on the Vulkan backend.
func OpenVulkan() (*Device, error) { return Open(gputypes.BackendVulkan) }

// OpenNoop opens a device on the headless noop backend. Dispatches and
// copies do nothing; buffer writes and maps work in memory.
func OpenNoop() (*Device, error) { return Open(gputypes.BackendEmpty) }

// selectAdapter prefers hardware adapters.
func selectAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	for _, want := range []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU} {
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				return &adapters[i]
			}
		}
	}
	return &adapters[0]
}

// NewDeviceFromProvider wraps a GPU device shared by a host application.
// The provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue. When it also implements
// gpucontext.DeviceProvider its adapter name is used. The shared device is
// not destroyed by Close.
func NewDeviceFromProvider(provider any) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrProvider)
	}

	info := gpucore.AdapterInfo{Name: "shared", Backend: "external"}
	if dp, ok := provider.(gpucontext.DeviceProvider); ok {
		ai := dp.AdapterInfo()
		if ai.Name != "" {
			info.Name = ai.Name
		}
		info.Backend = "external/" + ai.Type.String()
	}
	slogger().Info("gpu: using shared device", "adapter", info.Name)
	return newDevice(nil, device, queue, info, true), nil
}
