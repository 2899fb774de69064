package backend

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/gravsim"
	"github.com/gogpu/gravsim/gpucore"
)

// Backend names.
const (
	// BackendVulkan opens a hardware device through the Vulkan HAL.
	BackendVulkan = "vulkan"

	// BackendNoop opens a headless device that accepts all work and
	// executes none of it.
	BackendNoop = "noop"
)

// Registry errors.
var (
	// ErrBackendNotAvailable is returned when no registered backend opens.
	ErrBackendNotAvailable = errors.New("backend: no backend available")

	// ErrUnknownBackend is returned for a name that was never registered.
	ErrUnknownBackend = errors.New("backend: unknown backend")
)

// Opener opens a compute device.
type Opener func() (gpucore.Device, error)

// registry holds registered openers.
// Priority order for backend selection (first that opens wins).
// Vulkan > Noop (Noop is the headless fallback).
var registry = gpucontext.NewRegistry[Opener](
	gpucontext.WithPriority(BackendVulkan, BackendNoop),
)

// priority mirrors the registry priority for ordered iteration.
var priority = []string{BackendVulkan, BackendNoop}

// Register registers an opener under name. This is typically called from
// init() functions. A second registration under the same name replaces the
// first.
func Register(name string, open Opener) {
	registry.Register(name, func() Opener { return open })
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registry.Unregister(name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	names := registry.Available()
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	return registry.Has(name)
}

// Best returns the name of the highest-priority registered backend, or ""
// when none is registered.
func Best() string {
	return registry.BestName()
}

// Open opens a device on the named backend.
func Open(name string) (gpucore.Device, error) {
	open := registry.Get(name)
	if open == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	dev, err := open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return dev, nil
}

// OpenDefault opens the best backend that succeeds: priority order first,
// then any other registered backend in name order. It returns the device
// and the name of the backend that opened it.
func OpenDefault() (gpucore.Device, string, error) {
	tried := make(map[string]bool)
	order := append([]string(nil), priority...)
	order = append(order, Available()...)

	var errs []error
	for _, name := range order {
		if tried[name] || !registry.Has(name) {
			continue
		}
		tried[name] = true
		dev, err := Open(name)
		if err != nil {
			gravsim.Logger().Warn("backend: open failed, trying next", "backend", name, "err", err)
			errs = append(errs, err)
			continue
		}
		return dev, name, nil
	}
	if len(errs) == 0 {
		return nil, "", ErrBackendNotAvailable
	}
	return nil, "", fmt.Errorf("%w: %w", ErrBackendNotAvailable, errors.Join(errs...))
}
