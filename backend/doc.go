// Package backend selects the compute device a simulation runs on.
//
// # Backend Registration
//
// Device openers are registered by name, typically from init() functions.
// The HAL backends are registered on import of the gpu package:
//
//	import _ "github.com/gogpu/gravsim/gpu"
//
// # Backend Selection
//
// Use OpenDefault to get the best backend that opens, or Open to request
// a specific one by name:
//
//	dev, name, err := backend.OpenDefault()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	// Or request a specific backend
//	dev, err := backend.Open(backend.BackendNoop)
//
// Priority order: vulkan > noop. Backends registered under other names are
// tried after those, in name order.
package backend
