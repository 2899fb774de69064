//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// ErrReflect is returned when a program does not fit its pipeline layout.
var ErrReflect = errors.New("gpu: shader does not match layout")

// BindingKind classifies a shader resource binding.
type BindingKind int

const (
	// BindingOther is any resource this package does not bind.
	BindingOther BindingKind = iota

	// BindingStorageBuffer is a var<storage> buffer.
	BindingStorageBuffer

	// BindingUniformBuffer is a var<uniform> buffer.
	BindingUniformBuffer

	// BindingHandle is a texture, storage texture or sampler.
	BindingHandle
)

// String returns the binding kind name.
func (k BindingKind) String() string {
	switch k {
	case BindingStorageBuffer:
		return "storage"
	case BindingUniformBuffer:
		return "uniform"
	case BindingHandle:
		return "handle"
	default:
		return "other"
	}
}

// ShaderBinding is one resource declared by a program.
type ShaderBinding struct {
	Name    string
	Group   uint32
	Binding uint32
	Kind    BindingKind
}

// Reflection describes a compute entry point and the resources it can see.
type Reflection struct {
	EntryPoint string
	Workgroup  [3]uint32
	Bindings   []ShaderBinding
}

// Reflect parses wgsl and checks that entryPoint is a compute entry point
// whose group 0 bindings all appear in entries with a compatible kind.
func Reflect(wgsl, entryPoint string, entries []gputypes.BindGroupLayoutEntry) (Reflection, error) {
	ast, err := naga.Parse(wgsl)
	if err != nil {
		return Reflection{}, fmt.Errorf("parse: %w", err)
	}
	module, err := naga.LowerWithSource(ast, wgsl)
	if err != nil {
		return Reflection{}, fmt.Errorf("lower: %w", err)
	}

	var ep *ir.EntryPoint
	for i := range module.EntryPoints {
		if module.EntryPoints[i].Name == entryPoint {
			ep = &module.EntryPoints[i]
			break
		}
	}
	if ep == nil {
		return Reflection{}, fmt.Errorf("%w: entry point %q not found", ErrReflect, entryPoint)
	}
	if ep.Stage != ir.StageCompute {
		return Reflection{}, fmt.Errorf("%w: entry point %q is not a compute shader", ErrReflect, entryPoint)
	}

	r := Reflection{EntryPoint: ep.Name, Workgroup: ep.Workgroup}
	byBinding := make(map[uint32]gputypes.BindGroupLayoutEntry, len(entries))
	for _, e := range entries {
		byBinding[e.Binding] = e
	}

	for _, gv := range module.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		b := ShaderBinding{
			Name:    gv.Name,
			Group:   gv.Binding.Group,
			Binding: gv.Binding.Binding,
			Kind:    bindingKind(gv.Space),
		}
		r.Bindings = append(r.Bindings, b)

		if b.Group != 0 {
			return r, fmt.Errorf("%w: %s uses group %d, only group 0 is bound", ErrReflect, b.Name, b.Group)
		}
		e, ok := byBinding[b.Binding]
		if !ok {
			return r, fmt.Errorf("%w: %s at binding %d has no layout entry", ErrReflect, b.Name, b.Binding)
		}
		if !kindMatches(b.Kind, e) {
			return r, fmt.Errorf("%w: %s at binding %d is %v, layout entry differs", ErrReflect, b.Name, b.Binding, b.Kind)
		}
	}
	sort.Slice(r.Bindings, func(i, j int) bool { return r.Bindings[i].Binding < r.Bindings[j].Binding })
	return r, nil
}

func bindingKind(space ir.AddressSpace) BindingKind {
	switch space {
	case ir.SpaceStorage:
		return BindingStorageBuffer
	case ir.SpaceUniform:
		return BindingUniformBuffer
	case ir.SpaceHandle:
		return BindingHandle
	default:
		return BindingOther
	}
}

func kindMatches(k BindingKind, e gputypes.BindGroupLayoutEntry) bool {
	switch k {
	case BindingStorageBuffer:
		return e.Buffer != nil && (e.Buffer.Type == gputypes.BufferBindingTypeStorage ||
			e.Buffer.Type == gputypes.BufferBindingTypeReadOnlyStorage)
	case BindingUniformBuffer:
		return e.Buffer != nil && e.Buffer.Type == gputypes.BufferBindingTypeUniform
	case BindingHandle:
		return e.StorageTexture != nil || e.Texture != nil || e.Sampler != nil
	default:
		return false
	}
}
