// Package shaders holds the WGSL compute program of the simulation.
//
// The program is specialized per world before compilation: grid dimensions
// are prepended as module constants and the workgroup size is set to the
// dispatch tile.
package shaders

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gogpu/gravsim/gpucore"
)

//go:embed gravity.wgsl
var gravityWGSL string

// Label is the shader module label used for the default program.
const Label = "gravity"

// defaultWorkgroup is the workgroup attribute as written in gravity.wgsl.
const defaultWorkgroup = "@workgroup_size(8, 8, 1)"

// EntryPoints lists the compute entry points of the default program in
// state-machine order.
var EntryPoints = []string{"init", "pre_update", "update_gravity", "update_impulse", "update_position"}

// Raw returns the embedded WGSL without the grid prelude.
func Raw() string { return gravityWGSL }

// Source returns the default program specialized for a width x height grid
// dispatched in tileX x tileY workgroups.
func Source(width, height, tileX, tileY uint32) gpucore.ShaderSource {
	return Specialize(Label, gravityWGSL, width, height, tileX, tileY)
}

// Specialize prepends the grid constants to a WGSL program and rewrites
// its 8x8 workgroup attributes to tileX x tileY. Programs that declare
// other workgroup sizes keep them.
func Specialize(label, wgsl string, width, height, tileX, tileY uint32) gpucore.ShaderSource {
	var b strings.Builder
	fmt.Fprintf(&b, "const GRID_WIDTH: u32 = %du;\n", width)
	fmt.Fprintf(&b, "const GRID_HEIGHT: u32 = %du;\n\n", height)
	if tileX != 8 || tileY != 8 {
		wgsl = strings.ReplaceAll(wgsl, defaultWorkgroup,
			fmt.Sprintf("@workgroup_size(%d, %d, 1)", tileX, tileY))
	}
	b.WriteString(wgsl)
	return gpucore.ShaderSource{Label: label, WGSL: b.String()}
}
