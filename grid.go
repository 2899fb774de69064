package gravsim

import "fmt"

// Default grid configuration.
const (
	DefaultWorldWidth  = 1024
	DefaultWorldHeight = 1024
	DefaultTileSize    = 8
)

// Geometry is the fixed shape of the simulation domain.
//
// Width and Height need not be multiples of the tile size. Dispatch counts
// round up and every shader entry point discards invocations outside the
// grid, so partial edge tiles are safe.
type Geometry struct {
	Width, Height uint32
	TileX, TileY  uint32
}

// DefaultGeometry returns the 1024x1024 grid over 8x8 tiles.
func DefaultGeometry() Geometry {
	return Geometry{
		Width:  DefaultWorldWidth,
		Height: DefaultWorldHeight,
		TileX:  DefaultTileSize,
		TileY:  DefaultTileSize,
	}
}

// Validate reports whether the geometry can be allocated and dispatched.
func (g Geometry) Validate() error {
	if g.Width == 0 || g.Height == 0 {
		return fmt.Errorf("%w: world %dx%d", ErrInvalidGeometry, g.Width, g.Height)
	}
	if g.TileX == 0 || g.TileY == 0 {
		return fmt.Errorf("%w: tile %dx%d", ErrInvalidGeometry, g.TileX, g.TileY)
	}
	return nil
}

// Cells returns the number of grid cells.
func (g Geometry) Cells() int {
	return int(g.Width) * int(g.Height)
}

// CellBufferSize returns the byte size of one full generation of cells.
func (g Geometry) CellBufferSize() uint64 {
	return uint64(g.Width) * uint64(g.Height) * CellSize
}

// Aligned reports whether the grid is an exact multiple of the tile size.
func (g Geometry) Aligned() bool {
	return g.Width%g.TileX == 0 && g.Height%g.TileY == 0
}

// DispatchCounts returns the workgroup counts covering the grid.
func (g Geometry) DispatchCounts() (x, y, z uint32) {
	return DispatchCounts(g.Width, g.Height, g.TileX, g.TileY)
}

// Index returns the linear cell index of (x, y) in row-major order.
func (g Geometry) Index(x, y uint32) int {
	return int(y)*int(g.Width) + int(x)
}

// DispatchCounts maps a width x height domain onto tileX x tileY workgroups:
// (ceil(width/tileX), ceil(height/tileY), 1). A zero tile yields zero counts.
func DispatchCounts(width, height, tileX, tileY uint32) (x, y, z uint32) {
	if tileX == 0 || tileY == 0 {
		return 0, 0, 0
	}
	return ceilDiv(width, tileX), ceilDiv(height, tileY), 1
}

func ceilDiv(n, d uint32) uint32 {
	return (n + d - 1) / d
}
