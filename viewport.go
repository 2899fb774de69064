package gravsim

import "image"

// Zoom limits and default of a Viewport.
const (
	MinViewportScale     = 0.025
	MaxViewportScale     = 1.0
	DefaultViewportScale = 0.5
)

// Viewport is the visible window onto the world.
//
// Center is in cell coordinates. Scale is the visible fraction of each
// world dimension: 1 shows the whole grid, smaller values zoom in.
type Viewport struct {
	Center [2]float32
	Scale  float32
}

// NewViewport returns a viewport centered on geom at the default scale.
func NewViewport(geom Geometry) Viewport {
	return Viewport{
		Center: [2]float32{float32(geom.Width) / 2, float32(geom.Height) / 2},
		Scale:  DefaultViewportScale,
	}
}

// Pan moves the center by (dx, dy) cells.
func (v *Viewport) Pan(dx, dy float32) {
	v.Center[0] += dx
	v.Center[1] += dy
}

// Zoom changes the scale by delta and clamps it to
// [MinViewportScale, MaxViewportScale].
func (v *Viewport) Zoom(delta float32) {
	v.Scale = clampScale(v.Scale + delta)
}

func clampScale(s float32) float32 {
	if s < MinViewportScale {
		return MinViewportScale
	}
	if s > MaxViewportScale {
		return MaxViewportScale
	}
	return s
}

// Rect returns the visible cell rectangle, shifted to stay inside the grid.
// The rectangle is at least one cell in each dimension.
func (v Viewport) Rect(geom Geometry) image.Rectangle {
	scale := clampScale(v.Scale)
	w := max(int(float32(geom.Width)*scale), 1)
	h := max(int(float32(geom.Height)*scale), 1)

	x0 := int(v.Center[0]) - w/2
	y0 := int(v.Center[1]) - h/2
	x0 = min(max(x0, 0), int(geom.Width)-w)
	y0 = min(max(y0, 0), int(geom.Height)-h)
	return image.Rect(x0, y0, x0+w, y0+h)
}
