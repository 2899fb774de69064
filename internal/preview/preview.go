// Package preview renders committed simulation state to images.
//
// Colors follow the gravity shader's display texture so a CPU snapshot of
// the committed buffer looks like the GPU output.
package preview

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/gravsim"
)

// ErrSize is returned when the cell slice does not match the geometry.
var ErrSize = errors.New("preview: cell count does not match geometry")

// Display colors.
var (
	EmptyColor = color.RGBA{R: 5, G: 5, B: 13, A: 255}
	WallColor  = color.RGBA{R: 115, G: 115, B: 128, A: 255}
)

// CellColor returns the display color of one cell. Sand shifts toward red
// as the gravity pull on it grows.
func CellColor(c gravsim.CellRecord) color.RGBA {
	switch c.ParticleType {
	case gravsim.ParticleWall:
		return WallColor
	case gravsim.ParticleSand:
		heat := clamp01(c.GravityStrength * 0.05)
		return color.RGBA{
			R: unorm(0.9),
			G: unorm(0.75 - 0.4*heat),
			B: unorm(0.35),
			A: 255,
		}
	default:
		return EmptyColor
	}
}

// Render draws every cell as one pixel.
func Render(geom gravsim.Geometry, cells []gravsim.CellRecord) (*image.RGBA, error) {
	if len(cells) != geom.Cells() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSize, len(cells), geom.Cells())
	}
	img := image.NewRGBA(image.Rect(0, 0, int(geom.Width), int(geom.Height)))
	for y := 0; y < int(geom.Height); y++ {
		row := y * int(geom.Width)
		for x := 0; x < int(geom.Width); x++ {
			c := CellColor(cells[row+x])
			i := img.PixOffset(x, y)
			img.Pix[i+0] = c.R
			img.Pix[i+1] = c.G
			img.Pix[i+2] = c.B
			img.Pix[i+3] = c.A
		}
	}
	return img, nil
}

// Options control Snapshot output.
type Options struct {
	// Viewport selects the visible region. The zero value shows the whole grid.
	Viewport *gravsim.Viewport

	// Width and Height are the output size in pixels. Zero keeps the
	// viewport's size in cells.
	Width, Height int
}

// Snapshot renders the cells, crops to the viewport, and scales to the
// requested size. Scaling is nearest-neighbor so cells stay sharp.
func Snapshot(geom gravsim.Geometry, cells []gravsim.CellRecord, opts Options) (*image.RGBA, error) {
	full, err := Render(geom, cells)
	if err != nil {
		return nil, err
	}

	src := full.Bounds()
	if opts.Viewport != nil {
		src = opts.Viewport.Rect(geom)
	}

	w, h := opts.Width, opts.Height
	if w <= 0 {
		w = src.Dx()
	}
	if h <= 0 {
		h = src.Dy()
	}
	if src == full.Bounds() && w == src.Dx() && h == src.Dy() {
		return full, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), full, src, xdraw.Src, nil)
	return dst, nil
}

// EncodePNG writes a snapshot as PNG.
func EncodePNG(w io.Writer, geom gravsim.Geometry, cells []gravsim.CellRecord, opts Options) error {
	img, err := Snapshot(geom, cells, opts)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("preview: encode png: %w", err)
	}
	return nil
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func unorm(v float32) uint8 {
	return uint8(clamp01(v)*255 + 0.5)
}
