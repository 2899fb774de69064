package gravsim

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gravsim/gpucore"
)

// DisplayFormat is the texel format of the display surface.
const DisplayFormat = gputypes.TextureFormatRGBA8Unorm

// SimulationBuffers owns the two cell generations and the display surface.
//
// At any time the previous buffer holds the committed state, read by the
// current cycle, and the next buffer is the write target. Swap exchanges the
// roles by exchanging handles; no data is copied. Buffers are allocated once
// from the geometry and never resized.
//
// SimulationBuffers has a single owner and is not safe for concurrent use.
type SimulationBuffers struct {
	dev  gpucore.Device
	geom Geometry

	prev    gpucore.BufferID
	next    gpucore.BufferID
	display gpucore.TextureID

	generation uint64
	released   bool
}

// NewSimulationBuffers allocates both cell generations and the display
// surface for geom. Partially created resources are released on failure.
func NewSimulationBuffers(dev gpucore.Device, geom Geometry) (*SimulationBuffers, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	b := &SimulationBuffers{dev: dev, geom: geom}

	usage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	var err error
	if b.prev, err = dev.CreateBuffer(gpucore.BufferDesc{
		Label: "gravsim_cells_a",
		Size:  geom.CellBufferSize(),
		Usage: usage,
	}); err != nil {
		return nil, fmt.Errorf("create cell buffer a: %w", err)
	}
	if b.next, err = dev.CreateBuffer(gpucore.BufferDesc{
		Label: "gravsim_cells_b",
		Size:  geom.CellBufferSize(),
		Usage: usage,
	}); err != nil {
		b.destroyPartialInit()
		return nil, fmt.Errorf("create cell buffer b: %w", err)
	}
	if b.display, err = dev.CreateTexture(gpucore.TextureDesc{
		Label:  "gravsim_display",
		Width:  geom.Width,
		Height: geom.Height,
		Format: DisplayFormat,
		Usage: gputypes.TextureUsageStorageBinding | gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageCopySrc,
	}); err != nil {
		b.destroyPartialInit()
		return nil, fmt.Errorf("create display texture: %w", err)
	}

	Logger().Debug("gravsim: simulation buffers allocated",
		"width", geom.Width, "height", geom.Height, "bytes_per_buffer", geom.CellBufferSize())
	return b, nil
}

// destroyPartialInit releases whatever NewSimulationBuffers created so far.
func (b *SimulationBuffers) destroyPartialInit() {
	if b.display != gpucore.InvalidID {
		b.dev.DestroyTexture(b.display)
		b.display = gpucore.InvalidID
	}
	if b.next != gpucore.InvalidID {
		b.dev.DestroyBuffer(b.next)
		b.next = gpucore.InvalidID
	}
	if b.prev != gpucore.InvalidID {
		b.dev.DestroyBuffer(b.prev)
		b.prev = gpucore.InvalidID
	}
}

// Geometry returns the grid the buffers were sized for.
func (b *SimulationBuffers) Geometry() Geometry { return b.geom }

// Previous returns the committed (read) buffer.
func (b *SimulationBuffers) Previous() gpucore.BufferID { return b.prev }

// Next returns the write target buffer.
func (b *SimulationBuffers) Next() gpucore.BufferID { return b.next }

// Display returns the display surface.
func (b *SimulationBuffers) Display() gpucore.TextureID { return b.display }

// Generation returns the number of swaps performed.
func (b *SimulationBuffers) Generation() uint64 { return b.generation }

// Swap exchanges the previous and next roles. Swap is its own inverse.
func (b *SimulationBuffers) Swap() {
	b.prev, b.next = b.next, b.prev
	b.generation++
}

// Upload writes cells as the committed state. len(cells) must equal the
// number of grid cells.
func (b *SimulationBuffers) Upload(cells []CellRecord) error {
	if b.released {
		return ErrReleased
	}
	if len(cells) != b.geom.Cells() {
		return fmt.Errorf("%w: %d cells for a %dx%d grid", ErrCellDataSize, len(cells), b.geom.Width, b.geom.Height)
	}
	if err := b.dev.WriteBuffer(b.prev, 0, EncodeCells(cells)); err != nil {
		return fmt.Errorf("upload cells: %w", err)
	}
	return nil
}

// ReadCommitted reads back and decodes the committed state.
func (b *SimulationBuffers) ReadCommitted() ([]CellRecord, error) {
	if b.released {
		return nil, ErrReleased
	}
	data, err := b.dev.ReadBuffer(b.prev, 0, b.geom.CellBufferSize())
	if err != nil {
		return nil, fmt.Errorf("read committed cells: %w", err)
	}
	return DecodeCells(data)
}

// Release frees the buffers and the display surface. It is idempotent.
func (b *SimulationBuffers) Release() {
	if b.released {
		return
	}
	b.destroyPartialInit()
	b.released = true
}
