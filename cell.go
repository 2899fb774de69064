package gravsim

import (
	"encoding/binary"
	"fmt"
	"math"
)

// CellSize is the byte size of one encoded CellRecord.
// 9 fields * 4 bytes = 36 bytes, no padding.
const CellSize = 36

// ParticleType identifies what occupies a cell.
type ParticleType uint32

// Particle types understood by the gravity shader.
const (
	ParticleEmpty ParticleType = iota
	ParticleSand
	ParticleWall
)

// String returns the particle type name.
func (p ParticleType) String() string {
	switch p {
	case ParticleEmpty:
		return "Empty"
	case ParticleSand:
		return "Sand"
	case ParticleWall:
		return "Wall"
	default:
		return fmt.Sprintf("ParticleType(%d)", uint32(p))
	}
}

// CellRecord is the physical state of one grid cell.
//
// The layout matches the WGSL Cell struct in shaders/gravity.wgsl, where
// each vector is stored as two f32 scalars to keep 4-byte alignment:
//
//	offset  0  to_source_x, to_source_y  f32, f32
//	offset  8  gravity_strength          f32
//	offset 12  particle_type             u32
//	offset 16  mass                      f32
//	offset 20  impulse_x, impulse_y      f32, f32
//	offset 28  rel_x, rel_y              f32, f32
//
// The zero value is the default cell: empty, massless, at rest.
type CellRecord struct {
	// ToGravitySource points from the cell to the accumulated gravity source.
	ToGravitySource [2]float32

	// GravityStrength is the magnitude of the gravity pull on the cell.
	GravityStrength float32

	// ParticleType is what occupies the cell.
	ParticleType ParticleType

	// Mass of the particle. Zero for empty cells.
	Mass float32

	// Impulse is the momentum accumulated this cycle.
	Impulse [2]float32

	// RelativePos is the sub-cell offset of the particle in [-0.5, 0.5].
	RelativePos [2]float32
}

// DefaultCell returns the default cell record.
func DefaultCell() CellRecord {
	return CellRecord{}
}

// IsEmpty reports whether no particle occupies the cell.
func (c CellRecord) IsEmpty() bool {
	return c.ParticleType == ParticleEmpty
}

// putBytes serializes the record into buf[:CellSize] in little-endian format.
func (c CellRecord) putBytes(buf []byte) {
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], math.Float32bits(c.ToGravitySource[0]))
	le.PutUint32(buf[4:8], math.Float32bits(c.ToGravitySource[1]))
	le.PutUint32(buf[8:12], math.Float32bits(c.GravityStrength))
	le.PutUint32(buf[12:16], uint32(c.ParticleType))
	le.PutUint32(buf[16:20], math.Float32bits(c.Mass))
	le.PutUint32(buf[20:24], math.Float32bits(c.Impulse[0]))
	le.PutUint32(buf[24:28], math.Float32bits(c.Impulse[1]))
	le.PutUint32(buf[28:32], math.Float32bits(c.RelativePos[0]))
	le.PutUint32(buf[32:36], math.Float32bits(c.RelativePos[1]))
}

// toBytes serializes the record to a new CellSize byte slice.
func (c CellRecord) toBytes() []byte {
	buf := make([]byte, CellSize)
	c.putBytes(buf)
	return buf
}

// cellFromBytes decodes one record from buf[:CellSize].
func cellFromBytes(buf []byte) CellRecord {
	le := binary.LittleEndian
	f := func(off int) float32 { return math.Float32frombits(le.Uint32(buf[off : off+4])) }
	return CellRecord{
		ToGravitySource: [2]float32{f(0), f(4)},
		GravityStrength: f(8),
		ParticleType:    ParticleType(le.Uint32(buf[12:16])),
		Mass:            f(16),
		Impulse:         [2]float32{f(20), f(24)},
		RelativePos:     [2]float32{f(28), f(32)},
	}
}

// EncodeCells serializes cells into a buffer ready for upload.
func EncodeCells(cells []CellRecord) []byte {
	buf := make([]byte, len(cells)*CellSize)
	for i := range cells {
		cells[i].putBytes(buf[i*CellSize:])
	}
	return buf
}

// DecodeCells parses a buffer of encoded records.
func DecodeCells(data []byte) ([]CellRecord, error) {
	if len(data)%CellSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrCellDataSize, len(data), CellSize)
	}
	cells := make([]CellRecord, len(data)/CellSize)
	for i := range cells {
		cells[i] = cellFromBytes(data[i*CellSize:])
	}
	return cells, nil
}
