package gravsim

import (
	"math"
	"math/rand"
)

// Ring bounds of the seeded world, as fractions of half the shorter side.
const (
	ringInner   = 0.35
	ringOuter   = 0.6
	ringDensity = 0.5
)

// SeedWorld generates a deterministic initial world for geom: a wall border
// and a ring of unit-mass sand around the grid center, where the gravity
// well sits. The same seed always yields the same cells.
func SeedWorld(geom Geometry, seed int64) []CellRecord {
	cells := make([]CellRecord, geom.Cells())
	if len(cells) == 0 {
		return cells
	}
	rng := rand.New(rand.NewSource(seed))

	w, h := int(geom.Width), int(geom.Height)
	cx, cy := float64(w)/2, float64(h)/2
	half := math.Min(cx, cy)
	inner, outer := half*ringInner, half*ringOuter

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := geom.Index(uint32(x), uint32(y))
			if x == 0 || y == 0 || x == w-1 || y == h-1 {
				cells[i] = CellRecord{ParticleType: ParticleWall}
				continue
			}
			d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
			if d < inner || d > outer || rng.Float64() >= ringDensity {
				continue
			}
			cells[i] = CellRecord{
				ParticleType: ParticleSand,
				Mass:         1,
				RelativePos: [2]float32{
					float32(rng.Float64() - 0.5),
					float32(rng.Float64() - 0.5),
				},
			}
		}
	}
	return cells
}

// CountParticles returns the number of cells of each particle type.
func CountParticles(cells []CellRecord) map[ParticleType]int {
	counts := make(map[ParticleType]int, 3)
	for i := range cells {
		counts[cells[i].ParticleType]++
	}
	return counts
}
