package gravsim

import (
	"fmt"

	"github.com/gogpu/gravsim/gpucore"
	"github.com/gogpu/gravsim/shaders"
)

// DefaultStallWarnAfter is the number of consecutive non-advancing ticks
// after which a pending pipeline wait is logged as a warning.
const DefaultStallWarnAfter = 120

// Config holds the settings of a Simulation.
type Config struct {
	// Geometry is the world size and dispatch tile.
	Geometry Geometry

	// Cycle is the ordered list of physics stages. Nil selects DefaultCycle.
	Cycle []Stage

	// Shader overrides the compute program. When its WGSL is empty the
	// embedded program is specialized for Geometry.
	Shader gpucore.ShaderSource

	// EntryPoints overrides the entry point compiled for a stage.
	EntryPoints map[Stage]string

	// Seed drives SeedWorld when InitialCells is nil.
	Seed int64

	// InitialCells is uploaded as the first committed state. Its length
	// must match the grid.
	InitialCells []CellRecord

	// StallWarnAfter is the tick count after which a pending wait is
	// logged. Zero disables the warning.
	StallWarnAfter uint64

	// Observers receive every FrameReport.
	Observers []FrameObserver
}

// Option configures a Simulation during creation.
//
// Example:
//
//	sim, err := gravsim.New(dev,
//		gravsim.WithWorldSize(512, 512),
//		gravsim.WithTileSize(16, 16),
//	)
type Option func(*Config)

// DefaultConfig returns the default configuration: a 1024x1024 world in
// 8x8 tiles with the gravity, impulse, position cycle.
func DefaultConfig() Config {
	return Config{
		Geometry:       DefaultGeometry(),
		StallWarnAfter: DefaultStallWarnAfter,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Geometry.Validate(); err != nil {
		return err
	}
	if c.Cycle != nil {
		if _, err := newTransitionTable(c.Cycle); err != nil {
			return err
		}
	}
	for s, ep := range c.EntryPoints {
		if s == StageLoading || !s.valid() {
			return fmt.Errorf("%w: entry point override for %v", ErrUnknownStage, s)
		}
		if ep == "" {
			return fmt.Errorf("gravsim: empty entry point for %v", s)
		}
	}
	if c.InitialCells != nil && len(c.InitialCells) != c.Geometry.Cells() {
		return fmt.Errorf("%w: %d initial cells for a %dx%d grid",
			ErrCellDataSize, len(c.InitialCells), c.Geometry.Width, c.Geometry.Height)
	}
	return nil
}

// entryPoint returns the entry point compiled for s.
func (c *Config) entryPoint(s Stage) string {
	if ep, ok := c.EntryPoints[s]; ok {
		return ep
	}
	return s.EntryPoint()
}

// shader returns the program to compile.
func (c *Config) shader() gpucore.ShaderSource {
	if c.Shader.WGSL != "" {
		return c.Shader
	}
	g := c.Geometry
	return shaders.Source(g.Width, g.Height, g.TileX, g.TileY)
}

// WithWorldSize sets the grid dimensions in cells.
func WithWorldSize(width, height uint32) Option {
	return func(c *Config) {
		c.Geometry.Width = width
		c.Geometry.Height = height
	}
}

// WithTileSize sets the workgroup tile.
func WithTileSize(tileX, tileY uint32) Option {
	return func(c *Config) {
		c.Geometry.TileX = tileX
		c.Geometry.TileY = tileY
	}
}

// WithStages sets the physics cycle.
func WithStages(cycle ...Stage) Option {
	return func(c *Config) {
		c.Cycle = append([]Stage(nil), cycle...)
	}
}

// WithShader replaces the embedded compute program. The source must declare
// every entry point the stages use and must define its own grid size.
func WithShader(src gpucore.ShaderSource) Option {
	return func(c *Config) {
		c.Shader = src
	}
}

// WithEntryPoint overrides the entry point compiled for one stage.
func WithEntryPoint(s Stage, entryPoint string) Option {
	return func(c *Config) {
		if c.EntryPoints == nil {
			c.EntryPoints = make(map[Stage]string)
		}
		c.EntryPoints[s] = entryPoint
	}
}

// WithSeed sets the seed of the generated initial world.
func WithSeed(seed int64) Option {
	return func(c *Config) {
		c.Seed = seed
	}
}

// WithInitialCells uploads cells instead of a generated world.
func WithInitialCells(cells []CellRecord) Option {
	return func(c *Config) {
		c.InitialCells = cells
	}
}

// WithStallWarnAfter sets the pending-wait warning threshold in ticks.
func WithStallWarnAfter(ticks uint64) Option {
	return func(c *Config) {
		c.StallWarnAfter = ticks
	}
}

// WithObserver adds a frame observer.
func WithObserver(o FrameObserver) Option {
	return func(c *Config) {
		if o != nil {
			c.Observers = append(c.Observers, o)
		}
	}
}
