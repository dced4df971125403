package machine

import "fmt"

// Instruction fields are 10 bits wide, so no dimension operand can exceed
// this regardless of configured maximums.
const maxDimensionField = 1023

// Geometry describes the accelerator's compile-time shape: memory size,
// buffer-file layout, tile widths, and the GEMV engine's dimension caps.
type Geometry struct {
	MemorySize       int `json:"memory_size"`
	Buffers          int `json:"buffers"`
	TilesPerBuffer   int `json:"tiles_per_buffer"`
	BufferTileWidth  int `json:"buffer_tile_width"`
	ComputeTileWidth int `json:"compute_tile_width"`
	MaxRows          int `json:"max_rows"`
	MaxColumns       int `json:"max_columns"`
}

// DefaultGeometry returns the reference configuration: 64KB of memory, 32
// buffers of 64 32-wide tiles, and a 6-wide compute tile so the bridge's
// re-tiling path is exercised by default.
func DefaultGeometry() Geometry {
	return Geometry{
		MemorySize:       64 * 1024,
		Buffers:          32,
		TilesPerBuffer:   64,
		BufferTileWidth:  32,
		ComputeTileWidth: 6,
		MaxRows:          maxDimensionField,
		MaxColumns:       maxDimensionField,
	}
}

// Validate rejects geometries the instruction format or buffer file cannot
// represent.
func (g Geometry) Validate() error {
	switch {
	case g.MemorySize < 8:
		return fmt.Errorf("machine: memory size %d too small for one instruction", g.MemorySize)
	case g.Buffers < 1 || g.Buffers > 32:
		return fmt.Errorf("machine: buffer count %d outside [1, 32]", g.Buffers)
	case g.TilesPerBuffer < 1:
		return fmt.Errorf("machine: tiles per buffer %d", g.TilesPerBuffer)
	case g.BufferTileWidth < 1:
		return fmt.Errorf("machine: buffer tile width %d", g.BufferTileWidth)
	case g.ComputeTileWidth < 1:
		return fmt.Errorf("machine: compute tile width %d", g.ComputeTileWidth)
	case g.MaxRows < 1 || g.MaxRows > maxDimensionField:
		return fmt.Errorf("machine: max rows %d outside [1, %d]", g.MaxRows, maxDimensionField)
	case g.MaxColumns < 1 || g.MaxColumns > maxDimensionField:
		return fmt.Errorf("machine: max columns %d outside [1, %d]", g.MaxColumns, maxDimensionField)
	}
	return nil
}
