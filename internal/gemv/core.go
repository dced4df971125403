package gemv

import "fmt"

// coreState tracks which streaming phase the compute core is in. The
// hardware's Idle/LoadX/LoadBias/Accumulate/.../Output progression is kept
// as an explicit enum so misuse of the tile handshake is detectable.
type coreState int

const (
	stateIdle coreState = iota
	stateLoadX
	stateLoadBias
	stateAccumulate
	stateOutput
	stateDone
)

func (s coreState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateLoadX:
		return "load-x"
	case stateLoadBias:
		return "load-bias"
	case stateAccumulate:
		return "accumulate"
	case stateOutput:
		return "output"
	case stateDone:
		return "done"
	}
	return "unknown"
}

// ComputeCore is the row/column accumulation engine. One invocation streams
// the x vector, the bias vector, and each weight row through fixed-width
// compute tiles, then quantizes the accumulators and streams the result back
// out.
//
// Tiling follows the per-row padding strategy: every weight row occupies a
// whole number of compute tiles, the last one zero-padded past cols. A
// compute tile never straddles two rows.
type ComputeCore struct {
	tileWidth int
	maxRows   int
	maxCols   int

	state coreState
	rows  int
	cols  int

	// x and acc are allocated fresh per invocation and sized to the call,
	// so no value can leak between back-to-back invocations.
	x   []int8
	acc []int32

	tilesSeen int // tiles consumed in the current load phase
	row       int // accumulate cursor
	colTile   int

	maxAbs uint32
	scale  uint32

	tilesOut int // result tiles emitted
}

// NewComputeCore creates a core with the given compute-tile width and
// dimension maximums.
func NewComputeCore(tileWidth, maxRows, maxCols int) (*ComputeCore, error) {
	if tileWidth <= 0 || maxRows <= 0 || maxCols <= 0 {
		return nil, fmt.Errorf("gemv: invalid core geometry tile=%d maxRows=%d maxCols=%d",
			tileWidth, maxRows, maxCols)
	}
	return &ComputeCore{tileWidth: tileWidth, maxRows: maxRows, maxCols: maxCols}, nil
}

// TileWidth returns the core's compute-tile width.
func (c *ComputeCore) TileWidth() int {
	return c.tileWidth
}

// Start begins a new invocation, validating the dimensions before any
// streaming. All per-invocation state is re-created from scratch.
func (c *ComputeCore) Start(rows, cols int) error {
	if rows <= 0 || rows > c.maxRows {
		return fmt.Errorf("%w: rows=%d outside [1, %d]", ErrInvalidDimension, rows, c.maxRows)
	}
	if cols <= 0 || cols > c.maxCols {
		return fmt.Errorf("%w: cols=%d outside [1, %d]", ErrInvalidDimension, cols, c.maxCols)
	}
	c.rows, c.cols = rows, cols
	c.x = make([]int8, cols)
	c.acc = make([]int32, rows)
	c.tilesSeen, c.row, c.colTile, c.tilesOut = 0, 0, 0, 0
	c.maxAbs, c.scale = 0, 0
	c.state = stateLoadX
	return nil
}

// tilesFor returns how many compute tiles carry n elements.
func (c *ComputeCore) tilesFor(n int) int {
	return (n + c.tileWidth - 1) / c.tileWidth
}

func (c *ComputeCore) checkTile(tile []int8) {
	// A wrong-sized tile is a bridge bug, not a runtime condition.
	if len(tile) != c.tileWidth {
		panic(fmt.Sprintf("gemv: misaligned tile of %d elements, core width %d", len(tile), c.tileWidth))
	}
}

// FeedX consumes one compute tile of the x vector. Elements past cols in the
// final tile are padding and are ignored.
func (c *ComputeCore) FeedX(tile []int8) error {
	if c.state != stateLoadX {
		return fmt.Errorf("gemv: FeedX in state %s", c.state)
	}
	c.checkTile(tile)
	base := c.tilesSeen * c.tileWidth
	for j, v := range tile {
		if idx := base + j; idx < c.cols {
			c.x[idx] = v
		}
	}
	c.tilesSeen++
	if c.tilesSeen == c.tilesFor(c.cols) {
		c.tilesSeen = 0
		c.state = stateLoadBias
	}
	return nil
}

// FeedBias consumes one compute tile of the bias vector. Each element is
// sign-extended into the accumulator as its initial value; bias seeds the
// accumulation, it is not added afterwards.
func (c *ComputeCore) FeedBias(tile []int8) error {
	if c.state != stateLoadBias {
		return fmt.Errorf("gemv: FeedBias in state %s", c.state)
	}
	c.checkTile(tile)
	base := c.tilesSeen * c.tileWidth
	for j, v := range tile {
		if idx := base + j; idx < c.rows {
			c.acc[idx] = int32(v)
		}
	}
	c.tilesSeen++
	if c.tilesSeen == c.tilesFor(c.rows) {
		c.tilesSeen = 0
		c.state = stateAccumulate
	}
	return nil
}

// FeedWeights consumes one compute tile of the current weight row, padded
// past cols with zeros, and adds its dot product with the matching x slice
// into the row accumulator. Rows arrive in order, each as exactly
// ceil(cols/tileWidth) tiles; after the last tile of the last row the core
// quantizes and becomes readable.
func (c *ComputeCore) FeedWeights(tile []int8) error {
	if c.state != stateAccumulate {
		return fmt.Errorf("gemv: FeedWeights in state %s", c.state)
	}
	c.checkTile(tile)
	base := c.colTile * c.tileWidth
	sum := int32(0)
	for j, w := range tile {
		if idx := base + j; idx < c.cols {
			sum = mulAcc8(sum, w, c.x[idx])
		}
	}
	c.acc[c.row] += sum

	c.colTile++
	if c.colTile == c.tilesFor(c.cols) {
		c.colTile = 0
		c.row++
		if c.row == c.rows {
			c.finalize()
		}
	}
	return nil
}

// finalize runs the post-accumulation stages: max-|value| search, reciprocal
// scale, and the in-place narrowing quantization of every accumulator.
func (c *ComputeCore) finalize() {
	for _, v := range c.acc {
		a := uint32(v)
		if v < 0 {
			a = uint32(-int64(v))
		}
		if a > c.maxAbs {
			c.maxAbs = a
		}
	}
	if c.maxAbs == 0 {
		// Degenerate all-zero accumulator; not an error.
		c.maxAbs = 1
	}
	c.scale = ReciprocalScale(c.maxAbs)
	for i, v := range c.acc {
		c.acc[i] = int32(Quantize(v, c.scale))
	}
	c.state = stateOutput
}

// ReadOutput emits the next compute tile of quantized results. Slots past
// rows are zero. Returns false once all ceil(rows/tileWidth) tiles have been
// emitted; the invocation is then done.
func (c *ComputeCore) ReadOutput() ([]int8, bool) {
	if c.state != stateOutput {
		return nil, false
	}
	tile := make([]int8, c.tileWidth)
	base := c.tilesOut * c.tileWidth
	for j := range tile {
		if idx := base + j; idx < c.rows {
			tile[j] = int8(c.acc[idx])
		}
	}
	c.tilesOut++
	if c.tilesOut == c.tilesFor(c.rows) {
		c.state = stateDone
	}
	return tile, true
}

// Done reports whether the invocation has fully drained.
func (c *ComputeCore) Done() bool {
	return c.state == stateDone
}

// Scale returns the Q8.24 reciprocal scale of the last invocation, valid
// once accumulation has finished.
func (c *ComputeCore) Scale() uint32 {
	return c.scale
}

// MaxAbs returns the accumulator maximum the scale was derived from, after
// the division-by-zero guard.
func (c *ComputeCore) MaxAbs() uint32 {
	return c.maxAbs
}
