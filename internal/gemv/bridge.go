package gemv

import "fmt"

// TileReader is the read half of the tile-buffer collaborator. The bool is
// the valid line: false means no tile was available on this attempt.
type TileReader interface {
	ReadTile(id int) ([]int8, bool)
}

// TileWriter is the write half of the tile-buffer collaborator.
type TileWriter interface {
	WriteTile(id int, tile []int8) error
}

// DefaultStallBudget bounds how many times the bridge re-requests a tile
// before declaring the collaborator stalled.
const DefaultStallBudget = 16

// Op holds the decoded operands of one GEMV instruction.
type Op struct {
	Dest int // destination buffer for the quantized result
	Bias int // bias vector buffer
	X    int // x vector buffer
	W    int // weight matrix buffer (rows*cols elements, row-major, packed)
	Rows int
	Cols int
}

// Bridge adapts between the buffer file's native tile width and the compute
// core's internal tile width, and sequences the streaming phases of one GEMV
// invocation: x, bias, one padded pass per weight row, then the re-tiled
// result write-back.
type Bridge struct {
	core        *ComputeCore
	reader      TileReader
	writer      TileWriter
	bufferWidth int
	stallBudget int
}

// NewBridge wires a compute core to the tile-buffer collaborator.
// bufferWidth is the collaborator's tile width, which need not match the
// core's.
func NewBridge(core *ComputeCore, r TileReader, w TileWriter, bufferWidth int) (*Bridge, error) {
	if bufferWidth <= 0 {
		return nil, fmt.Errorf("gemv: invalid buffer tile width %d", bufferWidth)
	}
	return &Bridge{
		core:        core,
		reader:      r,
		writer:      w,
		bufferWidth: bufferWidth,
		stallBudget: DefaultStallBudget,
	}, nil
}

// SetStallBudget overrides the per-tile request budget.
func (b *Bridge) SetStallBudget(n int) {
	if n > 0 {
		b.stallBudget = n
	}
}

// Run executes one GEMV invocation to completion. Dimension validation
// happens before any tile is requested; a failed run writes nothing to the
// destination buffer unless the failure occurs mid write-back.
func (b *Bridge) Run(op Op) error {
	if err := b.core.Start(op.Rows, op.Cols); err != nil {
		return err
	}

	xs := b.stream(op.X)
	if err := b.feedPhase(xs, op.Cols, b.core.FeedX); err != nil {
		return fmt.Errorf("x phase: %w", err)
	}

	bias := b.stream(op.Bias)
	if err := b.feedPhase(bias, op.Rows, b.core.FeedBias); err != nil {
		return fmt.Errorf("bias phase: %w", err)
	}

	// The weight buffer holds rows*cols elements packed contiguously; one
	// stream carries leftovers across row boundaries while each row is
	// padded to whole compute tiles on its way into the core.
	ws := b.stream(op.W)
	for r := 0; r < op.Rows; r++ {
		if err := b.feedPhase(ws, op.Cols, b.core.FeedWeights); err != nil {
			return fmt.Errorf("weight row %d: %w", r, err)
		}
	}

	return b.writeBack(op.Dest, op.Rows)
}

// tileStream pulls buffer-width tiles from one buffer and hands out exact
// element counts, carrying leftovers between requests. The carry never holds
// a full compute tile's worth once a phase slice has been taken.
type tileStream struct {
	br    *Bridge
	id    int
	carry []int8
}

func (b *Bridge) stream(id int) *tileStream {
	return &tileStream{br: b, id: id}
}

// take returns the next n fresh elements, fetching buffer tiles as needed.
func (s *tileStream) take(n int) ([]int8, error) {
	for len(s.carry) < n {
		tile, err := s.br.fetchTile(s.id)
		if err != nil {
			return nil, err
		}
		s.carry = append(s.carry, tile...)
	}
	out := s.carry[:n]
	s.carry = s.carry[n:]
	return out, nil
}

// fetchTile requests one tile from the collaborator, bounded by the stall
// budget.
func (b *Bridge) fetchTile(id int) ([]int8, error) {
	for attempt := 0; attempt < b.stallBudget; attempt++ {
		if tile, ok := b.reader.ReadTile(id); ok {
			return tile, nil
		}
	}
	return nil, fmt.Errorf("%w: buffer %d gave no tile in %d attempts", ErrStalled, id, b.stallBudget)
}

// feedPhase slices length elements from the stream into zero-padded
// compute-width tiles and feeds each to the core.
func (b *Bridge) feedPhase(s *tileStream, length int, feed func([]int8) error) error {
	cw := b.core.TileWidth()
	for off := 0; off < length; off += cw {
		n := min(cw, length-off)
		elems, err := s.take(n)
		if err != nil {
			return err
		}
		tile := make([]int8, cw)
		copy(tile, elems)
		if err := feed(tile); err != nil {
			return err
		}
	}
	return nil
}

// writeBack re-tiles compute-width result tiles into buffer-width tiles,
// carrying overflow elements into the start of the next output tile and
// zero-filling the final partial one. Exactly ceil(rows/bufferWidth) tiles
// are written.
func (b *Bridge) writeBack(dest, rows int) error {
	bw := b.bufferWidth
	target := (rows + bw - 1) / bw
	out := make([]int8, 0, 2*bw)
	written := 0

	for {
		tile, ok := b.core.ReadOutput()
		if !ok {
			break
		}
		out = append(out, tile...)
		for len(out) >= bw && written < target {
			if err := b.writer.WriteTile(dest, out[:bw]); err != nil {
				return fmt.Errorf("write-back tile %d: %w", written, err)
			}
			out = out[bw:]
			written++
		}
	}

	for written < target {
		tile := make([]int8, bw)
		n := min(len(out), bw)
		copy(tile, out[:n])
		out = out[n:]
		if err := b.writer.WriteTile(dest, tile); err != nil {
			return fmt.Errorf("write-back tile %d: %w", written, err)
		}
		written++
	}
	return nil
}
