// Package buffer implements the accelerator's tile-buffer file: a fixed set
// of addressable ring buffers, each holding a configured number of
// fixed-width int8 tiles with independent read and write cursors.
package buffer

import (
	"errors"
	"fmt"
)

// ErrFull is returned when a write lands on a buffer at capacity.
var ErrFull = errors.New("buffer: buffer full")

// File is the set of tile buffers shared by the load/store units and the
// GEMV engine. All buffers in a file have the same tile width.
type File struct {
	tileWidth int
	bufs      []ring
}

type ring struct {
	tiles [][]int8
	rd    int // next tile to read
	wr    int // next slot to write
	count int // tiles currently held
}

// NewFile creates a buffer file of n buffers, each holding up to
// tilesPerBuffer tiles of tileWidth int8 elements.
func NewFile(n, tilesPerBuffer, tileWidth int) (*File, error) {
	if n <= 0 || tilesPerBuffer <= 0 || tileWidth <= 0 {
		return nil, fmt.Errorf("buffer: invalid file geometry %d x %d x %d", n, tilesPerBuffer, tileWidth)
	}
	f := &File{tileWidth: tileWidth, bufs: make([]ring, n)}
	for i := range f.bufs {
		f.bufs[i].tiles = make([][]int8, tilesPerBuffer)
	}
	return f, nil
}

// TileWidth returns the width of every tile in the file.
func (f *File) TileWidth() int {
	return f.tileWidth
}

// NumBuffers returns the number of buffers in the file.
func (f *File) NumBuffers() int {
	return len(f.bufs)
}

// Capacity returns the tile capacity of each buffer.
func (f *File) Capacity() int {
	return len(f.bufs[0].tiles)
}

// WriteTile appends one tile to buffer id. The tile is copied; callers may
// reuse their slice. Short tiles are zero-padded to the file's tile width.
func (f *File) WriteTile(id int, tile []int8) error {
	r, err := f.ring(id)
	if err != nil {
		return err
	}
	if len(tile) > f.tileWidth {
		return fmt.Errorf("buffer: tile of %d elements exceeds width %d", len(tile), f.tileWidth)
	}
	if r.count == len(r.tiles) {
		return fmt.Errorf("buffer %d: %w", id, ErrFull)
	}
	stored := make([]int8, f.tileWidth)
	copy(stored, tile)
	r.tiles[r.wr] = stored
	r.wr = (r.wr + 1) % len(r.tiles)
	r.count++
	return nil
}

// ReadTile pops the next tile from buffer id. The second return is false
// when no tile is available (or the id is out of range), the pull-model
// equivalent of a deasserted valid line.
func (f *File) ReadTile(id int) ([]int8, bool) {
	r, err := f.ring(id)
	if err != nil || r.count == 0 {
		return nil, false
	}
	tile := r.tiles[r.rd]
	r.tiles[r.rd] = nil
	r.rd = (r.rd + 1) % len(r.tiles)
	r.count--
	return tile, true
}

// Len returns the number of tiles currently held in buffer id.
func (f *File) Len(id int) int {
	r, err := f.ring(id)
	if err != nil {
		return 0
	}
	return r.count
}

// Reset clears buffer id's contents and cursors.
func (f *File) Reset(id int) error {
	r, err := f.ring(id)
	if err != nil {
		return err
	}
	for i := range r.tiles {
		r.tiles[i] = nil
	}
	r.rd, r.wr, r.count = 0, 0, 0
	return nil
}

// ResetAll clears every buffer in the file.
func (f *File) ResetAll() {
	for i := range f.bufs {
		f.Reset(i)
	}
}

// Drain pops up to n elements from buffer id across however many tiles that
// takes, returning them as a flat slice. Used by the STORE path.
func (f *File) Drain(id, n int) ([]int8, error) {
	out := make([]int8, 0, n)
	for len(out) < n {
		tile, ok := f.ReadTile(id)
		if !ok {
			return out, fmt.Errorf("buffer %d: drained %d of %d elements, buffer empty", id, len(out), n)
		}
		take := min(len(tile), n-len(out))
		out = append(out, tile[:take]...)
	}
	return out, nil
}

// Fill writes the elements into buffer id as zero-padded tiles.
// Used by the LOAD_V/LOAD_M paths.
func (f *File) Fill(id int, elems []int8) error {
	for off := 0; off < len(elems); off += f.tileWidth {
		end := min(off+f.tileWidth, len(elems))
		if err := f.WriteTile(id, elems[off:end]); err != nil {
			return err
		}
	}
	return nil
}

func (f *File) ring(id int) (*ring, error) {
	if id < 0 || id >= len(f.bufs) {
		return nil, fmt.Errorf("buffer: id %d out of range [0, %d)", id, len(f.bufs))
	}
	return &f.bufs[id], nil
}
