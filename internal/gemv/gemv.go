package gemv

import "fmt"

// Compute is the run-to-completion form of one GEMV invocation:
//
//	y = quantize(W*x + bias)
//
// with w holding rows*cols int8 weights row-major. It drives a private
// compute core directly with compute-width tiles, bypassing the buffer
// collaborator, and is the reference the streaming path is tested against.
func Compute(w, x, bias []int8, rows, cols int) ([]int8, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: rows=%d cols=%d", ErrInvalidDimension, rows, cols)
	}
	if len(w) < rows*cols || len(x) < cols || len(bias) < rows {
		return nil, fmt.Errorf("%w: operand slices shorter than rows=%d cols=%d",
			ErrInvalidDimension, rows, cols)
	}

	const tileWidth = 32
	core, err := NewComputeCore(tileWidth, rows, cols)
	if err != nil {
		return nil, err
	}
	if err := core.Start(rows, cols); err != nil {
		return nil, err
	}

	feed := func(vals []int8, n int, f func([]int8) error) error {
		for off := 0; off < n; off += tileWidth {
			tile := make([]int8, tileWidth)
			copy(tile, vals[off:min(off+tileWidth, n)])
			if err := f(tile); err != nil {
				return err
			}
		}
		return nil
	}

	if err := feed(x, cols, core.FeedX); err != nil {
		return nil, err
	}
	if err := feed(bias, rows, core.FeedBias); err != nil {
		return nil, err
	}
	for r := 0; r < rows; r++ {
		if err := feed(w[r*cols:], cols, core.FeedWeights); err != nil {
			return nil, err
		}
	}

	y := make([]int8, 0, rows)
	for {
		tile, ok := core.ReadOutput()
		if !ok {
			break
		}
		y = append(y, tile...)
	}
	return y[:rows], nil
}
