package gemv

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReciprocalScaleClosedForm(t *testing.T) {
	cases := []struct {
		maxAbs uint32
		want   uint32
	}{
		{0, 0},
		{1, 127 << 24},
		{15, uint32((uint64(127) << 24) / 15)},
		{127, 1 << 24},
		{128, uint32((uint64(127) << 24) / 128)},
		{math.MaxUint32, 0}, // 127<<24 / 2^32-1 floors to zero
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ReciprocalScale(tc.maxAbs), "maxAbs=%d", tc.maxAbs)
	}
}

// The 32-step restoring divider and ordinary unsigned integer division are
// required to agree bit-for-bit everywhere.
func TestReciprocalScaleRestoringEquivalence(t *testing.T) {
	for maxAbs := uint32(1); maxAbs <= 1<<16; maxAbs++ {
		if got, want := reciprocalScaleRestoring(maxAbs), ReciprocalScale(maxAbs); got != want {
			t.Fatalf("maxAbs=%d: restoring=%#x closed-form=%#x", maxAbs, got, want)
		}
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100000; i++ {
		maxAbs := uint32(rng.Int63n(math.MaxInt32-1)) + 1
		if got, want := reciprocalScaleRestoring(maxAbs), ReciprocalScale(maxAbs); got != want {
			t.Fatalf("maxAbs=%d: restoring=%#x closed-form=%#x", maxAbs, got, want)
		}
	}

	for _, edge := range []uint32{1, 2, 3, math.MaxInt32 - 1, math.MaxInt32, math.MaxUint32} {
		assert.Equal(t, ReciprocalScale(edge), reciprocalScaleRestoring(edge), "maxAbs=%d", edge)
	}
}

func TestQuantizeIdentityScale(t *testing.T) {
	// scale 1<<24 is 1.0 in Q8.24: quantize degenerates to clamp.
	const one = uint32(1) << 24
	for _, v := range []int32{0, 1, -1, 5, 127, 128, 1000, -128, -129, -1000,
		math.MaxInt32, math.MinInt32} {
		want := v
		if want > 127 {
			want = 127
		}
		if want < -128 {
			want = -128
		}
		assert.Equal(t, int8(want), Quantize(v, one), "v=%d", v)
	}
}

func TestQuantizeSaturation(t *testing.T) {
	assert.Equal(t, int8(127), Quantize(127<<24, 1<<24))
	assert.Equal(t, int8(127), Quantize(math.MaxInt32, 127<<24))
	assert.Equal(t, int8(-128), Quantize(math.MinInt32, 127<<24))
}

func TestQuantizeRoundHalfUp(t *testing.T) {
	// With scale 1<<23 (0.5 in Q8.24), odd inputs land exactly on .5 and
	// must round away from zero toward larger magnitude.
	const half = uint32(1) << 23
	assert.Equal(t, int8(2), Quantize(3, half), "1.5 rounds to 2")
	assert.Equal(t, int8(3), Quantize(5, half), "2.5 rounds to 3, not round-to-even")
	// Two's complement half-up: -1.5 rounds toward -1.
	assert.Equal(t, int8(-1), Quantize(-3, half))
	assert.Equal(t, int8(-2), Quantize(-5, half))
	assert.Equal(t, int8(1), Quantize(2, half))
	assert.Equal(t, int8(-1), Quantize(-2, half))
}

func TestQuantizeWorkedExample(t *testing.T) {
	// The rows=2 cols=3 example: accumulators [6, 15], max 15.
	scale := ReciprocalScale(15)
	require.Equal(t, uint32(142047095), scale)
	assert.Equal(t, int8(51), Quantize(6, scale))
	assert.Equal(t, int8(127), Quantize(15, scale), "the max row quantizes to exactly 127")
}

func TestMulAcc8(t *testing.T) {
	assert.Equal(t, int32(6), mulAcc8(0, 2, 3))
	assert.Equal(t, int32(-6), mulAcc8(0, -2, 3))
	// -128 * -128 must not wrap in 16 bits before widening.
	assert.Equal(t, int32(16384), mulAcc8(0, -128, -128))
	assert.Equal(t, int32(16394), mulAcc8(10, -128, -128))
}
