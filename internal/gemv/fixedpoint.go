// Package gemv implements the GEMV execution engine: a tile-streaming
// bridge feeding a fixed-point compute core that performs bias-initialized
// int32 accumulation over int8 operands, computes a Q8.24 reciprocal scale
// from the accumulator maximum, and quantizes every row back to int8.
package gemv

// Q8.24 fixed-point parameters shared by the reciprocal-scale unit and the
// quantizer.
const (
	// FractionBits is the number of fractional bits in the reciprocal scale.
	FractionBits = 24

	// roundingBias added before the fractional shift rounds half values
	// away from zero (round-half-up in two's complement).
	roundingBias = 1 << (FractionBits - 1)

	// QuantMax and QuantMin bound the quantized output range.
	QuantMax = 127
	QuantMin = -128
)

// mulAcc8 is the 8x8->16 multiply-accumulate primitive: acc plus the exact
// signed product of two int8 operands.
func mulAcc8(acc int32, a, b int8) int32 {
	return acc + int32(int16(a)*int16(b))
}

// ReciprocalScale returns floor((127 << 24) / maxAbs) as a Q8.24 unsigned
// scalar, the reciprocal of maxAbs/127. A zero input returns zero; the
// compute core never passes zero (it substitutes 1 when the accumulator
// maximum is zero).
func ReciprocalScale(maxAbs uint32) uint32 {
	if maxAbs == 0 {
		return 0
	}
	return uint32((uint64(QuantMax) << FractionBits) / uint64(maxAbs))
}

// reciprocalScaleRestoring computes the same quotient with the 32-step
// restoring long division the divider hardware uses: a 64-bit
// {remainder, quotient} register shifted left once per step, subtracting the
// divisor from the high half whenever it fits. Kept as the oracle for the
// closed-form/stepped equivalence property.
func reciprocalScaleRestoring(maxAbs uint32) uint32 {
	if maxAbs == 0 {
		return 0
	}
	rq := uint64(QuantMax) << FractionBits
	d := uint64(maxAbs)
	for i := 0; i < 32; i++ {
		rq <<= 1
		if rq>>32 >= d {
			rq -= d << 32
			rq |= 1
		}
	}
	return uint32(rq)
}

// Quantize scales a 32-bit accumulator by a Q8.24 reciprocal scale, rounds
// half-up at the fractional boundary, and saturates to int8:
//
//	product = value * scale          (signed 32 x 32 -> 64)
//	rounded = (product + 2^23) >> 24 (arithmetic shift)
//	clamp to [-128, 127]
//
// The scale is nonnegative by construction, so widening it through int64
// preserves its unsigned magnitude.
func Quantize(value int32, scale uint32) int8 {
	product := int64(value) * int64(scale)
	rounded := (product + roundingBias) >> FractionBits
	if rounded > QuantMax {
		return QuantMax
	}
	if rounded < QuantMin {
		return QuantMin
	}
	return int8(rounded)
}
