package xport

import (
	"encoding/binary"
	"errors"
	"math"
)

var errIBMRange = errors.New("value out of IBM floating point range")

// ibmToFloat64 converts a big-endian IBM System/370 double (sign bit, 7-bit
// base-16 exponent biased by 64, 56-bit fraction) to IEEE 754.
func ibmToFloat64(b [8]byte) float64 {
	u := binary.BigEndian.Uint64(b[:])
	frac := u & 0x00ffffffffffffff
	if frac == 0 {
		return 0
	}
	exp := int((u >> 56) & 0x7f)
	v := math.Ldexp(float64(frac), 4*(exp-64)-56)
	if u>>63 != 0 {
		return -v
	}
	return v
}

// float64ToIBM is the inverse of ibmToFloat64. Every finite float64 whose
// magnitude lies in the IBM range converts without loss.
func float64ToIBM(v float64) ([8]byte, error) {
	var out [8]byte
	if v == 0 {
		return out, nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return out, errIBMRange
	}

	var sign uint64
	if v < 0 {
		sign = 1 << 63
		v = -v
	}

	// v = frac * 2^exp2 with frac in [0.5, 1); regroup as m * 16^e16 with m in [1/16, 1)
	frac, exp2 := math.Frexp(v)
	e16 := int(math.Ceil(float64(exp2) / 4))
	shift := 4*e16 - exp2
	mant := uint64(math.Ldexp(frac, 56-shift))

	biased := e16 + 64
	if biased < 0 {
		// underflow rounds to zero
		return out, nil
	}
	if biased > 127 {
		return out, errIBMRange
	}

	binary.BigEndian.PutUint64(out[:], sign|uint64(biased)<<56|mant)
	return out, nil
}
