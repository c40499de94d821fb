package types

import "math"

// --- Saturating Arithmetic ---
// Results clamp at the bounds of the type instead of wrapping.

func SaturatingAdd16(a, b uint16) uint16 {
	if a > math.MaxUint16-b {
		return math.MaxUint16
	}
	return a + b
}

func SaturatingSub16(a, b uint16) uint16 {
	if b > a {
		return 0
	}
	return a - b
}

func SaturatingAdd8(a, b uint8) uint8 {
	if a > math.MaxUint8-b {
		return math.MaxUint8
	}
	return a + b
}

func SaturatingAdd32(a, b uint32) uint32 {
	if a > math.MaxUint32-b {
		return math.MaxUint32
	}
	return a + b
}

func SaturatingMul32(a, b uint32) uint32 {
	p := uint64(a) * uint64(b)
	if p > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(p)
}

// ClampI32 narrows v into the int32 range.
func ClampI32(v int64) int32 {
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}

// ClampPosition narrows v into the BoardPosition range.
func ClampPosition(v int32) BoardPosition {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return BoardPosition(v)
}
