package core

import "golang.org/x/exp/constraints"

func clamp[T constraints.Integer](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs[T constraints.Signed](v T) T {
	if v < 0 {
		return -v
	}
	return v
}

func satInt32(v int64) int32 {
	return int32(clamp(v, -1<<31, 1<<31-1))
}

func satInt16(v int32) int16 {
	return int16(clamp(v, -1<<15, 1<<15-1))
}

func satUint16(v uint32) uint16 {
	return uint16(min(v, 0xFFFF))
}
