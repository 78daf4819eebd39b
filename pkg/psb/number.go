package psb

import (
	"encoding/binary"
	"math"
)

// intWidth returns the minimal number of bytes that hold v in two's
// complement form. Zero needs no payload at all.
func intWidth(v int64) int {
	if v == 0 {
		return 0
	}
	for n := 1; n < 8; n++ {
		bound := int64(1) << (8*n - 1)
		if v >= -bound && v < bound {
			return n
		}
	}
	return 8
}

// uintWidth returns the minimal number of bytes that hold v, never less
// than one.
func uintWidth(v uint64) int {
	n := 1
	for n < 8 && v >= uint64(1)<<(8*n) {
		n++
	}
	return n
}

// appendUint appends the low n bytes of v in little-endian order.
func appendUint(dst []byte, v uint64, n int) []byte {
	for i := 0; i < n; i++ {
		dst = append(dst, byte(v>>(8*i)))
	}
	return dst
}

// unzipUint zero-extends a little-endian payload of up to 8 bytes.
func unzipUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// unzipInt sign-extends a little-endian payload of up to 8 bytes by
// replicating the top bit of its most significant byte.
func unzipInt(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	v := unzipUint(b)
	if len(b) < 8 && b[len(b)-1]&0x80 != 0 {
		v |= ^uint64(0) << (8 * len(b))
	}
	return int64(v)
}

// appendNumber appends a tagged number using the smallest encoding for its
// kind.
func appendNumber(dst []byte, n Number) []byte {
	switch n.kind {
	case NumberFloat32:
		f := float32(n.f)
		bits := math.Float32bits(f)
		if bits == 0 {
			return append(dst, byte(TypeFloat0))
		}
		dst = append(dst, byte(TypeFloat))
		return binary.LittleEndian.AppendUint32(dst, bits)
	case NumberFloat64:
		dst = append(dst, byte(TypeDouble))
		return binary.LittleEndian.AppendUint64(dst, math.Float64bits(n.f))
	default:
		w := intWidth(n.i)
		dst = append(dst, byte(numberType(w)))
		return appendUint(dst, uint64(n.i), w)
	}
}
