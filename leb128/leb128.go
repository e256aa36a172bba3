// Package leb128 implements the variable-length integer encoding used by the
// WebAssembly binary format.
//
// Decoders accept any io.ByteReader and consume exactly the bytes of one
// encoded value. A value that does not terminate within ceil(bits/7) groups,
// or whose last allowed group sets bits beyond the target width, is rejected
// with ErrOverflow; a stream that ends mid-value yields io.ErrUnexpectedEOF.
// For signed values the bits beyond the width must repeat the sign bit.
package leb128

import (
	"errors"
	"io"
)

// ErrOverflow is returned when an encoding runs past the maximum group count
// for the target width or carries bits the width cannot hold.
var ErrOverflow = errors.New("leb128: overflow")

// DecodeUint32 reads an unsigned LEB128 value of at most 32 bits.
func DecodeUint32(r io.ByteReader) (uint32, error) {
	v, err := decodeUnsigned(r, 32)
	return uint32(v), err
}

// DecodeUint64 reads an unsigned LEB128 value of at most 64 bits.
func DecodeUint64(r io.ByteReader) (uint64, error) {
	return decodeUnsigned(r, 64)
}

// DecodeInt32 reads a signed LEB128 value of at most 32 bits.
func DecodeInt32(r io.ByteReader) (int32, error) {
	v, err := decodeSigned(r, 32)
	return int32(v), err
}

// DecodeInt64 reads a signed LEB128 value of at most 64 bits.
func DecodeInt64(r io.ByteReader) (int64, error) {
	return decodeSigned(r, 64)
}

func maxShift(bits uint) uint {
	return (bits + 6) / 7 * 7
}

// spare returns the bits of the final group b that lie beyond a width of
// bits when b is read at shift. It is zero for groups that fit entirely.
func spare(b byte, shift, bits uint) byte {
	if shift+7 <= bits {
		return 0
	}
	return (b & 0x7f) >> (bits - shift)
}

func readGroup(r io.ByteReader) (byte, error) {
	b, err := r.ReadByte()
	if err == io.EOF {
		return 0, io.ErrUnexpectedEOF
	}
	return b, err
}

func decodeUnsigned(r io.ByteReader, bits uint) (uint64, error) {
	var result uint64
	var shift uint
	limit := maxShift(bits)
	for {
		b, err := readGroup(r)
		if err != nil {
			return 0, err
		}
		if shift < 64 {
			result |= uint64(b&0x7f) << shift
		}
		if b&0x80 == 0 {
			if spare(b, shift, bits) != 0 {
				return 0, ErrOverflow
			}
			return result, nil
		}
		shift += 7
		if shift >= limit {
			return 0, ErrOverflow
		}
	}
}

func decodeSigned(r io.ByteReader, bits uint) (int64, error) {
	var result int64
	var shift uint
	var b byte
	limit := maxShift(bits)
	for {
		var err error
		b, err = readGroup(r)
		if err != nil {
			return 0, err
		}
		if shift < 64 {
			result |= int64(b&0x7f) << shift
		}
		if b&0x80 == 0 {
			// Spare bits, plus the sign bit just below them, are all equal.
			if s := spare(b, shift, bits-1); s != 0 && s != 0x7f>>(bits-1-shift) {
				return 0, ErrOverflow
			}
			shift += 7
			break
		}
		shift += 7
		if shift >= limit {
			return 0, ErrOverflow
		}
	}
	if shift < bits && b&0x40 != 0 {
		result |= ^int64(0) << shift
	}
	if bits < 64 {
		// A full-length encoding leaves the sign copies above bit 31
		// unextended; truncating restores the sign.
		result = int64(int32(result))
	}
	return result, nil
}

// AppendUint32 appends the unsigned encoding of v to dst.
func AppendUint32(dst []byte, v uint32) []byte {
	return AppendUint64(dst, uint64(v))
}

// AppendUint64 appends the unsigned encoding of v to dst.
func AppendUint64(dst []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if v == 0 {
			return dst
		}
	}
}

// AppendInt32 appends the signed encoding of v to dst.
func AppendInt32(dst []byte, v int32) []byte {
	return AppendInt64(dst, int64(v))
}

// AppendInt64 appends the signed encoding of v to dst.
func AppendInt64(dst []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

// EncodeUint32 returns the unsigned encoding of v.
func EncodeUint32(v uint32) []byte { return AppendUint32(nil, v) }

// EncodeUint64 returns the unsigned encoding of v.
func EncodeUint64(v uint64) []byte { return AppendUint64(nil, v) }

// EncodeInt32 returns the signed encoding of v.
func EncodeInt32(v int32) []byte { return AppendInt32(nil, v) }

// EncodeInt64 returns the signed encoding of v.
func EncodeInt64(v int64) []byte { return AppendInt64(nil, v) }
