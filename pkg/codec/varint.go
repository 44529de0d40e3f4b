package codec

import "github.com/cockroachdb/errors"

// MaxVarintLen32 is the maximum number of bytes a varint-encoded uint32 occupies.
const MaxVarintLen32 = 5

// PutUvarint32 encodes v into buf as a base-128 varint and returns the number of
// bytes written (1-5). buf must have room for MaxVarintLen32 bytes unless the
// caller knows the encoded size; a short buffer panics.
func PutUvarint32(buf []byte, v uint32) int {
	i := 0
	for v >= 0x80 {
		buf[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	buf[i] = byte(v)
	return i + 1
}

// AppendUvarint32 appends the varint encoding of v to dst.
func AppendUvarint32(dst []byte, v uint32) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// UvarintLen32 returns the number of bytes PutUvarint32 writes for v.
func UvarintLen32(v uint32) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// Uvarint32 decodes a varint from the start of buf and returns the value and the
// number of bytes consumed.
//
// Bits of a fifth byte that fall above bit 31 are discarded, matching 32-bit
// protobuf readers: {0xff, 0xff, 0xff, 0xff, 0x7f} decodes to 0xffffffff.
func Uvarint32(buf []byte) (uint32, int, error) {
	var v uint32
	for i := 0; i < MaxVarintLen32; i++ {
		if i == len(buf) {
			return 0, 0, errors.Wrapf(ErrTruncatedRecord, "varint needs more than %d bytes", len(buf))
		}
		b := buf[i]
		v |= uint32(b&0x7f) << (7 * uint(i))
		if b < 0x80 {
			return v, i + 1, nil
		}
	}
	return 0, 0, errors.Wrapf(ErrMalformedVarint, "no terminating byte within %d bytes", MaxVarintLen32)
}

// skipUvarint returns the width of the varint at the start of buf without
// decoding it.
func skipUvarint(buf []byte) (int, error) {
	for i := 0; i < MaxVarintLen32; i++ {
		if i == len(buf) {
			return 0, errors.Wrapf(ErrTruncatedRecord, "varint needs more than %d bytes", len(buf))
		}
		if buf[i] < 0x80 {
			return i + 1, nil
		}
	}
	return 0, errors.Wrapf(ErrMalformedVarint, "no terminating byte within %d bytes", MaxVarintLen32)
}
