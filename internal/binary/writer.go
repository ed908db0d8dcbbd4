package binary

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Writer provides buffered writing utilities for metadata and IL encoding.
type Writer struct {
	buf *bytes.Buffer
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{buf: &bytes.Buffer{}}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Byte writes a single byte.
func (w *Writer) Byte(b byte) {
	w.buf.WriteByte(b)
}

// WriteBytes writes a byte slice.
func (w *Writer) WriteBytes(data []byte) {
	w.buf.Write(data)
}

// WriteString writes s without a terminator.
func (w *Writer) WriteString(s string) {
	w.buf.WriteString(s)
}

// WriteU16 writes a little-endian uint16.
func (w *Writer) WriteU16(v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	w.buf.Write(buf[:])
}

// WriteU32 writes a little-endian uint32.
func (w *Writer) WriteU32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.buf.Write(buf[:])
}

// WriteU64 writes a little-endian uint64.
func (w *Writer) WriteU64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	w.buf.Write(buf[:])
}

// WriteF32 writes a little-endian float32.
func (w *Writer) WriteF32(v float32) {
	w.WriteU32(math.Float32bits(v))
}

// WriteF64 writes a little-endian float64.
func (w *Writer) WriteF64(v float64) {
	w.WriteU64(math.Float64bits(v))
}

// WriteIndex writes a 1-, 2- or 4-byte little-endian column value.
func (w *Writer) WriteIndex(size int, v uint32) {
	switch size {
	case 1:
		w.buf.WriteByte(byte(v))
	case 2:
		w.WriteU16(uint16(v))
	default:
		w.WriteU32(v)
	}
}

// WriteCompressedU32 writes an ECMA-335 compressed unsigned integer.
func (w *Writer) WriteCompressedU32(v uint32) error {
	switch {
	case v <= 0x7F:
		w.buf.WriteByte(byte(v))
	case v <= 0x3FFF:
		w.buf.WriteByte(byte(v>>8) | 0x80)
		w.buf.WriteByte(byte(v))
	case v <= 0x1FFFFFFF:
		w.buf.WriteByte(byte(v>>24) | 0xC0)
		w.buf.WriteByte(byte(v >> 16))
		w.buf.WriteByte(byte(v >> 8))
		w.buf.WriteByte(byte(v))
	default:
		return ErrCompressedTooLarge
	}
	return nil
}

// WriteCompressedI32 writes an ECMA-335 compressed signed integer. The
// width follows the range of v, not the magnitude of the rotated value.
func (w *Writer) WriteCompressedI32(v int32) error {
	switch {
	case v >= -0x40 && v <= 0x3F:
		u := rotate(uint32(v)&0x7F, 7)
		w.buf.WriteByte(byte(u))
	case v >= -0x2000 && v <= 0x1FFF:
		u := rotate(uint32(v)&0x3FFF, 14)
		w.buf.WriteByte(byte(u>>8) | 0x80)
		w.buf.WriteByte(byte(u))
	case v >= -0x10000000 && v <= 0x0FFFFFFF:
		u := rotate(uint32(v)&0x1FFFFFFF, 29)
		w.buf.WriteByte(byte(u>>24) | 0xC0)
		w.buf.WriteByte(byte(u >> 16))
		w.buf.WriteByte(byte(u >> 8))
		w.buf.WriteByte(byte(u))
	default:
		return ErrCompressedTooLarge
	}
	return nil
}

// rotate moves the sign bit (bit n-1) of an n-bit value into bit 0.
func rotate(u uint32, bits uint) uint32 {
	sign := (u >> (bits - 1)) & 1
	return ((u << 1) | sign) & (1<<bits - 1)
}

// WriteUvarint writes a 7-bit continuation varint.
func (w *Writer) WriteUvarint(v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

// WriteCString writes s followed by a NUL byte.
func (w *Writer) WriteCString(s string) {
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
}

// Pad writes zero bytes until Len is a multiple of align.
func (w *Writer) Pad(align int) {
	for w.buf.Len()%align != 0 {
		w.buf.WriteByte(0)
	}
}

// PutU32At overwrites 4 bytes at offset (used for back-patching).
func (w *Writer) PutU32At(offset int, v uint32) {
	binary.LittleEndian.PutUint32(w.buf.Bytes()[offset:offset+4], v)
}

// CompressedU32Size returns the encoded length of v, or 0 if v is too large.
func CompressedU32Size(v uint32) int {
	switch {
	case v <= 0x7F:
		return 1
	case v <= 0x3FFF:
		return 2
	case v <= 0x1FFFFFFF:
		return 4
	default:
		return 0
	}
}
