package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Errors returned by Reader.
var (
	ErrOverflow           = errors.New("varint: overflow")
	ErrInvalidCompressed  = errors.New("invalid compressed integer")
	ErrCompressedTooLarge = errors.New("compressed integer exceeds 0x1FFFFFFF")
)

// Reader is a random-access cursor over a byte slice with little-endian
// fixed-width reads, ECMA-335 compressed integers and 7-bit varints.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a new Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Position returns the current byte position.
func (r *Reader) Position() int {
	return r.pos
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.data) - r.pos
}

// Size returns the total length of the underlying slice.
func (r *Reader) Size() int {
	return len(r.data)
}

// Seek moves to an absolute position. Seeking to Size() is allowed.
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.data) {
		return r.wrapError(fmt.Errorf("seek to %d outside [0,%d]", pos, len(r.data)))
	}
	r.pos = pos
	return nil
}

// Skip advances the position by n bytes.
func (r *Reader) Skip(n int) error {
	return r.Seek(r.pos + n)
}

// Align advances the position to the next multiple of n.
func (r *Reader) Align(n int) error {
	rem := r.pos % n
	if rem == 0 {
		return nil
	}
	return r.Skip(n - rem)
}

// ReadByte reads a single byte and advances the position.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// PeekByte returns the next byte without advancing.
func (r *Reader) PeekByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	return r.data[r.pos], nil
}

// ReadBytes reads exactly n bytes. The returned slice aliases the input.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, r.wrapError(io.ErrUnexpectedEOF)
	}
	b := r.data[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadU8 reads an unsigned byte.
func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, r.wrapError(io.ErrUnexpectedEOF)
	}
	return b, nil
}

// ReadU16 reads a little-endian uint16.
func (r *Reader) ReadU16() (uint16, error) {
	buf, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

// ReadU32 reads a little-endian uint32.
func (r *Reader) ReadU32() (uint32, error) {
	buf, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// ReadU64 reads a little-endian uint64.
func (r *Reader) ReadU64() (uint64, error) {
	buf, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// ReadF32 reads a little-endian IEEE-754 float32.
func (r *Reader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadF64 reads a little-endian IEEE-754 float64.
func (r *Reader) ReadF64() (float64, error) {
	v, err := r.ReadU64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadIndex reads a 1-, 2- or 4-byte little-endian column value.
func (r *Reader) ReadIndex(size int) (uint32, error) {
	switch size {
	case 1:
		v, err := r.ReadU8()
		return uint32(v), err
	case 2:
		v, err := r.ReadU16()
		return uint32(v), err
	}
	return r.ReadU32()
}

// ReadCompressedU32 reads an ECMA-335 compressed unsigned integer
// (1, 2 or 4 bytes selected by the leading bits of the first byte).
func (r *Reader) ReadCompressedU32() (uint32, error) {
	b0, err := r.ReadByte()
	if err != nil {
		return 0, r.wrapError(io.ErrUnexpectedEOF)
	}
	switch {
	case b0&0x80 == 0:
		return uint32(b0), nil
	case b0&0xC0 == 0x80:
		b1, err := r.ReadByte()
		if err != nil {
			return 0, r.wrapError(io.ErrUnexpectedEOF)
		}
		return uint32(b0&0x3F)<<8 | uint32(b1), nil
	case b0&0xE0 == 0xC0:
		rest, err := r.ReadBytes(3)
		if err != nil {
			return 0, err
		}
		return uint32(b0&0x1F)<<24 | uint32(rest[0])<<16 | uint32(rest[1])<<8 | uint32(rest[2]), nil
	default:
		return 0, r.wrapError(ErrInvalidCompressed)
	}
}

// ReadCompressedI32 reads an ECMA-335 compressed signed integer. The sign
// bit is rotated into the least significant bit of the encoded value.
func (r *Reader) ReadCompressedI32() (int32, error) {
	start := r.pos
	u, err := r.ReadCompressedU32()
	if err != nil {
		return 0, err
	}
	negative := u&1 != 0
	u >>= 1
	if !negative {
		return int32(u), nil
	}
	switch r.pos - start {
	case 1:
		return int32(u) - 0x40, nil
	case 2:
		return int32(u) - 0x2000, nil
	default:
		return int32(u) - 0x10000000, nil
	}
}

// ReadUvarint reads a 7-bit continuation varint (LEB128 style).
func (r *Reader) ReadUvarint() (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, r.wrapError(io.ErrUnexpectedEOF)
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 70 {
			return 0, r.wrapError(ErrOverflow)
		}
	}
}

// ReadUvarint32 reads a varint and checks it fits in 32 bits.
func (r *Reader) ReadUvarint32() (uint32, error) {
	v, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, r.wrapError(ErrOverflow)
	}
	return uint32(v), nil
}

// ReadCString reads a NUL-terminated byte string.
func (r *Reader) ReadCString() (string, error) {
	for i := r.pos; i < len(r.data); i++ {
		if r.data[i] == 0 {
			s := string(r.data[r.pos:i])
			r.pos = i + 1
			return s, nil
		}
	}
	return "", r.wrapError(io.ErrUnexpectedEOF)
}

// ReadRemaining reads all remaining bytes.
func (r *Reader) ReadRemaining() []byte {
	b := r.data[r.pos:]
	r.pos = len(r.data)
	return b
}

func (r *Reader) wrapError(err error) error {
	return fmt.Errorf("at position %d: %w", r.pos, err)
}

// ParseError represents an error during binary parsing with position information.
type ParseError struct {
	Err      error
	Section  string
	Position int
}

func (e *ParseError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("clrmeta: %s at position %d: %v", e.Section, e.Position, e.Err)
	}
	return fmt.Sprintf("clrmeta: at position %d: %v", e.Position, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// WrapError creates a ParseError with the current position.
func (r *Reader) WrapError(section string, err error) error {
	return &ParseError{
		Position: r.pos,
		Section:  section,
		Err:      err,
	}
}
