package binary

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestReaderReadByte(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	r := NewReader(data)

	for i, want := range data {
		if r.Position() != i {
			t.Errorf("position before read %d: got %d, want %d", i, r.Position(), i)
		}
		b, err := r.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte %d: %v", i, err)
		}
		if b != want {
			t.Errorf("ReadByte %d: got 0x%02x, want 0x%02x", i, b, want)
		}
	}

	_, err := r.ReadByte()
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestReaderReadBytes(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05})

	got, err := r.ReadBytes(3)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !bytes.Equal(got, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("ReadBytes: got %v, want [1 2 3]", got)
	}
	if r.Position() != 3 {
		t.Errorf("position: got %d, want 3", r.Position())
	}
	if _, err := r.ReadBytes(10); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestReaderFixedWidth(t *testing.T) {
	r := NewReader([]byte{
		0x34, 0x12,
		0x78, 0x56, 0x34, 0x12,
		0x01, 0, 0, 0, 0, 0, 0, 0x80,
	})
	u16, err := r.ReadU16()
	if err != nil || u16 != 0x1234 {
		t.Fatalf("ReadU16: got 0x%x, %v", u16, err)
	}
	u32, err := r.ReadU32()
	if err != nil || u32 != 0x12345678 {
		t.Fatalf("ReadU32: got 0x%x, %v", u32, err)
	}
	u64, err := r.ReadU64()
	if err != nil || u64 != 0x8000000000000001 {
		t.Fatalf("ReadU64: got 0x%x, %v", u64, err)
	}
}

func TestCompressedUnsigned(t *testing.T) {
	tests := []struct {
		encoded []byte
		value   uint32
	}{
		{[]byte{0x03}, 0x03},
		{[]byte{0x7F}, 0x7F},
		{[]byte{0x80, 0x80}, 0x80},
		{[]byte{0xAE, 0x57}, 0x2E57},
		{[]byte{0xBF, 0xFF}, 0x3FFF},
		{[]byte{0xC0, 0x00, 0x40, 0x00}, 0x4000},
		{[]byte{0xDF, 0xFF, 0xFF, 0xFF}, 0x1FFFFFFF},
	}

	for _, tt := range tests {
		w := NewWriter()
		if err := w.WriteCompressedU32(tt.value); err != nil {
			t.Fatalf("encode 0x%x: %v", tt.value, err)
		}
		if !bytes.Equal(w.Bytes(), tt.encoded) {
			t.Errorf("encode 0x%x: got % x, want % x", tt.value, w.Bytes(), tt.encoded)
		}
		if CompressedU32Size(tt.value) != len(tt.encoded) {
			t.Errorf("size 0x%x: got %d, want %d", tt.value, CompressedU32Size(tt.value), len(tt.encoded))
		}

		got, err := NewReader(tt.encoded).ReadCompressedU32()
		if err != nil {
			t.Fatalf("decode % x: %v", tt.encoded, err)
		}
		if got != tt.value {
			t.Errorf("decode % x: got 0x%x, want 0x%x", tt.encoded, got, tt.value)
		}
	}
}

func TestCompressedUnsignedTooLarge(t *testing.T) {
	w := NewWriter()
	if err := w.WriteCompressedU32(0x20000000); !errors.Is(err, ErrCompressedTooLarge) {
		t.Errorf("expected ErrCompressedTooLarge, got %v", err)
	}
	if _, err := NewReader([]byte{0xE0}).ReadCompressedU32(); !errors.Is(err, ErrInvalidCompressed) {
		t.Errorf("expected ErrInvalidCompressed, got %v", err)
	}
}

func TestCompressedSigned(t *testing.T) {
	tests := []struct {
		encoded []byte
		value   int32
	}{
		{[]byte{0x06}, 3},
		{[]byte{0x7B}, -3},
		{[]byte{0x80, 0x80}, 64},
		{[]byte{0x01}, -64},
		{[]byte{0xC0, 0x00, 0x40, 0x00}, 8192},
		{[]byte{0x80, 0x01}, -8192},
		{[]byte{0xDF, 0xFF, 0xFF, 0xFE}, 268435455},
		{[]byte{0xC0, 0x00, 0x00, 0x01}, -268435456},
	}

	for _, tt := range tests {
		w := NewWriter()
		if err := w.WriteCompressedI32(tt.value); err != nil {
			t.Fatalf("encode %d: %v", tt.value, err)
		}
		if !bytes.Equal(w.Bytes(), tt.encoded) {
			t.Errorf("encode %d: got % x, want % x", tt.value, w.Bytes(), tt.encoded)
		}
		got, err := NewReader(tt.encoded).ReadCompressedI32()
		if err != nil {
			t.Fatalf("decode % x: %v", tt.encoded, err)
		}
		if got != tt.value {
			t.Errorf("decode % x: got %d, want %d", tt.encoded, got, tt.value)
		}
	}
}

func TestCompressedSignedRangeEdges(t *testing.T) {
	values := []int32{
		0, -1, 1, -0x40, 0x3F, -0x41, 0x40,
		-0x2000, -8150, 0x1FFF, -0x2001, 0x2000,
		-0x10000000, -0x0FFFFFF0, 0x0FFFFFFF,
	}
	for _, v := range values {
		w := NewWriter()
		if err := w.WriteCompressedI32(v); err != nil {
			t.Fatalf("encode %d: %v", v, err)
		}
		want := 4
		switch {
		case v >= -0x40 && v <= 0x3F:
			want = 1
		case v >= -0x2000 && v <= 0x1FFF:
			want = 2
		}
		if len(w.Bytes()) != want {
			t.Errorf("encode %d: %d bytes (% x), want %d", v, len(w.Bytes()), w.Bytes(), want)
		}
		got, err := NewReader(w.Bytes()).ReadCompressedI32()
		if err != nil {
			t.Fatalf("decode %d: %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
	}

	for _, v := range []int32{-0x10000001, 0x10000000} {
		if err := NewWriter().WriteCompressedI32(v); err != ErrCompressedTooLarge {
			t.Errorf("encode %d: err = %v, want ErrCompressedTooLarge", v, err)
		}
	}
}

func TestUvarint(t *testing.T) {
	tests := []struct {
		encoded []byte
		value   uint64
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7f}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xFFFFFFFF},
	}

	for _, tt := range tests {
		w := NewWriter()
		w.WriteUvarint(tt.value)
		if !bytes.Equal(w.Bytes(), tt.encoded) {
			t.Errorf("encode %d: got % x, want % x", tt.value, w.Bytes(), tt.encoded)
		}
		got, err := NewReader(tt.encoded).ReadUvarint()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != tt.value {
			t.Errorf("decode: got %d, want %d", got, tt.value)
		}
	}

	if _, err := NewReader(bytes.Repeat([]byte{0xff}, 11)).ReadUvarint(); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
}

func TestReaderAlignAndCString(t *testing.T) {
	r := NewReader([]byte{'a', 'b', 0, 0xAA, 0x01, 0x02, 0x03, 0x04})
	s, err := r.ReadCString()
	if err != nil || s != "ab" {
		t.Fatalf("ReadCString: %q, %v", s, err)
	}
	if err := r.Align(4); err != nil {
		t.Fatalf("Align: %v", err)
	}
	if r.Position() != 4 {
		t.Errorf("position after align: got %d, want 4", r.Position())
	}
	if err := r.Align(4); err != nil || r.Position() != 4 {
		t.Errorf("aligned reader moved: %d, %v", r.Position(), err)
	}
}

func TestWriterPadAndPatch(t *testing.T) {
	w := NewWriter()
	w.Byte(1)
	w.Pad(4)
	if w.Len() != 4 {
		t.Fatalf("Pad: got len %d, want 4", w.Len())
	}
	w.WriteU32(0)
	w.PutU32At(4, 0xDEADBEEF)
	v, err := NewReader(w.Bytes()[4:]).ReadU32()
	if err != nil || v != 0xDEADBEEF {
		t.Errorf("PutU32At: got 0x%x, %v", v, err)
	}
}

func TestParseErrorWrap(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_, _ = r.ReadByte()
	err := r.WrapError("tables", io.ErrUnexpectedEOF)

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatal("expected ParseError")
	}
	if pe.Position != 1 || pe.Section != "tables" {
		t.Errorf("unexpected ParseError %+v", pe)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("ParseError should unwrap to cause")
	}
}
