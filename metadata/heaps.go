package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/unicode"

	bin "github.com/wippyai/clrmeta/internal/binary"
)

// GUID is a 16-byte #GUID heap entry in its on-disk byte order.
type GUID [16]byte

// String formats the GUID in registry form. The first three groups are
// stored little endian.
func (g GUID) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%x-%x",
		binary.LittleEndian.Uint32(g[0:4]),
		binary.LittleEndian.Uint16(g[4:6]),
		binary.LittleEndian.Uint16(g[6:8]),
		g[8:10], g[10:16])
}

// IsZero reports whether every byte is zero.
func (g GUID) IsZero() bool {
	return g == GUID{}
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// StringsHeap reads NUL-terminated UTF-8 strings from #Strings.
type StringsHeap struct {
	data []byte
}

// NewStringsHeap wraps raw #Strings bytes.
func NewStringsHeap(data []byte) *StringsHeap {
	return &StringsHeap{data: data}
}

// Get returns the string at offset. Offset 0 is the empty string.
func (h *StringsHeap) Get(offset uint32) (string, error) {
	if offset == 0 {
		return "", nil
	}
	if int(offset) >= len(h.data) {
		return "", fmt.Errorf("#Strings offset 0x%x out of range (size 0x%x)", offset, len(h.data))
	}
	rest := h.data[offset:]
	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		return "", fmt.Errorf("#Strings entry at 0x%x is not terminated", offset)
	}
	return string(rest[:end]), nil
}

// Size returns the heap length in bytes.
func (h *StringsHeap) Size() int { return len(h.data) }

// BlobHeap reads length-prefixed entries from #Blob.
type BlobHeap struct {
	data []byte
}

// NewBlobHeap wraps raw #Blob bytes.
func NewBlobHeap(data []byte) *BlobHeap {
	return &BlobHeap{data: data}
}

// Get returns the blob at offset, aliasing the heap. Offset 0 is empty.
func (h *BlobHeap) Get(offset uint32) ([]byte, error) {
	if offset == 0 {
		return nil, nil
	}
	if int(offset) >= len(h.data) {
		return nil, fmt.Errorf("#Blob offset 0x%x out of range (size 0x%x)", offset, len(h.data))
	}
	r := bin.NewReader(h.data)
	if err := r.Seek(int(offset)); err != nil {
		return nil, err
	}
	n, err := r.ReadCompressedU32()
	if err != nil {
		return nil, r.WrapError("#Blob", err)
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return nil, r.WrapError("#Blob", err)
	}
	return b, nil
}

// Size returns the heap length in bytes.
func (h *BlobHeap) Size() int { return len(h.data) }

// GUIDHeap reads 1-based 16-byte entries from #GUID.
type GUIDHeap struct {
	data []byte
}

// NewGUIDHeap wraps raw #GUID bytes.
func NewGUIDHeap(data []byte) *GUIDHeap {
	return &GUIDHeap{data: data}
}

// Get returns the GUID at 1-based index. Index 0 is the zero GUID.
func (h *GUIDHeap) Get(index uint32) (GUID, error) {
	var g GUID
	if index == 0 {
		return g, nil
	}
	start := int(index-1) * 16
	if start+16 > len(h.data) {
		return g, fmt.Errorf("#GUID index %d out of range (%d entries)", index, len(h.data)/16)
	}
	copy(g[:], h.data[start:start+16])
	return g, nil
}

// Size returns the heap length in bytes.
func (h *GUIDHeap) Size() int { return len(h.data) }

// UserStringsHeap reads UTF-16 literals from #US.
type UserStringsHeap struct {
	data []byte
}

// NewUserStringsHeap wraps raw #US bytes.
func NewUserStringsHeap(data []byte) *UserStringsHeap {
	return &UserStringsHeap{data: data}
}

// Get decodes the literal at offset. The trailing terminal byte is dropped.
func (h *UserStringsHeap) Get(offset uint32) (string, error) {
	if offset == 0 {
		return "", nil
	}
	if int(offset) >= len(h.data) {
		return "", fmt.Errorf("#US offset 0x%x out of range (size 0x%x)", offset, len(h.data))
	}
	r := bin.NewReader(h.data)
	if err := r.Seek(int(offset)); err != nil {
		return "", err
	}
	n, err := r.ReadCompressedU32()
	if err != nil {
		return "", r.WrapError("#US", err)
	}
	raw, err := r.ReadBytes(int(n))
	if err != nil {
		return "", r.WrapError("#US", err)
	}
	if len(raw)%2 == 1 {
		raw = raw[:len(raw)-1]
	}
	s, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("#US entry at 0x%x: %w", offset, err)
	}
	return string(s), nil
}

// Size returns the heap length in bytes.
func (h *UserStringsHeap) Size() int { return len(h.data) }

// EncodeUTF16 returns s as UTF-16LE code units without a terminator.
func EncodeUTF16(s string) ([]byte, error) {
	return utf16le.NewEncoder().Bytes([]byte(s))
}
