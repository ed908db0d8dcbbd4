package metadata

import (
	"fmt"

	bin "github.com/wippyai/clrmeta/internal/binary"
)

// StringsHeapWriter interns strings into a #Strings heap.
type StringsHeapWriter struct {
	w     *bin.Writer
	index map[string]uint32
}

// NewStringsHeapWriter returns a writer holding only the empty string.
func NewStringsHeapWriter() *StringsHeapWriter {
	w := bin.NewWriter()
	w.Byte(0)
	return &StringsHeapWriter{w: w, index: make(map[string]uint32)}
}

// Add returns the offset of s, appending it on first use.
func (h *StringsHeapWriter) Add(s string) uint32 {
	if s == "" {
		return 0
	}
	if off, ok := h.index[s]; ok {
		return off
	}
	off := uint32(h.w.Len())
	h.w.WriteCString(s)
	h.index[s] = off
	return off
}

// Len returns the current unpadded size.
func (h *StringsHeapWriter) Len() int { return h.w.Len() }

// Finalize pads the heap to 4 bytes and returns it.
func (h *StringsHeapWriter) Finalize() []byte {
	h.w.Pad(4)
	return h.w.Bytes()
}

// BlobHeapWriter interns blobs into a #Blob heap.
type BlobHeapWriter struct {
	w     *bin.Writer
	index map[string]uint32
}

// NewBlobHeapWriter returns a writer holding only the empty blob.
func NewBlobHeapWriter() *BlobHeapWriter {
	w := bin.NewWriter()
	w.Byte(0)
	return &BlobHeapWriter{w: w, index: make(map[string]uint32)}
}

// Add returns the offset of b, appending it on first use.
func (h *BlobHeapWriter) Add(b []byte) (uint32, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if off, ok := h.index[string(b)]; ok {
		return off, nil
	}
	off := uint32(h.w.Len())
	if err := h.w.WriteCompressedU32(uint32(len(b))); err != nil {
		return 0, fmt.Errorf("blob of %d bytes: %w", len(b), err)
	}
	h.w.WriteBytes(b)
	h.index[string(b)] = off
	return off, nil
}

// Len returns the current unpadded size.
func (h *BlobHeapWriter) Len() int { return h.w.Len() }

// Finalize pads the heap to 4 bytes and returns it.
func (h *BlobHeapWriter) Finalize() []byte {
	h.w.Pad(4)
	return h.w.Bytes()
}

// GUIDHeapWriter interns GUIDs into a #GUID heap.
type GUIDHeapWriter struct {
	w     *bin.Writer
	index map[GUID]uint32
}

// NewGUIDHeapWriter returns an empty writer.
func NewGUIDHeapWriter() *GUIDHeapWriter {
	return &GUIDHeapWriter{w: bin.NewWriter(), index: make(map[GUID]uint32)}
}

// Add returns the 1-based index of g. The zero GUID maps to 0.
func (h *GUIDHeapWriter) Add(g GUID) uint32 {
	if g.IsZero() {
		return 0
	}
	if i, ok := h.index[g]; ok {
		return i
	}
	h.w.WriteBytes(g[:])
	i := uint32(h.w.Len() / 16)
	h.index[g] = i
	return i
}

// Len returns the current size.
func (h *GUIDHeapWriter) Len() int { return h.w.Len() }

// Finalize returns the heap. Entries are already 4-byte multiples.
func (h *GUIDHeapWriter) Finalize() []byte {
	return h.w.Bytes()
}

// UserStringsHeapWriter interns literals into a #US heap.
type UserStringsHeapWriter struct {
	w     *bin.Writer
	index map[string]uint32
}

// NewUserStringsHeapWriter returns a writer holding only the empty entry.
func NewUserStringsHeapWriter() *UserStringsHeapWriter {
	w := bin.NewWriter()
	w.Byte(0)
	return &UserStringsHeapWriter{w: w, index: make(map[string]uint32)}
}

// Add returns the offset of s. Offsets must fit a 24-bit token RID.
func (h *UserStringsHeapWriter) Add(s string) (uint32, error) {
	if off, ok := h.index[s]; ok {
		return off, nil
	}
	units, err := EncodeUTF16(s)
	if err != nil {
		return 0, fmt.Errorf("user string %q: %w", s, err)
	}
	off := uint32(h.w.Len())
	if off > MaxRID {
		return 0, fmt.Errorf("#US heap exceeds 0x%x bytes", MaxRID)
	}
	if err := h.w.WriteCompressedU32(uint32(len(units) + 1)); err != nil {
		return 0, err
	}
	h.w.WriteBytes(units)
	h.w.Byte(terminalByte(units))
	h.index[s] = off
	return off, nil
}

// terminalByte is 1 when any UTF-16 unit has a non-zero high byte or a low
// byte in 0x01-0x08, 0x0E-0x1F, 0x27, 0x2D or 0x7F.
func terminalByte(units []byte) byte {
	for i := 0; i+1 < len(units); i += 2 {
		lo, hi := units[i], units[i+1]
		if hi != 0 {
			return 1
		}
		switch {
		case lo >= 0x01 && lo <= 0x08, lo >= 0x0E && lo <= 0x1F, lo == 0x27, lo == 0x2D, lo == 0x7F:
			return 1
		}
	}
	return 0
}

// Len returns the current unpadded size.
func (h *UserStringsHeapWriter) Len() int { return h.w.Len() }

// Finalize pads the heap to 4 bytes and returns it.
func (h *UserStringsHeapWriter) Finalize() []byte {
	h.w.Pad(4)
	return h.w.Bytes()
}
