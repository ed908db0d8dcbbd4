package metadata

import (
	"fmt"
	"strings"

	bin "github.com/wippyai/clrmeta/internal/binary"
)

// RootSignature is the "BSJB" magic of a metadata root.
const RootSignature = 0x424A5342

// DefaultVersion is the runtime version string written by default.
const DefaultVersion = "v4.0.30319"

// Stream names.
const (
	StreamTables      = "#~"
	StreamTablesUnopt = "#-"
	StreamStrings     = "#Strings"
	StreamUserStrings = "#US"
	StreamGUID        = "#GUID"
	StreamBlob        = "#Blob"
)

var canonicalStreams = []string{StreamTables, StreamTablesUnopt, StreamStrings, StreamUserStrings, StreamGUID, StreamBlob}

// Stream is one named stream of the metadata root.
type Stream struct {
	Name   string
	Offset uint32 // relative to the root
	Data   []byte
}

// Root is a parsed metadata root.
type Root struct {
	MajorVersion uint16
	MinorVersion uint16
	Version      string
	Flags        uint16
	Streams      []Stream
}

// Stream returns the data of the named stream.
func (r *Root) Stream(name string) ([]byte, bool) {
	for _, s := range r.Streams {
		if s.Name == name {
			return s.Data, true
		}
	}
	return nil, false
}

// ParseRoot parses a metadata root and slices out its streams.
func ParseRoot(data []byte) (*Root, error) {
	r := bin.NewReader(data)
	sig, err := r.ReadU32()
	if err != nil {
		return nil, r.WrapError("metadata root", err)
	}
	if sig != RootSignature {
		return nil, r.WrapError("metadata root", fmt.Errorf("bad signature 0x%08x", sig))
	}
	root := &Root{}
	if root.MajorVersion, err = r.ReadU16(); err != nil {
		return nil, r.WrapError("metadata root", err)
	}
	if root.MinorVersion, err = r.ReadU16(); err != nil {
		return nil, r.WrapError("metadata root", err)
	}
	if err := r.Skip(4); err != nil {
		return nil, r.WrapError("metadata root", err)
	}
	n, err := r.ReadU32()
	if err != nil {
		return nil, r.WrapError("metadata root", err)
	}
	ver, err := r.ReadBytes(int(n))
	if err != nil {
		return nil, r.WrapError("version string", err)
	}
	root.Version = strings.TrimRight(string(ver), "\x00")
	if root.Flags, err = r.ReadU16(); err != nil {
		return nil, r.WrapError("metadata root", err)
	}
	count, err := r.ReadU16()
	if err != nil {
		return nil, r.WrapError("metadata root", err)
	}
	for i := 0; i < int(count); i++ {
		off, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("stream header", err)
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("stream header", err)
		}
		name, err := r.ReadCString()
		if err != nil {
			return nil, r.WrapError("stream header", err)
		}
		if err := r.Align(4); err != nil {
			return nil, r.WrapError("stream header", err)
		}
		end := uint64(off) + uint64(size)
		if end > uint64(len(data)) {
			return nil, r.WrapError("stream header", fmt.Errorf("stream %s [0x%x,0x%x) outside root of 0x%x bytes", name, off, end, len(data)))
		}
		root.Streams = append(root.Streams, Stream{Name: name, Offset: off, Data: data[off:end]})
	}
	return root, nil
}

// Encode writes the root followed by its streams. Streams are laid out in
// canonical order; unknown streams follow in their given order.
func (r *Root) Encode() []byte {
	version := r.Version
	if version == "" {
		version = DefaultVersion
	}
	major, minor := r.MajorVersion, r.MinorVersion
	if major == 0 {
		major, minor = 1, 1
	}

	ordered := orderStreams(r.Streams)

	hdr := bin.NewWriter()
	hdr.WriteU32(RootSignature)
	hdr.WriteU16(major)
	hdr.WriteU16(minor)
	hdr.WriteU32(0)
	verLen := (len(version) + 1 + 3) &^ 3
	hdr.WriteU32(uint32(verLen))
	hdr.WriteString(version)
	for i := len(version); i < verLen; i++ {
		hdr.Byte(0)
	}
	hdr.WriteU16(r.Flags)
	hdr.WriteU16(uint16(len(ordered)))

	headerSize := hdr.Len()
	for _, s := range ordered {
		headerSize += 8 + (len(s.Name)+1+3)&^3
	}

	offset := uint32(headerSize)
	for _, s := range ordered {
		size := uint32((len(s.Data) + 3) &^ 3)
		hdr.WriteU32(offset)
		hdr.WriteU32(size)
		hdr.WriteCString(s.Name)
		hdr.Pad(4)
		offset += size
	}
	for _, s := range ordered {
		hdr.WriteBytes(s.Data)
		hdr.Pad(4)
	}
	return hdr.Bytes()
}

func orderStreams(streams []Stream) []Stream {
	out := make([]Stream, 0, len(streams))
	used := make([]bool, len(streams))
	for _, name := range canonicalStreams {
		for i, s := range streams {
			if !used[i] && s.Name == name {
				out = append(out, s)
				used[i] = true
			}
		}
	}
	for i, s := range streams {
		if !used[i] {
			out = append(out, s)
		}
	}
	return out
}
