// Package pefile locates the CLI header, metadata root, method bodies and
// managed resources inside a PE image. Only reading is supported.
package pefile

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/metadata"
)

const (
	comDescriptorDir = 14
	cliHeaderSize    = 72
)

// File is a managed image. A raw metadata root is accepted too; it has no
// sections, so BodyAt and ResourceAt always fail.
type File struct {
	// Metadata is the BSJB metadata root.
	Metadata []byte

	RuntimeMajor uint16
	RuntimeMinor uint16
	Flags        uint32
	// EntryPoint is the CLI header entry point token; native entry points
	// (flag 0x10) are reported as a null token.
	EntryPoint metadata.Token

	MetadataRVA   uint32
	ResourcesRVA  uint32
	ResourcesSize uint32

	location string
	sections []section
}

type section struct {
	rva  uint32
	size uint32
	data []byte
}

// IsRaw reports whether the file was a bare metadata root.
func (f *File) IsRaw() bool { return f.sections == nil }

// Open parses data as a PE image with a CLI header, or as a bare metadata
// root. location names the file in errors.
func Open(data []byte, location string) (*File, error) {
	if len(data) >= 4 && binary.LittleEndian.Uint32(data) == metadata.RootSignature {
		return &File{Metadata: data, location: location}, nil
	}

	p, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Load(location, 0, errors.KindInvalidData, "not a PE image or metadata root", err)
	}
	defer p.Close()

	var dirs []pe.DataDirectory
	switch oh := p.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		dirs = oh.DataDirectory[:min(oh.NumberOfRvaAndSizes, 16)]
	case *pe.OptionalHeader64:
		dirs = oh.DataDirectory[:min(oh.NumberOfRvaAndSizes, 16)]
	default:
		return nil, errors.Load(location, 0, errors.KindInvalidData, "missing optional header", nil)
	}
	if len(dirs) <= comDescriptorDir || dirs[comDescriptorDir].VirtualAddress == 0 {
		return nil, errors.Load(location, 0, errors.KindUnsupported, "no CLI header; not a managed image", nil)
	}

	f := &File{location: location}
	for _, s := range p.Sections {
		raw, err := s.Data()
		if err != nil {
			return nil, errors.Load(location, int64(s.Offset), errors.KindTruncated, "section "+s.Name, err)
		}
		size := s.VirtualSize
		if size == 0 {
			size = s.Size
		}
		f.sections = append(f.sections, section{rva: s.VirtualAddress, size: size, data: raw})
	}

	cor := dirs[comDescriptorDir]
	hdr, err := f.slice(cor.VirtualAddress, cliHeaderSize)
	if err != nil {
		return nil, err
	}
	le := binary.LittleEndian
	f.RuntimeMajor = le.Uint16(hdr[4:])
	f.RuntimeMinor = le.Uint16(hdr[6:])
	f.MetadataRVA = le.Uint32(hdr[8:])
	metaSize := le.Uint32(hdr[12:])
	f.Flags = le.Uint32(hdr[16:])
	if f.Flags&0x10 == 0 {
		f.EntryPoint = metadata.Token(le.Uint32(hdr[20:]))
	}
	f.ResourcesRVA = le.Uint32(hdr[24:])
	f.ResourcesSize = le.Uint32(hdr[28:])

	if f.Metadata, err = f.slice(f.MetadataRVA, metaSize); err != nil {
		return nil, err
	}
	return f, nil
}

// slice returns n bytes at rva.
func (f *File) slice(rva, n uint32) ([]byte, error) {
	data, err := f.BodyAt(rva)
	if err != nil {
		return nil, err
	}
	if uint32(len(data)) < n {
		return nil, errors.Load(f.location, int64(rva), errors.KindTruncated,
			fmt.Sprintf("need %d bytes at rva 0x%x, section has %d", n, rva, len(data)), nil)
	}
	return data[:n:n], nil
}

// BodyAt returns the bytes from rva to the end of the section's raw data.
func (f *File) BodyAt(rva uint32) ([]byte, error) {
	for _, s := range f.sections {
		if rva < s.rva || rva-s.rva >= s.size {
			continue
		}
		off := rva - s.rva
		if off >= uint32(len(s.data)) {
			// virtual tail of the section, zero filled at load time
			return make([]byte, s.size-off), nil
		}
		return s.data[off:], nil
	}
	return nil, errors.Load(f.location, int64(rva), errors.KindOutOfBounds,
		fmt.Sprintf("rva 0x%x is not mapped by any section", rva), nil)
}

// ResourceAt returns the length-prefixed managed resource at offset within
// the CLI resources directory.
func (f *File) ResourceAt(offset uint32) ([]byte, error) {
	if uint64(offset)+4 > uint64(f.ResourcesSize) {
		return nil, errors.Load(f.location, int64(offset), errors.KindOutOfBounds,
			fmt.Sprintf("resource offset 0x%x outside the %d byte directory", offset, f.ResourcesSize), nil)
	}
	hdr, err := f.slice(f.ResourcesRVA+offset, 4)
	if err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr)
	if uint64(offset)+4+uint64(n) > uint64(f.ResourcesSize) {
		return nil, errors.Load(f.location, int64(offset), errors.KindTruncated,
			fmt.Sprintf("resource of %d bytes overruns the directory", n), nil)
	}
	return f.slice(f.ResourcesRVA+offset+4, n)
}
