package builder

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/metadata"
)

// Result is a finalized build: the metadata root with its streams, the
// sections that live outside the metadata and the RID maps between the
// graph's original rows and the emitted ones.
type Result struct {
	// Metadata is the complete metadata root.
	Metadata []byte

	Tables      []byte
	Strings     []byte
	UserStrings []byte
	GUID        []byte
	Blob        []byte

	// Code holds the method bodies, placed at CodeRVA.
	Code    []byte
	CodeRVA uint32
	// FieldData holds FieldRVA initial values, placed at FieldDataRVA.
	FieldData    []byte
	FieldDataRVA uint32
	// Resources holds embedded manifest resources.
	Resources []byte

	EntryPoint metadata.Token
	RowCounts  metadata.RowCounts

	newToOld [metadata.NumTables][]uint32
	oldToNew [metadata.NumTables]map[uint32]uint32
}

// Finalize sorts the tables that must be sorted, lays out the heaps and
// encodes the metadata root. The session cannot be used afterwards.
func (s *Session) Finalize() (*Result, error) {
	if !s.emitted {
		return nil, errors.InvalidInput(errors.PhaseBuild, "Finalize called before EmitAll")
	}
	if s.finalized {
		return nil, errors.InvalidInput(errors.PhaseBuild, "session already finalized")
	}
	s.finalized = true
	s.sortTables()

	res := &Result{
		Strings:      s.strings.Finalize(),
		UserStrings:  s.us.Finalize(),
		GUID:         s.guids.Finalize(),
		Blob:         s.blobs.Finalize(),
		Code:         s.code,
		CodeRVA:      s.opts.CodeRVA,
		FieldData:    s.fieldData,
		FieldDataRVA: s.fieldDataRVA,
		Resources:    s.resourceData,
		EntryPoint:   s.entryPoint,
		RowCounts:    s.tw.RowCounts(),
		newToOld:     s.newToOld,
	}

	var heapSizes uint8
	if len(res.Strings) >= 1<<16 {
		heapSizes |= metadata.HeapStringsWide
	}
	if len(res.GUID) >= 1<<16 {
		heapSizes |= metadata.HeapGUIDWide
	}
	if len(res.Blob) >= 1<<16 {
		heapSizes |= metadata.HeapBlobWide
	}
	s.tw.HeapSizes = heapSizes

	tables, err := s.tw.Encode()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseBuild, errors.KindOverflow, err, "tables stream")
	}
	res.Tables = tables

	root := &metadata.Root{
		MajorVersion: 1,
		MinorVersion: 1,
		Version:      s.opts.Version,
		Streams: []metadata.Stream{
			{Name: metadata.StreamTables, Data: res.Tables},
			{Name: metadata.StreamStrings, Data: res.Strings},
			{Name: metadata.StreamUserStrings, Data: res.UserStrings},
			{Name: metadata.StreamGUID, Data: res.GUID},
			{Name: metadata.StreamBlob, Data: res.Blob},
		},
	}
	res.Metadata = root.Encode()

	for t, origins := range res.newToOld {
		for newRID, old := range origins {
			if old == 0 {
				continue
			}
			if res.oldToNew[t] == nil {
				res.oldToNew[t] = make(map[uint32]uint32)
			}
			if _, seen := res.oldToNew[t][old]; !seen {
				res.oldToNew[t][old] = uint32(newRID + 1)
			}
		}
	}

	fields := []zap.Field{
		zap.String("module", s.mod.Name),
		zap.Int("metadata_bytes", len(res.Metadata)),
		zap.Int("code_bytes", len(res.Code)),
	}
	for _, t := range internedTables {
		x := s.interned[t]
		fields = append(fields, zap.Dict(t.String(), zap.Int("rows", x.misses), zap.Int("dedup_hits", x.hits)))
	}
	s.log.Debug("build finalized", fields...)
	return res, nil
}

// RIDMap returns, for every emitted row of t, the RID the row had in the
// graph it was loaded from; 0 marks rows with no original.
func (r *Result) RIDMap(t metadata.Table) []uint32 {
	return r.newToOld[t]
}

// OriginalRID maps an emitted RID back to the original one.
func (r *Result) OriginalRID(t metadata.Table, newRID uint32) (uint32, bool) {
	m := r.newToOld[t]
	if newRID == 0 || int(newRID) > len(m) || m[newRID-1] == 0 {
		return 0, false
	}
	return m[newRID-1], true
}

// NewRID maps an original RID to the emitted one.
func (r *Result) NewRID(t metadata.Table, original uint32) (uint32, bool) {
	rid, ok := r.oldToNew[t][original]
	return rid, ok
}

// BodyAt returns the code or field data from rva to the end of its
// section. It lets model.Load read a build back.
func (r *Result) BodyAt(rva uint32) ([]byte, error) {
	if rva >= r.CodeRVA && rva-r.CodeRVA < uint32(len(r.Code)) {
		return r.Code[rva-r.CodeRVA:], nil
	}
	if rva >= r.FieldDataRVA && rva-r.FieldDataRVA < uint32(len(r.FieldData)) {
		return r.FieldData[rva-r.FieldDataRVA:], nil
	}
	return nil, fmt.Errorf("rva 0x%x is outside the built sections", rva)
}

// ResourceAt returns the embedded resource at offset.
func (r *Result) ResourceAt(offset uint32) ([]byte, error) {
	if uint64(offset)+4 > uint64(len(r.Resources)) {
		return nil, fmt.Errorf("resource offset 0x%x out of range", offset)
	}
	n := binary.LittleEndian.Uint32(r.Resources[offset:])
	start := uint64(offset) + 4
	if start+uint64(n) > uint64(len(r.Resources)) {
		return nil, fmt.Errorf("resource at 0x%x: %d bytes overrun the section", offset, n)
	}
	return r.Resources[start : start+uint64(n)], nil
}
