package metadata

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	bin "github.com/wippyai/clrmeta/internal/binary"
)

// TableData is the raw row storage of one table.
type TableData struct {
	Table   Table
	Rows    uint32
	RowSize int
	Data    []byte
	layout  *Layout
}

// Column returns column col of 1-based row rid. Out-of-range reads yield 0.
func (d *TableData) Column(rid uint32, col int) uint32 {
	if rid == 0 || rid > d.Rows || d.Data == nil {
		return 0
	}
	off := int(rid-1)*d.RowSize + d.layout.ColumnOffset(d.Table, col)
	switch d.layout.ColumnWidth(d.Table, col) {
	case 1:
		return uint32(d.Data[off])
	case 2:
		return uint32(binary.LittleEndian.Uint16(d.Data[off:]))
	default:
		return binary.LittleEndian.Uint32(d.Data[off:])
	}
}

// Row returns every column of 1-based row rid.
func (d *TableData) Row(rid uint32) []uint32 {
	cols := schema[d.Table]
	out := make([]uint32, len(cols))
	for i := range cols {
		out[i] = d.Column(rid, i)
	}
	return out
}

// Release drops the row bytes. Row count is kept.
func (d *TableData) Release() {
	d.Data = nil
}

// Released reports whether the row bytes were dropped.
func (d *TableData) Released() bool {
	return d.Data == nil && d.Rows > 0
}

// Tables is a parsed #~ or #- stream.
type Tables struct {
	MajorVersion uint8
	MinorVersion uint8
	HeapSizes    uint8
	Valid        uint64
	SortedMask   uint64
	Uncompressed bool // #- stream
	Layout       *Layout
	tables       [NumTables]*TableData
}

// Table returns the storage of t. Absent tables have zero rows.
func (ts *Tables) Table(t Table) *TableData {
	return ts.tables[t]
}

// RowCount returns the number of rows of t.
func (ts *Tables) RowCount(t Table) uint32 {
	if !t.Valid() {
		return 0
	}
	return ts.tables[t].Rows
}

// RowCounts returns the row count of every table.
func (ts *Tables) RowCounts() RowCounts {
	return ts.Layout.Rows
}

// Row returns every column of row rid of t.
func (ts *Tables) Row(t Table, rid uint32) []uint32 {
	return ts.tables[t].Row(rid)
}

// Column returns column col of row rid of t.
func (ts *Tables) Column(t Table, rid uint32, col int) uint32 {
	return ts.tables[t].Column(rid, col)
}

// Sorted reports whether the stream flags t as sorted. A #- stream never
// guarantees order.
func (ts *Tables) Sorted(t Table) bool {
	return !ts.Uncompressed && ts.SortedMask&(1<<uint(t)) != 0
}

// ParseTables parses a tables stream.
func ParseTables(data []byte, uncompressed bool) (*Tables, error) {
	r := bin.NewReader(data)
	ts := &Tables{Uncompressed: uncompressed}

	if _, err := r.ReadU32(); err != nil {
		return nil, r.WrapError("tables header", err)
	}
	var err error
	if ts.MajorVersion, err = r.ReadU8(); err != nil {
		return nil, r.WrapError("tables header", err)
	}
	if ts.MinorVersion, err = r.ReadU8(); err != nil {
		return nil, r.WrapError("tables header", err)
	}
	if ts.HeapSizes, err = r.ReadU8(); err != nil {
		return nil, r.WrapError("tables header", err)
	}
	if _, err = r.ReadU8(); err != nil {
		return nil, r.WrapError("tables header", err)
	}
	if ts.Valid, err = r.ReadU64(); err != nil {
		return nil, r.WrapError("tables header", err)
	}
	if ts.SortedMask, err = r.ReadU64(); err != nil {
		return nil, r.WrapError("tables header", err)
	}

	var rows RowCounts
	for i := 0; i < 64; i++ {
		if ts.Valid&(1<<uint(i)) == 0 {
			continue
		}
		n, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("row counts", err)
		}
		if i >= NumTables {
			return nil, r.WrapError("row counts", fmt.Errorf("unknown table 0x%02x present", i))
		}
		if n > MaxRID {
			return nil, r.WrapError("row counts", fmt.Errorf("table %s has %d rows", Table(i), n))
		}
		rows[i] = n
	}
	if ts.HeapSizes&heapExtraData != 0 {
		if err := r.Skip(4); err != nil {
			return nil, r.WrapError("row counts", err)
		}
	}

	ts.Layout = NewLayout(rows, ts.HeapSizes)
	for t := Table(0); t < NumTables; t++ {
		size := ts.Layout.RowSize(t)
		td := &TableData{Table: t, Rows: rows[t], RowSize: size, layout: ts.Layout}
		if rows[t] > 0 {
			b, err := r.ReadBytes(int(rows[t]) * size)
			if err != nil {
				return nil, r.WrapError(t.String(), err)
			}
			td.Data = b
		}
		ts.tables[t] = td
	}
	return ts, nil
}

// TablesWriter assembles a #~ stream from decoded rows.
type TablesWriter struct {
	Rows         [NumTables][][]uint32
	HeapSizes    uint8
	SortedMask   uint64
	MajorVersion uint8
	MinorVersion uint8
}

// NewTablesWriter returns a writer for a version 2.0 stream with the
// standard sorted mask.
func NewTablesWriter() *TablesWriter {
	return &TablesWriter{
		SortedMask:   DefaultSortedMask(),
		MajorVersion: 2,
	}
}

// Add appends a row to t and returns its RID.
func (tw *TablesWriter) Add(t Table, row ...uint32) uint32 {
	tw.Rows[t] = append(tw.Rows[t], row)
	return uint32(len(tw.Rows[t]))
}

// Set replaces row rid of t.
func (tw *TablesWriter) Set(t Table, rid uint32, row []uint32) {
	tw.Rows[t][rid-1] = row
}

// Count returns the number of rows in t.
func (tw *TablesWriter) Count(t Table) uint32 {
	return uint32(len(tw.Rows[t]))
}

// RowCounts returns the current row counts.
func (tw *TablesWriter) RowCounts() RowCounts {
	var rc RowCounts
	for t := range tw.Rows {
		rc[t] = uint32(len(tw.Rows[t]))
	}
	return rc
}

// Encode serializes the stream, padded to 4 bytes.
func (tw *TablesWriter) Encode() ([]byte, error) {
	rows := tw.RowCounts()
	layout := NewLayout(rows, tw.HeapSizes)

	var valid uint64
	for t, n := range rows {
		if n > 0 {
			valid |= 1 << uint(t)
		}
	}

	w := bin.NewWriter()
	w.WriteU32(0)
	w.Byte(tw.MajorVersion)
	w.Byte(tw.MinorVersion)
	w.Byte(tw.HeapSizes &^ heapExtraData)
	w.Byte(1)
	w.WriteU64(valid)
	w.WriteU64(tw.SortedMask)
	for _, n := range rows {
		if n > 0 {
			w.WriteU32(n)
		}
	}

	for t := Table(0); t < NumTables; t++ {
		cols := schema[t]
		for i, row := range tw.Rows[t] {
			if len(row) != len(cols) {
				return nil, fmt.Errorf("%s row %d has %d columns, want %d", t, i+1, len(row), len(cols))
			}
			for c, v := range row {
				width := layout.ColumnWidth(t, c)
				if width < 4 && bits.Len32(v) > width*8 {
					return nil, fmt.Errorf("%s row %d column %s value 0x%x exceeds %d bytes", t, i+1, cols[c].Name, v, width)
				}
				w.WriteIndex(width, v)
			}
		}
	}
	w.Pad(4)
	return w.Bytes(), nil
}
