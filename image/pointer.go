package image

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/metadata"
)

// pointerTables pairs each logical table with the indirection table that
// may reorder it in an unoptimized stream.
var pointerTables = [...]struct {
	logical metadata.Table
	ptr     metadata.Table
}{
	{metadata.TableField, metadata.TableFieldPtr},
	{metadata.TableMethodDef, metadata.TableMethodPtr},
	{metadata.TableParam, metadata.TableParamPtr},
	{metadata.TableEvent, metadata.TableEventPtr},
	{metadata.TableProperty, metadata.TablePropertyPtr},
}

const numPointerTables = len(pointerTables)

// pointerIndex caches one pointer table. Nil slices mean identity.
type pointerIndex struct {
	once     sync.Once
	err      error
	physical []uint32 // logical RID-1 -> physical RID
	logical  []uint32 // physical RID-1 -> logical RID, 0 when unreferenced
}

func pointerSlot(t metadata.Table) (int, bool) {
	for i, p := range pointerTables {
		if p.logical == t {
			return i, true
		}
	}
	return 0, false
}

func (r *Reader) pointers(slot int) (*pointerIndex, error) {
	p := &r.ptrs[slot]
	p.once.Do(func() {
		p.physical, p.logical, p.err = r.buildPointers(slot)
		if p.err == nil {
			r.releasePointerTable(slot)
		}
	})
	return p, p.err
}

func (r *Reader) buildPointers(slot int) ([]uint32, []uint32, error) {
	pt := pointerTables[slot]
	n := r.tables.RowCount(pt.ptr)
	if n == 0 {
		return nil, nil, nil
	}
	rows := r.tables.RowCount(pt.logical)
	physical := make([]uint32, n)
	logical := make([]uint32, rows)
	for i := uint32(0); i < n; i++ {
		v := r.tables.Column(pt.ptr, i+1, 0)
		if v == 0 || v > rows {
			return nil, nil, errors.Load(r.location, 0, errors.KindInvalidData,
				fmt.Sprintf("%s row %d points at %s row %d of %d", pt.ptr, i+1, pt.logical, v, rows), nil)
		}
		physical[i] = v
		logical[v-1] = i + 1
	}
	Logger().Debug("pointer table translated",
		zap.String("location", r.location),
		zap.Stringer("table", pt.ptr),
		zap.Uint32("rows", n))
	return physical, logical, nil
}

func (r *Reader) releasePointerTable(slot int) {
	if r.options.KeepPointerTables {
		return
	}
	if td := r.tables.Table(pointerTables[slot].ptr); td != nil {
		td.Release()
	}
}

// LogicalCount returns the number of rows of t as seen through its pointer
// table, if any.
func (r *Reader) LogicalCount(t metadata.Table) uint32 {
	if _, ok := pointerSlot(t); ok {
		ptr, _ := metadata.PointerTable(t)
		if n := r.tables.RowCount(ptr); n > 0 {
			return n
		}
	}
	return r.tables.RowCount(t)
}

// Physical translates a logical RID of t through its pointer table. Tables
// without indirection translate to themselves.
func (r *Reader) Physical(t metadata.Table, logical uint32) (uint32, error) {
	slot, ok := pointerSlot(t)
	if !ok {
		return logical, nil
	}
	p, err := r.pointers(slot)
	if err != nil {
		return 0, err
	}
	if p.physical == nil {
		return logical, nil
	}
	if logical == 0 || int(logical) > len(p.physical) {
		return 0, errors.NotFound(errors.PhaseRead, "logical "+t.String(), logical)
	}
	return p.physical[logical-1], nil
}

// Logical is the inverse of Physical. A physical row no pointer references
// is reported as not found.
func (r *Reader) Logical(t metadata.Table, physical uint32) (uint32, error) {
	slot, ok := pointerSlot(t)
	if !ok {
		return physical, nil
	}
	p, err := r.pointers(slot)
	if err != nil {
		return 0, err
	}
	if p.logical == nil {
		return physical, nil
	}
	if physical == 0 || int(physical) > len(p.logical) || p.logical[physical-1] == 0 {
		return 0, errors.NotFound(errors.PhaseRead, t.String(), physical)
	}
	return p.logical[physical-1], nil
}
