package image

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/metadata"
)

// List names a one-to-many relationship stored as a run of consecutive
// child rows starting at the owner's list column.
type List uint8

const (
	TypeFields List = iota
	TypeMethods
	MethodParams
	MapEvents
	MapProperties
	numLists
)

var listSpecs = [numLists]struct {
	owner  metadata.Table
	column int
	child  metadata.Table
}{
	TypeFields:    {metadata.TableTypeDef, 4, metadata.TableField},
	TypeMethods:   {metadata.TableTypeDef, 5, metadata.TableMethodDef},
	MethodParams:  {metadata.TableMethodDef, 5, metadata.TableParam},
	MapEvents:     {metadata.TableEventMap, 1, metadata.TableEvent},
	MapProperties: {metadata.TablePropertyMap, 1, metadata.TableProperty},
}

func (l List) String() string {
	if l >= numLists {
		return fmt.Sprintf("List(%d)", uint8(l))
	}
	s := listSpecs[l]
	return s.owner.String() + "." + metadata.Columns(s.owner)[s.column].Name
}

// Owner returns the table holding the list column.
func (l List) Owner() metadata.Table { return listSpecs[l].owner }

// Child returns the table the list points into.
func (l List) Child() metadata.Table { return listSpecs[l].child }

// Range is a half-open run [Start, End) of logical child RIDs.
type Range struct {
	Start uint32
	End   uint32
}

// Len returns the number of rows in the range.
func (r Range) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return int(r.End - r.Start)
}

// Contains reports whether rid lies in the range.
func (r Range) Contains(rid uint32) bool {
	return rid >= r.Start && rid < r.End
}

// listIndex holds owner start RIDs plus a trailing end sentinel.
type listIndex struct {
	once   sync.Once
	err    error
	starts []uint32
}

func (r *Reader) list(l List) (*listIndex, error) {
	if l >= numLists {
		return nil, errors.InvalidInput(errors.PhaseRead, "unknown list "+l.String())
	}
	li := &r.lists[l]
	li.once.Do(func() {
		li.starts, li.err = r.buildList(l)
	})
	return li, li.err
}

func (r *Reader) buildList(l List) ([]uint32, error) {
	spec := listSpecs[l]
	owners := r.tables.RowCount(spec.owner)
	count := r.LogicalCount(spec.child)
	starts := make([]uint32, owners+1)
	prev := uint32(1)
	for i := uint32(0); i < owners; i++ {
		v := r.tables.Column(spec.owner, i+1, spec.column)
		if v == 0 {
			v = prev
		}
		if v < prev || v > count+1 {
			return nil, errors.Load(r.location, 0, errors.KindInvalidData,
				fmt.Sprintf("%s row %d: list start %d outside [%d,%d]", l, i+1, v, prev, count+1), nil)
		}
		starts[i] = v
		prev = v
	}
	starts[owners] = count + 1
	Logger().Debug("list index built",
		zap.String("location", r.location),
		zap.Stringer("list", l),
		zap.Uint32("owners", owners),
		zap.Uint32("children", count))
	return starts, nil
}

// ListRange returns the logical child rows owned by owner.
func (r *Reader) ListRange(l List, owner uint32) (Range, error) {
	li, err := r.list(l)
	if err != nil {
		return Range{}, err
	}
	if owner == 0 || int(owner) >= len(li.starts) {
		return Range{}, errors.NotFound(errors.PhaseRead, l.Owner().String(), owner)
	}
	return Range{Start: li.starts[owner-1], End: li.starts[owner]}, nil
}

// ListMembers returns the physical child RIDs owned by owner, translated
// through the child's pointer table.
func (r *Reader) ListMembers(l List, owner uint32) ([]uint32, error) {
	rng, err := r.ListRange(l, owner)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, rng.Len())
	for rid := rng.Start; rid < rng.End; rid++ {
		p, err := r.Physical(l.Child(), rid)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ListOwner returns the owner whose range contains the physical child row.
// With mustExist set, an orphan row is a not_found error; otherwise it is
// reported as (0, false, nil).
func (r *Reader) ListOwner(l List, child uint32, mustExist bool) (uint32, bool, error) {
	li, err := r.list(l)
	if err != nil {
		return 0, false, err
	}
	miss := func() (uint32, bool, error) {
		if mustExist {
			return 0, false, errors.NotFound(errors.PhaseRead, "owner of "+l.Child().String(), child)
		}
		return 0, false, nil
	}

	logical, err := r.Logical(l.Child(), child)
	if err != nil {
		return miss()
	}
	owners := len(li.starts) - 1
	// Empty ranges share a start with their successor, so the owner is the
	// last one whose start is not past the child.
	i := sort.Search(owners, func(i int) bool { return li.starts[i] > logical })
	if i == 0 || logical >= li.starts[i] {
		return miss()
	}
	return uint32(i), true, nil
}

// DeclaringType returns the TypeDef owning a field or method row.
func (r *Reader) DeclaringType(member metadata.Token, mustExist bool) (uint32, bool, error) {
	switch member.Table() {
	case metadata.TableField:
		return r.ListOwner(TypeFields, member.RID(), mustExist)
	case metadata.TableMethodDef:
		return r.ListOwner(TypeMethods, member.RID(), mustExist)
	}
	return 0, false, errors.InvalidInput(errors.PhaseRead, "declaring type of "+member.String())
}
