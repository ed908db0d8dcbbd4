package image

import (
	"cmp"
	"fmt"
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/metadata"
)

// Key names a foreign-key column whose rows are looked up by owner.
type Key uint8

const (
	KeyCustomAttribute Key = iota
	KeyGenericParam
	KeyGenericParamConstraint
	KeyConstant
	KeyFieldMarshal
	KeyDeclSecurity
	KeyClassLayout
	KeyFieldLayout
	KeyFieldRVA
	KeyImplMap
	KeyInterfaceImpl
	KeyMethodImpl
	KeyMethodSemantics
	KeyNestedClass
	KeyEnclosingClass
	KeyEventMap
	KeyPropertyMap
	numKeys
)

var keySpecs = [numKeys]struct {
	table  metadata.Table
	column int
}{
	KeyCustomAttribute:        {metadata.TableCustomAttribute, 0},
	KeyGenericParam:           {metadata.TableGenericParam, 2},
	KeyGenericParamConstraint: {metadata.TableGenericParamConstraint, 0},
	KeyConstant:               {metadata.TableConstant, 2},
	KeyFieldMarshal:           {metadata.TableFieldMarshal, 0},
	KeyDeclSecurity:           {metadata.TableDeclSecurity, 1},
	KeyClassLayout:            {metadata.TableClassLayout, 2},
	KeyFieldLayout:            {metadata.TableFieldLayout, 1},
	KeyFieldRVA:               {metadata.TableFieldRVA, 1},
	KeyImplMap:                {metadata.TableImplMap, 1},
	KeyInterfaceImpl:          {metadata.TableInterfaceImpl, 0},
	KeyMethodImpl:             {metadata.TableMethodImpl, 0},
	KeyMethodSemantics:        {metadata.TableMethodSemantics, 2},
	KeyNestedClass:            {metadata.TableNestedClass, 0},
	KeyEnclosingClass:         {metadata.TableNestedClass, 1},
	KeyEventMap:               {metadata.TableEventMap, 0},
	KeyPropertyMap:            {metadata.TablePropertyMap, 0},
}

// Table returns the table holding the key column.
func (k Key) Table() metadata.Table { return keySpecs[k].table }

// Column returns the position of the key column.
func (k Key) Column() int { return keySpecs[k].column }

func (k Key) String() string {
	if k >= numKeys {
		return fmt.Sprintf("Key(%d)", uint8(k))
	}
	s := keySpecs[k]
	return s.table.String() + "." + metadata.Columns(s.table)[s.column].Name
}

// keyIndex holds the key column in ascending order together with the RID
// each value came from.
type keyIndex struct {
	once     sync.Once
	owners   []uint32
	rids     []uint32
	permuted bool
}

func (r *Reader) key(k Key) *keyIndex {
	ki := &r.keys[k]
	ki.once.Do(func() {
		ki.owners, ki.rids, ki.permuted = r.buildKey(k)
	})
	return ki
}

func (r *Reader) buildKey(k Key) (owners, rids []uint32, permuted bool) {
	spec := keySpecs[k]
	n := r.tables.RowCount(spec.table)
	owners = make([]uint32, n)
	rids = make([]uint32, n)
	for i := uint32(0); i < n; i++ {
		owners[i] = r.tables.Column(spec.table, i+1, spec.column)
		rids[i] = i + 1
	}
	if slices.IsSorted(owners) {
		return owners, rids, false
	}

	if r.tables.Sorted(spec.table) {
		Logger().Warn("table flagged sorted is out of order",
			zap.String("location", r.location),
			zap.Stringer("key", k))
	}
	slices.SortStableFunc(rids, func(a, b uint32) int {
		return cmp.Compare(owners[a-1], owners[b-1])
	})
	sorted := make([]uint32, n)
	for i, rid := range rids {
		sorted[i] = owners[rid-1]
	}
	Logger().Debug("sort permutation built",
		zap.String("location", r.location),
		zap.Stringer("key", k),
		zap.Uint32("rows", n))
	return sorted, rids, true
}

// keyValue encodes owner the way the key column stores it.
func keyValue(k Key, owner metadata.Token) (uint32, bool) {
	c := metadata.Columns(k.Table())[k.Column()]
	switch c.Kind {
	case metadata.ColCoded:
		if owner.IsNull() {
			return 0, false
		}
		return c.Coded.Encode(owner)
	case metadata.ColTable:
		if owner.Table() != c.Table || owner.IsNull() {
			return 0, false
		}
		return owner.RID(), true
	}
	return 0, false
}

// Rows returns the RIDs of k's table whose key column refers to owner, in
// table order. The returned slice is shared and must not be modified.
func (r *Reader) Rows(k Key, owner metadata.Token) []uint32 {
	if k >= numKeys {
		return nil
	}
	v, ok := keyValue(k, owner)
	if !ok {
		return nil
	}
	ki := r.key(k)
	lo := sort.Search(len(ki.owners), func(i int) bool { return ki.owners[i] >= v })
	hi := sort.Search(len(ki.owners), func(i int) bool { return ki.owners[i] > v })
	if lo == hi {
		return nil
	}
	return ki.rids[lo:hi:hi]
}

// Find returns the first row of k's table referring to owner. With
// mustExist set a miss is a not_found error; otherwise it is (0, false, nil).
func (r *Reader) Find(k Key, owner metadata.Token, mustExist bool) (uint32, bool, error) {
	rows := r.Rows(k, owner)
	if len(rows) == 0 {
		if mustExist {
			return 0, false, errors.NotFound(errors.PhaseRead, k.String(), owner)
		}
		return 0, false, nil
	}
	return rows[0], true, nil
}

// CustomAttributes returns the CustomAttribute rows attached to owner.
func (r *Reader) CustomAttributes(owner metadata.Token) []uint32 {
	return r.Rows(KeyCustomAttribute, owner)
}

// GenericParams returns the GenericParam rows of a type or method.
func (r *Reader) GenericParams(owner metadata.Token) []uint32 {
	return r.Rows(KeyGenericParam, owner)
}

// NestedTypes returns the NestedClass rows whose enclosing class is the
// given TypeDef.
func (r *Reader) NestedTypes(typeDef uint32) []uint32 {
	return r.Rows(KeyEnclosingClass, metadata.NewToken(metadata.TableTypeDef, typeDef))
}

// EnclosingType returns the TypeDef enclosing a nested TypeDef.
func (r *Reader) EnclosingType(typeDef uint32, mustExist bool) (uint32, bool, error) {
	row, ok, err := r.Find(KeyNestedClass, metadata.NewToken(metadata.TableTypeDef, typeDef), mustExist)
	if !ok {
		return 0, false, err
	}
	return r.tables.Column(metadata.TableNestedClass, row, 1), true, nil
}
