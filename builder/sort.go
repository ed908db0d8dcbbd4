package builder

import (
	"slices"

	"github.com/wippyai/clrmeta/metadata"
)

// sortedLast are the sorted tables no other row points into.
var sortedLast = []metadata.Table{
	metadata.TableConstant,
	metadata.TableCustomAttribute,
	metadata.TableFieldMarshal,
	metadata.TableClassLayout,
	metadata.TableFieldLayout,
	metadata.TableMethodSemantics,
	metadata.TableMethodImpl,
	metadata.TableImplMap,
	metadata.TableFieldRVA,
	metadata.TableNestedClass,
}

// sortTables puts every table flagged in the sorted mask into key order.
// Tables referenced by other rows are sorted first and the referencing
// columns rewritten: GenericParam before its constraints, then everything
// a custom attribute may be attached to.
func (s *Session) sortTables() {
	gp := s.sortTable(metadata.TableGenericParam)
	s.remapColumn(metadata.TableGenericParamConstraint, 0, gp)

	remaps := map[metadata.Table][]uint32{metadata.TableGenericParam: gp}
	for _, t := range []metadata.Table{
		metadata.TableGenericParamConstraint,
		metadata.TableInterfaceImpl,
		metadata.TableDeclSecurity,
	} {
		if m := s.sortTable(t); m != nil {
			remaps[t] = m
		}
	}
	s.remapCoded(metadata.TableCustomAttribute, 0, metadata.HasCustomAttribute, remaps)

	for _, t := range sortedLast {
		s.sortTable(t)
	}
}

// sortTable stably sorts t by its key column and returns the old to new
// RID map, or nil when the table was already in order.
func (s *Session) sortTable(t metadata.Table) []uint32 {
	col, ok := metadata.SortKey(t)
	if !ok {
		return nil
	}
	rows := s.tw.Rows[t]
	less := func(a, b []uint32) int {
		if a[col] != b[col] {
			if a[col] < b[col] {
				return -1
			}
			return 1
		}
		// generic parameters of one owner are ordered by number
		if t == metadata.TableGenericParam && a[0] != b[0] {
			if a[0] < b[0] {
				return -1
			}
			return 1
		}
		return 0
	}
	if slices.IsSortedFunc(rows, less) {
		return nil
	}

	perm := make([]int, len(rows))
	for i := range perm {
		perm[i] = i
	}
	slices.SortStableFunc(perm, func(a, b int) int { return less(rows[a], rows[b]) })

	sorted := make([][]uint32, len(rows))
	origins := make([]uint32, len(rows))
	remap := make([]uint32, len(rows))
	for newIdx, oldIdx := range perm {
		sorted[newIdx] = rows[oldIdx]
		origins[newIdx] = s.newToOld[t][oldIdx]
		remap[oldIdx] = uint32(newIdx + 1)
	}
	s.tw.Rows[t] = sorted
	s.newToOld[t] = origins
	s.remapOwners(t, remap)
	return remap
}

// remapOwners keeps the identity indexes in step with a sorted table.
func (s *Session) remapOwners(t metadata.Table, remap []uint32) {
	switch t {
	case metadata.TableGenericParam:
		for k, rid := range s.genericParams {
			s.genericParams[k] = remap[rid-1]
		}
	case metadata.TableGenericParamConstraint:
		for k, rid := range s.constraints {
			s.constraints[k] = remap[rid-1]
		}
	case metadata.TableInterfaceImpl:
		for k, rid := range s.interfaceImpls {
			s.interfaceImpls[k] = remap[rid-1]
		}
	}
}

func (s *Session) remapColumn(t metadata.Table, col int, remap []uint32) {
	if remap == nil {
		return
	}
	for _, row := range s.tw.Rows[t] {
		if v := row[col]; v != 0 {
			row[col] = remap[v-1]
		}
	}
}

func (s *Session) remapCoded(t metadata.Table, col int, c metadata.CodedIndex, remaps map[metadata.Table][]uint32) {
	for _, row := range s.tw.Rows[t] {
		tok := c.Decode(row[col])
		remap, ok := remaps[tok.Table()]
		if !ok || remap == nil || tok.IsNull() {
			continue
		}
		row[col], _ = c.Encode(metadata.NewToken(tok.Table(), remap[tok.RID()-1]))
	}
}
