package metadata

import "fmt"

// Table identifies a metadata table (ECMA-335 II.22) or a token-only kind.
type Table uint8

// Metadata tables in stream order.
const (
	TableModule                 Table = 0x00
	TableTypeRef                Table = 0x01
	TableTypeDef                Table = 0x02
	TableFieldPtr               Table = 0x03
	TableField                  Table = 0x04
	TableMethodPtr              Table = 0x05
	TableMethodDef              Table = 0x06
	TableParamPtr               Table = 0x07
	TableParam                  Table = 0x08
	TableInterfaceImpl          Table = 0x09
	TableMemberRef              Table = 0x0A
	TableConstant               Table = 0x0B
	TableCustomAttribute        Table = 0x0C
	TableFieldMarshal           Table = 0x0D
	TableDeclSecurity           Table = 0x0E
	TableClassLayout            Table = 0x0F
	TableFieldLayout            Table = 0x10
	TableStandAloneSig          Table = 0x11
	TableEventMap               Table = 0x12
	TableEventPtr               Table = 0x13
	TableEvent                  Table = 0x14
	TablePropertyMap            Table = 0x15
	TablePropertyPtr            Table = 0x16
	TableProperty               Table = 0x17
	TableMethodSemantics        Table = 0x18
	TableMethodImpl             Table = 0x19
	TableModuleRef              Table = 0x1A
	TableTypeSpec               Table = 0x1B
	TableImplMap                Table = 0x1C
	TableFieldRVA               Table = 0x1D
	TableENCLog                 Table = 0x1E
	TableENCMap                 Table = 0x1F
	TableAssembly               Table = 0x20
	TableAssemblyProcessor      Table = 0x21
	TableAssemblyOS             Table = 0x22
	TableAssemblyRef            Table = 0x23
	TableAssemblyRefProcessor   Table = 0x24
	TableAssemblyRefOS          Table = 0x25
	TableFile                   Table = 0x26
	TableExportedType           Table = 0x27
	TableManifestResource       Table = 0x28
	TableNestedClass            Table = 0x29
	TableGenericParam           Table = 0x2A
	TableMethodSpec             Table = 0x2B
	TableGenericParamConstraint Table = 0x2C

	// NumTables is the number of table kinds a tables stream can carry.
	NumTables = 0x2D

	// TableUserString tags ldstr tokens, whose RID is a #US heap offset.
	TableUserString Table = 0x70

	// noTable marks an unused slot in a coded index tag set.
	noTable Table = 0xFF
)

var tableNames = [NumTables]string{
	"Module", "TypeRef", "TypeDef", "FieldPtr", "Field", "MethodPtr", "MethodDef",
	"ParamPtr", "Param", "InterfaceImpl", "MemberRef", "Constant", "CustomAttribute",
	"FieldMarshal", "DeclSecurity", "ClassLayout", "FieldLayout", "StandAloneSig",
	"EventMap", "EventPtr", "Event", "PropertyMap", "PropertyPtr", "Property",
	"MethodSemantics", "MethodImpl", "ModuleRef", "TypeSpec", "ImplMap", "FieldRVA",
	"ENCLog", "ENCMap", "Assembly", "AssemblyProcessor", "AssemblyOS", "AssemblyRef",
	"AssemblyRefProcessor", "AssemblyRefOS", "File", "ExportedType", "ManifestResource",
	"NestedClass", "GenericParam", "MethodSpec", "GenericParamConstraint",
}

func (t Table) String() string {
	if t < NumTables {
		return tableNames[t]
	}
	if t == TableUserString {
		return "UserString"
	}
	return fmt.Sprintf("Table(0x%02x)", uint8(t))
}

// Valid reports whether t is one of the stream tables.
func (t Table) Valid() bool {
	return t < NumTables
}

// TableByName returns the table with the given name.
func TableByName(name string) (Table, bool) {
	for i, n := range tableNames {
		if n == name {
			return Table(i), true
		}
	}
	return 0, false
}

// sortedTables lists the tables ECMA-335 II.22 requires to be sorted, with
// the column holding the primary key.
var sortedTables = map[Table]int{
	TableInterfaceImpl:          0,
	TableConstant:               2,
	TableCustomAttribute:        0,
	TableFieldMarshal:           0,
	TableDeclSecurity:           1,
	TableClassLayout:            2,
	TableFieldLayout:            1,
	TableMethodSemantics:        2,
	TableMethodImpl:             0,
	TableImplMap:                1,
	TableFieldRVA:               1,
	TableNestedClass:            0,
	TableGenericParam:           2,
	TableGenericParamConstraint: 0,
}

// SortKey returns the key column of a table that must be sorted.
func SortKey(t Table) (int, bool) {
	col, ok := sortedTables[t]
	return col, ok
}

// DefaultSortedMask is the sorted bit vector for a stream whose required
// tables are all emitted in key order.
func DefaultSortedMask() uint64 {
	var mask uint64
	for t := range sortedTables {
		mask |= 1 << uint(t)
	}
	return mask
}

// PointerTable returns the indirection table that may reshuffle t, if any.
func PointerTable(t Table) (Table, bool) {
	switch t {
	case TableField:
		return TableFieldPtr, true
	case TableMethodDef:
		return TableMethodPtr, true
	case TableParam:
		return TableParamPtr, true
	case TableEvent:
		return TableEventPtr, true
	case TableProperty:
		return TablePropertyPtr, true
	}
	return 0, false
}
