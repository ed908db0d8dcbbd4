package metadata

import "math/bits"

// CodedIndex identifies one of the coded-index column kinds (ECMA-335 II.24.2.6).
type CodedIndex uint8

const (
	TypeDefOrRef CodedIndex = iota
	HasConstant
	HasCustomAttribute
	HasFieldMarshal
	HasDeclSecurity
	MemberRefParent
	HasSemantics
	MethodDefOrRef
	MemberForwarded
	Implementation
	CustomAttributeType
	ResolutionScope
	TypeOrMethodDef

	numCodedIndexes
)

type codedInfo struct {
	name   string
	bits   uint
	tables []Table
}

var codedIndexes = [numCodedIndexes]codedInfo{
	TypeDefOrRef: {"TypeDefOrRef", 2, []Table{TableTypeDef, TableTypeRef, TableTypeSpec}},
	HasConstant:  {"HasConstant", 2, []Table{TableField, TableParam, TableProperty}},
	HasCustomAttribute: {"HasCustomAttribute", 5, []Table{
		TableMethodDef, TableField, TableTypeRef, TableTypeDef, TableParam,
		TableInterfaceImpl, TableMemberRef, TableModule, TableDeclSecurity,
		TableProperty, TableEvent, TableStandAloneSig, TableModuleRef,
		TableTypeSpec, TableAssembly, TableAssemblyRef, TableFile,
		TableExportedType, TableManifestResource, TableGenericParam,
		TableGenericParamConstraint, TableMethodSpec,
	}},
	HasFieldMarshal:     {"HasFieldMarshal", 1, []Table{TableField, TableParam}},
	HasDeclSecurity:     {"HasDeclSecurity", 2, []Table{TableTypeDef, TableMethodDef, TableAssembly}},
	MemberRefParent:     {"MemberRefParent", 3, []Table{TableTypeDef, TableTypeRef, TableModuleRef, TableMethodDef, TableTypeSpec}},
	HasSemantics:        {"HasSemantics", 1, []Table{TableEvent, TableProperty}},
	MethodDefOrRef:      {"MethodDefOrRef", 1, []Table{TableMethodDef, TableMemberRef}},
	MemberForwarded:     {"MemberForwarded", 1, []Table{TableField, TableMethodDef}},
	Implementation:      {"Implementation", 2, []Table{TableFile, TableAssemblyRef, TableExportedType}},
	CustomAttributeType: {"CustomAttributeType", 3, []Table{noTable, noTable, TableMethodDef, TableMemberRef, noTable}},
	ResolutionScope:     {"ResolutionScope", 2, []Table{TableModule, TableModuleRef, TableAssemblyRef, TableTypeRef}},
	TypeOrMethodDef:     {"TypeOrMethodDef", 1, []Table{TableTypeDef, TableMethodDef}},
}

func (c CodedIndex) String() string {
	if c < numCodedIndexes {
		return codedIndexes[c].name
	}
	return "CodedIndex(?)"
}

// TagBits returns the number of low bits holding the table tag.
func (c CodedIndex) TagBits() uint {
	return codedIndexes[c].bits
}

// Tables returns the candidate tables in tag order. Unused tags are omitted.
func (c CodedIndex) Tables() []Table {
	out := make([]Table, 0, len(codedIndexes[c].tables))
	for _, t := range codedIndexes[c].tables {
		if t != noTable {
			out = append(out, t)
		}
	}
	return out
}

// Encode packs a token into the coded value. A null token encodes as 0
// regardless of its table. ok is false when the token's table is not a
// member of the tag set.
func (c CodedIndex) Encode(tok Token) (uint32, bool) {
	if tok.IsNull() {
		return 0, true
	}
	info := codedIndexes[c]
	for tag, t := range info.tables {
		if t == tok.Table() {
			return tok.RID()<<info.bits | uint32(tag), true
		}
	}
	return 0, false
}

// Decode unpacks a coded value. Unknown tags yield a zero token.
func (c CodedIndex) Decode(v uint32) Token {
	info := codedIndexes[c]
	tag := v & (1<<info.bits - 1)
	if int(tag) >= len(info.tables) || info.tables[tag] == noTable {
		return 0
	}
	return NewToken(info.tables[tag], v>>info.bits)
}

// Size returns the column width in bytes: 2 when the largest candidate
// table's RID fits in 16-TagBits bits, else 4.
func (c CodedIndex) Size(rows *RowCounts) int {
	info := codedIndexes[c]
	var maxRows uint32
	for _, t := range info.tables {
		if t != noTable && rows[t] > maxRows {
			maxRows = rows[t]
		}
	}
	if bits.Len32(maxRows) <= int(16-info.bits) {
		return 2
	}
	return 4
}

// RowCounts holds the row count of every table.
type RowCounts [NumTables]uint32

// TableIndexSize returns the width of a simple index into t.
func (r *RowCounts) TableIndexSize(t Table) int {
	if r[t] > 0xFFFF {
		return 4
	}
	return 2
}
