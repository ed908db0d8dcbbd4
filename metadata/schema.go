package metadata

// ColumnKind describes how a column's value is stored.
type ColumnKind uint8

const (
	ColU8 ColumnKind = iota
	ColU16
	ColU32
	ColString
	ColGUID
	ColBlob
	ColTable
	ColCoded
)

// Column describes one column of a metadata table.
type Column struct {
	Name  string
	Kind  ColumnKind
	Table Table      // ColTable target
	Coded CodedIndex // ColCoded kind
}

func u8(name string) Column { return Column{Name: name, Kind: ColU8} }
func u16(name string) Column { return Column{Name: name, Kind: ColU16} }
func u32(name string) Column { return Column{Name: name, Kind: ColU32} }
func str(name string) Column { return Column{Name: name, Kind: ColString} }
func guid(name string) Column { return Column{Name: name, Kind: ColGUID} }
func blob(name string) Column { return Column{Name: name, Kind: ColBlob} }
func idx(name string, t Table) Column { return Column{Name: name, Kind: ColTable, Table: t} }
func coded(name string, c CodedIndex) Column { return Column{Name: name, Kind: ColCoded, Coded: c} }

var schema = [NumTables][]Column{
	TableModule:    {u16("Generation"), str("Name"), guid("Mvid"), guid("EncId"), guid("EncBaseId")},
	TableTypeRef:   {coded("ResolutionScope", ResolutionScope), str("TypeName"), str("TypeNamespace")},
	TableTypeDef:   {u32("Flags"), str("TypeName"), str("TypeNamespace"), coded("Extends", TypeDefOrRef), idx("FieldList", TableField), idx("MethodList", TableMethodDef)},
	TableFieldPtr:  {idx("Field", TableField)},
	TableField:     {u16("Flags"), str("Name"), blob("Signature")},
	TableMethodPtr: {idx("Method", TableMethodDef)},
	TableMethodDef: {u32("RVA"), u16("ImplFlags"), u16("Flags"), str("Name"), blob("Signature"), idx("ParamList", TableParam)},
	TableParamPtr:  {idx("Param", TableParam)},
	TableParam:     {u16("Flags"), u16("Sequence"), str("Name")},
	TableInterfaceImpl: {idx("Class", TableTypeDef), coded("Interface", TypeDefOrRef)},
	TableMemberRef:     {coded("Class", MemberRefParent), str("Name"), blob("Signature")},
	TableConstant:      {u8("Type"), u8("Padding"), coded("Parent", HasConstant), blob("Value")},
	TableCustomAttribute: {coded("Parent", HasCustomAttribute), coded("Type", CustomAttributeType), blob("Value")},
	TableFieldMarshal:    {coded("Parent", HasFieldMarshal), blob("NativeType")},
	TableDeclSecurity:    {u16("Action"), coded("Parent", HasDeclSecurity), blob("PermissionSet")},
	TableClassLayout:     {u16("PackingSize"), u32("ClassSize"), idx("Parent", TableTypeDef)},
	TableFieldLayout:     {u32("Offset"), idx("Field", TableField)},
	TableStandAloneSig:   {blob("Signature")},
	TableEventMap:        {idx("Parent", TableTypeDef), idx("EventList", TableEvent)},
	TableEventPtr:        {idx("Event", TableEvent)},
	TableEvent:           {u16("EventFlags"), str("Name"), coded("EventType", TypeDefOrRef)},
	TablePropertyMap:     {idx("Parent", TableTypeDef), idx("PropertyList", TableProperty)},
	TablePropertyPtr:     {idx("Property", TableProperty)},
	TableProperty:        {u16("Flags"), str("Name"), blob("Type")},
	TableMethodSemantics: {u16("Semantics"), idx("Method", TableMethodDef), coded("Association", HasSemantics)},
	TableMethodImpl:      {idx("Class", TableTypeDef), coded("MethodBody", MethodDefOrRef), coded("MethodDeclaration", MethodDefOrRef)},
	TableModuleRef:       {str("Name")},
	TableTypeSpec:        {blob("Signature")},
	TableImplMap:         {u16("MappingFlags"), coded("MemberForwarded", MemberForwarded), str("ImportName"), idx("ImportScope", TableModuleRef)},
	TableFieldRVA:        {u32("RVA"), idx("Field", TableField)},
	TableENCLog:          {u32("Token"), u32("FuncCode")},
	TableENCMap:          {u32("Token")},
	TableAssembly: {u32("HashAlgId"), u16("MajorVersion"), u16("MinorVersion"), u16("BuildNumber"), u16("RevisionNumber"),
		u32("Flags"), blob("PublicKey"), str("Name"), str("Culture")},
	TableAssemblyProcessor: {u32("Processor")},
	TableAssemblyOS:        {u32("OSPlatformID"), u32("OSMajorVersion"), u32("OSMinorVersion")},
	TableAssemblyRef: {u16("MajorVersion"), u16("MinorVersion"), u16("BuildNumber"), u16("RevisionNumber"),
		u32("Flags"), blob("PublicKeyOrToken"), str("Name"), str("Culture"), blob("HashValue")},
	TableAssemblyRefProcessor: {u32("Processor"), idx("AssemblyRef", TableAssemblyRef)},
	TableAssemblyRefOS:        {u32("OSPlatformID"), u32("OSMajorVersion"), u32("OSMinorVersion"), idx("AssemblyRef", TableAssemblyRef)},
	TableFile:                 {u32("Flags"), str("Name"), blob("HashValue")},
	TableExportedType:         {u32("Flags"), u32("TypeDefId"), str("TypeName"), str("TypeNamespace"), coded("Implementation", Implementation)},
	TableManifestResource:     {u32("Offset"), u32("Flags"), str("Name"), coded("Implementation", Implementation)},
	TableNestedClass:          {idx("NestedClass", TableTypeDef), idx("EnclosingClass", TableTypeDef)},
	TableGenericParam:         {u16("Number"), u16("Flags"), coded("Owner", TypeOrMethodDef), str("Name")},
	TableMethodSpec:           {coded("Method", MethodDefOrRef), blob("Instantiation")},
	TableGenericParamConstraint: {idx("Owner", TableGenericParam), coded("Constraint", TypeDefOrRef)},
}

// Columns returns the column list of t.
func Columns(t Table) []Column {
	if !t.Valid() {
		return nil
	}
	return schema[t]
}

// ColumnIndex returns the position of the named column in t, or -1.
func ColumnIndex(t Table, name string) int {
	for i, c := range Columns(t) {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Heap size flags of the tables stream header.
const (
	HeapStringsWide = 0x01
	HeapGUIDWide    = 0x02
	HeapBlobWide    = 0x04
	heapExtraData   = 0x40
)

// Layout is the computed byte layout of every table for one stream.
type Layout struct {
	Rows      RowCounts
	HeapSizes uint8
	widths    [NumTables][]int
	offsets   [NumTables][]int
	rowSize   [NumTables]int
}

// NewLayout computes column widths from row counts and heap size flags.
func NewLayout(rows RowCounts, heapSizes uint8) *Layout {
	l := &Layout{Rows: rows, HeapSizes: heapSizes}
	for t := Table(0); t < NumTables; t++ {
		cols := schema[t]
		l.widths[t] = make([]int, len(cols))
		l.offsets[t] = make([]int, len(cols))
		off := 0
		for i, c := range cols {
			w := l.columnWidth(c)
			l.widths[t][i] = w
			l.offsets[t][i] = off
			off += w
		}
		l.rowSize[t] = off
	}
	return l
}

func (l *Layout) columnWidth(c Column) int {
	switch c.Kind {
	case ColU8:
		return 1
	case ColU16:
		return 2
	case ColU32:
		return 4
	case ColString:
		return l.heapWidth(HeapStringsWide)
	case ColGUID:
		return l.heapWidth(HeapGUIDWide)
	case ColBlob:
		return l.heapWidth(HeapBlobWide)
	case ColTable:
		return l.Rows.TableIndexSize(c.Table)
	case ColCoded:
		return c.Coded.Size(&l.Rows)
	}
	return 0
}

func (l *Layout) heapWidth(flag uint8) int {
	if l.HeapSizes&flag != 0 {
		return 4
	}
	return 2
}

// RowSize returns the byte size of one row of t.
func (l *Layout) RowSize(t Table) int {
	return l.rowSize[t]
}

// ColumnWidth returns the byte width of column col of t.
func (l *Layout) ColumnWidth(t Table, col int) int {
	return l.widths[t][col]
}

// ColumnOffset returns the byte offset of column col inside a row of t.
func (l *Layout) ColumnOffset(t Table, col int) int {
	return l.offsets[t][col]
}
