package image

import (
	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/metadata"
)

// Typed rows. Heap columns are resolved; table and coded index columns are
// tokens; list columns keep their raw logical start RID.

type ModuleRow struct {
	Generation uint16
	Name       string
	Mvid       metadata.GUID
	EncID      metadata.GUID
	EncBaseID  metadata.GUID
}

type TypeRefRow struct {
	ResolutionScope metadata.Token
	Name            string
	Namespace       string
}

type TypeDefRow struct {
	Flags      uint32
	Name       string
	Namespace  string
	Extends    metadata.Token
	FieldList  uint32
	MethodList uint32
}

type FieldRow struct {
	Flags     uint16
	Name      string
	Signature []byte
}

type MethodDefRow struct {
	RVA       uint32
	ImplFlags uint16
	Flags     uint16
	Name      string
	Signature []byte
	ParamList uint32
}

type ParamRow struct {
	Flags    uint16
	Sequence uint16
	Name     string
}

type InterfaceImplRow struct {
	Class     metadata.Token
	Interface metadata.Token
}

type MemberRefRow struct {
	Class     metadata.Token
	Name      string
	Signature []byte
}

type ConstantRow struct {
	Type   uint8
	Parent metadata.Token
	Value  []byte
}

type CustomAttributeRow struct {
	Parent metadata.Token
	Type   metadata.Token
	Value  []byte
}

type FieldMarshalRow struct {
	Parent     metadata.Token
	NativeType []byte
}

type DeclSecurityRow struct {
	Action        uint16
	Parent        metadata.Token
	PermissionSet []byte
}

type ClassLayoutRow struct {
	PackingSize uint16
	ClassSize   uint32
	Parent      metadata.Token
}

type FieldLayoutRow struct {
	Offset uint32
	Field  metadata.Token
}

type StandAloneSigRow struct {
	Signature []byte
}

type EventMapRow struct {
	Parent    metadata.Token
	EventList uint32
}

type EventRow struct {
	Flags     uint16
	Name      string
	EventType metadata.Token
}

type PropertyMapRow struct {
	Parent       metadata.Token
	PropertyList uint32
}

type PropertyRow struct {
	Flags     uint16
	Name      string
	Signature []byte
}

type MethodSemanticsRow struct {
	Semantics   uint16
	Method      metadata.Token
	Association metadata.Token
}

type MethodImplRow struct {
	Class       metadata.Token
	Body        metadata.Token
	Declaration metadata.Token
}

type ModuleRefRow struct {
	Name string
}

type TypeSpecRow struct {
	Signature []byte
}

type ImplMapRow struct {
	MappingFlags    uint16
	MemberForwarded metadata.Token
	ImportName      string
	ImportScope     metadata.Token
}

type FieldRVARow struct {
	RVA   uint32
	Field metadata.Token
}

// Version is an assembly version.
type Version struct {
	Major, Minor, Build, Revision uint16
}

type AssemblyRow struct {
	HashAlgID uint32
	Version   Version
	Flags     uint32
	PublicKey []byte
	Name      string
	Culture   string
}

type AssemblyRefRow struct {
	Version          Version
	Flags            uint32
	PublicKeyOrToken []byte
	Name             string
	Culture          string
	HashValue        []byte
}

type FileRow struct {
	Flags     uint32
	Name      string
	HashValue []byte
}

type ExportedTypeRow struct {
	Flags          uint32
	TypeDefID      uint32
	Name           string
	Namespace      string
	Implementation metadata.Token
}

type ManifestResourceRow struct {
	Offset         uint32
	Flags          uint32
	Name           string
	Implementation metadata.Token
}

type NestedClassRow struct {
	NestedClass    metadata.Token
	EnclosingClass metadata.Token
}

type GenericParamRow struct {
	Number uint16
	Flags  uint16
	Owner  metadata.Token
	Name   string
}

type MethodSpecRow struct {
	Method        metadata.Token
	Instantiation []byte
}

type GenericParamConstraintRow struct {
	Owner      metadata.Token
	Constraint metadata.Token
}

// rowCursor reads the columns of one row and keeps the first heap error.
type rowCursor struct {
	r   *Reader
	t   metadata.Table
	rid uint32
	err error
}

func (r *Reader) cursor(t metadata.Table, rid uint32) (*rowCursor, error) {
	if !r.Has(t, rid) {
		return nil, errors.NotFound(errors.PhaseRead, t.String(), rid)
	}
	return &rowCursor{r: r, t: t, rid: rid}, nil
}

func (c *rowCursor) u32(col int) uint32 { return c.r.tables.Column(c.t, c.rid, col) }
func (c *rowCursor) u16(col int) uint16 { return uint16(c.u32(col)) }
func (c *rowCursor) tok(col int) metadata.Token {
	return c.r.Token(c.t, c.rid, col)
}

func (c *rowCursor) str(col int) string {
	if c.err != nil {
		return ""
	}
	s, err := c.r.String(c.u32(col))
	c.err = err
	return s
}

func (c *rowCursor) blob(col int) []byte {
	if c.err != nil {
		return nil
	}
	b, err := c.r.Blob(c.u32(col))
	c.err = err
	return b
}

func (c *rowCursor) guid(col int) metadata.GUID {
	if c.err != nil {
		return metadata.GUID{}
	}
	g, err := c.r.GUID(c.u32(col))
	c.err = err
	return g
}

func (c *rowCursor) version(col int) Version {
	return Version{c.u16(col), c.u16(col + 1), c.u16(col + 2), c.u16(col + 3)}
}

// readRow runs fill over a cursor for row rid of t.
func readRow[T any](r *Reader, t metadata.Table, rid uint32, fill func(c *rowCursor) T) (T, error) {
	var zero T
	c, err := r.cursor(t, rid)
	if err != nil {
		return zero, err
	}
	v := fill(c)
	if c.err != nil {
		return zero, c.err
	}
	return v, nil
}

func (r *Reader) Module(rid uint32) (ModuleRow, error) {
	return readRow(r, metadata.TableModule, rid, func(c *rowCursor) ModuleRow {
		return ModuleRow{Generation: c.u16(0), Name: c.str(1), Mvid: c.guid(2), EncID: c.guid(3), EncBaseID: c.guid(4)}
	})
}

func (r *Reader) TypeRef(rid uint32) (TypeRefRow, error) {
	return readRow(r, metadata.TableTypeRef, rid, func(c *rowCursor) TypeRefRow {
		return TypeRefRow{ResolutionScope: c.tok(0), Name: c.str(1), Namespace: c.str(2)}
	})
}

func (r *Reader) TypeDef(rid uint32) (TypeDefRow, error) {
	return readRow(r, metadata.TableTypeDef, rid, func(c *rowCursor) TypeDefRow {
		return TypeDefRow{Flags: c.u32(0), Name: c.str(1), Namespace: c.str(2), Extends: c.tok(3),
			FieldList: c.u32(4), MethodList: c.u32(5)}
	})
}

func (r *Reader) Field(rid uint32) (FieldRow, error) {
	return readRow(r, metadata.TableField, rid, func(c *rowCursor) FieldRow {
		return FieldRow{Flags: c.u16(0), Name: c.str(1), Signature: c.blob(2)}
	})
}

func (r *Reader) MethodDef(rid uint32) (MethodDefRow, error) {
	return readRow(r, metadata.TableMethodDef, rid, func(c *rowCursor) MethodDefRow {
		return MethodDefRow{RVA: c.u32(0), ImplFlags: c.u16(1), Flags: c.u16(2), Name: c.str(3),
			Signature: c.blob(4), ParamList: c.u32(5)}
	})
}

func (r *Reader) Param(rid uint32) (ParamRow, error) {
	return readRow(r, metadata.TableParam, rid, func(c *rowCursor) ParamRow {
		return ParamRow{Flags: c.u16(0), Sequence: c.u16(1), Name: c.str(2)}
	})
}

func (r *Reader) InterfaceImpl(rid uint32) (InterfaceImplRow, error) {
	return readRow(r, metadata.TableInterfaceImpl, rid, func(c *rowCursor) InterfaceImplRow {
		return InterfaceImplRow{Class: c.tok(0), Interface: c.tok(1)}
	})
}

func (r *Reader) MemberRef(rid uint32) (MemberRefRow, error) {
	return readRow(r, metadata.TableMemberRef, rid, func(c *rowCursor) MemberRefRow {
		return MemberRefRow{Class: c.tok(0), Name: c.str(1), Signature: c.blob(2)}
	})
}

func (r *Reader) Constant(rid uint32) (ConstantRow, error) {
	return readRow(r, metadata.TableConstant, rid, func(c *rowCursor) ConstantRow {
		return ConstantRow{Type: uint8(c.u32(0)), Parent: c.tok(2), Value: c.blob(3)}
	})
}

func (r *Reader) CustomAttribute(rid uint32) (CustomAttributeRow, error) {
	return readRow(r, metadata.TableCustomAttribute, rid, func(c *rowCursor) CustomAttributeRow {
		return CustomAttributeRow{Parent: c.tok(0), Type: c.tok(1), Value: c.blob(2)}
	})
}

func (r *Reader) FieldMarshal(rid uint32) (FieldMarshalRow, error) {
	return readRow(r, metadata.TableFieldMarshal, rid, func(c *rowCursor) FieldMarshalRow {
		return FieldMarshalRow{Parent: c.tok(0), NativeType: c.blob(1)}
	})
}

func (r *Reader) DeclSecurity(rid uint32) (DeclSecurityRow, error) {
	return readRow(r, metadata.TableDeclSecurity, rid, func(c *rowCursor) DeclSecurityRow {
		return DeclSecurityRow{Action: c.u16(0), Parent: c.tok(1), PermissionSet: c.blob(2)}
	})
}

func (r *Reader) ClassLayout(rid uint32) (ClassLayoutRow, error) {
	return readRow(r, metadata.TableClassLayout, rid, func(c *rowCursor) ClassLayoutRow {
		return ClassLayoutRow{PackingSize: c.u16(0), ClassSize: c.u32(1), Parent: c.tok(2)}
	})
}

func (r *Reader) FieldLayout(rid uint32) (FieldLayoutRow, error) {
	return readRow(r, metadata.TableFieldLayout, rid, func(c *rowCursor) FieldLayoutRow {
		return FieldLayoutRow{Offset: c.u32(0), Field: c.tok(1)}
	})
}

func (r *Reader) StandAloneSig(rid uint32) (StandAloneSigRow, error) {
	return readRow(r, metadata.TableStandAloneSig, rid, func(c *rowCursor) StandAloneSigRow {
		return StandAloneSigRow{Signature: c.blob(0)}
	})
}

func (r *Reader) EventMap(rid uint32) (EventMapRow, error) {
	return readRow(r, metadata.TableEventMap, rid, func(c *rowCursor) EventMapRow {
		return EventMapRow{Parent: c.tok(0), EventList: c.u32(1)}
	})
}

func (r *Reader) Event(rid uint32) (EventRow, error) {
	return readRow(r, metadata.TableEvent, rid, func(c *rowCursor) EventRow {
		return EventRow{Flags: c.u16(0), Name: c.str(1), EventType: c.tok(2)}
	})
}

func (r *Reader) PropertyMap(rid uint32) (PropertyMapRow, error) {
	return readRow(r, metadata.TablePropertyMap, rid, func(c *rowCursor) PropertyMapRow {
		return PropertyMapRow{Parent: c.tok(0), PropertyList: c.u32(1)}
	})
}

func (r *Reader) Property(rid uint32) (PropertyRow, error) {
	return readRow(r, metadata.TableProperty, rid, func(c *rowCursor) PropertyRow {
		return PropertyRow{Flags: c.u16(0), Name: c.str(1), Signature: c.blob(2)}
	})
}

func (r *Reader) MethodSemantics(rid uint32) (MethodSemanticsRow, error) {
	return readRow(r, metadata.TableMethodSemantics, rid, func(c *rowCursor) MethodSemanticsRow {
		return MethodSemanticsRow{Semantics: c.u16(0), Method: c.tok(1), Association: c.tok(2)}
	})
}

func (r *Reader) MethodImpl(rid uint32) (MethodImplRow, error) {
	return readRow(r, metadata.TableMethodImpl, rid, func(c *rowCursor) MethodImplRow {
		return MethodImplRow{Class: c.tok(0), Body: c.tok(1), Declaration: c.tok(2)}
	})
}

func (r *Reader) ModuleRef(rid uint32) (ModuleRefRow, error) {
	return readRow(r, metadata.TableModuleRef, rid, func(c *rowCursor) ModuleRefRow {
		return ModuleRefRow{Name: c.str(0)}
	})
}

func (r *Reader) TypeSpec(rid uint32) (TypeSpecRow, error) {
	return readRow(r, metadata.TableTypeSpec, rid, func(c *rowCursor) TypeSpecRow {
		return TypeSpecRow{Signature: c.blob(0)}
	})
}

func (r *Reader) ImplMap(rid uint32) (ImplMapRow, error) {
	return readRow(r, metadata.TableImplMap, rid, func(c *rowCursor) ImplMapRow {
		return ImplMapRow{MappingFlags: c.u16(0), MemberForwarded: c.tok(1), ImportName: c.str(2), ImportScope: c.tok(3)}
	})
}

func (r *Reader) FieldRVA(rid uint32) (FieldRVARow, error) {
	return readRow(r, metadata.TableFieldRVA, rid, func(c *rowCursor) FieldRVARow {
		return FieldRVARow{RVA: c.u32(0), Field: c.tok(1)}
	})
}

func (r *Reader) Assembly(rid uint32) (AssemblyRow, error) {
	return readRow(r, metadata.TableAssembly, rid, func(c *rowCursor) AssemblyRow {
		return AssemblyRow{HashAlgID: c.u32(0), Version: c.version(1), Flags: c.u32(5),
			PublicKey: c.blob(6), Name: c.str(7), Culture: c.str(8)}
	})
}

func (r *Reader) AssemblyRef(rid uint32) (AssemblyRefRow, error) {
	return readRow(r, metadata.TableAssemblyRef, rid, func(c *rowCursor) AssemblyRefRow {
		return AssemblyRefRow{Version: c.version(0), Flags: c.u32(4), PublicKeyOrToken: c.blob(5),
			Name: c.str(6), Culture: c.str(7), HashValue: c.blob(8)}
	})
}

func (r *Reader) File(rid uint32) (FileRow, error) {
	return readRow(r, metadata.TableFile, rid, func(c *rowCursor) FileRow {
		return FileRow{Flags: c.u32(0), Name: c.str(1), HashValue: c.blob(2)}
	})
}

func (r *Reader) ExportedType(rid uint32) (ExportedTypeRow, error) {
	return readRow(r, metadata.TableExportedType, rid, func(c *rowCursor) ExportedTypeRow {
		return ExportedTypeRow{Flags: c.u32(0), TypeDefID: c.u32(1), Name: c.str(2), Namespace: c.str(3),
			Implementation: c.tok(4)}
	})
}

func (r *Reader) ManifestResource(rid uint32) (ManifestResourceRow, error) {
	return readRow(r, metadata.TableManifestResource, rid, func(c *rowCursor) ManifestResourceRow {
		return ManifestResourceRow{Offset: c.u32(0), Flags: c.u32(1), Name: c.str(2), Implementation: c.tok(3)}
	})
}

func (r *Reader) NestedClass(rid uint32) (NestedClassRow, error) {
	return readRow(r, metadata.TableNestedClass, rid, func(c *rowCursor) NestedClassRow {
		return NestedClassRow{NestedClass: c.tok(0), EnclosingClass: c.tok(1)}
	})
}

func (r *Reader) GenericParam(rid uint32) (GenericParamRow, error) {
	return readRow(r, metadata.TableGenericParam, rid, func(c *rowCursor) GenericParamRow {
		return GenericParamRow{Number: c.u16(0), Flags: c.u16(1), Owner: c.tok(2), Name: c.str(3)}
	})
}

func (r *Reader) MethodSpec(rid uint32) (MethodSpecRow, error) {
	return readRow(r, metadata.TableMethodSpec, rid, func(c *rowCursor) MethodSpecRow {
		return MethodSpecRow{Method: c.tok(0), Instantiation: c.blob(1)}
	})
}

func (r *Reader) GenericParamConstraint(rid uint32) (GenericParamConstraintRow, error) {
	return readRow(r, metadata.TableGenericParamConstraint, rid, func(c *rowCursor) GenericParamConstraintRow {
		return GenericParamConstraintRow{Owner: c.tok(0), Constraint: c.tok(1)}
	})
}
