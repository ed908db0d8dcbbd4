package model

import (
	"github.com/google/uuid"

	"github.com/wippyai/clrmeta/il"
	"github.com/wippyai/clrmeta/metadata"
	"github.com/wippyai/clrmeta/signature"
)

// Sealed unions mirroring the coded index columns. Each is implemented only
// by the graph types listed on it.
type (
	// TypeDefOrRef is a *TypeDef, *TypeRef or *TypeSpec.
	TypeDefOrRef interface {
		signature.TypeDefOrRef
		typeDefOrRef()
	}

	// ResolutionScope is a *Module, *ModuleRef, *AssemblyRef or *TypeRef.
	ResolutionScope interface {
		resolutionScope()
	}

	// MemberRefParent is a *TypeDef, *TypeRef, *ModuleRef, *MethodDef or
	// *TypeSpec.
	MemberRefParent interface {
		memberRefParent()
	}

	// MethodDefOrRef is a *MethodDef or *MemberRef.
	MethodDefOrRef interface {
		methodDefOrRef()
		Name() string
	}

	// Implementation locates a manifest resource; nil means embedded.
	Implementation interface {
		implementation()
	}

	// HasCustomAttribute is any row that can carry custom attributes.
	HasCustomAttribute interface {
		Attributes() []*CustomAttribute
	}
)

// Version is a four-part assembly version.
type Version struct {
	Major, Minor, Build, Revision uint16
}

// CustomAttribute is one attribute instance. Value is the raw blob.
type CustomAttribute struct {
	Constructor MethodDefOrRef
	Value       []byte
}

// Constant is the default value of a field, parameter or property.
type Constant struct {
	Type  uint8
	Value []byte
}

// SecurityDecl is a declarative security entry.
type SecurityDecl struct {
	Action        uint16
	PermissionSet []byte
}

// attrs is embedded by every type that can carry custom attributes.
type attrs struct {
	CustomAttributes []*CustomAttribute
}

// Attributes returns the attached custom attributes.
func (a *attrs) Attributes() []*CustomAttribute { return a.CustomAttributes }

// Module is the root of the object graph.
type Module struct {
	attrs
	Name       string
	Mvid       metadata.GUID
	Generation uint16

	Assembly     *Assembly
	Types        []*TypeDef // every definition, nested included, <Module> first
	TypeRefs     []*TypeRef
	TypeSpecs    []*TypeSpec
	MemberRefs   []*MemberRef
	MethodSpecs  []*MethodSpec
	AssemblyRefs []*AssemblyRef
	ModuleRefs   []*ModuleRef
	Resources    []*Resource

	// EntryPoint must be one of the module's method definitions.
	EntryPoint *MethodDef

	OriginalRID uint32

	tokens map[metadata.Token]any
}

// NewModule returns an empty module with a fresh Mvid and the <Module>
// type.
func NewModule(name string) *Module {
	m := &Module{Name: name, Mvid: metadata.GUID(uuid.New())}
	m.Types = []*TypeDef{{TypeName: "<Module>"}}
	return m
}

// Assembly is the assembly manifest of a module.
type Assembly struct {
	attrs
	HashAlgID uint32
	Version   Version
	Flags     uint32
	PublicKey []byte
	Name      string
	Culture   string
	Security  []*SecurityDecl

	OriginalRID uint32
}

// AssemblyRef references another assembly.
type AssemblyRef struct {
	attrs
	Version          Version
	Flags            uint32
	PublicKeyOrToken []byte
	Name             string
	Culture          string
	HashValue        []byte

	OriginalRID uint32
}

// ModuleRef references another module, typically a native library.
type ModuleRef struct {
	attrs
	Name string

	OriginalRID uint32
}

// TypeRef references a type by name.
type TypeRef struct {
	attrs
	Scope     ResolutionScope
	Namespace string
	TypeName  string

	OriginalRID uint32
}

// TypeSpec is a constructed type referenced through its signature.
type TypeSpec struct {
	attrs
	Signature *signature.TypeSig

	OriginalRID uint32
}

// TypeDef is a type defined by the module.
type TypeDef struct {
	attrs
	Flags         uint32
	Namespace     string
	TypeName      string
	Extends       TypeDefOrRef
	DeclaringType *TypeDef

	Fields        []*Field
	Methods       []*MethodDef
	Properties    []*Property
	Events        []*Event
	Interfaces    []*InterfaceImpl
	GenericParams []*GenericParam
	MethodImpls   []*MethodImpl
	Layout        *ClassLayout
	Security      []*SecurityDecl

	OriginalRID uint32
}

// InterfaceImpl records an implemented interface.
type InterfaceImpl struct {
	attrs
	Interface TypeDefOrRef

	OriginalRID uint32
}

// ClassLayout carries explicit packing and size.
type ClassLayout struct {
	PackingSize uint16
	ClassSize   uint32
}

// MethodImpl maps an interface or base method to a body.
type MethodImpl struct {
	Body        MethodDefOrRef
	Declaration MethodDefOrRef
}

// Field is a field definition.
type Field struct {
	attrs
	Flags         uint16
	FieldName     string
	Signature     *signature.FieldSig
	DeclaringType *TypeDef
	Constant      *Constant
	Marshal       []byte
	Offset        *uint32 // explicit layout offset
	InitialValue  []byte  // FieldRVA data

	OriginalRID uint32
}

// Method implementation flags used by the loader and builder.
const (
	ImplCodeTypeMask = 0x0003
	ImplNative       = 0x0001
	ImplRuntime      = 0x0003
)

// MethodDef is a method definition.
type MethodDef struct {
	attrs
	ImplFlags     uint16
	Flags         uint16
	MethodName    string
	Signature     *signature.MethodSig
	DeclaringType *TypeDef
	Params        []*Param
	GenericParams []*GenericParam
	ImplMap       *ImplMap
	Security      []*SecurityDecl

	// Body is the decoded IL body; nil for abstract, extern and runtime
	// methods.
	Body *il.Body
	// RVA is the body address in the image the method was loaded from.
	RVA uint32

	OriginalRID uint32
}

// IsNative reports whether the method's body is native code.
func (m *MethodDef) IsNative() bool {
	return m.ImplFlags&ImplCodeTypeMask == ImplNative
}

// Param is a parameter definition. Sequence 0 is the return value.
type Param struct {
	attrs
	Flags     uint16
	Sequence  uint16
	ParamName string
	Constant  *Constant
	Marshal   []byte

	OriginalRID uint32
}

// ImplMap describes a P/Invoke import.
type ImplMap struct {
	Flags      uint16
	ImportName string
	Scope      *ModuleRef
}

// Property is a property definition with its accessors.
type Property struct {
	attrs
	Flags        uint16
	PropertyName string
	Signature    *signature.PropertySig
	Constant     *Constant
	Getter       *MethodDef
	Setter       *MethodDef
	Others       []*MethodDef

	OriginalRID uint32
}

// Event is an event definition with its accessors.
type Event struct {
	attrs
	Flags     uint16
	EventName string
	EventType TypeDefOrRef
	Add       *MethodDef
	Remove    *MethodDef
	Raise     *MethodDef
	Others    []*MethodDef

	OriginalRID uint32
}

// MemberRef references a field or method of another type. Exactly one of
// MethodSig and FieldSig is set.
type MemberRef struct {
	attrs
	Parent     MemberRefParent
	MemberName string
	MethodSig  *signature.MethodSig
	FieldSig   *signature.FieldSig

	OriginalRID uint32
}

// MethodSpec instantiates a generic method.
type MethodSpec struct {
	attrs
	Method MethodDefOrRef
	Args   []*signature.TypeSig

	OriginalRID uint32
}

// GenericParam is a generic parameter of a type or method.
type GenericParam struct {
	attrs
	Number      uint16
	Flags       uint16
	ParamName   string
	Constraints []*GenericParamConstraint

	OriginalRID uint32
}

// GenericParamConstraint constrains a generic parameter.
type GenericParamConstraint struct {
	attrs
	Constraint TypeDefOrRef

	OriginalRID uint32
}

// Resource is a manifest resource. Embedded resources carry Data; linked
// ones carry Implementation and Offset.
type Resource struct {
	attrs
	Name           string
	Flags          uint32
	Implementation Implementation
	Offset         uint32
	Data           []byte

	OriginalRID uint32
}

func (*TypeDef) typeDefOrRef()  {}
func (*TypeRef) typeDefOrRef()  {}
func (*TypeSpec) typeDefOrRef() {}

func (*Module) resolutionScope()      {}
func (*ModuleRef) resolutionScope()   {}
func (*AssemblyRef) resolutionScope() {}
func (*TypeRef) resolutionScope()     {}

func (*TypeDef) memberRefParent()   {}
func (*TypeRef) memberRefParent()   {}
func (*ModuleRef) memberRefParent() {}
func (*MethodDef) memberRefParent() {}
func (*TypeSpec) memberRefParent()  {}

func (*MethodDef) methodDefOrRef() {}
func (*MemberRef) methodDefOrRef() {}

func (*AssemblyRef) implementation() {}
