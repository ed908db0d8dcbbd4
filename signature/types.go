package signature

import (
	"github.com/wippyai/clrmeta/metadata"
)

// ElementType is an ECMA-335 II.23.1.16 element type.
type ElementType uint8

const (
	ElemEnd         ElementType = 0x00
	ElemVoid        ElementType = 0x01
	ElemBoolean     ElementType = 0x02
	ElemChar        ElementType = 0x03
	ElemI1          ElementType = 0x04
	ElemU1          ElementType = 0x05
	ElemI2          ElementType = 0x06
	ElemU2          ElementType = 0x07
	ElemI4          ElementType = 0x08
	ElemU4          ElementType = 0x09
	ElemI8          ElementType = 0x0A
	ElemU8          ElementType = 0x0B
	ElemR4          ElementType = 0x0C
	ElemR8          ElementType = 0x0D
	ElemString      ElementType = 0x0E
	ElemPtr         ElementType = 0x0F
	ElemByRef       ElementType = 0x10
	ElemValueType   ElementType = 0x11
	ElemClass       ElementType = 0x12
	ElemVar         ElementType = 0x13
	ElemArray       ElementType = 0x14
	ElemGenericInst ElementType = 0x15
	ElemTypedByRef  ElementType = 0x16
	ElemI           ElementType = 0x18
	ElemU           ElementType = 0x19
	ElemFnPtr       ElementType = 0x1B
	ElemObject      ElementType = 0x1C
	ElemSZArray     ElementType = 0x1D
	ElemMVar        ElementType = 0x1E
	ElemCModReqd    ElementType = 0x1F
	ElemCModOpt     ElementType = 0x20
	ElemInternal    ElementType = 0x21
	ElemSentinel    ElementType = 0x41
	ElemPinned      ElementType = 0x45
)

// IsPrimitive reports whether e is a self-contained element type with no
// trailing data.
func (e ElementType) IsPrimitive() bool {
	switch e {
	case ElemVoid, ElemBoolean, ElemChar, ElemI1, ElemU1, ElemI2, ElemU2,
		ElemI4, ElemU4, ElemI8, ElemU8, ElemR4, ElemR8, ElemString,
		ElemTypedByRef, ElemI, ElemU, ElemObject:
		return true
	}
	return false
}

// TypeDefOrRef is a type reference embedded in a signature. The model
// package supplies definitions, references and specs; TokenRef stands in
// when no object graph is loaded.
type TypeDefOrRef interface {
	FullName() string
}

// TokenRef is an unresolved TypeDefOrRef carrying its raw token.
type TokenRef struct {
	Token metadata.Token
}

// FullName returns the token text.
func (r TokenRef) FullName() string {
	return r.Token.String()
}

// ArrayShape describes a general array (ECMA-335 II.23.2.13).
type ArrayShape struct {
	Rank     uint32
	Sizes    []uint32
	LoBounds []int32
}

// TypeSig is a tagged union discriminated by Elem:
//
//	primitives          no payload
//	Class, ValueType    Type
//	Ptr, ByRef, SZArray, Pinned   Next
//	Array               Next, Shape
//	GenericInst         Next (Class or ValueType), Args
//	Var, MVar           Index
//	FnPtr               Method
//	CModReqd, CModOpt   Type (modifier), Next (modified type)
type TypeSig struct {
	Elem   ElementType
	Type   TypeDefOrRef
	Next   *TypeSig
	Args   []*TypeSig
	Index  uint32
	Shape  *ArrayShape
	Method *MethodSig
}

// Primitive returns a signature for a primitive element type.
func Primitive(e ElementType) *TypeSig {
	return &TypeSig{Elem: e}
}

// Class returns a Class signature for t.
func Class(t TypeDefOrRef) *TypeSig {
	return &TypeSig{Elem: ElemClass, Type: t}
}

// ValueType returns a ValueType signature for t.
func ValueType(t TypeDefOrRef) *TypeSig {
	return &TypeSig{Elem: ElemValueType, Type: t}
}

// SZArray returns a single-dimensional zero-based array of elem.
func SZArray(elem *TypeSig) *TypeSig {
	return &TypeSig{Elem: ElemSZArray, Next: elem}
}

// StripModifiers skips leading custom modifiers and pinned markers.
func (s *TypeSig) StripModifiers() *TypeSig {
	for s != nil && (s.Elem == ElemCModReqd || s.Elem == ElemCModOpt || s.Elem == ElemPinned) {
		s = s.Next
	}
	return s
}

// CallingConvention is the first byte of a method, field, property or
// local signature.
type CallingConvention uint8

const (
	CallDefault      CallingConvention = 0x00
	CallC            CallingConvention = 0x01
	CallStdCall      CallingConvention = 0x02
	CallThisCall     CallingConvention = 0x03
	CallFastCall     CallingConvention = 0x04
	CallVarArg       CallingConvention = 0x05
	CallField        CallingConvention = 0x06
	CallLocalSig     CallingConvention = 0x07
	CallProperty     CallingConvention = 0x08
	CallUnmanaged    CallingConvention = 0x09
	CallGenericInst  CallingConvention = 0x0A
	CallNativeVarArg CallingConvention = 0x0B

	callKindMask     = 0x0F
	callGeneric      = 0x10
	callHasThis      = 0x20
	callExplicitThis = 0x40
)

// MethodSig is a method definition, reference or call-site signature.
type MethodSig struct {
	CallConv          CallingConvention // kind only, flags are the bool fields
	HasThis           bool
	ExplicitThis      bool
	GenericParamCount uint32
	Return            *TypeSig
	Params            []*TypeSig
	VarArgs           []*TypeSig // parameters after the sentinel
}

// IsVoid reports whether the method returns nothing.
func (m *MethodSig) IsVoid() bool {
	r := m.Return.StripModifiers()
	return r == nil || r.Elem == ElemVoid
}

// ParamCount returns the number of arguments a call site passes, not
// counting the receiver.
func (m *MethodSig) ParamCount() int {
	return len(m.Params) + len(m.VarArgs)
}

// IsGeneric reports whether the method declares generic parameters.
func (m *MethodSig) IsGeneric() bool {
	return m.GenericParamCount > 0
}

// FieldSig is a field signature.
type FieldSig struct {
	Type *TypeSig
}

// PropertySig is a property signature.
type PropertySig struct {
	HasThis bool
	Type    *TypeSig
	Params  []*TypeSig
}

// LocalVarSig lists the local variables of a method body.
type LocalVarSig struct {
	Locals []*TypeSig
}

// MethodSpecSig holds the type arguments of a generic method instantiation.
type MethodSpecSig struct {
	Args []*TypeSig
}
