package signature

import (
	"fmt"

	"github.com/wippyai/clrmeta/errors"
	bin "github.com/wippyai/clrmeta/internal/binary"
	"github.com/wippyai/clrmeta/metadata"
)

// maxDepth bounds nesting so hostile blobs cannot exhaust the stack.
const maxDepth = 64

// ResolveFunc maps a TypeDefOrRef token embedded in a blob to a reference.
// A nil ResolveFunc yields TokenRef values.
type ResolveFunc func(metadata.Token) (TypeDefOrRef, error)

type decoder struct {
	r       *bin.Reader
	resolve ResolveFunc
	depth   int
}

func newDecoder(blob []byte, resolve ResolveFunc) *decoder {
	return &decoder{r: bin.NewReader(blob), resolve: resolve}
}

func (d *decoder) fail(what string, cause error) error {
	return errors.InvalidSignature(errors.PhaseDecode,
		fmt.Sprintf("%s at blob offset %d", what, d.r.Position()), cause)
}

func (d *decoder) u8() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, d.fail("unexpected end of signature", err)
	}
	return b, nil
}

func (d *decoder) compressed() (uint32, error) {
	v, err := d.r.ReadCompressedU32()
	if err != nil {
		return 0, d.fail("bad compressed integer", err)
	}
	return v, nil
}

func (d *decoder) typeDefOrRef() (TypeDefOrRef, error) {
	v, err := d.compressed()
	if err != nil {
		return nil, err
	}
	tok := metadata.TypeDefOrRef.Decode(v)
	if tok == 0 {
		return nil, d.fail(fmt.Sprintf("bad TypeDefOrRef 0x%x", v), nil)
	}
	if d.resolve == nil {
		return TokenRef{Token: tok}, nil
	}
	ref, err := d.resolve(tok)
	if err != nil {
		return nil, d.fail("unresolvable type "+tok.String(), err)
	}
	return ref, nil
}

func (d *decoder) typeSig() (*TypeSig, error) {
	d.depth++
	defer func() { d.depth-- }()
	if d.depth > maxDepth {
		return nil, d.fail("signature nested too deeply", nil)
	}

	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	e := ElementType(b)
	if e.IsPrimitive() {
		return &TypeSig{Elem: e}, nil
	}

	s := &TypeSig{Elem: e}
	switch e {
	case ElemClass, ElemValueType:
		if s.Type, err = d.typeDefOrRef(); err != nil {
			return nil, err
		}
	case ElemPtr, ElemByRef, ElemSZArray, ElemPinned:
		if s.Next, err = d.typeSig(); err != nil {
			return nil, err
		}
	case ElemCModReqd, ElemCModOpt:
		if s.Type, err = d.typeDefOrRef(); err != nil {
			return nil, err
		}
		if s.Next, err = d.typeSig(); err != nil {
			return nil, err
		}
	case ElemVar, ElemMVar:
		if s.Index, err = d.compressed(); err != nil {
			return nil, err
		}
	case ElemArray:
		if s.Next, err = d.typeSig(); err != nil {
			return nil, err
		}
		if s.Shape, err = d.arrayShape(); err != nil {
			return nil, err
		}
	case ElemGenericInst:
		if s.Next, err = d.typeSig(); err != nil {
			return nil, err
		}
		if s.Next.Elem != ElemClass && s.Next.Elem != ElemValueType {
			return nil, d.fail("generic instantiation of non-class type", nil)
		}
		n, err := d.compressed()
		if err != nil {
			return nil, err
		}
		if int(n) > d.r.Len() {
			return nil, d.fail(fmt.Sprintf("generic argument count %d exceeds blob", n), nil)
		}
		s.Args = make([]*TypeSig, n)
		for i := range s.Args {
			if s.Args[i], err = d.typeSig(); err != nil {
				return nil, err
			}
		}
	case ElemFnPtr:
		if s.Method, err = d.methodSig(); err != nil {
			return nil, err
		}
	default:
		return nil, d.fail(fmt.Sprintf("unknown element type 0x%02x", b), nil)
	}
	return s, nil
}

func (d *decoder) arrayShape() (*ArrayShape, error) {
	sh := &ArrayShape{}
	var err error
	if sh.Rank, err = d.compressed(); err != nil {
		return nil, err
	}
	n, err := d.compressed()
	if err != nil {
		return nil, err
	}
	if int(n) > d.r.Len() {
		return nil, d.fail("array size count exceeds blob", nil)
	}
	sh.Sizes = make([]uint32, n)
	for i := range sh.Sizes {
		if sh.Sizes[i], err = d.compressed(); err != nil {
			return nil, err
		}
	}
	if n, err = d.compressed(); err != nil {
		return nil, err
	}
	if int(n) > d.r.Len() {
		return nil, d.fail("array bound count exceeds blob", nil)
	}
	sh.LoBounds = make([]int32, n)
	for i := range sh.LoBounds {
		v, err := d.r.ReadCompressedI32()
		if err != nil {
			return nil, d.fail("bad array lower bound", err)
		}
		sh.LoBounds[i] = v
	}
	return sh, nil
}

func (d *decoder) methodSig() (*MethodSig, error) {
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	m := &MethodSig{
		CallConv:     CallingConvention(b & callKindMask),
		HasThis:      b&callHasThis != 0,
		ExplicitThis: b&callExplicitThis != 0,
	}
	switch m.CallConv {
	case CallField, CallLocalSig, CallProperty, CallGenericInst:
		return nil, d.fail(fmt.Sprintf("calling convention 0x%02x is not a method", b), nil)
	}
	if b&callGeneric != 0 {
		if m.GenericParamCount, err = d.compressed(); err != nil {
			return nil, err
		}
	}
	count, err := d.compressed()
	if err != nil {
		return nil, err
	}
	if int(count) > d.r.Len() {
		return nil, d.fail(fmt.Sprintf("parameter count %d exceeds blob", count), nil)
	}
	if m.Return, err = d.typeSig(); err != nil {
		return nil, err
	}
	sentinel := false
	for i := 0; i < int(count); i++ {
		if p, err := d.r.PeekByte(); err == nil && ElementType(p) == ElemSentinel {
			if sentinel {
				return nil, d.fail("duplicate sentinel", nil)
			}
			sentinel = true
			_, _ = d.r.ReadByte()
			m.VarArgs = []*TypeSig{}
		}
		p, err := d.typeSig()
		if err != nil {
			return nil, err
		}
		if sentinel {
			m.VarArgs = append(m.VarArgs, p)
		} else {
			m.Params = append(m.Params, p)
		}
	}
	return m, nil
}

func (d *decoder) end() error {
	if d.r.Len() != 0 {
		return d.fail(fmt.Sprintf("%d trailing bytes", d.r.Len()), nil)
	}
	return nil
}

// DecodeType decodes a standalone type signature (a TypeSpec blob).
func DecodeType(blob []byte, resolve ResolveFunc) (*TypeSig, error) {
	d := newDecoder(blob, resolve)
	s, err := d.typeSig()
	if err != nil {
		return nil, err
	}
	if err := d.end(); err != nil {
		return nil, err
	}
	return s, nil
}

// DecodeMethod decodes a method signature.
func DecodeMethod(blob []byte, resolve ResolveFunc) (*MethodSig, error) {
	d := newDecoder(blob, resolve)
	m, err := d.methodSig()
	if err != nil {
		return nil, err
	}
	if err := d.end(); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeField decodes a field signature.
func DecodeField(blob []byte, resolve ResolveFunc) (*FieldSig, error) {
	d := newDecoder(blob, resolve)
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if CallingConvention(b&callKindMask) != CallField {
		return nil, d.fail(fmt.Sprintf("expected field signature, got 0x%02x", b), nil)
	}
	t, err := d.typeSig()
	if err != nil {
		return nil, err
	}
	if err := d.end(); err != nil {
		return nil, err
	}
	return &FieldSig{Type: t}, nil
}

// DecodeProperty decodes a property signature.
func DecodeProperty(blob []byte, resolve ResolveFunc) (*PropertySig, error) {
	d := newDecoder(blob, resolve)
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if CallingConvention(b&callKindMask) != CallProperty {
		return nil, d.fail(fmt.Sprintf("expected property signature, got 0x%02x", b), nil)
	}
	p := &PropertySig{HasThis: b&callHasThis != 0}
	n, err := d.compressed()
	if err != nil {
		return nil, err
	}
	if int(n) > d.r.Len() {
		return nil, d.fail("parameter count exceeds blob", nil)
	}
	if p.Type, err = d.typeSig(); err != nil {
		return nil, err
	}
	for i := 0; i < int(n); i++ {
		t, err := d.typeSig()
		if err != nil {
			return nil, err
		}
		p.Params = append(p.Params, t)
	}
	if err := d.end(); err != nil {
		return nil, err
	}
	return p, nil
}

// DecodeLocalVar decodes a local variable signature.
func DecodeLocalVar(blob []byte, resolve ResolveFunc) (*LocalVarSig, error) {
	d := newDecoder(blob, resolve)
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if CallingConvention(b) != CallLocalSig {
		return nil, d.fail(fmt.Sprintf("expected local signature, got 0x%02x", b), nil)
	}
	n, err := d.compressed()
	if err != nil {
		return nil, err
	}
	if int(n) > d.r.Len() {
		return nil, d.fail(fmt.Sprintf("local count %d exceeds blob", n), nil)
	}
	l := &LocalVarSig{Locals: make([]*TypeSig, n)}
	for i := range l.Locals {
		if l.Locals[i], err = d.typeSig(); err != nil {
			return nil, err
		}
	}
	if err := d.end(); err != nil {
		return nil, err
	}
	return l, nil
}

// DecodeMethodSpec decodes a generic method instantiation.
func DecodeMethodSpec(blob []byte, resolve ResolveFunc) (*MethodSpecSig, error) {
	d := newDecoder(blob, resolve)
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if CallingConvention(b) != CallGenericInst {
		return nil, d.fail(fmt.Sprintf("expected method spec, got 0x%02x", b), nil)
	}
	n, err := d.compressed()
	if err != nil {
		return nil, err
	}
	if int(n) > d.r.Len() {
		return nil, d.fail("argument count exceeds blob", nil)
	}
	ms := &MethodSpecSig{Args: make([]*TypeSig, n)}
	for i := range ms.Args {
		if ms.Args[i], err = d.typeSig(); err != nil {
			return nil, err
		}
	}
	if err := d.end(); err != nil {
		return nil, err
	}
	return ms, nil
}

// IsFieldBlob reports whether a MemberRef signature blob describes a field.
func IsFieldBlob(blob []byte) bool {
	return len(blob) > 0 && CallingConvention(blob[0]&callKindMask) == CallField
}
