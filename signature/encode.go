package signature

import (
	"fmt"

	"github.com/wippyai/clrmeta/errors"
	bin "github.com/wippyai/clrmeta/internal/binary"
	"github.com/wippyai/clrmeta/metadata"
)

// TokenFunc maps a TypeDefOrRef back to its token in the image being
// written. A nil TokenFunc accepts only TokenRef values.
type TokenFunc func(TypeDefOrRef) (metadata.Token, error)

type encoder struct {
	w       *bin.Writer
	tokenOf TokenFunc
	depth   int
}

func newEncoder(tokenOf TokenFunc) *encoder {
	return &encoder{w: bin.NewWriter(), tokenOf: tokenOf}
}

func (e *encoder) fail(detail string, cause error) error {
	return errors.InvalidSignature(errors.PhaseEncode, detail, cause)
}

func (e *encoder) compressed(v uint32) error {
	if err := e.w.WriteCompressedU32(v); err != nil {
		return e.fail(fmt.Sprintf("value 0x%x", v), err)
	}
	return nil
}

func (e *encoder) typeDefOrRef(t TypeDefOrRef) error {
	if t == nil {
		return e.fail("missing type reference", nil)
	}
	var tok metadata.Token
	if ref, ok := t.(TokenRef); ok && e.tokenOf == nil {
		tok = ref.Token
	} else {
		if e.tokenOf == nil {
			return e.fail("no token mapping for "+t.FullName(), nil)
		}
		var err error
		if tok, err = e.tokenOf(t); err != nil {
			return e.fail("no token for "+t.FullName(), err)
		}
	}
	v, ok := metadata.TypeDefOrRef.Encode(tok)
	if !ok || tok.IsNull() {
		return e.fail(fmt.Sprintf("token %s is not a TypeDefOrRef", tok), nil)
	}
	return e.compressed(v)
}

func (e *encoder) typeSig(s *TypeSig) error {
	if s == nil {
		return e.fail("nil type signature", nil)
	}
	e.depth++
	defer func() { e.depth-- }()
	if e.depth > maxDepth {
		return e.fail("signature nested too deeply", nil)
	}

	e.w.Byte(byte(s.Elem))
	if s.Elem.IsPrimitive() {
		return nil
	}
	switch s.Elem {
	case ElemClass, ElemValueType:
		return e.typeDefOrRef(s.Type)
	case ElemPtr, ElemByRef, ElemSZArray, ElemPinned:
		return e.typeSig(s.Next)
	case ElemCModReqd, ElemCModOpt:
		if err := e.typeDefOrRef(s.Type); err != nil {
			return err
		}
		return e.typeSig(s.Next)
	case ElemVar, ElemMVar:
		return e.compressed(s.Index)
	case ElemArray:
		if err := e.typeSig(s.Next); err != nil {
			return err
		}
		return e.arrayShape(s.Shape)
	case ElemGenericInst:
		if err := e.typeSig(s.Next); err != nil {
			return err
		}
		if err := e.compressed(uint32(len(s.Args))); err != nil {
			return err
		}
		for _, a := range s.Args {
			if err := e.typeSig(a); err != nil {
				return err
			}
		}
		return nil
	case ElemFnPtr:
		if s.Method == nil {
			return e.fail("function pointer without signature", nil)
		}
		return e.methodSig(s.Method)
	}
	return e.fail(fmt.Sprintf("cannot encode element type 0x%02x", byte(s.Elem)), nil)
}

func (e *encoder) arrayShape(sh *ArrayShape) error {
	if sh == nil {
		return e.fail("array without shape", nil)
	}
	if err := e.compressed(sh.Rank); err != nil {
		return err
	}
	if err := e.compressed(uint32(len(sh.Sizes))); err != nil {
		return err
	}
	for _, v := range sh.Sizes {
		if err := e.compressed(v); err != nil {
			return err
		}
	}
	if err := e.compressed(uint32(len(sh.LoBounds))); err != nil {
		return err
	}
	for _, v := range sh.LoBounds {
		if err := e.w.WriteCompressedI32(v); err != nil {
			return e.fail(fmt.Sprintf("lower bound %d", v), err)
		}
	}
	return nil
}

func (e *encoder) methodSig(m *MethodSig) error {
	b := byte(m.CallConv) & callKindMask
	if m.HasThis {
		b |= callHasThis
	}
	if m.ExplicitThis {
		b |= callExplicitThis
	}
	if m.GenericParamCount > 0 {
		b |= callGeneric
	}
	e.w.Byte(b)
	if m.GenericParamCount > 0 {
		if err := e.compressed(m.GenericParamCount); err != nil {
			return err
		}
	}
	if err := e.compressed(uint32(m.ParamCount())); err != nil {
		return err
	}
	ret := m.Return
	if ret == nil {
		ret = Primitive(ElemVoid)
	}
	if err := e.typeSig(ret); err != nil {
		return err
	}
	for _, p := range m.Params {
		if err := e.typeSig(p); err != nil {
			return err
		}
	}
	if len(m.VarArgs) > 0 {
		e.w.Byte(byte(ElemSentinel))
		for _, p := range m.VarArgs {
			if err := e.typeSig(p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *encoder) bytes() []byte {
	return append([]byte(nil), e.w.Bytes()...)
}

// EncodeType encodes a standalone type signature.
func EncodeType(s *TypeSig, tokenOf TokenFunc) ([]byte, error) {
	e := newEncoder(tokenOf)
	if err := e.typeSig(s); err != nil {
		return nil, err
	}
	return e.bytes(), nil
}

// EncodeMethod encodes a method signature.
func EncodeMethod(m *MethodSig, tokenOf TokenFunc) ([]byte, error) {
	if m == nil {
		return nil, errors.InvalidSignature(errors.PhaseEncode, "nil method signature", nil)
	}
	e := newEncoder(tokenOf)
	if err := e.methodSig(m); err != nil {
		return nil, err
	}
	return e.bytes(), nil
}

// EncodeField encodes a field signature.
func EncodeField(f *FieldSig, tokenOf TokenFunc) ([]byte, error) {
	e := newEncoder(tokenOf)
	e.w.Byte(byte(CallField))
	if err := e.typeSig(f.Type); err != nil {
		return nil, err
	}
	return e.bytes(), nil
}

// EncodeProperty encodes a property signature.
func EncodeProperty(p *PropertySig, tokenOf TokenFunc) ([]byte, error) {
	e := newEncoder(tokenOf)
	b := byte(CallProperty)
	if p.HasThis {
		b |= callHasThis
	}
	e.w.Byte(b)
	if err := e.compressed(uint32(len(p.Params))); err != nil {
		return nil, err
	}
	if err := e.typeSig(p.Type); err != nil {
		return nil, err
	}
	for _, t := range p.Params {
		if err := e.typeSig(t); err != nil {
			return nil, err
		}
	}
	return e.bytes(), nil
}

// EncodeLocalVar encodes a local variable signature.
func EncodeLocalVar(l *LocalVarSig, tokenOf TokenFunc) ([]byte, error) {
	e := newEncoder(tokenOf)
	e.w.Byte(byte(CallLocalSig))
	if err := e.compressed(uint32(len(l.Locals))); err != nil {
		return nil, err
	}
	for _, t := range l.Locals {
		if err := e.typeSig(t); err != nil {
			return nil, err
		}
	}
	return e.bytes(), nil
}

// EncodeMethodSpec encodes a generic method instantiation.
func EncodeMethodSpec(ms *MethodSpecSig, tokenOf TokenFunc) ([]byte, error) {
	e := newEncoder(tokenOf)
	e.w.Byte(byte(CallGenericInst))
	if err := e.compressed(uint32(len(ms.Args))); err != nil {
		return nil, err
	}
	for _, t := range ms.Args {
		if err := e.typeSig(t); err != nil {
			return nil, err
		}
	}
	return e.bytes(), nil
}
