package model

import (
	"fmt"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/metadata"
	"github.com/wippyai/clrmeta/signature"
)

// ResolveToken returns the object loaded from tok. A miss returns
// (nil, false, nil), or a not_found error when mustExist is set. Modules
// built in memory have no tokens.
func (m *Module) ResolveToken(tok metadata.Token, mustExist bool) (any, bool, error) {
	obj, ok := m.tokens[tok]
	if ok {
		return obj, true, nil
	}
	if mustExist {
		return nil, false, errors.NotFound(errors.PhaseResolve, "token", tok)
	}
	return nil, false, nil
}

// bodyResolver resolves IL operand tokens against the graph being loaded.
type bodyResolver struct {
	l *loader
	// stand-alone signatures decoded so far, keyed by RID
	locals  map[uint32][]*signature.TypeSig
	callees map[uint32]*signature.MethodSig
}

func (b *bodyResolver) fail(tok metadata.Token, detail string, cause error) error {
	return errors.Load(b.l.r.Location(), 0, errors.KindInvalidData, fmt.Sprintf("operand %s: %s", tok, detail), cause)
}

func (b *bodyResolver) standAlone(tok metadata.Token) ([]byte, error) {
	if tok.Table() != metadata.TableStandAloneSig {
		return nil, b.fail(tok, "not a stand-alone signature", nil)
	}
	row, err := b.l.r.StandAloneSig(tok.RID())
	if err != nil {
		return nil, b.fail(tok, "missing row", err)
	}
	return row.Signature, nil
}

// ResolveToken implements il.Resolver.
func (b *bodyResolver) ResolveToken(tok metadata.Token) (any, *signature.MethodSig, error) {
	if tok.Table() == metadata.TableStandAloneSig {
		if sig, ok := b.callees[tok.RID()]; ok {
			return sig, sig, nil
		}
		blob, err := b.standAlone(tok)
		if err != nil {
			return nil, nil, err
		}
		sig, err := signature.DecodeMethod(blob, b.l.resolveType)
		if err != nil {
			return nil, nil, err
		}
		if b.callees == nil {
			b.callees = make(map[uint32]*signature.MethodSig)
		}
		b.callees[tok.RID()] = sig
		return sig, sig, nil
	}

	obj, err := b.l.object(tok)
	if err != nil {
		return nil, nil, err
	}
	if obj == nil {
		return nil, nil, b.fail(tok, "null token", nil)
	}
	switch v := obj.(type) {
	case *MethodDef:
		return v, v.Signature, nil
	case *MemberRef:
		return v, v.MethodSig, nil
	case *MethodSpec:
		switch gm := v.Method.(type) {
		case *MethodDef:
			return v, gm.Signature, nil
		case *MemberRef:
			return v, gm.MethodSig, nil
		}
		return v, nil, nil
	case *TypeDef, *TypeRef, *TypeSpec, *Field:
		return v, nil, nil
	}
	return nil, nil, b.fail(tok, fmt.Sprintf("unexpected %T operand", obj), nil)
}

// ResolveUserString implements il.Resolver.
func (b *bodyResolver) ResolveUserString(tok metadata.Token) (string, error) {
	return b.l.r.UserString(tok)
}

// ResolveLocals implements il.Resolver.
func (b *bodyResolver) ResolveLocals(tok metadata.Token) ([]*signature.TypeSig, error) {
	if locals, ok := b.locals[tok.RID()]; ok && tok.Table() == metadata.TableStandAloneSig {
		return locals, nil
	}
	blob, err := b.standAlone(tok)
	if err != nil {
		return nil, err
	}
	sig, err := signature.DecodeLocalVar(blob, b.l.resolveType)
	if err != nil {
		return nil, err
	}
	if b.locals == nil {
		b.locals = make(map[uint32][]*signature.TypeSig)
	}
	b.locals[tok.RID()] = sig.Locals
	return sig.Locals, nil
}
