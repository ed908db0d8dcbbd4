package il

import (
	"math"

	"github.com/wippyai/clrmeta/errors"
	bin "github.com/wippyai/clrmeta/internal/binary"
	"github.com/wippyai/clrmeta/metadata"
)

// EncodeOptions controls body encoding.
type EncodeOptions struct {
	// NormalizeTinyMaxStack encodes tiny-eligible bodies whose max stack
	// exceeds 8 in tiny form. The caller's body is left untouched.
	NormalizeTinyMaxStack bool
}

// EncodedBody is the output of EncodeBody.
type EncodedBody struct {
	Bytes []byte
	Tiny  bool
	// FatSection reports whether the exception section uses the fat form.
	FatSection bool
}

type bodyEncoder struct {
	tokens TokenProvider
	w      *bin.Writer
}

func encodeError(kind errors.Kind, cause error, format string, args ...any) error {
	return errors.New(errors.PhaseEncode, kind).Cause(cause).Detail(format, args...).Build()
}

// EncodeBody serializes b. A body is written tiny iff its code is below
// 0x40 bytes, it has no locals and no handlers and its max stack is at most
// 8. A nil TokenProvider re-emits the tokens the operands were decoded from.
func EncodeBody(b *Body, tokens TokenProvider, opts EncodeOptions) (*EncodedBody, error) {
	if opts.NormalizeTinyMaxStack {
		b = NormalizeMaxStack(b)
	}
	e := &bodyEncoder{tokens: tokens, w: bin.NewWriter()}

	instrs := make([]Instruction, len(b.Instructions))
	copy(instrs, b.Instructions)
	codeSize := Layout(instrs)

	out := &EncodedBody{}
	if IsTinyCandidate(b) {
		out.Tiny = true
		e.w.Byte(byte(codeSize)<<2 | headerTiny)
		if err := e.code(instrs, codeSize); err != nil {
			return nil, err
		}
		out.Bytes = e.w.Bytes()
		return out, nil
	}

	localTok, err := e.localsToken(b)
	if err != nil {
		return nil, err
	}
	flags := uint16(fatHeaderDwords<<12 | headerFat)
	if len(b.Handlers) > 0 {
		flags |= flagMoreSects
	}
	if b.InitLocals {
		flags |= flagInitLocals
	}
	e.w.WriteU16(flags)
	e.w.WriteU16(b.MaxStack)
	e.w.WriteU32(codeSize)
	e.w.WriteU32(uint32(localTok))
	if err := e.code(instrs, codeSize); err != nil {
		return nil, err
	}
	if len(b.Handlers) > 0 {
		e.w.Pad(4)
		fat, err := e.handlers(b.Handlers)
		if err != nil {
			return nil, err
		}
		out.FatSection = fat
	}
	out.Bytes = e.w.Bytes()
	return out, nil
}

// localsToken returns the local signature token for a fat header. With a
// TokenProvider, a decoded token is never carried over: an empty local list
// that had a signature is interned as an empty signature.
func (e *bodyEncoder) localsToken(b *Body) (metadata.Token, error) {
	if e.tokens == nil {
		return b.LocalVarSig, nil
	}
	if len(b.Locals) == 0 && b.LocalVarSig.IsNull() {
		return 0, nil
	}
	tok, err := e.tokens.LocalsToken(b.Locals)
	if err != nil {
		return 0, encodeError(errors.KindUnresolvedReference, err, "local signature")
	}
	return tok, nil
}

func (e *bodyEncoder) token(in *Instruction) (metadata.Token, error) {
	o := &in.Operand
	if e.tokens == nil {
		if o.Token.IsNull() {
			return 0, encodeError(errors.KindUnresolvedReference, nil, "%s at IL_%04x has no token", in.OpCode.Name, in.Offset)
		}
		return o.Token, nil
	}
	if in.OpCode.Operand == OperandString {
		tok, err := e.tokens.UserStringToken(o.String)
		if err != nil {
			return 0, encodeError(errors.KindUnresolvedReference, err, "ldstr at IL_%04x", in.Offset)
		}
		return tok, nil
	}
	ref := o.Ref
	if ref == nil && o.Sig != nil {
		ref = o.Sig
	}
	if ref == nil {
		if o.Token.IsNull() {
			return 0, encodeError(errors.KindUnresolvedReference, nil, "%s at IL_%04x has no operand", in.OpCode.Name, in.Offset)
		}
		return o.Token, nil
	}
	tok, err := e.tokens.Token(ref)
	if err != nil {
		return 0, encodeError(errors.KindUnresolvedReference, err, "%s operand at IL_%04x", in.OpCode.Name, in.Offset)
	}
	return tok, nil
}

func (e *bodyEncoder) target(instrs []Instruction, codeSize uint32, idx int) (uint32, error) {
	switch {
	case idx == len(instrs):
		return codeSize, nil
	case idx < 0 || idx > len(instrs):
		return 0, encodeError(errors.KindOutOfBounds, nil, "branch target #%d outside %d instructions", idx, len(instrs))
	}
	return instrs[idx].Offset, nil
}

func (e *bodyEncoder) code(instrs []Instruction, codeSize uint32) error {
	w := e.w
	for i := range instrs {
		in := &instrs[i]
		w.WriteBytes(in.OpCode.Bytes())
		next := int64(in.Offset) + int64(in.Size())
		o := &in.Operand

		switch in.OpCode.Operand {
		case OperandNone:
		case OperandShortBrTarget:
			t, err := e.target(instrs, codeSize, o.Target)
			if err != nil {
				return err
			}
			delta := int64(t) - next
			if delta < math.MinInt8 || delta > math.MaxInt8 {
				return encodeError(errors.KindOverflow, nil, "%s at IL_%04x: displacement %d exceeds short form", in.OpCode.Name, in.Offset, delta)
			}
			w.Byte(byte(int8(delta)))
		case OperandBrTarget:
			t, err := e.target(instrs, codeSize, o.Target)
			if err != nil {
				return err
			}
			w.WriteU32(uint32(int32(int64(t) - next)))
		case OperandSwitch:
			w.WriteU32(uint32(len(o.Targets)))
			for _, idx := range o.Targets {
				t, err := e.target(instrs, codeSize, idx)
				if err != nil {
					return err
				}
				w.WriteU32(uint32(int32(int64(t) - next)))
			}
		case OperandShortI:
			w.Byte(byte(int8(o.Int)))
		case OperandI:
			w.WriteU32(uint32(int32(o.Int)))
		case OperandI8:
			w.WriteU64(uint64(o.Int))
		case OperandShortR:
			w.WriteF32(float32(o.Float))
		case OperandR:
			w.WriteF64(o.Float)
		case OperandShortVar:
			if o.Var < 0 || o.Var > math.MaxUint8 {
				return encodeError(errors.KindOverflow, nil, "%s at IL_%04x: index %d", in.OpCode.Name, in.Offset, o.Var)
			}
			w.Byte(byte(o.Var))
		case OperandVar:
			if o.Var < 0 || o.Var > math.MaxUint16 {
				return encodeError(errors.KindOverflow, nil, "%s at IL_%04x: index %d", in.OpCode.Name, in.Offset, o.Var)
			}
			w.WriteU16(uint16(o.Var))
		default:
			tok, err := e.token(in)
			if err != nil {
				return err
			}
			w.WriteU32(uint32(tok))
		}
	}
	return nil
}

func (e *bodyEncoder) handlers(hs []ExceptionHandler) (bool, error) {
	fat := needsFatSection(hs)
	w := e.w
	if fat {
		size := uint32(len(hs)*fatClauseSize + 4)
		w.Byte(sectEHTable | sectFatFormat)
		w.Byte(byte(size))
		w.Byte(byte(size >> 8))
		w.Byte(byte(size >> 16))
	} else {
		w.Byte(sectEHTable)
		w.Byte(byte(len(hs)*tinyClauseSize + 4))
		w.WriteU16(0)
	}

	for i := range hs {
		h := &hs[i]
		extra, err := e.handlerExtra(h)
		if err != nil {
			return false, err
		}
		if fat {
			w.WriteU32(uint32(h.Kind))
			w.WriteU32(h.TryStart)
			w.WriteU32(h.TryLength)
			w.WriteU32(h.HandlerStart)
			w.WriteU32(h.HandlerLength)
		} else {
			w.WriteU16(uint16(h.Kind))
			w.WriteU16(uint16(h.TryStart))
			w.Byte(byte(h.TryLength))
			w.WriteU16(uint16(h.HandlerStart))
			w.Byte(byte(h.HandlerLength))
		}
		w.WriteU32(extra)
	}
	return fat, nil
}

func (e *bodyEncoder) handlerExtra(h *ExceptionHandler) (uint32, error) {
	switch h.Kind {
	case HandlerFilter:
		return h.FilterStart, nil
	case HandlerCatch:
		if h.CatchType == nil || e.tokens == nil {
			return uint32(h.CatchToken), nil
		}
		tok, err := e.tokens.Token(h.CatchType)
		if err != nil {
			return 0, encodeError(errors.KindUnresolvedReference, err, "catch type")
		}
		return uint32(tok), nil
	}
	return 0, nil
}
