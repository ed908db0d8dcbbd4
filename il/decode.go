package il

import (
	"fmt"
	"math"

	"github.com/wippyai/clrmeta/errors"
	bin "github.com/wippyai/clrmeta/internal/binary"
	"github.com/wippyai/clrmeta/metadata"
)

type bodyDecoder struct {
	data     []byte
	resolver Resolver
	loc      Location
}

func (d *bodyDecoder) fail(pos int, kind errors.Kind, cause error, format string, args ...any) error {
	return errors.Decode(d.loc.Image, int64(d.loc.RVA)+int64(pos), kind, fmt.Sprintf(format, args...), cause)
}

// DecodeBody decodes the method body at the start of data and returns it
// together with the number of bytes consumed, including exception
// sections. A nil resolver leaves token operands unresolved: Ref is nil
// and Operand.Token carries the raw token.
func DecodeBody(data []byte, resolver Resolver, loc Location) (*Body, int, error) {
	d := &bodyDecoder{data: data, resolver: resolver, loc: loc}
	return d.decode()
}

func (d *bodyDecoder) decode() (*Body, int, error) {
	r := bin.NewReader(d.data)
	b0, err := r.ReadByte()
	if err != nil {
		return nil, 0, d.fail(0, errors.KindTruncated, err, "empty method body")
	}

	body := &Body{}
	var codeSize uint32
	var moreSects bool

	switch b0 & headerFormatMask {
	case headerTiny:
		codeSize = uint32(b0 >> 2)
		body.MaxStack = TinyMaxStack
	case headerFat:
		b1, err := r.ReadByte()
		if err != nil {
			return nil, 0, d.fail(1, errors.KindTruncated, err, "fat header")
		}
		flags := uint16(b1)<<8 | uint16(b0)
		if size := flags >> 12; size != fatHeaderDwords {
			return nil, 0, d.fail(0, errors.KindInvalidData, nil, "fat header size %d dwords", size)
		}
		moreSects = flags&flagMoreSects != 0
		body.InitLocals = flags&flagInitLocals != 0
		if body.MaxStack, err = r.ReadU16(); err != nil {
			return nil, 0, d.fail(r.Position(), errors.KindTruncated, err, "fat header")
		}
		if codeSize, err = r.ReadU32(); err != nil {
			return nil, 0, d.fail(r.Position(), errors.KindTruncated, err, "fat header")
		}
		tok, err := r.ReadU32()
		if err != nil {
			return nil, 0, d.fail(r.Position(), errors.KindTruncated, err, "fat header")
		}
		body.LocalVarSig = metadata.Token(tok)
	default:
		return nil, 0, d.fail(0, errors.KindInvalidData, nil, "unknown method header format 0x%02x", b0)
	}

	codeStart := r.Position()
	if uint64(codeStart)+uint64(codeSize) > uint64(len(d.data)) {
		return nil, 0, d.fail(codeStart, errors.KindTruncated, nil,
			"code size %d exceeds available %d bytes", codeSize, len(d.data)-codeStart)
	}

	if !body.LocalVarSig.IsNull() && d.resolver != nil {
		locals, err := d.resolver.ResolveLocals(body.LocalVarSig)
		if err != nil {
			return nil, 0, d.fail(codeStart, errors.KindInvalidSignature, err, "local signature %s", body.LocalVarSig)
		}
		body.Locals = locals
	}

	code := d.data[codeStart : codeStart+int(codeSize)]
	if body.Instructions, err = d.instructions(code, codeStart); err != nil {
		return nil, 0, err
	}

	end := codeStart + int(codeSize)
	if moreSects {
		if err := r.Seek(end); err != nil {
			return nil, 0, d.fail(end, errors.KindTruncated, err, "exception sections")
		}
		if body.Handlers, err = d.sections(r); err != nil {
			return nil, 0, err
		}
		end = r.Position()
	}
	return body, end, nil
}

func (d *bodyDecoder) instructions(code []byte, base int) ([]Instruction, error) {
	r := bin.NewReader(code)
	var instrs []Instruction
	// Branch operands hold byte offsets until every boundary is known.
	type fixup struct {
		index   int
		targets []uint32
	}
	var fixups []fixup

	for r.Len() > 0 {
		start := r.Position()
		b0, _ := r.ReadByte()
		var b1 byte
		if b0 == 0xFE {
			var err error
			if b1, err = r.ReadByte(); err != nil {
				return nil, d.fail(base+start, errors.KindCodeSizeMismatch, err, "two-byte opcode crosses code end")
			}
		}
		op := Lookup(b0, b1)
		if op == nil {
			return nil, errors.UnknownOpcode(d.loc.Image, int64(d.loc.RVA)+int64(base+start), b0, b1)
		}

		in := Instruction{OpCode: op, Offset: uint32(start)}
		targets, err := d.operand(r, &in)
		if err != nil {
			if _, ok := err.(*errors.Error); ok {
				return nil, err
			}
			return nil, d.fail(base+start, errors.KindCodeSizeMismatch, err,
				"%s operand overruns code size %d", op.Name, len(code))
		}
		if targets != nil {
			fixups = append(fixups, fixup{index: len(instrs), targets: targets})
		}
		instrs = append(instrs, in)
	}

	if len(fixups) > 0 {
		index := make(map[uint32]int, len(instrs)+1)
		for i := range instrs {
			index[instrs[i].Offset] = i
		}
		index[uint32(len(code))] = len(instrs)
		for _, f := range fixups {
			in := &instrs[f.index]
			mapped := make([]int, len(f.targets))
			for i, off := range f.targets {
				idx, ok := index[off]
				if !ok {
					return nil, d.fail(base+int(in.Offset), errors.KindInvalidData, nil,
						"%s target 0x%x is not an instruction boundary", in.OpCode.Name, off)
				}
				mapped[i] = idx
			}
			if in.OpCode.Operand == OperandSwitch {
				in.Operand.Targets = mapped
			} else {
				in.Operand.Target = mapped[0]
			}
		}
	}
	return instrs, nil
}

// operand decodes the inline operand of in. Branch operands are returned
// as absolute byte offsets for later mapping.
func (d *bodyDecoder) operand(r *bin.Reader, in *Instruction) ([]uint32, error) {
	o := &in.Operand
	switch in.OpCode.Operand {
	case OperandNone:
	case OperandShortBrTarget:
		v, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		return []uint32{uint32(int64(r.Position()) + int64(int8(v)))}, nil
	case OperandBrTarget:
		v, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		return []uint32{uint32(int64(r.Position()) + int64(int32(v)))}, nil
	case OperandSwitch:
		n, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		if uint64(n)*4 > uint64(r.Len()) {
			return nil, fmt.Errorf("switch with %d targets", n)
		}
		deltas := make([]int32, n)
		for i := range deltas {
			v, _ := r.ReadU32()
			deltas[i] = int32(v)
		}
		next := int64(r.Position())
		targets := make([]uint32, n)
		for i, delta := range deltas {
			targets[i] = uint32(next + int64(delta))
		}
		if n == 0 {
			o.Targets = []int{}
			return nil, nil
		}
		return targets, nil
	case OperandShortI:
		v, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		o.Int = int64(int8(v))
	case OperandI:
		v, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		o.Int = int64(int32(v))
	case OperandI8:
		v, err := r.ReadU64()
		if err != nil {
			return nil, err
		}
		o.Int = int64(v)
	case OperandShortR:
		v, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		o.Float = float64(math.Float32frombits(v))
	case OperandR:
		v, err := r.ReadU64()
		if err != nil {
			return nil, err
		}
		o.Float = math.Float64frombits(v)
	case OperandShortVar:
		v, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		o.Var = int(v)
	case OperandVar:
		v, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		o.Var = int(v)
	case OperandString:
		v, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		o.Token = metadata.Token(v)
		if d.resolver != nil {
			s, err := d.resolver.ResolveUserString(o.Token)
			if err != nil {
				return nil, d.fail(int(in.Offset), errors.KindInvalidData, err, "ldstr token %s", o.Token)
			}
			o.String = s
		}
	default:
		v, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		o.Token = metadata.Token(v)
		if d.resolver != nil {
			ref, sig, err := d.resolver.ResolveToken(o.Token)
			if err != nil {
				return nil, d.fail(int(in.Offset), errors.KindInvalidData, err, "%s operand %s", in.OpCode.Name, o.Token)
			}
			o.Ref, o.Sig = ref, sig
		}
	}
	return nil, nil
}

func (d *bodyDecoder) sections(r *bin.Reader) ([]ExceptionHandler, error) {
	var handlers []ExceptionHandler
	for {
		if err := r.Align(4); err != nil {
			return nil, d.fail(r.Position(), errors.KindTruncated, err, "section alignment")
		}
		start := r.Position()
		kind, err := r.ReadByte()
		if err != nil {
			return nil, d.fail(start, errors.KindTruncated, err, "section header")
		}
		fat := kind&sectFatFormat != 0
		var size uint32
		if fat {
			b, err := r.ReadBytes(3)
			if err != nil {
				return nil, d.fail(start, errors.KindTruncated, err, "fat section header")
			}
			size = uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
		} else {
			b, err := r.ReadBytes(3)
			if err != nil {
				return nil, d.fail(start, errors.KindTruncated, err, "tiny section header")
			}
			size = uint32(b[0])
		}
		if size < 4 {
			return nil, d.fail(start, errors.KindInvalidData, nil, "section size %d", size)
		}
		body, err := r.ReadBytes(int(size) - 4)
		if err != nil {
			return nil, d.fail(start, errors.KindTruncated, err, "section of %d bytes", size)
		}

		if kind&sectEHTable != 0 {
			hs, err := d.clauses(body, fat, start+4)
			if err != nil {
				return nil, err
			}
			handlers = append(handlers, hs...)
		} else if kind&sectOptIL == 0 {
			return nil, d.fail(start, errors.KindInvalidData, nil, "unknown section kind 0x%02x", kind)
		}

		if kind&sectMoreSects == 0 {
			return handlers, nil
		}
	}
}

func (d *bodyDecoder) clauses(data []byte, fat bool, base int) ([]ExceptionHandler, error) {
	size := tinyClauseSize
	if fat {
		size = fatClauseSize
	}
	n := len(data) / size
	r := bin.NewReader(data)
	out := make([]ExceptionHandler, 0, n)
	for i := 0; i < n; i++ {
		var h ExceptionHandler
		var extra uint32
		if fat {
			vals := make([]uint32, 6)
			for j := range vals {
				vals[j], _ = r.ReadU32()
			}
			h.Kind = HandlerKind(vals[0])
			h.TryStart, h.TryLength = vals[1], vals[2]
			h.HandlerStart, h.HandlerLength = vals[3], vals[4]
			extra = vals[5]
		} else {
			flags, _ := r.ReadU16()
			tryOff, _ := r.ReadU16()
			tryLen, _ := r.ReadU8()
			hOff, _ := r.ReadU16()
			hLen, _ := r.ReadU8()
			extra, _ = r.ReadU32()
			h.Kind = HandlerKind(flags)
			h.TryStart, h.TryLength = uint32(tryOff), uint32(tryLen)
			h.HandlerStart, h.HandlerLength = uint32(hOff), uint32(hLen)
		}
		switch h.Kind {
		case HandlerCatch:
			h.CatchToken = metadata.Token(extra)
			if d.resolver != nil && !h.CatchToken.IsNull() {
				ref, _, err := d.resolver.ResolveToken(h.CatchToken)
				if err != nil {
					return nil, d.fail(base+i*size, errors.KindInvalidData, err, "catch type %s", h.CatchToken)
				}
				h.CatchType = ref
			}
		case HandlerFilter:
			h.FilterStart = extra
		case HandlerFinally, HandlerFault:
		default:
			return nil, d.fail(base+i*size, errors.KindInvalidData, nil, "unknown handler kind 0x%x", uint32(h.Kind))
		}
		out = append(out, h)
	}
	return out, nil
}
