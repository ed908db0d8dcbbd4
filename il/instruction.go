package il

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/clrmeta/metadata"
	"github.com/wippyai/clrmeta/signature"
)

// Operand is the decoded inline operand of an instruction. Which fields are
// meaningful is determined by the opcode's OperandKind, never by inspecting
// the values:
//
//	OperandI, OperandShortI, OperandI8           Int
//	OperandR, OperandShortR                      Float
//	OperandBrTarget, OperandShortBrTarget        Target
//	OperandSwitch                                Targets
//	OperandVar, OperandShortVar                  Var
//	OperandField, OperandType, OperandTok        Ref, Token
//	OperandMethod, OperandSig                    Ref, Sig, Token
//	OperandString                                String, Token
//
// Targets are instruction indices; len(Instructions) denotes the end of the
// body. Token is the token the operand was decoded from and is used to
// re-encode when no TokenProvider is supplied.
type Operand struct {
	Int     int64
	Float   float64
	Target  int
	Targets []int
	Var     int
	Ref     any
	Sig     *signature.MethodSig
	String  string
	Token   metadata.Token
}

// Instruction pairs an opcode with its operand. Offset is the byte offset
// inside the body's code; it is filled by decoding and by Layout.
type Instruction struct {
	OpCode  *OpCode
	Operand Operand
	Offset  uint32
}

// Size returns the encoded size of op with the given operand.
func Size(op *OpCode, operand Operand) int {
	if op.Operand == OperandSwitch {
		return op.Size() + 4 + 4*len(operand.Targets)
	}
	return op.Size() + op.Operand.Size()
}

// Size returns the encoded size of the instruction.
func (in *Instruction) Size() int {
	return Size(in.OpCode, in.Operand)
}

// Simple returns an instruction without operand.
func Simple(op *OpCode) Instruction {
	return Instruction{OpCode: op}
}

// WithInt returns an instruction with an integer literal or variable index.
func WithInt(op *OpCode, v int64) Instruction {
	in := Instruction{OpCode: op}
	switch op.Operand {
	case OperandVar, OperandShortVar:
		in.Operand.Var = int(v)
	default:
		in.Operand.Int = v
	}
	return in
}

// WithFloat returns an instruction with a floating point literal.
func WithFloat(op *OpCode, v float64) Instruction {
	return Instruction{OpCode: op, Operand: Operand{Float: v}}
}

// WithTarget returns a branch to instruction index target.
func WithTarget(op *OpCode, target int) Instruction {
	return Instruction{OpCode: op, Operand: Operand{Target: target}}
}

// WithTargets returns a switch over instruction indices.
func WithTargets(op *OpCode, targets ...int) Instruction {
	return Instruction{OpCode: op, Operand: Operand{Targets: targets}}
}

// WithRef returns an instruction referencing a member, type or signature.
// sig is the call-site signature for method and calli operands.
func WithRef(op *OpCode, ref any, sig *signature.MethodSig) Instruction {
	return Instruction{OpCode: op, Operand: Operand{Ref: ref, Sig: sig}}
}

// WithString returns an ldstr instruction.
func WithString(op *OpCode, s string) Instruction {
	return Instruction{OpCode: op, Operand: Operand{String: s}}
}

// Layout assigns byte offsets to instrs and returns the total code size.
func Layout(instrs []Instruction) uint32 {
	var off uint32
	for i := range instrs {
		instrs[i].Offset = off
		off += uint32(instrs[i].Size())
	}
	return off
}

// CodeSize returns the encoded size of instrs without modifying them.
func CodeSize(instrs []Instruction) uint32 {
	var n uint32
	for i := range instrs {
		n += uint32(instrs[i].Size())
	}
	return n
}

// Named is implemented by operand references that can describe themselves.
type Named interface {
	FullName() string
}

func (in *Instruction) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "IL_%04x: %s", in.Offset, in.OpCode.Name)
	o := &in.Operand
	switch in.OpCode.Operand {
	case OperandNone:
		return b.String()
	case OperandI, OperandShortI, OperandI8:
		b.WriteString(" " + strconv.FormatInt(o.Int, 10))
	case OperandR, OperandShortR:
		b.WriteString(" " + strconv.FormatFloat(o.Float, 'g', -1, 64))
	case OperandBrTarget, OperandShortBrTarget:
		fmt.Fprintf(&b, " #%d", o.Target)
	case OperandSwitch:
		b.WriteString(" (")
		for i, t := range o.Targets {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "#%d", t)
		}
		b.WriteByte(')')
	case OperandVar, OperandShortVar:
		b.WriteString(" " + strconv.Itoa(o.Var))
	case OperandString:
		b.WriteString(" " + strconv.Quote(o.String))
	default:
		switch r := o.Ref.(type) {
		case Named:
			b.WriteString(" " + r.FullName())
		case nil:
			b.WriteString(" " + o.Token.String())
		default:
			fmt.Fprintf(&b, " %v", r)
		}
	}
	return b.String()
}
