package il

import (
	"fmt"
	"sync"
)

// OperandKind selects how an instruction's inline operand is encoded.
type OperandKind uint8

const (
	OperandNone          OperandKind = iota
	OperandBrTarget                  // int32 relative branch
	OperandShortBrTarget             // int8 relative branch
	OperandI                         // int32
	OperandShortI                    // int8
	OperandI8                        // int64
	OperandR                         // float64
	OperandShortR                    // float32
	OperandField                     // field token
	OperandMethod                    // method token
	OperandType                      // type token
	OperandTok                       // type, method or field token
	OperandSig                       // stand-alone signature token
	OperandString                    // user string token
	OperandSwitch                    // uint32 count + int32 targets
	OperandVar                       // uint16 argument or local index
	OperandShortVar                  // uint8 argument or local index
)

var operandNames = [...]string{
	"InlineNone", "InlineBrTarget", "ShortInlineBrTarget", "InlineI", "ShortInlineI",
	"InlineI8", "InlineR", "ShortInlineR", "InlineField", "InlineMethod", "InlineType",
	"InlineTok", "InlineSig", "InlineString", "InlineSwitch", "InlineVar", "ShortInlineVar",
}

func (k OperandKind) String() string {
	if int(k) < len(operandNames) {
		return operandNames[k]
	}
	return fmt.Sprintf("OperandKind(%d)", k)
}

// Size returns the encoded operand size. Switch operands are variable and
// report only their count prefix.
func (k OperandKind) Size() int {
	switch k {
	case OperandNone:
		return 0
	case OperandShortBrTarget, OperandShortI, OperandShortVar:
		return 1
	case OperandVar:
		return 2
	case OperandI8, OperandR:
		return 8
	default:
		return 4
	}
}

// IsToken reports whether the operand is a metadata token.
func (k OperandKind) IsToken() bool {
	switch k {
	case OperandField, OperandMethod, OperandType, OperandTok, OperandSig, OperandString:
		return true
	}
	return false
}

// IsBranch reports whether the operand is a branch target.
func (k OperandKind) IsBranch() bool {
	return k == OperandBrTarget || k == OperandShortBrTarget
}

// FlowControl classifies how an instruction transfers control.
type FlowControl uint8

const (
	FlowNext FlowControl = iota
	FlowBranch
	FlowCondBranch
	FlowCall
	FlowReturn
	FlowThrow
	FlowBreak
	FlowMeta
)

// StackBehaviour is the symbolic push or pop behaviour of an opcode.
type StackBehaviour uint8

const (
	Pop0 StackBehaviour = iota
	Pop1
	Pop1Pop1
	Popi
	PopiPop1
	PopiPopi
	PopiPopi8
	PopiPopiPopi
	PopiPopr4
	PopiPopr8
	Popref
	PoprefPop1
	PoprefPopi
	PoprefPopiPopi
	PoprefPopiPopi8
	PoprefPopiPopr4
	PoprefPopiPopr8
	PoprefPopiPopref
	PoprefPopiPop1
	Varpop
	Push0
	Push1
	Push1Push1
	Pushi
	Pushi8
	Pushr4
	Pushr8
	Pushref
	Varpush
)

// Count returns the number of stack slots the behaviour consumes or
// produces, or -1 for Varpop and Varpush.
func (b StackBehaviour) Count() int {
	switch b {
	case Pop0, Push0:
		return 0
	case Pop1, Popi, Popref, Push1, Pushi, Pushi8, Pushr4, Pushr8, Pushref:
		return 1
	case Pop1Pop1, PopiPop1, PopiPopi, PopiPopi8, PopiPopr4, PopiPopr8,
		PoprefPop1, PoprefPopi, Push1Push1:
		return 2
	case PopiPopiPopi, PoprefPopiPopi, PoprefPopiPopi8, PoprefPopiPopr4,
		PoprefPopiPopr8, PoprefPopiPopref, PoprefPopiPop1:
		return 3
	}
	return -1
}

// OpCode is an immutable instruction descriptor.
type OpCode struct {
	Name    string
	Value   uint16 // 0x00XX, or 0xFEXX for two-byte opcodes
	Operand OperandKind
	Flow    FlowControl
	Pop     StackBehaviour
	Push    StackBehaviour
}

// TwoByte reports whether the opcode is 0xFE-prefixed.
func (op *OpCode) TwoByte() bool {
	return op.Value>>8 == 0xFE
}

// Size returns the number of opcode bytes.
func (op *OpCode) Size() int {
	if op.TwoByte() {
		return 2
	}
	return 1
}

// Bytes returns the encoded opcode.
func (op *OpCode) Bytes() []byte {
	if op.TwoByte() {
		return []byte{0xFE, byte(op.Value)}
	}
	return []byte{byte(op.Value)}
}

// IsVariable reports whether the stack effect depends on a signature.
func (op *OpCode) IsVariable() bool {
	return op.Pop == Varpop || op.Push == Varpush
}

func (op *OpCode) String() string {
	return op.Name
}

var catalog []*OpCode

func op(name string, value uint16, operand OperandKind, flow FlowControl, pop, push StackBehaviour) *OpCode {
	c := &OpCode{Name: name, Value: value, Operand: operand, Flow: flow, Pop: pop, Push: push}
	catalog = append(catalog, c)
	return c
}

// slot maps an encoding to its lookup index: the first byte for single-byte
// opcodes, 256 plus the second byte for 0xFE-prefixed ones.
func slot(value uint16) int {
	if value>>8 == 0xFE {
		return 256 + int(value&0xFF)
	}
	return int(value)
}

type tables struct {
	byCode [512]*OpCode
	byName map[string]*OpCode
}

var lookupTables = sync.OnceValue(func() *tables {
	t := &tables{byName: make(map[string]*OpCode, len(catalog))}
	for _, c := range catalog {
		t.byCode[slot(c.Value)] = c
		t.byName[c.Name] = c
	}
	return t
})

// Lookup returns the opcode for a first byte and, when first is 0xFE, the
// second byte. Unused encodings return nil.
func Lookup(first, second byte) *OpCode {
	if first == 0xFE {
		return lookupTables().byCode[256+int(second)]
	}
	return lookupTables().byCode[first]
}

// ByValue returns the opcode with the given 0x00XX or 0xFEXX value.
func ByValue(value uint16) *OpCode {
	if value>>8 != 0 && value>>8 != 0xFE {
		return nil
	}
	return lookupTables().byCode[slot(value)]
}

// ByName returns the opcode with the given mnemonic.
func ByName(name string) *OpCode {
	return lookupTables().byName[name]
}

// All returns every opcode in catalog order.
func All() []*OpCode {
	out := make([]*OpCode, len(catalog))
	copy(out, catalog)
	return out
}
