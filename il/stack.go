package il

import (
	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/signature"
)

// StackEffect describes how an instruction changes the evaluation stack.
type StackEffect struct {
	Pops   int
	Pushes int
}

// Net returns the net change in stack depth.
func (e StackEffect) Net() int {
	return e.Pushes - e.Pops
}

// StackDelta computes the stack effect of in. Fixed-behaviour opcodes are a
// table lookup. call, callvirt, calli and newobj use the call-site
// signature in the operand; ret uses enclosing, where nil means void. Any
// other variable-behaviour opcode, or a call without a signature, is a
// contract violation.
func StackDelta(in *Instruction, enclosing *signature.MethodSig) (StackEffect, error) {
	op := in.OpCode
	if !op.IsVariable() {
		return StackEffect{Pops: op.Pop.Count(), Pushes: op.Push.Count()}, nil
	}

	switch op {
	case Call, Callvirt, Calli, Newobj:
		sig := in.Operand.Sig
		if sig == nil {
			return StackEffect{}, errors.VariableStack(op.Name)
		}
		e := StackEffect{Pops: sig.ParamCount()}
		switch op {
		case Newobj:
			e.Pushes = 1
		default:
			if sig.HasThis && !sig.ExplicitThis {
				e.Pops++
			}
			if op == Calli {
				e.Pops++
			}
			if !sig.IsVoid() {
				e.Pushes = 1
			}
		}
		return e, nil
	case Ret:
		if enclosing != nil && !enclosing.IsVoid() {
			return StackEffect{Pops: 1}, nil
		}
		return StackEffect{}, nil
	}
	return StackEffect{}, errors.VariableStack(op.Name)
}

// ComputeMaxStack walks every reachable path of b and returns the deepest
// evaluation stack. Handler entry points start at depth 1 for catch and
// filter clauses and 0 otherwise.
func ComputeMaxStack(b *Body, enclosing *signature.MethodSig) (uint16, error) {
	n := len(b.Instructions)
	if n == 0 {
		return 0, nil
	}
	instrs := make([]Instruction, n)
	copy(instrs, b.Instructions)
	Layout(instrs)

	byOffset := make(map[uint32]int, n)
	for i := range instrs {
		byOffset[instrs[i].Offset] = i
	}

	depth := make([]int, n)
	for i := range depth {
		depth[i] = -1
	}
	var work []int
	push := func(i, d int) {
		if i >= 0 && i < n && depth[i] == -1 {
			depth[i] = d
			work = append(work, i)
		}
	}

	push(0, 0)
	for _, h := range b.Handlers {
		start := 0
		if h.Kind == HandlerCatch || h.Kind == HandlerFilter {
			start = 1
		}
		if i, ok := byOffset[h.HandlerStart]; ok {
			push(i, start)
		}
		if h.Kind == HandlerFilter {
			if i, ok := byOffset[h.FilterStart]; ok {
				push(i, 1)
			}
		}
	}

	maxDepth := 0
	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		in := &instrs[i]
		eff, err := StackDelta(in, enclosing)
		if err != nil {
			return 0, err
		}
		if depth[i] > maxDepth {
			maxDepth = depth[i]
		}
		d := depth[i] - eff.Pops
		if d < 0 {
			d = 0
		}
		d += eff.Pushes
		if d > maxDepth {
			maxDepth = d
		}

		switch in.OpCode.Operand {
		case OperandBrTarget, OperandShortBrTarget:
			td := d
			if in.OpCode == Leave || in.OpCode == LeaveS {
				td = 0
			}
			push(in.Operand.Target, td)
		case OperandSwitch:
			for _, t := range in.Operand.Targets {
				push(t, d)
			}
		}
		switch in.OpCode.Flow {
		case FlowBranch, FlowReturn, FlowThrow:
		default:
			push(i+1, d)
		}
	}
	if maxDepth > 0xFFFF {
		maxDepth = 0xFFFF
	}
	return uint16(maxDepth), nil
}
