// Package il implements the CIL instruction set and the method body codec.
//
// The opcode catalog is a set of package-level *OpCode values; identity
// comparison (in.OpCode == il.Call) is the intended way to test an
// instruction. Bodies decode into a flat instruction list whose branch
// operands are instruction indices, so instructions can be inserted or
// removed without recomputing displacements. EncodeBody lays the list out
// again and picks the tiny or fat header and exception section forms.
//
// StackDelta and ComputeMaxStack derive stack usage from the catalog and the
// call-site signatures carried by call operands.
package il
