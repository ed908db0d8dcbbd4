package il

// The ECMA-335 Partition III instruction set. Values of two-byte
// instructions carry the 0xFE prefix in their high byte.
var (
	// Base instructions
	Nop     = op("nop", 0x00, OperandNone, FlowNext, Pop0, Push0)
	Break   = op("break", 0x01, OperandNone, FlowBreak, Pop0, Push0)
	Ldarg0  = op("ldarg.0", 0x02, OperandNone, FlowNext, Pop0, Push1)
	Ldarg1  = op("ldarg.1", 0x03, OperandNone, FlowNext, Pop0, Push1)
	Ldarg2  = op("ldarg.2", 0x04, OperandNone, FlowNext, Pop0, Push1)
	Ldarg3  = op("ldarg.3", 0x05, OperandNone, FlowNext, Pop0, Push1)
	Ldloc0  = op("ldloc.0", 0x06, OperandNone, FlowNext, Pop0, Push1)
	Ldloc1  = op("ldloc.1", 0x07, OperandNone, FlowNext, Pop0, Push1)
	Ldloc2  = op("ldloc.2", 0x08, OperandNone, FlowNext, Pop0, Push1)
	Ldloc3  = op("ldloc.3", 0x09, OperandNone, FlowNext, Pop0, Push1)
	Stloc0  = op("stloc.0", 0x0A, OperandNone, FlowNext, Pop1, Push0)
	Stloc1  = op("stloc.1", 0x0B, OperandNone, FlowNext, Pop1, Push0)
	Stloc2  = op("stloc.2", 0x0C, OperandNone, FlowNext, Pop1, Push0)
	Stloc3  = op("stloc.3", 0x0D, OperandNone, FlowNext, Pop1, Push0)
	LdargS  = op("ldarg.s", 0x0E, OperandShortVar, FlowNext, Pop0, Push1)
	LdargaS = op("ldarga.s", 0x0F, OperandShortVar, FlowNext, Pop0, Pushi)
	StargS  = op("starg.s", 0x10, OperandShortVar, FlowNext, Pop1, Push0)
	LdlocS  = op("ldloc.s", 0x11, OperandShortVar, FlowNext, Pop0, Push1)
	LdlocaS = op("ldloca.s", 0x12, OperandShortVar, FlowNext, Pop0, Pushi)
	StlocS  = op("stloc.s", 0x13, OperandShortVar, FlowNext, Pop1, Push0)
	Ldnull  = op("ldnull", 0x14, OperandNone, FlowNext, Pop0, Pushref)
	LdcI4M1 = op("ldc.i4.m1", 0x15, OperandNone, FlowNext, Pop0, Pushi)
	LdcI40  = op("ldc.i4.0", 0x16, OperandNone, FlowNext, Pop0, Pushi)
	LdcI41  = op("ldc.i4.1", 0x17, OperandNone, FlowNext, Pop0, Pushi)
	LdcI42  = op("ldc.i4.2", 0x18, OperandNone, FlowNext, Pop0, Pushi)
	LdcI43  = op("ldc.i4.3", 0x19, OperandNone, FlowNext, Pop0, Pushi)
	LdcI44  = op("ldc.i4.4", 0x1A, OperandNone, FlowNext, Pop0, Pushi)
	LdcI45  = op("ldc.i4.5", 0x1B, OperandNone, FlowNext, Pop0, Pushi)
	LdcI46  = op("ldc.i4.6", 0x1C, OperandNone, FlowNext, Pop0, Pushi)
	LdcI47  = op("ldc.i4.7", 0x1D, OperandNone, FlowNext, Pop0, Pushi)
	LdcI48  = op("ldc.i4.8", 0x1E, OperandNone, FlowNext, Pop0, Pushi)
	LdcI4S  = op("ldc.i4.s", 0x1F, OperandShortI, FlowNext, Pop0, Pushi)
	LdcI4   = op("ldc.i4", 0x20, OperandI, FlowNext, Pop0, Pushi)
	LdcI8   = op("ldc.i8", 0x21, OperandI8, FlowNext, Pop0, Pushi8)
	LdcR4   = op("ldc.r4", 0x22, OperandShortR, FlowNext, Pop0, Pushr4)
	LdcR8   = op("ldc.r8", 0x23, OperandR, FlowNext, Pop0, Pushr8)
	Dup     = op("dup", 0x25, OperandNone, FlowNext, Pop1, Push1Push1)
	Pop     = op("pop", 0x26, OperandNone, FlowNext, Pop1, Push0)
	Jmp     = op("jmp", 0x27, OperandMethod, FlowCall, Pop0, Push0)
	Call    = op("call", 0x28, OperandMethod, FlowCall, Varpop, Varpush)
	Calli   = op("calli", 0x29, OperandSig, FlowCall, Varpop, Varpush)
	Ret     = op("ret", 0x2A, OperandNone, FlowReturn, Varpop, Push0)

	// Branches
	BrS      = op("br.s", 0x2B, OperandShortBrTarget, FlowBranch, Pop0, Push0)
	BrfalseS = op("brfalse.s", 0x2C, OperandShortBrTarget, FlowCondBranch, Popi, Push0)
	BrtrueS  = op("brtrue.s", 0x2D, OperandShortBrTarget, FlowCondBranch, Popi, Push0)
	BeqS     = op("beq.s", 0x2E, OperandShortBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	BgeS     = op("bge.s", 0x2F, OperandShortBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	BgtS     = op("bgt.s", 0x30, OperandShortBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	BleS     = op("ble.s", 0x31, OperandShortBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	BltS     = op("blt.s", 0x32, OperandShortBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	BneUnS   = op("bne.un.s", 0x33, OperandShortBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	BgeUnS   = op("bge.un.s", 0x34, OperandShortBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	BgtUnS   = op("bgt.un.s", 0x35, OperandShortBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	BleUnS   = op("ble.un.s", 0x36, OperandShortBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	BltUnS   = op("blt.un.s", 0x37, OperandShortBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	Br       = op("br", 0x38, OperandBrTarget, FlowBranch, Pop0, Push0)
	Brfalse  = op("brfalse", 0x39, OperandBrTarget, FlowCondBranch, Popi, Push0)
	Brtrue   = op("brtrue", 0x3A, OperandBrTarget, FlowCondBranch, Popi, Push0)
	Beq      = op("beq", 0x3B, OperandBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	Bge      = op("bge", 0x3C, OperandBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	Bgt      = op("bgt", 0x3D, OperandBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	Ble      = op("ble", 0x3E, OperandBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	Blt      = op("blt", 0x3F, OperandBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	BneUn    = op("bne.un", 0x40, OperandBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	BgeUn    = op("bge.un", 0x41, OperandBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	BgtUn    = op("bgt.un", 0x42, OperandBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	BleUn    = op("ble.un", 0x43, OperandBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	BltUn    = op("blt.un", 0x44, OperandBrTarget, FlowCondBranch, Pop1Pop1, Push0)
	Switch   = op("switch", 0x45, OperandSwitch, FlowCondBranch, Popi, Push0)

	// Indirect loads and stores
	LdindI1  = op("ldind.i1", 0x46, OperandNone, FlowNext, Popi, Pushi)
	LdindU1  = op("ldind.u1", 0x47, OperandNone, FlowNext, Popi, Pushi)
	LdindI2  = op("ldind.i2", 0x48, OperandNone, FlowNext, Popi, Pushi)
	LdindU2  = op("ldind.u2", 0x49, OperandNone, FlowNext, Popi, Pushi)
	LdindI4  = op("ldind.i4", 0x4A, OperandNone, FlowNext, Popi, Pushi)
	LdindU4  = op("ldind.u4", 0x4B, OperandNone, FlowNext, Popi, Pushi)
	LdindI8  = op("ldind.i8", 0x4C, OperandNone, FlowNext, Popi, Pushi8)
	LdindI   = op("ldind.i", 0x4D, OperandNone, FlowNext, Popi, Pushi)
	LdindR4  = op("ldind.r4", 0x4E, OperandNone, FlowNext, Popi, Pushr4)
	LdindR8  = op("ldind.r8", 0x4F, OperandNone, FlowNext, Popi, Pushr8)
	LdindRef = op("ldind.ref", 0x50, OperandNone, FlowNext, Popi, Pushref)
	StindRef = op("stind.ref", 0x51, OperandNone, FlowNext, PopiPopi, Push0)
	StindI1  = op("stind.i1", 0x52, OperandNone, FlowNext, PopiPopi, Push0)
	StindI2  = op("stind.i2", 0x53, OperandNone, FlowNext, PopiPopi, Push0)
	StindI4  = op("stind.i4", 0x54, OperandNone, FlowNext, PopiPopi, Push0)
	StindI8  = op("stind.i8", 0x55, OperandNone, FlowNext, PopiPopi8, Push0)
	StindR4  = op("stind.r4", 0x56, OperandNone, FlowNext, PopiPopr4, Push0)
	StindR8  = op("stind.r8", 0x57, OperandNone, FlowNext, PopiPopr8, Push0)

	// Arithmetic
	Add    = op("add", 0x58, OperandNone, FlowNext, Pop1Pop1, Push1)
	Sub    = op("sub", 0x59, OperandNone, FlowNext, Pop1Pop1, Push1)
	Mul    = op("mul", 0x5A, OperandNone, FlowNext, Pop1Pop1, Push1)
	Div    = op("div", 0x5B, OperandNone, FlowNext, Pop1Pop1, Push1)
	DivUn  = op("div.un", 0x5C, OperandNone, FlowNext, Pop1Pop1, Push1)
	Rem    = op("rem", 0x5D, OperandNone, FlowNext, Pop1Pop1, Push1)
	RemUn  = op("rem.un", 0x5E, OperandNone, FlowNext, Pop1Pop1, Push1)
	And    = op("and", 0x5F, OperandNone, FlowNext, Pop1Pop1, Push1)
	Or     = op("or", 0x60, OperandNone, FlowNext, Pop1Pop1, Push1)
	Xor    = op("xor", 0x61, OperandNone, FlowNext, Pop1Pop1, Push1)
	Shl    = op("shl", 0x62, OperandNone, FlowNext, Pop1Pop1, Push1)
	Shr    = op("shr", 0x63, OperandNone, FlowNext, Pop1Pop1, Push1)
	ShrUn  = op("shr.un", 0x64, OperandNone, FlowNext, Pop1Pop1, Push1)
	Neg    = op("neg", 0x65, OperandNone, FlowNext, Pop1, Push1)
	Not    = op("not", 0x66, OperandNone, FlowNext, Pop1, Push1)
	ConvI1 = op("conv.i1", 0x67, OperandNone, FlowNext, Pop1, Pushi)
	ConvI2 = op("conv.i2", 0x68, OperandNone, FlowNext, Pop1, Pushi)
	ConvI4 = op("conv.i4", 0x69, OperandNone, FlowNext, Pop1, Pushi)
	ConvI8 = op("conv.i8", 0x6A, OperandNone, FlowNext, Pop1, Pushi8)
	ConvR4 = op("conv.r4", 0x6B, OperandNone, FlowNext, Pop1, Pushr4)
	ConvR8 = op("conv.r8", 0x6C, OperandNone, FlowNext, Pop1, Pushr8)
	ConvU4 = op("conv.u4", 0x6D, OperandNone, FlowNext, Pop1, Pushi)
	ConvU8 = op("conv.u8", 0x6E, OperandNone, FlowNext, Pop1, Pushi8)

	// Object model
	Callvirt    = op("callvirt", 0x6F, OperandMethod, FlowCall, Varpop, Varpush)
	Cpobj       = op("cpobj", 0x70, OperandType, FlowNext, PopiPopi, Push0)
	Ldobj       = op("ldobj", 0x71, OperandType, FlowNext, Popi, Push1)
	Ldstr       = op("ldstr", 0x72, OperandString, FlowNext, Pop0, Pushref)
	Newobj      = op("newobj", 0x73, OperandMethod, FlowCall, Varpop, Pushref)
	Castclass   = op("castclass", 0x74, OperandType, FlowNext, Popref, Pushref)
	Isinst      = op("isinst", 0x75, OperandType, FlowNext, Popref, Pushi)
	ConvRUn     = op("conv.r.un", 0x76, OperandNone, FlowNext, Pop1, Pushr8)
	Unbox       = op("unbox", 0x79, OperandType, FlowNext, Popref, Pushi)
	Throw       = op("throw", 0x7A, OperandNone, FlowThrow, Popref, Push0)
	Ldfld       = op("ldfld", 0x7B, OperandField, FlowNext, Popref, Push1)
	Ldflda      = op("ldflda", 0x7C, OperandField, FlowNext, Popref, Pushi)
	Stfld       = op("stfld", 0x7D, OperandField, FlowNext, PoprefPop1, Push0)
	Ldsfld      = op("ldsfld", 0x7E, OperandField, FlowNext, Pop0, Push1)
	Ldsflda     = op("ldsflda", 0x7F, OperandField, FlowNext, Pop0, Pushi)
	Stsfld      = op("stsfld", 0x80, OperandField, FlowNext, Pop1, Push0)
	Stobj       = op("stobj", 0x81, OperandType, FlowNext, PopiPop1, Push0)
	ConvOvfI1Un = op("conv.ovf.i1.un", 0x82, OperandNone, FlowNext, Pop1, Pushi)
	ConvOvfI2Un = op("conv.ovf.i2.un", 0x83, OperandNone, FlowNext, Pop1, Pushi)
	ConvOvfI4Un = op("conv.ovf.i4.un", 0x84, OperandNone, FlowNext, Pop1, Pushi)
	ConvOvfI8Un = op("conv.ovf.i8.un", 0x85, OperandNone, FlowNext, Pop1, Pushi8)
	ConvOvfU1Un = op("conv.ovf.u1.un", 0x86, OperandNone, FlowNext, Pop1, Pushi)
	ConvOvfU2Un = op("conv.ovf.u2.un", 0x87, OperandNone, FlowNext, Pop1, Pushi)
	ConvOvfU4Un = op("conv.ovf.u4.un", 0x88, OperandNone, FlowNext, Pop1, Pushi)
	ConvOvfU8Un = op("conv.ovf.u8.un", 0x89, OperandNone, FlowNext, Pop1, Pushi8)
	ConvOvfIUn  = op("conv.ovf.i.un", 0x8A, OperandNone, FlowNext, Pop1, Pushi)
	ConvOvfUUn  = op("conv.ovf.u.un", 0x8B, OperandNone, FlowNext, Pop1, Pushi)
	Box         = op("box", 0x8C, OperandType, FlowNext, Pop1, Pushref)
	Newarr      = op("newarr", 0x8D, OperandType, FlowNext, Popi, Pushref)
	Ldlen       = op("ldlen", 0x8E, OperandNone, FlowNext, Popref, Pushi)
	Ldelema     = op("ldelema", 0x8F, OperandType, FlowNext, PoprefPopi, Pushi)
	LdelemI1    = op("ldelem.i1", 0x90, OperandNone, FlowNext, PoprefPopi, Pushi)
	LdelemU1    = op("ldelem.u1", 0x91, OperandNone, FlowNext, PoprefPopi, Pushi)
	LdelemI2    = op("ldelem.i2", 0x92, OperandNone, FlowNext, PoprefPopi, Pushi)
	LdelemU2    = op("ldelem.u2", 0x93, OperandNone, FlowNext, PoprefPopi, Pushi)
	LdelemI4    = op("ldelem.i4", 0x94, OperandNone, FlowNext, PoprefPopi, Pushi)
	LdelemU4    = op("ldelem.u4", 0x95, OperandNone, FlowNext, PoprefPopi, Pushi)
	LdelemI8    = op("ldelem.i8", 0x96, OperandNone, FlowNext, PoprefPopi, Pushi8)
	LdelemI     = op("ldelem.i", 0x97, OperandNone, FlowNext, PoprefPopi, Pushi)
	LdelemR4    = op("ldelem.r4", 0x98, OperandNone, FlowNext, PoprefPopi, Pushr4)
	LdelemR8    = op("ldelem.r8", 0x99, OperandNone, FlowNext, PoprefPopi, Pushr8)
	LdelemRef   = op("ldelem.ref", 0x9A, OperandNone, FlowNext, PoprefPopi, Pushref)
	StelemI     = op("stelem.i", 0x9B, OperandNone, FlowNext, PoprefPopiPopi, Push0)
	StelemI1    = op("stelem.i1", 0x9C, OperandNone, FlowNext, PoprefPopiPopi, Push0)
	StelemI2    = op("stelem.i2", 0x9D, OperandNone, FlowNext, PoprefPopiPopi, Push0)
	StelemI4    = op("stelem.i4", 0x9E, OperandNone, FlowNext, PoprefPopiPopi, Push0)
	StelemI8    = op("stelem.i8", 0x9F, OperandNone, FlowNext, PoprefPopiPopi8, Push0)
	StelemR4    = op("stelem.r4", 0xA0, OperandNone, FlowNext, PoprefPopiPopr4, Push0)
	StelemR8    = op("stelem.r8", 0xA1, OperandNone, FlowNext, PoprefPopiPopr8, Push0)
	StelemRef   = op("stelem.ref", 0xA2, OperandNone, FlowNext, PoprefPopiPopref, Push0)
	Ldelem      = op("ldelem", 0xA3, OperandType, FlowNext, PoprefPopi, Push1)
	Stelem      = op("stelem", 0xA4, OperandType, FlowNext, PoprefPopiPop1, Push0)
	UnboxAny    = op("unbox.any", 0xA5, OperandType, FlowNext, Popref, Push1)
	ConvOvfI1   = op("conv.ovf.i1", 0xB3, OperandNone, FlowNext, Pop1, Pushi)
	ConvOvfU1   = op("conv.ovf.u1", 0xB4, OperandNone, FlowNext, Pop1, Pushi)
	ConvOvfI2   = op("conv.ovf.i2", 0xB5, OperandNone, FlowNext, Pop1, Pushi)
	ConvOvfU2   = op("conv.ovf.u2", 0xB6, OperandNone, FlowNext, Pop1, Pushi)
	ConvOvfI4   = op("conv.ovf.i4", 0xB7, OperandNone, FlowNext, Pop1, Pushi)
	ConvOvfU4   = op("conv.ovf.u4", 0xB8, OperandNone, FlowNext, Pop1, Pushi)
	ConvOvfI8   = op("conv.ovf.i8", 0xB9, OperandNone, FlowNext, Pop1, Pushi8)
	ConvOvfU8   = op("conv.ovf.u8", 0xBA, OperandNone, FlowNext, Pop1, Pushi8)
	Refanyval   = op("refanyval", 0xC2, OperandType, FlowNext, Pop1, Pushi)
	Ckfinite    = op("ckfinite", 0xC3, OperandNone, FlowNext, Pop1, Pushr8)
	Mkrefany    = op("mkrefany", 0xC6, OperandType, FlowNext, Popi, Push1)
	Ldtoken     = op("ldtoken", 0xD0, OperandTok, FlowNext, Pop0, Pushi)
	ConvU2      = op("conv.u2", 0xD1, OperandNone, FlowNext, Pop1, Pushi)
	ConvU1      = op("conv.u1", 0xD2, OperandNone, FlowNext, Pop1, Pushi)
	ConvI       = op("conv.i", 0xD3, OperandNone, FlowNext, Pop1, Pushi)
	ConvOvfI    = op("conv.ovf.i", 0xD4, OperandNone, FlowNext, Pop1, Pushi)
	ConvOvfU    = op("conv.ovf.u", 0xD5, OperandNone, FlowNext, Pop1, Pushi)
	AddOvf      = op("add.ovf", 0xD6, OperandNone, FlowNext, Pop1Pop1, Push1)
	AddOvfUn    = op("add.ovf.un", 0xD7, OperandNone, FlowNext, Pop1Pop1, Push1)
	MulOvf      = op("mul.ovf", 0xD8, OperandNone, FlowNext, Pop1Pop1, Push1)
	MulOvfUn    = op("mul.ovf.un", 0xD9, OperandNone, FlowNext, Pop1Pop1, Push1)
	SubOvf      = op("sub.ovf", 0xDA, OperandNone, FlowNext, Pop1Pop1, Push1)
	SubOvfUn    = op("sub.ovf.un", 0xDB, OperandNone, FlowNext, Pop1Pop1, Push1)
	Endfinally  = op("endfinally", 0xDC, OperandNone, FlowReturn, Pop0, Push0)
	Leave       = op("leave", 0xDD, OperandBrTarget, FlowBranch, Pop0, Push0)
	LeaveS      = op("leave.s", 0xDE, OperandShortBrTarget, FlowBranch, Pop0, Push0)
	StindI      = op("stind.i", 0xDF, OperandNone, FlowNext, PopiPopi, Push0)
	ConvU       = op("conv.u", 0xE0, OperandNone, FlowNext, Pop1, Pushi)

	// Two-byte instructions
	Arglist     = op("arglist", 0xFE00, OperandNone, FlowNext, Pop0, Pushi)
	Ceq         = op("ceq", 0xFE01, OperandNone, FlowNext, Pop1Pop1, Pushi)
	Cgt         = op("cgt", 0xFE02, OperandNone, FlowNext, Pop1Pop1, Pushi)
	CgtUn       = op("cgt.un", 0xFE03, OperandNone, FlowNext, Pop1Pop1, Pushi)
	Clt         = op("clt", 0xFE04, OperandNone, FlowNext, Pop1Pop1, Pushi)
	CltUn       = op("clt.un", 0xFE05, OperandNone, FlowNext, Pop1Pop1, Pushi)
	Ldftn       = op("ldftn", 0xFE06, OperandMethod, FlowNext, Pop0, Pushi)
	Ldvirtftn   = op("ldvirtftn", 0xFE07, OperandMethod, FlowNext, Popref, Pushi)
	Ldarg       = op("ldarg", 0xFE09, OperandVar, FlowNext, Pop0, Push1)
	Ldarga      = op("ldarga", 0xFE0A, OperandVar, FlowNext, Pop0, Pushi)
	Starg       = op("starg", 0xFE0B, OperandVar, FlowNext, Pop1, Push0)
	Ldloc       = op("ldloc", 0xFE0C, OperandVar, FlowNext, Pop0, Push1)
	Ldloca      = op("ldloca", 0xFE0D, OperandVar, FlowNext, Pop0, Pushi)
	Stloc       = op("stloc", 0xFE0E, OperandVar, FlowNext, Pop1, Push0)
	Localloc    = op("localloc", 0xFE0F, OperandNone, FlowNext, Popi, Pushi)
	Endfilter   = op("endfilter", 0xFE11, OperandNone, FlowReturn, Popi, Push0)
	Unaligned   = op("unaligned.", 0xFE12, OperandShortI, FlowMeta, Pop0, Push0)
	Volatile    = op("volatile.", 0xFE13, OperandNone, FlowMeta, Pop0, Push0)
	Tail        = op("tail.", 0xFE14, OperandNone, FlowMeta, Pop0, Push0)
	Initobj     = op("initobj", 0xFE15, OperandType, FlowNext, Popi, Push0)
	Constrained = op("constrained.", 0xFE16, OperandType, FlowMeta, Pop0, Push0)
	Cpblk       = op("cpblk", 0xFE17, OperandNone, FlowNext, PopiPopiPopi, Push0)
	Initblk     = op("initblk", 0xFE18, OperandNone, FlowNext, PopiPopiPopi, Push0)
	No          = op("no.", 0xFE19, OperandShortI, FlowMeta, Pop0, Push0)
	Rethrow     = op("rethrow", 0xFE1A, OperandNone, FlowThrow, Pop0, Push0)
	Sizeof      = op("sizeof", 0xFE1C, OperandType, FlowNext, Pop0, Pushi)
	Refanytype  = op("refanytype", 0xFE1D, OperandNone, FlowNext, Pop1, Pushi)
	Readonly    = op("readonly.", 0xFE1E, OperandNone, FlowMeta, Pop0, Push0)
)
