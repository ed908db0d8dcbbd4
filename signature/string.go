package signature

import (
	"strconv"
	"strings"
)

var primitiveNames = map[ElementType]string{
	ElemVoid:       "void",
	ElemBoolean:    "bool",
	ElemChar:       "char",
	ElemI1:         "int8",
	ElemU1:         "uint8",
	ElemI2:         "int16",
	ElemU2:         "uint16",
	ElemI4:         "int32",
	ElemU4:         "uint32",
	ElemI8:         "int64",
	ElemU8:         "uint64",
	ElemR4:         "float32",
	ElemR8:         "float64",
	ElemString:     "string",
	ElemTypedByRef: "typedref",
	ElemI:          "native int",
	ElemU:          "native uint",
	ElemObject:     "object",
}

// String renders the signature in ILAsm-like syntax.
func (s *TypeSig) String() string {
	var b strings.Builder
	s.write(&b)
	return b.String()
}

func (s *TypeSig) write(b *strings.Builder) {
	if s == nil {
		b.WriteString("<nil>")
		return
	}
	if name, ok := primitiveNames[s.Elem]; ok {
		b.WriteString(name)
		return
	}
	switch s.Elem {
	case ElemClass:
		b.WriteString("class ")
		writeRef(b, s.Type)
	case ElemValueType:
		b.WriteString("valuetype ")
		writeRef(b, s.Type)
	case ElemPtr:
		s.Next.write(b)
		b.WriteByte('*')
	case ElemByRef:
		s.Next.write(b)
		b.WriteByte('&')
	case ElemPinned:
		s.Next.write(b)
		b.WriteString(" pinned")
	case ElemSZArray:
		s.Next.write(b)
		b.WriteString("[]")
	case ElemArray:
		s.Next.write(b)
		b.WriteByte('[')
		if s.Shape != nil {
			for i := uint32(1); i < s.Shape.Rank; i++ {
				b.WriteByte(',')
			}
		}
		b.WriteByte(']')
	case ElemGenericInst:
		s.Next.write(b)
		b.WriteByte('<')
		for i, a := range s.Args {
			if i > 0 {
				b.WriteByte(',')
			}
			a.write(b)
		}
		b.WriteByte('>')
	case ElemVar:
		b.WriteString("!" + strconv.FormatUint(uint64(s.Index), 10))
	case ElemMVar:
		b.WriteString("!!" + strconv.FormatUint(uint64(s.Index), 10))
	case ElemCModReqd, ElemCModOpt:
		s.Next.write(b)
		if s.Elem == ElemCModReqd {
			b.WriteString(" modreq(")
		} else {
			b.WriteString(" modopt(")
		}
		writeRef(b, s.Type)
		b.WriteByte(')')
	case ElemFnPtr:
		b.WriteString("method ")
		b.WriteString(s.Method.String())
	default:
		b.WriteString("elem(0x" + strconv.FormatUint(uint64(s.Elem), 16) + ")")
	}
}

func writeRef(b *strings.Builder, t TypeDefOrRef) {
	if t == nil {
		b.WriteString("<nil>")
		return
	}
	b.WriteString(t.FullName())
}

// String renders the method signature as "ret(params)".
func (m *MethodSig) String() string {
	if m == nil {
		return "<nil>"
	}
	var b strings.Builder
	if m.HasThis {
		b.WriteString("instance ")
	}
	if m.Return == nil {
		b.WriteString("void")
	} else {
		m.Return.write(&b)
	}
	if m.GenericParamCount > 0 {
		b.WriteString("<" + strconv.FormatUint(uint64(m.GenericParamCount), 10) + ">")
	}
	b.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		p.write(&b)
	}
	if len(m.VarArgs) > 0 {
		if len(m.Params) > 0 {
			b.WriteString(", ")
		}
		b.WriteString("...")
		for _, p := range m.VarArgs {
			b.WriteString(", ")
			p.write(&b)
		}
	}
	b.WriteByte(')')
	return b.String()
}
