package model

func qualify(ns, name string) string {
	if ns == "" {
		return name
	}
	return ns + "." + name
}

// FullName returns Namespace.Name, or Outer/Name for nested types.
func (t *TypeDef) FullName() string {
	if t.DeclaringType != nil {
		return t.DeclaringType.FullName() + "/" + t.TypeName
	}
	return qualify(t.Namespace, t.TypeName)
}

// FullName returns Namespace.Name, or Outer/Name for nested references.
func (t *TypeRef) FullName() string {
	if outer, ok := t.Scope.(*TypeRef); ok {
		return outer.FullName() + "/" + t.TypeName
	}
	return qualify(t.Namespace, t.TypeName)
}

// FullName renders the type signature.
func (t *TypeSpec) FullName() string {
	if t.Signature == nil {
		return "<typespec>"
	}
	return t.Signature.String()
}

// Name returns the method name.
func (m *MethodDef) Name() string { return m.MethodName }

// FullName returns Type::Name.
func (m *MethodDef) FullName() string {
	if m.DeclaringType == nil {
		return m.MethodName
	}
	return m.DeclaringType.FullName() + "::" + m.MethodName
}

// FullName returns Type::Name.
func (f *Field) FullName() string {
	if f.DeclaringType == nil {
		return f.FieldName
	}
	return f.DeclaringType.FullName() + "::" + f.FieldName
}

// Name returns the member name.
func (r *MemberRef) Name() string { return r.MemberName }

// FullName returns Parent::Name.
func (r *MemberRef) FullName() string {
	switch p := r.Parent.(type) {
	case interface{ FullName() string }:
		return p.FullName() + "::" + r.MemberName
	case *ModuleRef:
		return "[" + p.Name + "]::" + r.MemberName
	}
	return r.MemberName
}

// FullName returns the generic method with its instantiation.
func (s *MethodSpec) FullName() string {
	name := "<methodspec>"
	if n, ok := s.Method.(interface{ FullName() string }); ok {
		name = n.FullName()
	}
	out := name + "<"
	for i, a := range s.Args {
		if i > 0 {
			out += ", "
		}
		out += a.String()
	}
	return out + ">"
}

// IsField reports whether the reference names a field.
func (r *MemberRef) IsField() bool { return r.FieldSig != nil }
