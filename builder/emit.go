package builder

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/il"
	"github.com/wippyai/clrmeta/metadata"
	"github.com/wippyai/clrmeta/model"
	"github.com/wippyai/clrmeta/signature"
)

// Method semantics flags.
const (
	semSetter   = 0x0001
	semGetter   = 0x0002
	semOther    = 0x0004
	semAddOn    = 0x0008
	semRemoveOn = 0x0010
	semFire     = 0x0020
)

// EmitAll writes every row reachable from the module. It may run once per
// session.
func (s *Session) EmitAll() error {
	if s.emitted {
		return errors.InvalidInput(errors.PhaseBuild, "rows already emitted")
	}
	s.emitted = true
	steps := []struct {
		name string
		run  func() error
	}{
		{"module", s.emitModule},
		{"references", s.emitReferences},
		{"type definitions", s.emitTypeDefs},
		{"fields", s.emitFields},
		{"methods", s.emitMethods},
		{"properties and events", s.emitPropertiesAndEvents},
		{"type details", s.emitTypeDetails},
		{"generic parameters", s.emitGenericParams},
		{"member details", s.emitMemberDetails},
		{"security", s.emitSecurity},
		{"resources", s.emitResources},
		{"custom attributes", s.emitCustomAttributes},
		{"entry point", s.resolveEntryPoint},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}

func (s *Session) emitModule() error {
	m := s.mod
	s.add(metadata.TableModule, m.OriginalRID, uint32(m.Generation), s.str(m.Name), s.guids.Add(m.Mvid), 0, 0)
	if a := m.Assembly; a != nil {
		key, err := s.blob(a.PublicKey)
		if err != nil {
			return err
		}
		v := a.Version
		s.add(metadata.TableAssembly, a.OriginalRID, a.HashAlgID,
			uint32(v.Major), uint32(v.Minor), uint32(v.Build), uint32(v.Revision),
			a.Flags, key, s.str(a.Name), s.str(a.Culture))
	}
	return nil
}

// emitReferences interns the module's reference lists first so that a
// loaded module keeps its reference order.
func (s *Session) emitReferences() error {
	m := s.mod
	for _, a := range m.AssemblyRefs {
		if _, err := s.AssemblyRefToken(a); err != nil {
			return err
		}
	}
	for _, r := range m.ModuleRefs {
		if _, err := s.ModuleRefToken(r); err != nil {
			return err
		}
	}
	for _, r := range m.TypeRefs {
		if _, err := s.TypeRefToken(r); err != nil {
			return err
		}
	}
	for _, t := range m.TypeSpecs {
		if _, err := s.TypeSpecToken(t); err != nil {
			return err
		}
	}
	for _, r := range m.MemberRefs {
		if _, err := s.MemberRefToken(r); err != nil {
			return err
		}
	}
	for _, ms := range m.MethodSpecs {
		if _, err := s.MethodSpecToken(ms); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) emitTypeDefs() error {
	for i, t := range s.mod.Types {
		extends, err := s.TypeDefOrRefToken(t.Extends)
		if err != nil {
			return fmt.Errorf("%s base type: %w", t.FullName(), err)
		}
		ev, err := coded(metadata.TypeDefOrRef, extends)
		if err != nil {
			return err
		}
		s.add(metadata.TableTypeDef, t.OriginalRID,
			t.Flags, s.str(t.TypeName), s.str(t.Namespace), ev, s.fieldList[i], s.methodList[i])
	}
	return nil
}

func (s *Session) emitFields() error {
	for _, t := range s.mod.Types {
		for _, f := range t.Fields {
			if f.Signature == nil {
				return errors.InvalidInput(errors.PhaseBuild, "field "+f.FullName()+" has no signature")
			}
			sig, err := signature.EncodeField(f.Signature, s.signatureToken)
			if err != nil {
				return fmt.Errorf("field %s: %w", f.FullName(), err)
			}
			off, err := s.blob(sig)
			if err != nil {
				return err
			}
			s.add(metadata.TableField, f.OriginalRID, uint32(f.Flags), s.str(f.FieldName), off)
		}
	}
	return nil
}

func (s *Session) emitMethods() error {
	var params []*model.Param
	for _, t := range s.mod.Types {
		for _, m := range t.Methods {
			if m.Signature == nil {
				return errors.InvalidInput(errors.PhaseBuild, "method "+m.FullName()+" has no signature")
			}
			rva, err := s.emitBody(m)
			if err != nil {
				return err
			}
			sig, err := signature.EncodeMethod(m.Signature, s.signatureToken)
			if err != nil {
				return fmt.Errorf("method %s: %w", m.FullName(), err)
			}
			off, err := s.blob(sig)
			if err != nil {
				return err
			}
			s.add(metadata.TableMethodDef, m.OriginalRID,
				rva, uint32(m.ImplFlags), uint32(m.Flags), s.str(m.MethodName), off, s.paramList[s.methods[m]-1])
			params = append(params, m.Params...)
		}
	}
	for _, p := range params {
		s.add(metadata.TableParam, p.OriginalRID, uint32(p.Flags), uint32(p.Sequence), s.str(p.ParamName))
	}
	return nil
}

// emitBody appends m's body to the code section and returns its RVA, or 0
// for methods without an IL body.
func (s *Session) emitBody(m *model.MethodDef) (uint32, error) {
	switch {
	case m.IsNative():
		if m.RVA == 0 && m.Body == nil {
			return 0, nil
		}
		if !s.opts.AllowNativeBodies {
			return 0, errors.NativeBodyUnsupported(m.FullName())
		}
		s.log.Warn("native method body dropped", zap.String("method", m.FullName()), zap.Uint32("rva", m.RVA))
		return 0, nil
	case m.ImplFlags&model.ImplCodeTypeMask == model.ImplRuntime:
		return 0, nil
	case m.Body == nil:
		if m.RVA != 0 {
			s.log.Warn("method body was not loaded", zap.String("method", m.FullName()))
		}
		return 0, nil
	}

	body := m.Body
	if s.opts.RecomputeMaxStack {
		depth, err := il.ComputeMaxStack(body, m.Signature)
		if err != nil {
			return 0, fmt.Errorf("max stack of %s: %w", m.FullName(), err)
		}
		if depth != body.MaxStack {
			cp := *body
			cp.MaxStack = depth
			body = &cp
		}
	}
	enc, err := il.EncodeBody(body, s, il.EncodeOptions{NormalizeTinyMaxStack: s.opts.NormalizeTinyMaxStack})
	if err != nil {
		return 0, fmt.Errorf("body of %s: %w", m.FullName(), err)
	}
	if !enc.Tiny {
		s.code = pad(s.code, 4)
	}
	rva := s.opts.CodeRVA + uint32(len(s.code))
	s.code = append(s.code, enc.Bytes...)
	return rva, nil
}

func pad(b []byte, align int) []byte {
	for len(b)%align != 0 {
		b = append(b, 0)
	}
	return b
}

func (s *Session) methodDefRID(m *model.MethodDef, role string) (uint32, error) {
	rid, ok := s.methods[m]
	if !ok {
		return 0, unresolved("%s %s is not defined in module %s", role, m.FullName(), s.mod.Name)
	}
	return rid, nil
}

func (s *Session) semantics(flags uint16, m *model.MethodDef, assoc metadata.Token) error {
	if m == nil {
		return nil
	}
	rid, err := s.methodDefRID(m, "accessor")
	if err != nil {
		return err
	}
	av, err := coded(metadata.HasSemantics, assoc)
	if err != nil {
		return err
	}
	s.add(metadata.TableMethodSemantics, 0, uint32(flags), rid, av)
	return nil
}

func (s *Session) emitPropertiesAndEvents() error {
	for _, t := range s.mod.Types {
		if len(t.Properties) == 0 {
			continue
		}
		s.add(metadata.TablePropertyMap, 0, s.typeDefs[t], s.properties[t.Properties[0]])
		for _, p := range t.Properties {
			if p.Signature == nil {
				return errors.InvalidInput(errors.PhaseBuild, "property "+p.PropertyName+" has no signature")
			}
			sig, err := signature.EncodeProperty(p.Signature, s.signatureToken)
			if err != nil {
				return fmt.Errorf("property %s: %w", p.PropertyName, err)
			}
			off, err := s.blob(sig)
			if err != nil {
				return err
			}
			s.add(metadata.TableProperty, p.OriginalRID, uint32(p.Flags), s.str(p.PropertyName), off)
		}
	}
	for _, t := range s.mod.Types {
		if len(t.Events) == 0 {
			continue
		}
		s.add(metadata.TableEventMap, 0, s.typeDefs[t], s.events[t.Events[0]])
		for _, e := range t.Events {
			tok, err := s.TypeDefOrRefToken(e.EventType)
			if err != nil {
				return fmt.Errorf("event %s: %w", e.EventName, err)
			}
			ev, err := coded(metadata.TypeDefOrRef, tok)
			if err != nil {
				return err
			}
			s.add(metadata.TableEvent, e.OriginalRID, uint32(e.Flags), s.str(e.EventName), ev)
		}
	}

	for _, t := range s.mod.Types {
		for _, p := range t.Properties {
			assoc := metadata.NewToken(metadata.TableProperty, s.properties[p])
			if err := s.semantics(semSetter, p.Setter, assoc); err != nil {
				return err
			}
			if err := s.semantics(semGetter, p.Getter, assoc); err != nil {
				return err
			}
			for _, m := range p.Others {
				if err := s.semantics(semOther, m, assoc); err != nil {
					return err
				}
			}
		}
		for _, e := range t.Events {
			assoc := metadata.NewToken(metadata.TableEvent, s.events[e])
			if err := s.semantics(semAddOn, e.Add, assoc); err != nil {
				return err
			}
			if err := s.semantics(semRemoveOn, e.Remove, assoc); err != nil {
				return err
			}
			if err := s.semantics(semFire, e.Raise, assoc); err != nil {
				return err
			}
			for _, m := range e.Others {
				if err := s.semantics(semOther, m, assoc); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Session) emitTypeDetails() error {
	for _, t := range s.mod.Types {
		rid := s.typeDefs[t]
		for _, impl := range t.Interfaces {
			tok, err := s.TypeDefOrRefToken(impl.Interface)
			if err != nil {
				return fmt.Errorf("%s interface: %w", t.FullName(), err)
			}
			iv, err := coded(metadata.TypeDefOrRef, tok)
			if err != nil {
				return err
			}
			s.interfaceImpls[impl] = s.add(metadata.TableInterfaceImpl, impl.OriginalRID, rid, iv)
		}
		if t.DeclaringType != nil {
			outer, err := s.TypeDefToken(t.DeclaringType)
			if err != nil {
				return fmt.Errorf("enclosing type of %s: %w", t.TypeName, err)
			}
			s.add(metadata.TableNestedClass, 0, rid, outer.RID())
		}
		if l := t.Layout; l != nil {
			s.add(metadata.TableClassLayout, 0, uint32(l.PackingSize), l.ClassSize, rid)
		}
		for _, mi := range t.MethodImpls {
			body, err := s.MethodToken(mi.Body)
			if err != nil {
				return err
			}
			decl, err := s.MethodToken(mi.Declaration)
			if err != nil {
				return err
			}
			bv, err := coded(metadata.MethodDefOrRef, body)
			if err != nil {
				return err
			}
			dv, err := coded(metadata.MethodDefOrRef, decl)
			if err != nil {
				return err
			}
			s.add(metadata.TableMethodImpl, 0, rid, bv, dv)
		}
	}
	return nil
}

func (s *Session) emitGenericParams() error {
	emit := func(owner metadata.Token, params []*model.GenericParam) error {
		ov, err := coded(metadata.TypeOrMethodDef, owner)
		if err != nil {
			return err
		}
		for _, gp := range params {
			s.genericParams[gp] = s.add(metadata.TableGenericParam, gp.OriginalRID,
				uint32(gp.Number), uint32(gp.Flags), ov, s.str(gp.ParamName))
		}
		return nil
	}
	for _, t := range s.mod.Types {
		if err := emit(metadata.NewToken(metadata.TableTypeDef, s.typeDefs[t]), t.GenericParams); err != nil {
			return err
		}
		for _, m := range t.Methods {
			if err := emit(metadata.NewToken(metadata.TableMethodDef, s.methods[m]), m.GenericParams); err != nil {
				return err
			}
		}
	}
	for _, gp := range s.allGenericParams() {
		for _, c := range gp.Constraints {
			tok, err := s.TypeDefOrRefToken(c.Constraint)
			if err != nil {
				return fmt.Errorf("constraint on %s: %w", gp.ParamName, err)
			}
			cv, err := coded(metadata.TypeDefOrRef, tok)
			if err != nil {
				return err
			}
			s.constraints[c] = s.add(metadata.TableGenericParamConstraint, c.OriginalRID, s.genericParams[gp], cv)
		}
	}
	return nil
}

// allGenericParams returns the generic parameters in graph order: each
// type's own parameters followed by those of its methods.
func (s *Session) allGenericParams() []*model.GenericParam {
	var all []*model.GenericParam
	for _, t := range s.mod.Types {
		all = append(all, t.GenericParams...)
		for _, m := range t.Methods {
			all = append(all, m.GenericParams...)
		}
	}
	return all
}

func (s *Session) constant(c *model.Constant, parent metadata.Token) error {
	if c == nil {
		return nil
	}
	pv, err := coded(metadata.HasConstant, parent)
	if err != nil {
		return err
	}
	off, err := s.blob(c.Value)
	if err != nil {
		return err
	}
	s.add(metadata.TableConstant, 0, uint32(c.Type), 0, pv, off)
	return nil
}

func (s *Session) marshal(native []byte, parent metadata.Token) error {
	if native == nil {
		return nil
	}
	pv, err := coded(metadata.HasFieldMarshal, parent)
	if err != nil {
		return err
	}
	off, err := s.blob(native)
	if err != nil {
		return err
	}
	s.add(metadata.TableFieldMarshal, 0, pv, off)
	return nil
}

// emitMemberDetails writes constants, marshalling, layout, field data and
// P/Invoke rows. Field data follows the code section.
func (s *Session) emitMemberDetails() error {
	s.fieldDataRVA = s.opts.FieldDataRVA
	if s.fieldDataRVA == 0 {
		s.fieldDataRVA = s.opts.CodeRVA + uint32(len(s.code))
		s.fieldDataRVA += (8 - s.fieldDataRVA%8) % 8
	}

	for _, t := range s.mod.Types {
		for _, f := range t.Fields {
			rid := s.fields[f]
			tok := metadata.NewToken(metadata.TableField, rid)
			if err := s.constant(f.Constant, tok); err != nil {
				return err
			}
			if err := s.marshal(f.Marshal, tok); err != nil {
				return err
			}
			if f.Offset != nil {
				s.add(metadata.TableFieldLayout, 0, *f.Offset, rid)
			}
			if f.InitialValue != nil {
				s.fieldData = pad(s.fieldData, 8)
				rva := s.fieldDataRVA + uint32(len(s.fieldData))
				s.fieldData = append(s.fieldData, f.InitialValue...)
				s.add(metadata.TableFieldRVA, 0, rva, rid)
			}
		}
		for _, m := range t.Methods {
			for _, p := range m.Params {
				tok := metadata.NewToken(metadata.TableParam, s.params[p])
				if err := s.constant(p.Constant, tok); err != nil {
					return err
				}
				if err := s.marshal(p.Marshal, tok); err != nil {
					return err
				}
			}
			if im := m.ImplMap; im != nil {
				var scope uint32
				if im.Scope != nil {
					tok, err := s.ModuleRefToken(im.Scope)
					if err != nil {
						return err
					}
					scope = tok.RID()
				}
				mv, err := coded(metadata.MemberForwarded, metadata.NewToken(metadata.TableMethodDef, s.methods[m]))
				if err != nil {
					return err
				}
				s.add(metadata.TableImplMap, 0, uint32(im.Flags), mv, s.str(im.ImportName), scope)
			}
		}
		for _, p := range t.Properties {
			if err := s.constant(p.Constant, metadata.NewToken(metadata.TableProperty, s.properties[p])); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) emitSecurity() error {
	emit := func(decls []*model.SecurityDecl, parent metadata.Token) error {
		if len(decls) == 0 {
			return nil
		}
		pv, err := coded(metadata.HasDeclSecurity, parent)
		if err != nil {
			return err
		}
		for _, d := range decls {
			off, err := s.blob(d.PermissionSet)
			if err != nil {
				return err
			}
			s.add(metadata.TableDeclSecurity, 0, uint32(d.Action), pv, off)
		}
		return nil
	}
	if a := s.mod.Assembly; a != nil {
		if err := emit(a.Security, metadata.NewToken(metadata.TableAssembly, 1)); err != nil {
			return err
		}
	}
	for _, t := range s.mod.Types {
		if err := emit(t.Security, metadata.NewToken(metadata.TableTypeDef, s.typeDefs[t])); err != nil {
			return err
		}
		for _, m := range t.Methods {
			if err := emit(m.Security, metadata.NewToken(metadata.TableMethodDef, s.methods[m])); err != nil {
				return err
			}
		}
	}
	return nil
}

// emitResources lays embedded resources out as length-prefixed, 8-byte
// aligned entries.
func (s *Session) emitResources() error {
	for _, r := range s.mod.Resources {
		var impl metadata.Token
		offset := r.Offset
		switch v := r.Implementation.(type) {
		case nil:
			s.resourceData = pad(s.resourceData, 8)
			offset = uint32(len(s.resourceData))
			s.resourceData = binary.LittleEndian.AppendUint32(s.resourceData, uint32(len(r.Data)))
			s.resourceData = append(s.resourceData, r.Data...)
		case *model.AssemblyRef:
			tok, err := s.AssemblyRefToken(v)
			if err != nil {
				return err
			}
			impl = tok
		default:
			return unresolved("resource %s has implementation %T", r.Name, r.Implementation)
		}
		iv, err := coded(metadata.Implementation, impl)
		if err != nil {
			return err
		}
		s.resources[r] = s.add(metadata.TableManifestResource, r.OriginalRID, offset, r.Flags, s.str(r.Name), iv)
	}
	return nil
}

// attributeOwners lists every graph object that may carry custom
// attributes, paired with its token.
func (s *Session) attributeOwners() ([]model.HasCustomAttribute, []metadata.Token, error) {
	var owners []model.HasCustomAttribute
	var toks []metadata.Token
	push := func(o model.HasCustomAttribute, t metadata.Table, rid uint32) {
		if len(o.Attributes()) > 0 {
			owners = append(owners, o)
			toks = append(toks, metadata.NewToken(t, rid))
		}
	}
	pushRef := func(o model.HasCustomAttribute, tokenOf func() (metadata.Token, error)) error {
		if len(o.Attributes()) == 0 {
			return nil
		}
		tok, err := tokenOf()
		if err != nil {
			return err
		}
		owners = append(owners, o)
		toks = append(toks, tok)
		return nil
	}

	m := s.mod
	push(m, metadata.TableModule, 1)
	if m.Assembly != nil {
		push(m.Assembly, metadata.TableAssembly, 1)
	}
	for _, t := range m.Types {
		push(t, metadata.TableTypeDef, s.typeDefs[t])
		for _, f := range t.Fields {
			push(f, metadata.TableField, s.fields[f])
		}
		for _, meth := range t.Methods {
			push(meth, metadata.TableMethodDef, s.methods[meth])
			for _, p := range meth.Params {
				push(p, metadata.TableParam, s.params[p])
			}
		}
		for _, impl := range t.Interfaces {
			push(impl, metadata.TableInterfaceImpl, s.interfaceImpls[impl])
		}
		for _, p := range t.Properties {
			push(p, metadata.TableProperty, s.properties[p])
		}
		for _, e := range t.Events {
			push(e, metadata.TableEvent, s.events[e])
		}
	}
	gps := s.allGenericParams()
	for _, gp := range gps {
		push(gp, metadata.TableGenericParam, s.genericParams[gp])
	}
	for _, gp := range gps {
		for _, c := range gp.Constraints {
			push(c, metadata.TableGenericParamConstraint, s.constraints[c])
		}
	}
	for _, r := range m.Resources {
		push(r, metadata.TableManifestResource, s.resources[r])
	}
	for _, r := range m.TypeRefs {
		if err := pushRef(r, func() (metadata.Token, error) { return s.TypeRefToken(r) }); err != nil {
			return nil, nil, err
		}
	}
	for _, r := range m.TypeSpecs {
		if err := pushRef(r, func() (metadata.Token, error) { return s.TypeSpecToken(r) }); err != nil {
			return nil, nil, err
		}
	}
	for _, r := range m.MemberRefs {
		if err := pushRef(r, func() (metadata.Token, error) { return s.MemberRefToken(r) }); err != nil {
			return nil, nil, err
		}
	}
	for _, r := range m.MethodSpecs {
		if err := pushRef(r, func() (metadata.Token, error) { return s.MethodSpecToken(r) }); err != nil {
			return nil, nil, err
		}
	}
	for _, r := range m.AssemblyRefs {
		if err := pushRef(r, func() (metadata.Token, error) { return s.AssemblyRefToken(r) }); err != nil {
			return nil, nil, err
		}
	}
	for _, r := range m.ModuleRefs {
		if err := pushRef(r, func() (metadata.Token, error) { return s.ModuleRefToken(r) }); err != nil {
			return nil, nil, err
		}
	}
	return owners, toks, nil
}

// emitCustomAttributes writes attribute rows. The table is sorted by
// parent during Finalize, so emission order only breaks ties.
func (s *Session) emitCustomAttributes() error {
	owners, toks, err := s.attributeOwners()
	if err != nil {
		return err
	}
	for i, o := range owners {
		pv, err := coded(metadata.HasCustomAttribute, toks[i])
		if err != nil {
			return err
		}
		for _, ca := range o.Attributes() {
			ctor, err := s.MethodToken(ca.Constructor)
			if err != nil {
				return fmt.Errorf("attribute on %s: %w", toks[i], err)
			}
			cv, err := coded(metadata.CustomAttributeType, ctor)
			if err != nil {
				return err
			}
			off, err := s.blob(ca.Value)
			if err != nil {
				return err
			}
			s.add(metadata.TableCustomAttribute, 0, pv, cv, off)
		}
	}
	return nil
}

func (s *Session) resolveEntryPoint() error {
	ep := s.mod.EntryPoint
	if ep == nil {
		return nil
	}
	rid, ok := s.methods[ep]
	if !ok {
		return errors.EntryPointNotFound(ep.FullName())
	}
	s.entryPoint = metadata.NewToken(metadata.TableMethodDef, rid)
	return nil
}
