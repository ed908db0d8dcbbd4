package model

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/il"
	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/metadata"
	"github.com/wippyai/clrmeta/signature"
)

// BodySource provides the image bytes that live outside the metadata:
// method bodies and field initial values.
type BodySource interface {
	// BodyAt returns the bytes from rva to the end of its section.
	BodyAt(rva uint32) ([]byte, error)
}

// ResourceSource is implemented by body sources that also hold embedded
// manifest resources.
type ResourceSource interface {
	ResourceAt(offset uint32) ([]byte, error)
}

// LoadOptions controls Load.
type LoadOptions struct {
	// EntryPoint is the entry point token from the image header, if any.
	EntryPoint metadata.Token
	// SkipBodies leaves method bodies undecoded.
	SkipBodies bool
}

// Method semantics flags.
const (
	semSetter   = 0x0001
	semGetter   = 0x0002
	semOther    = 0x0004
	semAddOn    = 0x0008
	semRemoveOn = 0x0010
	semFire     = 0x0020
)

type loader struct {
	r      *image.Reader
	bodies BodySource
	opts   LoadOptions
	mod    *Module

	typeDefs       []*TypeDef
	typeRefs       []*TypeRef
	typeSpecs      []*TypeSpec
	fields         []*Field
	methods        []*MethodDef
	params         []*Param
	memberRefs     []*MemberRef
	methodSpecs    []*MethodSpec
	moduleRefs     []*ModuleRef
	assemblyRefs   []*AssemblyRef
	properties     []*Property
	events         []*Event
	genericParams  []*GenericParam
	interfaceImpls []*InterfaceImpl
	constraints    []*GenericParamConstraint
}

// Load materializes the object graph of the image behind r. Method bodies
// and field data are read from bodies, which may be nil to load metadata
// only. The returned module remembers the token each object was loaded
// from; see Module.ResolveToken.
func Load(r *image.Reader, bodies BodySource, opts LoadOptions) (*Module, error) {
	l := &loader{
		r:      r,
		bodies: bodies,
		opts:   opts,
		mod:    &Module{tokens: make(map[metadata.Token]any)},
	}
	steps := []struct {
		name string
		run  func() error
	}{
		{"module", l.loadModule},
		{"rows", l.createRows},
		{"assembly", l.loadAssembly},
		{"type references", l.linkTypeRefs},
		{"type specs", l.linkTypeSpecs},
		{"type definitions", l.linkTypeDefs},
		{"members", l.linkMembers},
		{"member references", l.linkMemberRefs},
		{"method specs", l.linkMethodSpecs},
		{"generic parameters", l.linkGenericParams},
		{"properties and events", l.linkPropertiesAndEvents},
		{"attributes", l.linkAttributes},
		{"resources", l.loadResources},
		{"entry point", l.linkEntryPoint},
		{"bodies", l.loadBodies},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			return nil, fmt.Errorf("load %s: %w", s.name, err)
		}
	}

	m := l.mod
	m.Types = l.typeDefs
	m.TypeRefs = l.typeRefs
	m.TypeSpecs = l.typeSpecs
	m.MemberRefs = l.memberRefs
	m.MethodSpecs = l.methodSpecs
	m.AssemblyRefs = l.assemblyRefs
	m.ModuleRefs = l.moduleRefs

	Logger().Debug("module loaded",
		zap.String("location", r.Location()),
		zap.String("module", m.Name),
		zap.Int("types", len(m.Types)),
		zap.Int("methods", len(l.methods)),
		zap.Int("member_refs", len(m.MemberRefs)))
	return m, nil
}

func (l *loader) invalid(format string, args ...any) error {
	return errors.Load(l.r.Location(), 0, errors.KindInvalidData, fmt.Sprintf(format, args...), nil)
}

// create reads every row of t into a new object and records its token.
func create[T any](l *loader, t metadata.Table, read func(rid uint32) (*T, error)) ([]*T, error) {
	n := l.r.RowCount(t)
	out := make([]*T, n)
	for rid := uint32(1); rid <= n; rid++ {
		v, err := read(rid)
		if err != nil {
			return nil, err
		}
		out[rid-1] = v
		l.mod.tokens[metadata.NewToken(t, rid)] = v
	}
	return out, nil
}

// each calls fn for every row of t.
func (l *loader) each(t metadata.Table, fn func(rid uint32) error) error {
	for rid := uint32(1); rid <= l.r.RowCount(t); rid++ {
		if err := fn(rid); err != nil {
			return err
		}
	}
	return nil
}

func (l *loader) object(tok metadata.Token) (any, error) {
	if tok.IsNull() {
		return nil, nil
	}
	obj, ok := l.mod.tokens[tok]
	if !ok {
		return nil, l.invalid("reference to missing row %s", tok)
	}
	return obj, nil
}

func (l *loader) typeDefOrRef(tok metadata.Token) (TypeDefOrRef, error) {
	obj, err := l.object(tok)
	if err != nil || obj == nil {
		return nil, err
	}
	t, ok := obj.(TypeDefOrRef)
	if !ok {
		return nil, l.invalid("%s is not a type", tok)
	}
	return t, nil
}

// resolveType is the signature decoder's callback.
func (l *loader) resolveType(tok metadata.Token) (signature.TypeDefOrRef, error) {
	t, err := l.typeDefOrRef(tok)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, l.invalid("null type in signature")
	}
	return t, nil
}

func (l *loader) methodDefOrRef(tok metadata.Token) (MethodDefOrRef, error) {
	obj, err := l.object(tok)
	if err != nil || obj == nil {
		return nil, err
	}
	m, ok := obj.(MethodDefOrRef)
	if !ok {
		return nil, l.invalid("%s is not a method", tok)
	}
	return m, nil
}

func (l *loader) typeDef(tok metadata.Token) (*TypeDef, error) {
	obj, err := l.object(tok)
	if err != nil {
		return nil, err
	}
	t, ok := obj.(*TypeDef)
	if !ok {
		return nil, l.invalid("%s is not a type definition", tok)
	}
	return t, nil
}

func (l *loader) methodDef(tok metadata.Token) (*MethodDef, error) {
	obj, err := l.object(tok)
	if err != nil {
		return nil, err
	}
	m, ok := obj.(*MethodDef)
	if !ok {
		return nil, l.invalid("%s is not a method definition", tok)
	}
	return m, nil
}

func (l *loader) loadModule() error {
	if l.r.RowCount(metadata.TableModule) == 0 {
		return l.invalid("image has no Module row")
	}
	row, err := l.r.Module(1)
	if err != nil {
		return err
	}
	m := l.mod
	m.Name, m.Mvid, m.Generation, m.OriginalRID = row.Name, row.Mvid, row.Generation, 1
	m.tokens[metadata.NewToken(metadata.TableModule, 1)] = m
	return nil
}

func (l *loader) createRows() error {
	r := l.r
	var err error
	if l.assemblyRefs, err = create(l, metadata.TableAssemblyRef, func(rid uint32) (*AssemblyRef, error) {
		row, err := r.AssemblyRef(rid)
		return &AssemblyRef{Version: Version(row.Version), Flags: row.Flags, PublicKeyOrToken: row.PublicKeyOrToken,
			Name: row.Name, Culture: row.Culture, HashValue: row.HashValue, OriginalRID: rid}, err
	}); err != nil {
		return err
	}
	if l.moduleRefs, err = create(l, metadata.TableModuleRef, func(rid uint32) (*ModuleRef, error) {
		row, err := r.ModuleRef(rid)
		return &ModuleRef{Name: row.Name, OriginalRID: rid}, err
	}); err != nil {
		return err
	}
	if l.typeRefs, err = create(l, metadata.TableTypeRef, func(rid uint32) (*TypeRef, error) {
		row, err := r.TypeRef(rid)
		return &TypeRef{Namespace: row.Namespace, TypeName: row.Name, OriginalRID: rid}, err
	}); err != nil {
		return err
	}
	if l.typeDefs, err = create(l, metadata.TableTypeDef, func(rid uint32) (*TypeDef, error) {
		row, err := r.TypeDef(rid)
		return &TypeDef{Flags: row.Flags, Namespace: row.Namespace, TypeName: row.Name, OriginalRID: rid}, err
	}); err != nil {
		return err
	}
	if l.typeSpecs, err = create(l, metadata.TableTypeSpec, func(rid uint32) (*TypeSpec, error) {
		return &TypeSpec{OriginalRID: rid}, nil
	}); err != nil {
		return err
	}
	if l.fields, err = create(l, metadata.TableField, func(rid uint32) (*Field, error) {
		row, err := r.Field(rid)
		return &Field{Flags: row.Flags, FieldName: row.Name, OriginalRID: rid}, err
	}); err != nil {
		return err
	}
	if l.methods, err = create(l, metadata.TableMethodDef, func(rid uint32) (*MethodDef, error) {
		row, err := r.MethodDef(rid)
		return &MethodDef{ImplFlags: row.ImplFlags, Flags: row.Flags, MethodName: row.Name, RVA: row.RVA, OriginalRID: rid}, err
	}); err != nil {
		return err
	}
	if l.params, err = create(l, metadata.TableParam, func(rid uint32) (*Param, error) {
		row, err := r.Param(rid)
		return &Param{Flags: row.Flags, Sequence: row.Sequence, ParamName: row.Name, OriginalRID: rid}, err
	}); err != nil {
		return err
	}
	if l.memberRefs, err = create(l, metadata.TableMemberRef, func(rid uint32) (*MemberRef, error) {
		row, err := r.MemberRef(rid)
		return &MemberRef{MemberName: row.Name, OriginalRID: rid}, err
	}); err != nil {
		return err
	}
	if l.methodSpecs, err = create(l, metadata.TableMethodSpec, func(rid uint32) (*MethodSpec, error) {
		return &MethodSpec{OriginalRID: rid}, nil
	}); err != nil {
		return err
	}
	if l.properties, err = create(l, metadata.TableProperty, func(rid uint32) (*Property, error) {
		row, err := r.Property(rid)
		return &Property{Flags: row.Flags, PropertyName: row.Name, OriginalRID: rid}, err
	}); err != nil {
		return err
	}
	if l.events, err = create(l, metadata.TableEvent, func(rid uint32) (*Event, error) {
		row, err := r.Event(rid)
		return &Event{Flags: row.Flags, EventName: row.Name, OriginalRID: rid}, err
	}); err != nil {
		return err
	}
	if l.genericParams, err = create(l, metadata.TableGenericParam, func(rid uint32) (*GenericParam, error) {
		row, err := r.GenericParam(rid)
		return &GenericParam{Number: row.Number, Flags: row.Flags, ParamName: row.Name, OriginalRID: rid}, err
	}); err != nil {
		return err
	}
	if l.interfaceImpls, err = create(l, metadata.TableInterfaceImpl, func(rid uint32) (*InterfaceImpl, error) {
		return &InterfaceImpl{OriginalRID: rid}, nil
	}); err != nil {
		return err
	}
	l.constraints, err = create(l, metadata.TableGenericParamConstraint, func(rid uint32) (*GenericParamConstraint, error) {
		return &GenericParamConstraint{OriginalRID: rid}, nil
	})
	return err
}

func (l *loader) loadAssembly() error {
	if l.r.RowCount(metadata.TableAssembly) == 0 {
		return nil
	}
	row, err := l.r.Assembly(1)
	if err != nil {
		return err
	}
	a := &Assembly{HashAlgID: row.HashAlgID, Version: Version(row.Version), Flags: row.Flags,
		PublicKey: row.PublicKey, Name: row.Name, Culture: row.Culture, OriginalRID: 1}
	l.mod.Assembly = a
	l.mod.tokens[metadata.NewToken(metadata.TableAssembly, 1)] = a
	return nil
}

func (l *loader) linkTypeRefs() error {
	return l.each(metadata.TableTypeRef, func(rid uint32) error {
		row, err := l.r.TypeRef(rid)
		if err != nil {
			return err
		}
		obj, err := l.object(row.ResolutionScope)
		if err != nil || obj == nil {
			return err
		}
		scope, ok := obj.(ResolutionScope)
		if !ok {
			return l.invalid("TypeRef %d: %s is not a resolution scope", rid, row.ResolutionScope)
		}
		l.typeRefs[rid-1].Scope = scope
		return nil
	})
}

func (l *loader) linkTypeSpecs() error {
	return l.each(metadata.TableTypeSpec, func(rid uint32) error {
		row, err := l.r.TypeSpec(rid)
		if err != nil {
			return err
		}
		sig, err := signature.DecodeType(row.Signature, l.resolveType)
		if err != nil {
			return err
		}
		l.typeSpecs[rid-1].Signature = sig
		return nil
	})
}

func (l *loader) linkTypeDefs() error {
	err := l.each(metadata.TableTypeDef, func(rid uint32) error {
		t := l.typeDefs[rid-1]
		row, err := l.r.TypeDef(rid)
		if err != nil {
			return err
		}
		if t.Extends, err = l.typeDefOrRef(row.Extends); err != nil {
			return err
		}
		fields, err := l.r.ListMembers(image.TypeFields, rid)
		if err != nil {
			return err
		}
		for _, f := range fields {
			field := l.fields[f-1]
			field.DeclaringType = t
			t.Fields = append(t.Fields, field)
		}
		methods, err := l.r.ListMembers(image.TypeMethods, rid)
		if err != nil {
			return err
		}
		for _, m := range methods {
			method := l.methods[m-1]
			method.DeclaringType = t
			t.Methods = append(t.Methods, method)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return l.each(metadata.TableNestedClass, func(rid uint32) error {
		row, err := l.r.NestedClass(rid)
		if err != nil {
			return err
		}
		nested, err := l.typeDef(row.NestedClass)
		if err != nil {
			return err
		}
		if nested.DeclaringType, err = l.typeDef(row.EnclosingClass); err != nil {
			return err
		}
		return nil
	})
}

func (l *loader) linkMembers() error {
	err := l.each(metadata.TableField, func(rid uint32) error {
		row, err := l.r.Field(rid)
		if err != nil {
			return err
		}
		l.fields[rid-1].Signature, err = signature.DecodeField(row.Signature, l.resolveType)
		return err
	})
	if err != nil {
		return err
	}
	return l.each(metadata.TableMethodDef, func(rid uint32) error {
		m := l.methods[rid-1]
		row, err := l.r.MethodDef(rid)
		if err != nil {
			return err
		}
		if m.Signature, err = signature.DecodeMethod(row.Signature, l.resolveType); err != nil {
			return err
		}
		params, err := l.r.ListMembers(image.MethodParams, rid)
		if err != nil {
			return err
		}
		for _, p := range params {
			m.Params = append(m.Params, l.params[p-1])
		}
		return nil
	})
}

func (l *loader) linkMemberRefs() error {
	return l.each(metadata.TableMemberRef, func(rid uint32) error {
		ref := l.memberRefs[rid-1]
		row, err := l.r.MemberRef(rid)
		if err != nil {
			return err
		}
		obj, err := l.object(row.Class)
		if err != nil {
			return err
		}
		parent, ok := obj.(MemberRefParent)
		if !ok {
			return l.invalid("MemberRef %d: %s is not a member parent", rid, row.Class)
		}
		ref.Parent = parent
		if signature.IsFieldBlob(row.Signature) {
			ref.FieldSig, err = signature.DecodeField(row.Signature, l.resolveType)
		} else {
			ref.MethodSig, err = signature.DecodeMethod(row.Signature, l.resolveType)
		}
		return err
	})
}

func (l *loader) linkMethodSpecs() error {
	return l.each(metadata.TableMethodSpec, func(rid uint32) error {
		spec := l.methodSpecs[rid-1]
		row, err := l.r.MethodSpec(rid)
		if err != nil {
			return err
		}
		if spec.Method, err = l.methodDefOrRef(row.Method); err != nil {
			return err
		}
		sig, err := signature.DecodeMethodSpec(row.Instantiation, l.resolveType)
		if err != nil {
			return err
		}
		spec.Args = sig.Args
		return nil
	})
}

func (l *loader) linkGenericParams() error {
	err := l.each(metadata.TableGenericParam, func(rid uint32) error {
		gp := l.genericParams[rid-1]
		row, err := l.r.GenericParam(rid)
		if err != nil {
			return err
		}
		obj, err := l.object(row.Owner)
		if err != nil {
			return err
		}
		switch owner := obj.(type) {
		case *TypeDef:
			owner.GenericParams = append(owner.GenericParams, gp)
		case *MethodDef:
			owner.GenericParams = append(owner.GenericParams, gp)
		default:
			return l.invalid("GenericParam %d: bad owner %s", rid, row.Owner)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return l.each(metadata.TableGenericParamConstraint, func(rid uint32) error {
		c := l.constraints[rid-1]
		row, err := l.r.GenericParamConstraint(rid)
		if err != nil {
			return err
		}
		obj, err := l.object(row.Owner)
		if err != nil {
			return err
		}
		gp, ok := obj.(*GenericParam)
		if !ok {
			return l.invalid("GenericParamConstraint %d: bad owner %s", rid, row.Owner)
		}
		if c.Constraint, err = l.typeDefOrRef(row.Constraint); err != nil {
			return err
		}
		gp.Constraints = append(gp.Constraints, c)
		return nil
	})
}

func (l *loader) linkPropertiesAndEvents() error {
	err := l.each(metadata.TablePropertyMap, func(rid uint32) error {
		row, err := l.r.PropertyMap(rid)
		if err != nil {
			return err
		}
		t, err := l.typeDef(row.Parent)
		if err != nil {
			return err
		}
		props, err := l.r.ListMembers(image.MapProperties, rid)
		if err != nil {
			return err
		}
		for _, p := range props {
			prop := l.properties[p-1]
			prow, err := l.r.Property(p)
			if err != nil {
				return err
			}
			if prop.Signature, err = signature.DecodeProperty(prow.Signature, l.resolveType); err != nil {
				return err
			}
			t.Properties = append(t.Properties, prop)
		}
		return nil
	})
	if err != nil {
		return err
	}
	err = l.each(metadata.TableEventMap, func(rid uint32) error {
		row, err := l.r.EventMap(rid)
		if err != nil {
			return err
		}
		t, err := l.typeDef(row.Parent)
		if err != nil {
			return err
		}
		events, err := l.r.ListMembers(image.MapEvents, rid)
		if err != nil {
			return err
		}
		for _, e := range events {
			ev := l.events[e-1]
			erow, err := l.r.Event(e)
			if err != nil {
				return err
			}
			if ev.EventType, err = l.typeDefOrRef(erow.EventType); err != nil {
				return err
			}
			t.Events = append(t.Events, ev)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return l.each(metadata.TableMethodSemantics, func(rid uint32) error {
		row, err := l.r.MethodSemantics(rid)
		if err != nil {
			return err
		}
		m, err := l.methodDef(row.Method)
		if err != nil {
			return err
		}
		obj, err := l.object(row.Association)
		if err != nil {
			return err
		}
		switch assoc := obj.(type) {
		case *Property:
			switch {
			case row.Semantics&semGetter != 0:
				assoc.Getter = m
			case row.Semantics&semSetter != 0:
				assoc.Setter = m
			default:
				assoc.Others = append(assoc.Others, m)
			}
		case *Event:
			switch {
			case row.Semantics&semAddOn != 0:
				assoc.Add = m
			case row.Semantics&semRemoveOn != 0:
				assoc.Remove = m
			case row.Semantics&semFire != 0:
				assoc.Raise = m
			default:
				assoc.Others = append(assoc.Others, m)
			}
		default:
			return l.invalid("MethodSemantics %d: bad association %s", rid, row.Association)
		}
		return nil
	})
}

type attributeHolder interface {
	addAttribute(*CustomAttribute)
}

func (a *attrs) addAttribute(ca *CustomAttribute) {
	a.CustomAttributes = append(a.CustomAttributes, ca)
}

func (l *loader) linkAttributes() error {
	r := l.r
	steps := []func() error{
		func() error {
			return l.each(metadata.TableInterfaceImpl, func(rid uint32) error {
				row, err := r.InterfaceImpl(rid)
				if err != nil {
					return err
				}
				t, err := l.typeDef(row.Class)
				if err != nil {
					return err
				}
				impl := l.interfaceImpls[rid-1]
				if impl.Interface, err = l.typeDefOrRef(row.Interface); err != nil {
					return err
				}
				t.Interfaces = append(t.Interfaces, impl)
				return nil
			})
		},
		func() error {
			return l.each(metadata.TableClassLayout, func(rid uint32) error {
				row, err := r.ClassLayout(rid)
				if err != nil {
					return err
				}
				t, err := l.typeDef(row.Parent)
				if err != nil {
					return err
				}
				t.Layout = &ClassLayout{PackingSize: row.PackingSize, ClassSize: row.ClassSize}
				return nil
			})
		},
		func() error {
			return l.each(metadata.TableFieldLayout, func(rid uint32) error {
				row, err := r.FieldLayout(rid)
				if err != nil {
					return err
				}
				obj, err := l.object(row.Field)
				f, ok := obj.(*Field)
				if err != nil || !ok {
					return l.invalid("FieldLayout %d: bad field %s", rid, row.Field)
				}
				off := row.Offset
				f.Offset = &off
				return nil
			})
		},
		l.linkFieldData,
		func() error {
			return l.each(metadata.TableConstant, func(rid uint32) error {
				row, err := r.Constant(rid)
				if err != nil {
					return err
				}
				c := &Constant{Type: row.Type, Value: row.Value}
				obj, err := l.object(row.Parent)
				if err != nil {
					return err
				}
				switch p := obj.(type) {
				case *Field:
					p.Constant = c
				case *Param:
					p.Constant = c
				case *Property:
					p.Constant = c
				default:
					return l.invalid("Constant %d: bad parent %s", rid, row.Parent)
				}
				return nil
			})
		},
		func() error {
			return l.each(metadata.TableFieldMarshal, func(rid uint32) error {
				row, err := r.FieldMarshal(rid)
				if err != nil {
					return err
				}
				obj, err := l.object(row.Parent)
				if err != nil {
					return err
				}
				switch p := obj.(type) {
				case *Field:
					p.Marshal = row.NativeType
				case *Param:
					p.Marshal = row.NativeType
				default:
					return l.invalid("FieldMarshal %d: bad parent %s", rid, row.Parent)
				}
				return nil
			})
		},
		func() error {
			return l.each(metadata.TableImplMap, func(rid uint32) error {
				row, err := r.ImplMap(rid)
				if err != nil {
					return err
				}
				obj, err := l.object(row.MemberForwarded)
				if err != nil {
					return err
				}
				m, ok := obj.(*MethodDef)
				if !ok {
					Logger().Warn("ignoring ImplMap on a non-method", zap.Uint32("rid", rid), zap.Stringer("member", row.MemberForwarded))
					return nil
				}
				scope, err := l.object(row.ImportScope)
				if err != nil {
					return err
				}
				mr, _ := scope.(*ModuleRef)
				m.ImplMap = &ImplMap{Flags: row.MappingFlags, ImportName: row.ImportName, Scope: mr}
				return nil
			})
		},
		func() error {
			return l.each(metadata.TableDeclSecurity, func(rid uint32) error {
				row, err := r.DeclSecurity(rid)
				if err != nil {
					return err
				}
				decl := &SecurityDecl{Action: row.Action, PermissionSet: row.PermissionSet}
				obj, err := l.object(row.Parent)
				if err != nil {
					return err
				}
				switch p := obj.(type) {
				case *TypeDef:
					p.Security = append(p.Security, decl)
				case *MethodDef:
					p.Security = append(p.Security, decl)
				case *Assembly:
					p.Security = append(p.Security, decl)
				default:
					return l.invalid("DeclSecurity %d: bad parent %s", rid, row.Parent)
				}
				return nil
			})
		},
		func() error {
			return l.each(metadata.TableMethodImpl, func(rid uint32) error {
				row, err := r.MethodImpl(rid)
				if err != nil {
					return err
				}
				t, err := l.typeDef(row.Class)
				if err != nil {
					return err
				}
				impl := &MethodImpl{}
				if impl.Body, err = l.methodDefOrRef(row.Body); err != nil {
					return err
				}
				if impl.Declaration, err = l.methodDefOrRef(row.Declaration); err != nil {
					return err
				}
				t.MethodImpls = append(t.MethodImpls, impl)
				return nil
			})
		},
		func() error {
			return l.each(metadata.TableCustomAttribute, func(rid uint32) error {
				row, err := r.CustomAttribute(rid)
				if err != nil {
					return err
				}
				ctor, err := l.methodDefOrRef(row.Type)
				if err != nil {
					return err
				}
				owner, ok := l.mod.tokens[row.Parent]
				holder, isHolder := owner.(attributeHolder)
				if !ok || !isHolder {
					Logger().Warn("dropping custom attribute on an unmodeled row",
						zap.Uint32("rid", rid), zap.Stringer("parent", row.Parent))
					return nil
				}
				holder.addAttribute(&CustomAttribute{Constructor: ctor, Value: row.Value})
				return nil
			})
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// linkFieldData copies FieldRVA data out of the body source. Fields whose
// data size cannot be determined keep a nil InitialValue.
func (l *loader) linkFieldData() error {
	return l.each(metadata.TableFieldRVA, func(rid uint32) error {
		row, err := l.r.FieldRVA(rid)
		if err != nil {
			return err
		}
		obj, err := l.object(row.Field)
		f, ok := obj.(*Field)
		if err != nil || !ok {
			return l.invalid("FieldRVA %d: bad field %s", rid, row.Field)
		}
		if l.bodies == nil {
			return nil
		}
		size := l.r.FieldDataSize(rid)
		if size == 0 {
			Logger().Warn("field data size unknown", zap.String("field", f.FullName()), zap.Uint32("rva", row.RVA))
			return nil
		}
		data, err := l.bodies.BodyAt(row.RVA)
		if err != nil {
			return errors.Load(l.r.Location(), int64(row.RVA), errors.KindTruncated, "field data of "+f.FullName(), err)
		}
		if uint32(len(data)) < size {
			return errors.Load(l.r.Location(), int64(row.RVA), errors.KindTruncated,
				fmt.Sprintf("field data of %s needs %d bytes, %d available", f.FullName(), size, len(data)), nil)
		}
		f.InitialValue = data[:size:size]
		return nil
	})
}

func (l *loader) loadResources() error {
	var err error
	l.mod.Resources, err = create(l, metadata.TableManifestResource, func(rid uint32) (*Resource, error) {
		row, err := l.r.ManifestResource(rid)
		if err != nil {
			return nil, err
		}
		res := &Resource{Name: row.Name, Flags: row.Flags, Offset: row.Offset, OriginalRID: rid}
		if !row.Implementation.IsNull() {
			if row.Implementation.Table() != metadata.TableAssemblyRef {
				return nil, errors.Unsupported(errors.PhaseLoad, "resource "+row.Name+" stored in a separate file")
			}
			obj, err := l.object(row.Implementation)
			if err != nil {
				return nil, err
			}
			res.Implementation = obj.(*AssemblyRef)
			return res, nil
		}
		if rs, ok := l.bodies.(ResourceSource); ok {
			if res.Data, err = rs.ResourceAt(row.Offset); err != nil {
				return nil, errors.Load(l.r.Location(), int64(row.Offset), errors.KindTruncated, "resource "+row.Name, err)
			}
		}
		return res, nil
	})
	return err
}

func (l *loader) linkEntryPoint() error {
	tok := l.opts.EntryPoint
	if tok.IsNull() {
		return nil
	}
	if tok.Table() != metadata.TableMethodDef || !l.r.HasToken(tok) {
		return l.invalid("entry point %s is not a method definition", tok)
	}
	l.mod.EntryPoint = l.methods[tok.RID()-1]
	return nil
}

func (l *loader) loadBodies() error {
	if l.bodies == nil || l.opts.SkipBodies {
		return nil
	}
	res := &bodyResolver{l: l}
	for _, m := range l.methods {
		if m.RVA == 0 {
			continue
		}
		switch m.ImplFlags & ImplCodeTypeMask {
		case ImplNative:
			Logger().Debug("native method body left undecoded", zap.String("method", m.FullName()))
			continue
		case ImplRuntime:
			continue
		}
		data, err := l.bodies.BodyAt(m.RVA)
		if err != nil {
			return errors.Load(l.r.Location(), int64(m.RVA), errors.KindTruncated, "body of "+m.FullName(), err)
		}
		body, _, err := il.DecodeBody(data, res, il.Location{Image: l.r.Location(), RVA: m.RVA})
		if err != nil {
			return fmt.Errorf("%s: %w", m.FullName(), err)
		}
		m.Body = body
	}
	return nil
}
