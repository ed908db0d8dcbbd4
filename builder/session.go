package builder

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/metadata"
	"github.com/wippyai/clrmeta/model"
	"github.com/wippyai/clrmeta/signature"
)

// internedTables are the reference tables whose rows are deduplicated by
// content.
var internedTables = []metadata.Table{
	metadata.TableTypeRef,
	metadata.TableTypeSpec,
	metadata.TableMemberRef,
	metadata.TableMethodSpec,
	metadata.TableStandAloneSig,
	metadata.TableAssemblyRef,
	metadata.TableModuleRef,
}

// Session is the mutable state of one build. It is not safe for
// concurrent use.
type Session struct {
	opts Options
	log  *zap.Logger
	mod  *model.Module

	tw      *metadata.TablesWriter
	strings *metadata.StringsHeapWriter
	blobs   *metadata.BlobHeapWriter
	guids   *metadata.GUIDHeapWriter
	us      *metadata.UserStringsHeapWriter

	// definitions by identity, RIDs assigned in graph order
	typeDefs    map[*model.TypeDef]uint32
	typesByName map[string]*model.TypeDef
	fields      map[*model.Field]uint32
	methods     map[*model.MethodDef]uint32
	params      map[*model.Param]uint32
	properties  map[*model.Property]uint32
	events      map[*model.Event]uint32
	fieldList   []uint32 // per TypeDef RID-1
	methodList  []uint32
	paramList   []uint32 // per MethodDef RID-1

	// rows owning custom attributes, filled while emitting
	genericParams  map[*model.GenericParam]uint32
	constraints    map[*model.GenericParamConstraint]uint32
	interfaceImpls map[*model.InterfaceImpl]uint32
	resources      map[*model.Resource]uint32

	interned [metadata.NumTables]*internIndex
	refs     map[any]metadata.Token

	code         []byte
	fieldData    []byte
	fieldDataRVA uint32
	resourceData []byte

	newToOld   [metadata.NumTables][]uint32
	entryPoint metadata.Token
	emitted    bool
	finalized  bool
}

// Begin starts a session for m and assigns a RID to every definition.
func (b *Builder) Begin(m *model.Module) (*Session, error) {
	if m == nil {
		return nil, errors.InvalidInput(errors.PhaseBuild, "nil module")
	}
	if len(m.Types) == 0 {
		return nil, errors.InvalidInput(errors.PhaseBuild, "module "+m.Name+" has no <Module> type")
	}
	s := &Session{
		opts:           b.options,
		log:            b.logger,
		mod:            m,
		tw:             metadata.NewTablesWriter(),
		strings:        metadata.NewStringsHeapWriter(),
		blobs:          metadata.NewBlobHeapWriter(),
		guids:          metadata.NewGUIDHeapWriter(),
		us:             metadata.NewUserStringsHeapWriter(),
		typeDefs:       make(map[*model.TypeDef]uint32),
		typesByName:    make(map[string]*model.TypeDef),
		fields:         make(map[*model.Field]uint32),
		methods:        make(map[*model.MethodDef]uint32),
		params:         make(map[*model.Param]uint32),
		properties:     make(map[*model.Property]uint32),
		events:         make(map[*model.Event]uint32),
		genericParams:  make(map[*model.GenericParam]uint32),
		constraints:    make(map[*model.GenericParamConstraint]uint32),
		interfaceImpls: make(map[*model.InterfaceImpl]uint32),
		resources:      make(map[*model.Resource]uint32),
		refs:           make(map[any]metadata.Token),
	}
	for _, t := range internedTables {
		s.interned[t] = newInternIndex(t)
	}
	if err := s.indexDefinitions(); err != nil {
		return nil, err
	}
	return s, nil
}

func duplicate(kind, name string) error {
	return errors.InvalidInput(errors.PhaseBuild, fmt.Sprintf("%s %s appears twice in the graph", kind, name))
}

// indexDefinitions assigns RIDs in declaration order so that member lists
// stay contiguous per owner.
func (s *Session) indexDefinitions() error {
	var field, method, param, prop, event uint32 = 1, 1, 1, 1, 1
	for i, t := range s.mod.Types {
		if t == nil {
			return errors.InvalidInput(errors.PhaseBuild, fmt.Sprintf("type %d is nil", i))
		}
		if _, dup := s.typeDefs[t]; dup {
			return duplicate("type", t.FullName())
		}
		s.typeDefs[t] = uint32(i + 1)
		if _, taken := s.typesByName[t.FullName()]; !taken {
			s.typesByName[t.FullName()] = t
		}
		s.fieldList = append(s.fieldList, field)
		s.methodList = append(s.methodList, method)

		for _, f := range t.Fields {
			if _, dup := s.fields[f]; dup {
				return duplicate("field", f.FullName())
			}
			s.fields[f] = field
			field++
		}
		for _, m := range t.Methods {
			if _, dup := s.methods[m]; dup {
				return duplicate("method", m.FullName())
			}
			s.methods[m] = method
			method++
			s.paramList = append(s.paramList, param)
			for _, p := range m.Params {
				if _, dup := s.params[p]; dup {
					return duplicate("parameter", p.ParamName+" of "+m.FullName())
				}
				s.params[p] = param
				param++
			}
		}
		for _, p := range t.Properties {
			if _, dup := s.properties[p]; dup {
				return duplicate("property", p.PropertyName)
			}
			s.properties[p] = prop
			prop++
		}
		for _, e := range t.Events {
			if _, dup := s.events[e]; dup {
				return duplicate("event", e.EventName)
			}
			s.events[e] = event
			event++
		}
	}
	for _, n := range []uint32{uint32(len(s.mod.Types)), field - 1, method - 1, param - 1, prop - 1, event - 1} {
		if n > metadata.MaxRID {
			return errors.Overflow(errors.PhaseBuild, []string{s.mod.Name}, n, "a 24-bit RID")
		}
	}
	s.log.Debug("definitions indexed",
		zap.String("module", s.mod.Name),
		zap.Int("types", len(s.mod.Types)),
		zap.Uint32("fields", field-1),
		zap.Uint32("methods", method-1))
	return nil
}

// add appends a row and records the RID the row was loaded from.
func (s *Session) add(t metadata.Table, original uint32, row ...uint32) uint32 {
	s.newToOld[t] = append(s.newToOld[t], original)
	return s.tw.Add(t, row...)
}

// intern returns the RID of an equal row, appending row on a miss.
func (s *Session) intern(t metadata.Table, original uint32, row ...uint32) uint32 {
	rid, added := s.interned[t].intern(s.tw, row)
	if added {
		s.newToOld[t] = append(s.newToOld[t], original)
	}
	return rid
}

func (s *Session) str(v string) uint32 { return s.strings.Add(v) }

func (s *Session) blob(b []byte) (uint32, error) {
	off, err := s.blobs.Add(b)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseBuild, errors.KindOverflow, err, "blob heap")
	}
	return off, nil
}

func coded(c metadata.CodedIndex, tok metadata.Token) (uint32, error) {
	v, ok := c.Encode(tok)
	if !ok {
		return 0, errors.InvalidInput(errors.PhaseBuild, fmt.Sprintf("%s cannot reference %s", c, tok))
	}
	return v, nil
}

func unresolved(format string, args ...any) error {
	return errors.UnresolvedReference(errors.PhaseBuild, fmt.Sprintf(format, args...))
}

// TypeDefToken returns the token of a definition of this module.
func (s *Session) TypeDefToken(t *model.TypeDef) (metadata.Token, error) {
	rid, ok := s.typeDefs[t]
	if !ok {
		return 0, unresolved("type %s is not defined in module %s", t.FullName(), s.mod.Name)
	}
	return metadata.NewToken(metadata.TableTypeDef, rid), nil
}

// TypeDefOrRefToken returns the token of a type. Definitions resolve to
// their TypeDef row; references and specs are interned.
func (s *Session) TypeDefOrRefToken(t model.TypeDefOrRef) (metadata.Token, error) {
	switch v := t.(type) {
	case *model.TypeDef:
		return s.TypeDefToken(v)
	case *model.TypeRef:
		return s.TypeRefToken(v)
	case *model.TypeSpec:
		return s.TypeSpecToken(v)
	case nil:
		return 0, nil
	}
	return 0, unresolved("unexpected type %T", t)
}

// signatureToken adapts TypeDefOrRefToken to the signature encoder.
func (s *Session) signatureToken(t signature.TypeDefOrRef) (metadata.Token, error) {
	mt, ok := t.(model.TypeDefOrRef)
	if !ok {
		return 0, unresolved("signature type %s is not part of the graph", t.FullName())
	}
	return s.TypeDefOrRefToken(mt)
}

// TypeRefToken interns a type reference. A reference scoped to the module
// being built resolves to the matching definition.
func (s *Session) TypeRefToken(r *model.TypeRef) (metadata.Token, error) {
	if tok, ok := s.refs[r]; ok {
		return tok, nil
	}
	if scope, ok := r.Scope.(*model.Module); ok && scope == s.mod {
		if def, ok := s.typesByName[r.FullName()]; ok {
			tok, err := s.TypeDefToken(def)
			if err == nil {
				s.refs[r] = tok
			}
			return tok, err
		}
	}
	scope, err := s.resolutionScope(r.Scope)
	if err != nil {
		return 0, fmt.Errorf("type reference %s: %w", r.FullName(), err)
	}
	rid := s.intern(metadata.TableTypeRef, r.OriginalRID, scope, s.str(r.TypeName), s.str(r.Namespace))
	tok := metadata.NewToken(metadata.TableTypeRef, rid)
	s.refs[r] = tok
	return tok, nil
}

func (s *Session) resolutionScope(scope model.ResolutionScope) (uint32, error) {
	var tok metadata.Token
	var err error
	switch v := scope.(type) {
	case nil:
		return 0, nil
	case *model.Module:
		if v != s.mod {
			return 0, unresolved("scope is module %s, building %s", v.Name, s.mod.Name)
		}
		tok = metadata.NewToken(metadata.TableModule, 1)
	case *model.ModuleRef:
		tok, err = s.ModuleRefToken(v)
	case *model.AssemblyRef:
		tok, err = s.AssemblyRefToken(v)
	case *model.TypeRef:
		tok, err = s.TypeRefToken(v)
		if err == nil && tok.Table() != metadata.TableTypeRef {
			return 0, unresolved("nested reference scoped to definition %s", v.FullName())
		}
	default:
		return 0, unresolved("unexpected scope %T", scope)
	}
	if err != nil {
		return 0, err
	}
	return coded(metadata.ResolutionScope, tok)
}

// TypeSpecToken interns a type specification by signature.
func (s *Session) TypeSpecToken(ts *model.TypeSpec) (metadata.Token, error) {
	if tok, ok := s.refs[ts]; ok {
		return tok, nil
	}
	if ts.Signature == nil {
		return 0, errors.InvalidInput(errors.PhaseBuild, "type spec without signature")
	}
	sig, err := signature.EncodeType(ts.Signature, s.signatureToken)
	if err != nil {
		return 0, err
	}
	off, err := s.blob(sig)
	if err != nil {
		return 0, err
	}
	tok := metadata.NewToken(metadata.TableTypeSpec, s.intern(metadata.TableTypeSpec, ts.OriginalRID, off))
	s.refs[ts] = tok
	return tok, nil
}

// AssemblyRefToken interns an assembly reference.
func (s *Session) AssemblyRefToken(a *model.AssemblyRef) (metadata.Token, error) {
	if tok, ok := s.refs[a]; ok {
		return tok, nil
	}
	key, err := s.blob(a.PublicKeyOrToken)
	if err != nil {
		return 0, err
	}
	hash, err := s.blob(a.HashValue)
	if err != nil {
		return 0, err
	}
	v := a.Version
	rid := s.intern(metadata.TableAssemblyRef, a.OriginalRID,
		uint32(v.Major), uint32(v.Minor), uint32(v.Build), uint32(v.Revision),
		a.Flags, key, s.str(a.Name), s.str(a.Culture), hash)
	tok := metadata.NewToken(metadata.TableAssemblyRef, rid)
	s.refs[a] = tok
	return tok, nil
}

// ModuleRefToken interns a module reference.
func (s *Session) ModuleRefToken(r *model.ModuleRef) (metadata.Token, error) {
	if tok, ok := s.refs[r]; ok {
		return tok, nil
	}
	tok := metadata.NewToken(metadata.TableModuleRef, s.intern(metadata.TableModuleRef, r.OriginalRID, s.str(r.Name)))
	s.refs[r] = tok
	return tok, nil
}

// FieldToken returns the token of a field definition.
func (s *Session) FieldToken(f *model.Field) (metadata.Token, error) {
	rid, ok := s.fields[f]
	if !ok {
		return 0, unresolved("field %s is not defined in module %s", f.FullName(), s.mod.Name)
	}
	return metadata.NewToken(metadata.TableField, rid), nil
}

// MethodDefToken returns the token of a method definition.
func (s *Session) MethodDefToken(m *model.MethodDef) (metadata.Token, error) {
	rid, ok := s.methods[m]
	if !ok {
		return 0, unresolved("method %s is not defined in module %s", m.FullName(), s.mod.Name)
	}
	return metadata.NewToken(metadata.TableMethodDef, rid), nil
}

// MethodToken returns the token of a method definition or reference.
func (s *Session) MethodToken(m model.MethodDefOrRef) (metadata.Token, error) {
	switch v := m.(type) {
	case *model.MethodDef:
		return s.MethodDefToken(v)
	case *model.MemberRef:
		return s.MemberRefToken(v)
	}
	return 0, unresolved("unexpected method %T", m)
}

// MemberRefToken interns a field or method reference.
func (s *Session) MemberRefToken(r *model.MemberRef) (metadata.Token, error) {
	if tok, ok := s.refs[r]; ok {
		return tok, nil
	}
	var parent metadata.Token
	var err error
	switch p := r.Parent.(type) {
	case *model.TypeDef:
		parent, err = s.TypeDefToken(p)
	case *model.TypeRef:
		parent, err = s.TypeRefToken(p)
	case *model.TypeSpec:
		parent, err = s.TypeSpecToken(p)
	case *model.ModuleRef:
		parent, err = s.ModuleRefToken(p)
	case *model.MethodDef:
		parent, err = s.MethodDefToken(p)
	default:
		err = unresolved("member reference %s has parent %T", r.MemberName, r.Parent)
	}
	if err != nil {
		return 0, err
	}
	class, err := coded(metadata.MemberRefParent, parent)
	if err != nil {
		return 0, err
	}

	var sig []byte
	switch {
	case r.FieldSig != nil:
		sig, err = signature.EncodeField(r.FieldSig, s.signatureToken)
	case r.MethodSig != nil:
		sig, err = signature.EncodeMethod(r.MethodSig, s.signatureToken)
	default:
		err = errors.InvalidInput(errors.PhaseBuild, "member reference "+r.FullName()+" has no signature")
	}
	if err != nil {
		return 0, err
	}
	off, err := s.blob(sig)
	if err != nil {
		return 0, err
	}
	rid := s.intern(metadata.TableMemberRef, r.OriginalRID, class, s.str(r.MemberName), off)
	tok := metadata.NewToken(metadata.TableMemberRef, rid)
	s.refs[r] = tok
	return tok, nil
}

// MethodSpecToken interns a generic method instantiation.
func (s *Session) MethodSpecToken(ms *model.MethodSpec) (metadata.Token, error) {
	if tok, ok := s.refs[ms]; ok {
		return tok, nil
	}
	method, err := s.MethodToken(ms.Method)
	if err != nil {
		return 0, err
	}
	mv, err := coded(metadata.MethodDefOrRef, method)
	if err != nil {
		return 0, err
	}
	sig, err := signature.EncodeMethodSpec(&signature.MethodSpecSig{Args: ms.Args}, s.signatureToken)
	if err != nil {
		return 0, err
	}
	off, err := s.blob(sig)
	if err != nil {
		return 0, err
	}
	tok := metadata.NewToken(metadata.TableMethodSpec, s.intern(metadata.TableMethodSpec, ms.OriginalRID, mv, off))
	s.refs[ms] = tok
	return tok, nil
}

func (s *Session) standAloneSig(sig []byte) (metadata.Token, error) {
	off, err := s.blob(sig)
	if err != nil {
		return 0, err
	}
	return metadata.NewToken(metadata.TableStandAloneSig, s.intern(metadata.TableStandAloneSig, 0, off)), nil
}

// StandAloneSigToken interns a call-site signature for calli.
func (s *Session) StandAloneSigToken(sig *signature.MethodSig) (metadata.Token, error) {
	blob, err := signature.EncodeMethod(sig, s.signatureToken)
	if err != nil {
		return 0, err
	}
	return s.standAloneSig(blob)
}

// LocalsToken interns a local variable signature. It implements
// il.TokenProvider.
func (s *Session) LocalsToken(locals []*signature.TypeSig) (metadata.Token, error) {
	blob, err := signature.EncodeLocalVar(&signature.LocalVarSig{Locals: locals}, s.signatureToken)
	if err != nil {
		return 0, err
	}
	return s.standAloneSig(blob)
}

// UserStringToken interns an ldstr literal. It implements
// il.TokenProvider.
func (s *Session) UserStringToken(v string) (metadata.Token, error) {
	off, err := s.us.Add(v)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseBuild, errors.KindOverflow, err, "user string heap")
	}
	return metadata.NewToken(metadata.TableUserString, off), nil
}

// Token maps an instruction operand to its token. It implements
// il.TokenProvider.
func (s *Session) Token(ref any) (metadata.Token, error) {
	switch v := ref.(type) {
	case model.TypeDefOrRef:
		return s.TypeDefOrRefToken(v)
	case *model.Field:
		return s.FieldToken(v)
	case *model.MethodDef:
		return s.MethodDefToken(v)
	case *model.MemberRef:
		return s.MemberRefToken(v)
	case *model.MethodSpec:
		return s.MethodSpecToken(v)
	case *signature.MethodSig:
		return s.StandAloneSigToken(v)
	case signature.TokenRef:
		return 0, unresolved("operand %s was decoded without a resolver", v.Token)
	}
	return 0, unresolved("unexpected operand %T", ref)
}
