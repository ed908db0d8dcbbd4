package builder_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/clrmeta/builder"
	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/il"
	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/metadata"
	"github.com/wippyai/clrmeta/model"
	"github.com/wippyai/clrmeta/signature"
)

var (
	i4     = signature.Primitive(signature.ElemI4)
	void   = signature.Primitive(signature.ElemVoid)
	str    = signature.Primitive(signature.ElemString)
	object = func(a *model.AssemblyRef) *model.TypeRef {
		return &model.TypeRef{Scope: a, Namespace: "System", TypeName: "Object"}
	}
)

type sample struct {
	mod       *model.Module
	mscorlib  *model.AssemblyRef
	program   *model.TypeDef
	box       *model.TypeDef
	nested    *model.TypeDef
	main      *model.MethodDef
	add       *model.MethodDef
	identity  *model.MethodDef
	writeLine *model.MemberRef
}

// newSample builds:
//
//	class Demo.Program {
//	    const int32 Max = 16;
//	    static int32 seed = {1, 2, 3, 4};
//	    .ctor();
//	    static void Main() { try { Console.WriteLine("hi"); } finally {} int32 x = Identity<int32>(1); }
//	    static int32 Add(int32 a, int32 b);
//	    int32 Count { get; }
//	    static U Identity<U>(U u);
//	    class Nested {}
//	}
//	class Demo.Box`1<T> where T : object {}
func newSample() *sample {
	m := model.NewModule("sample.dll")
	m.Assembly = &model.Assembly{Name: "sample", Version: model.Version{Major: 1, Minor: 2}}

	mscorlib := &model.AssemblyRef{
		Name:             "mscorlib",
		Version:          model.Version{Major: 4},
		PublicKeyOrToken: []byte{0xB7, 0x7A, 0x5C, 0x56, 0x19, 0x34, 0xE0, 0x89},
	}
	m.AssemblyRefs = []*model.AssemblyRef{mscorlib}

	obj := object(mscorlib)
	console := &model.TypeRef{Scope: mscorlib, Namespace: "System", TypeName: "Console"}
	writeLine := &model.MemberRef{Parent: console, MemberName: "WriteLine",
		MethodSig: &signature.MethodSig{Return: void, Params: []*signature.TypeSig{str}}}
	objectCtor := &model.MemberRef{Parent: obj, MemberName: ".ctor",
		MethodSig: &signature.MethodSig{HasThis: true, Return: void}}

	program := &model.TypeDef{Flags: 0x00100001, Namespace: "Demo", TypeName: "Program", Extends: obj}
	program.CustomAttributes = []*model.CustomAttribute{{Constructor: objectCtor, Value: []byte{1, 0, 0, 0}}}

	program.Fields = []*model.Field{
		{Flags: 0x8051, FieldName: "Max", Signature: &signature.FieldSig{Type: i4},
			Constant: &model.Constant{Type: 0x08, Value: []byte{0x10, 0, 0, 0}}},
		{Flags: 0x0111, FieldName: "seed", Signature: &signature.FieldSig{Type: i4},
			InitialValue: []byte{1, 2, 3, 4}},
	}

	ctor := &model.MethodDef{Flags: 0x1886, MethodName: ".ctor",
		Signature: &signature.MethodSig{HasThis: true, Return: void},
		Body: &il.Body{MaxStack: 1, Instructions: []il.Instruction{
			il.Simple(il.Ldarg0),
			il.WithRef(il.Call, objectCtor, objectCtor.MethodSig),
			il.Simple(il.Ret),
		}}}

	u := &signature.TypeSig{Elem: signature.ElemMVar}
	identity := &model.MethodDef{Flags: 0x0096, MethodName: "Identity",
		Signature: &signature.MethodSig{GenericParamCount: 1, Return: u, Params: []*signature.TypeSig{u}},
		Params:    []*model.Param{{Sequence: 1, ParamName: "u"}},
		GenericParams: []*model.GenericParam{{ParamName: "U"}},
		Body: &il.Body{MaxStack: 1, Instructions: []il.Instruction{
			il.Simple(il.Ldarg0),
			il.Simple(il.Ret),
		}}}
	identityOfInt := &model.MethodSpec{Method: identity, Args: []*signature.TypeSig{i4}}

	main := &model.MethodDef{Flags: 0x0096, MethodName: "Main",
		Signature: &signature.MethodSig{Return: void},
		Body: &il.Body{
			MaxStack:   1,
			InitLocals: true,
			Locals:     []*signature.TypeSig{i4},
			Instructions: []il.Instruction{
				il.WithString(il.Ldstr, "hi"),
				il.WithRef(il.Call, writeLine, writeLine.MethodSig),
				il.WithTarget(il.LeaveS, 4),
				il.Simple(il.Endfinally),
				il.Simple(il.LdcI41),
				il.WithRef(il.Call, identityOfInt, identity.Signature),
				il.Simple(il.Stloc0),
				il.Simple(il.Ret),
			},
			Handlers: []il.ExceptionHandler{{
				Kind: il.HandlerFinally, TryStart: 0, TryLength: 12, HandlerStart: 12, HandlerLength: 1,
			}},
		}}

	add := &model.MethodDef{Flags: 0x0096, MethodName: "Add",
		Signature: &signature.MethodSig{Return: i4, Params: []*signature.TypeSig{i4, i4}},
		Params:    []*model.Param{{Sequence: 1, ParamName: "a"}, {Sequence: 2, ParamName: "b"}},
		Body: &il.Body{MaxStack: 2, Instructions: []il.Instruction{
			il.Simple(il.Ldarg0),
			il.Simple(il.Ldarg1),
			il.Simple(il.Add),
			il.Simple(il.Ret),
		}}}

	getCount := &model.MethodDef{Flags: 0x0886, MethodName: "get_Count",
		Signature: &signature.MethodSig{HasThis: true, Return: i4},
		Body: &il.Body{MaxStack: 1, Instructions: []il.Instruction{
			il.Simple(il.LdcI42),
			il.Simple(il.Ret),
		}}}

	program.Methods = []*model.MethodDef{ctor, main, add, getCount, identity}
	program.Properties = []*model.Property{{PropertyName: "Count",
		Signature: &signature.PropertySig{HasThis: true, Type: i4}, Getter: getCount}}
	for _, f := range program.Fields {
		f.DeclaringType = program
	}
	for _, meth := range program.Methods {
		meth.DeclaringType = program
	}

	t := &model.GenericParam{ParamName: "T",
		Constraints: []*model.GenericParamConstraint{{Constraint: obj}}}
	t.CustomAttributes = []*model.CustomAttribute{{Constructor: objectCtor, Value: []byte{1, 0, 0, 0}}}
	box := &model.TypeDef{Flags: 0x00100001, Namespace: "Demo", TypeName: "Box`1", Extends: obj,
		GenericParams: []*model.GenericParam{t}}

	// a second, structurally equal reference to System.Object
	nested := &model.TypeDef{Flags: 0x00100002, TypeName: "Nested", Extends: object(mscorlib), DeclaringType: program}

	m.Types = append(m.Types, program, box, nested)
	m.EntryPoint = main
	m.Resources = []*model.Resource{
		{Name: "data.bin", Flags: 1, Data: []byte{9, 8, 7}},
		{Name: "linked.txt", Flags: 1, Implementation: mscorlib},
	}

	return &sample{
		mod: m, mscorlib: mscorlib, program: program, box: box, nested: nested,
		main: main, add: add, identity: identity, writeLine: writeLine,
	}
}

func reload(t *testing.T, res *builder.Result) (*image.Reader, *model.Module) {
	r, err := image.Open(res.Metadata, "built.dll")
	require.NoError(t, err)
	m, err := model.Load(r, res, model.LoadOptions{EntryPoint: res.EntryPoint})
	require.NoError(t, err)
	return r, m
}

func TestBuildAndReload(t *testing.T) {
	s := newSample()
	res, err := builder.NewWithDefaults().Build(s.mod)
	require.NoError(t, err)

	r, m := reload(t, res)
	assert.Equal(t, uint32(2), r.RowCount(metadata.TableTypeRef), "System.Object is interned once")
	assert.Equal(t, s.mod.Mvid, m.Mvid)
	assert.Equal(t, "sample", m.Assembly.Name)

	require.Len(t, m.Types, 4)
	program, box, nested := m.Types[1], m.Types[2], m.Types[3]
	assert.Equal(t, "Demo.Program", program.FullName())
	assert.Equal(t, "Demo.Program/Nested", nested.FullName())
	assert.Equal(t, "System.Object", nested.Extends.FullName())
	assert.Same(t, program.Extends, nested.Extends)

	require.Len(t, program.Fields, 2)
	assert.Equal(t, []byte{0x10, 0, 0, 0}, program.Fields[0].Constant.Value)
	assert.Equal(t, []byte{1, 2, 3, 4}, program.Fields[1].InitialValue)

	require.Len(t, program.Methods, 5)
	main, add, getCount, identity := program.Methods[1], program.Methods[2], program.Methods[3], program.Methods[4]
	assert.Same(t, main, m.EntryPoint)
	require.Len(t, add.Params, 2)
	assert.Equal(t, "b", add.Params[1].ParamName)
	require.Len(t, program.Properties, 1)
	assert.Same(t, getCount, program.Properties[0].Getter)

	require.NotNil(t, main.Body)
	assert.True(t, main.Body.InitLocals)
	require.Len(t, main.Body.Locals, 1)
	assert.Equal(t, signature.ElemI4, main.Body.Locals[0].Elem)
	require.Len(t, main.Body.Instructions, 8)
	assert.Equal(t, "hi", main.Body.Instructions[0].Operand.String)
	call, ok := main.Body.Instructions[1].Operand.Ref.(*model.MemberRef)
	require.True(t, ok)
	assert.Equal(t, "System.Console::WriteLine", call.FullName())
	assert.Equal(t, 4, main.Body.Instructions[2].Operand.Target)
	spec, ok := main.Body.Instructions[5].Operand.Ref.(*model.MethodSpec)
	require.True(t, ok)
	assert.Same(t, identity, spec.Method)
	require.Len(t, main.Body.Handlers, 1)
	assert.Equal(t, il.HandlerFinally, main.Body.Handlers[0].Kind)
	assert.Equal(t, uint32(12), main.Body.Handlers[0].HandlerStart)

	require.Len(t, box.GenericParams, 1)
	gp := box.GenericParams[0]
	assert.Equal(t, "T", gp.ParamName)
	require.Len(t, gp.Constraints, 1)
	assert.Equal(t, "System.Object", gp.Constraints[0].Constraint.FullName())
	assert.Len(t, gp.Attributes(), 1)
	require.Len(t, identity.GenericParams, 1)
	assert.Equal(t, "U", identity.GenericParams[0].ParamName)

	require.Len(t, program.Attributes(), 1)
	assert.Equal(t, ".ctor", program.Attributes()[0].Constructor.Name())

	require.Len(t, m.Resources, 2)
	assert.Equal(t, []byte{9, 8, 7}, m.Resources[0].Data)
	assert.Same(t, m.AssemblyRefs[0], m.Resources[1].Implementation)
}

func TestSortedTables(t *testing.T) {
	res, err := builder.NewWithDefaults().Build(newSample().mod)
	require.NoError(t, err)
	r, err := image.Open(res.Metadata, "built.dll")
	require.NoError(t, err)

	// Program's method parameter U is emitted before Box's T and sorted
	// behind it.
	first, err := r.GenericParam(1)
	require.NoError(t, err)
	assert.Equal(t, "T", first.Name)
	assert.Equal(t, metadata.TableTypeDef, first.Owner.Table())

	c, err := r.GenericParamConstraint(1)
	require.NoError(t, err)
	assert.Equal(t, metadata.NewToken(metadata.TableGenericParam, 1), c.Owner)

	attrs := r.CustomAttributes(metadata.NewToken(metadata.TableGenericParam, 1))
	assert.Len(t, attrs, 1)

	for _, tbl := range []metadata.Table{metadata.TableCustomAttribute, metadata.TableGenericParam, metadata.TableConstant} {
		col, ok := metadata.SortKey(tbl)
		require.True(t, ok)
		for rid := uint32(2); rid <= r.RowCount(tbl); rid++ {
			assert.LessOrEqual(t, r.Column(tbl, rid-1, col), r.Column(tbl, rid, col), tbl.String())
		}
	}
}

func TestBuildIsAFixedPoint(t *testing.T) {
	b := builder.NewWithDefaults()
	res1, err := b.Build(newSample().mod)
	require.NoError(t, err)
	_, m2 := reload(t, res1)

	res2, err := b.Build(m2)
	require.NoError(t, err)
	assert.Equal(t, res1.Code, res2.Code)

	_, m3 := reload(t, res2)
	res3, err := b.Build(m3)
	require.NoError(t, err)
	assert.Equal(t, res2.Metadata, res3.Metadata)
	assert.Equal(t, res2.Code, res3.Code)
	assert.Equal(t, res2.FieldData, res3.FieldData)
	assert.Equal(t, res2.Resources, res3.Resources)
}

func TestRIDMaps(t *testing.T) {
	res1, err := builder.NewWithDefaults().Build(newSample().mod)
	require.NoError(t, err)
	_, m := reload(t, res1)

	// reorder definitions so new RIDs differ from the original ones
	program, box := m.Types[1], m.Types[2]
	m.Types[1], m.Types[2] = box, program
	program.Methods[0], program.Methods[2] = program.Methods[2], program.Methods[0]

	res2, err := builder.NewWithDefaults().Build(m)
	require.NoError(t, err)
	r2, err := image.Open(res2.Metadata, "rebuilt.dll")
	require.NoError(t, err)

	for _, td := range m.Types {
		rid, ok := res2.NewRID(metadata.TableTypeDef, td.OriginalRID)
		require.True(t, ok, td.FullName())
		row, err := r2.TypeDef(rid)
		require.NoError(t, err)
		assert.Equal(t, td.TypeName, row.Name)
		assert.Equal(t, td.Namespace, row.Namespace)

		orig, ok := res2.OriginalRID(metadata.TableTypeDef, rid)
		require.True(t, ok)
		assert.Equal(t, td.OriginalRID, orig)

		for _, f := range td.Fields {
			rid, ok := res2.NewRID(metadata.TableField, f.OriginalRID)
			require.True(t, ok)
			row, err := r2.Field(rid)
			require.NoError(t, err)
			assert.Equal(t, f.FieldName, row.Name)
		}
		for _, meth := range td.Methods {
			rid, ok := res2.NewRID(metadata.TableMethodDef, meth.OriginalRID)
			require.True(t, ok)
			row, err := r2.MethodDef(rid)
			require.NoError(t, err)
			assert.Equal(t, meth.MethodName, row.Name)
			assert.NotZero(t, row.RVA, meth.FullName())
		}
		for _, p := range td.Properties {
			rid, ok := res2.NewRID(metadata.TableProperty, p.OriginalRID)
			require.True(t, ok)
			row, err := r2.Property(rid)
			require.NoError(t, err)
			assert.Equal(t, p.PropertyName, row.Name)
		}
	}

	assert.Equal(t, []uint32{1, 3, 2, 4}, res2.RIDMap(metadata.TableTypeDef))
	for i, rid := range []uint32{1, 2} {
		mrid, ok := res2.NewRID(metadata.TableManifestResource, rid)
		require.True(t, ok)
		assert.Equal(t, uint32(i+1), mrid)
	}
	_, ok := res2.OriginalRID(metadata.TableTypeDef, 99)
	assert.False(t, ok)
}

func TestInterning(t *testing.T) {
	s := newSample()
	sess, err := builder.NewWithDefaults().Begin(s.mod)
	require.NoError(t, err)

	other := &model.AssemblyRef{Name: "mscorlib", Version: model.Version{Major: 4},
		PublicKeyOrToken: s.mscorlib.PublicKeyOrToken}
	a, err := sess.TypeRefToken(object(s.mscorlib))
	require.NoError(t, err)
	b, err := sess.TypeRefToken(object(other))
	require.NoError(t, err)
	assert.Equal(t, metadata.TableTypeRef, a.Table())
	assert.Equal(t, a, b)

	c, err := sess.TypeRefToken(&model.TypeRef{Scope: s.mscorlib, Namespace: "System", TypeName: "String"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	def, err := sess.TypeDefOrRefToken(s.program)
	require.NoError(t, err)
	assert.Equal(t, metadata.NewToken(metadata.TableTypeDef, 2), def)

	self, err := sess.TypeRefToken(&model.TypeRef{Scope: s.mod, Namespace: "Demo", TypeName: "Program"})
	require.NoError(t, err)
	assert.Equal(t, def, self)

	copyOf := func(r *model.MemberRef) *model.MemberRef {
		dup := *r
		return &dup
	}
	m1, err := sess.MemberRefToken(s.writeLine)
	require.NoError(t, err)
	m2, err := sess.MemberRefToken(copyOf(s.writeLine))
	require.NoError(t, err)
	assert.Equal(t, m1, m2)

	own, err := sess.Token(s.add)
	require.NoError(t, err)
	assert.Equal(t, metadata.NewToken(metadata.TableMethodDef, 3), own)

	args := []*signature.TypeSig{i4}
	ms1, err := sess.MethodSpecToken(&model.MethodSpec{Method: s.identity, Args: args})
	require.NoError(t, err)
	ms2, err := sess.MethodSpecToken(&model.MethodSpec{Method: s.identity, Args: []*signature.TypeSig{signature.Primitive(signature.ElemI4)}})
	require.NoError(t, err)
	assert.Equal(t, ms1, ms2)

	l1, err := sess.LocalsToken([]*signature.TypeSig{i4, str})
	require.NoError(t, err)
	l2, err := sess.LocalsToken([]*signature.TypeSig{signature.Primitive(signature.ElemI4), str})
	require.NoError(t, err)
	assert.Equal(t, l1, l2)
	sig, err := sess.StandAloneSigToken(&signature.MethodSig{Return: void})
	require.NoError(t, err)
	assert.NotEqual(t, l1, sig)

	u1, err := sess.UserStringToken("hello")
	require.NoError(t, err)
	u2, err := sess.UserStringToken("hello")
	require.NoError(t, err)
	assert.Equal(t, u1, u2)
	assert.Equal(t, metadata.TableUserString, u1.Table())
}

func TestBuildContractErrors(t *testing.T) {
	t.Run("entry point not a definition", func(t *testing.T) {
		s := newSample()
		s.mod.EntryPoint = &model.MethodDef{MethodName: "Elsewhere", Signature: &signature.MethodSig{Return: void}}
		_, err := builder.NewWithDefaults().Build(s.mod)
		require.Error(t, err)
		assert.True(t, errors.IsContract(err))
		assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseBuild, Kind: errors.KindEntryPointNotFound})
	})

	t.Run("native body", func(t *testing.T) {
		s := newSample()
		s.add.ImplFlags = model.ImplNative
		s.add.Body = nil
		s.add.RVA = 0x3000
		_, err := builder.NewWithDefaults().Build(s.mod)
		require.Error(t, err)
		assert.True(t, errors.IsContract(err))
		assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseBuild, Kind: errors.KindNativeBodyUnsupported})

		opts := builder.DefaultOptions()
		opts.AllowNativeBodies = true
		res, err := builder.New(opts, nil).Build(s.mod)
		require.NoError(t, err)
		r, err := image.Open(res.Metadata, "native.dll")
		require.NoError(t, err)
		row, err := r.MethodDef(3)
		require.NoError(t, err)
		assert.Equal(t, "Add", row.Name)
		assert.Zero(t, row.RVA)
	})

	t.Run("foreign definition", func(t *testing.T) {
		s := newSample()
		stranger := &model.TypeDef{TypeName: "Stranger"}
		s.main.Body.Instructions[1] = il.WithRef(il.Call, &model.MemberRef{
			Parent: stranger, MemberName: "Run", MethodSig: &signature.MethodSig{Return: void},
		}, &signature.MethodSig{Return: void})
		_, err := builder.NewWithDefaults().Build(s.mod)
		require.Error(t, err)
		assert.True(t, errors.IsContract(err))
	})

	t.Run("finalize before emit", func(t *testing.T) {
		sess, err := builder.NewWithDefaults().Begin(newSample().mod)
		require.NoError(t, err)
		_, err = sess.Finalize()
		require.Error(t, err)
	})
}

func TestBodyPlacement(t *testing.T) {
	opts := builder.DefaultOptions()
	opts.CodeRVA = 0x1000
	res, err := builder.New(opts, nil).Build(newSample().mod)
	require.NoError(t, err)
	r, err := image.Open(res.Metadata, "placed.dll")
	require.NoError(t, err)

	for rid := uint32(1); rid <= r.RowCount(metadata.TableMethodDef); rid++ {
		row, err := r.MethodDef(rid)
		require.NoError(t, err)
		require.GreaterOrEqual(t, row.RVA, opts.CodeRVA)
		data, err := res.BodyAt(row.RVA)
		require.NoError(t, err)
		if data[0]&0x3 == 0x3 {
			assert.Zero(t, row.RVA%4, "fat body of %s must be 4-byte aligned", row.Name)
		}
	}
	assert.Zero(t, res.FieldDataRVA%8)
	assert.GreaterOrEqual(t, res.FieldDataRVA, opts.CodeRVA+uint32(len(res.Code)))

	_, err = res.BodyAt(0x10)
	assert.Error(t, err)
	data, err := res.ResourceAt(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7}, data)
	_, err = res.ResourceAt(0x100)
	assert.Error(t, err)
}

func TestGenericParamAttributesAreDeterministic(t *testing.T) {
	newModule := func() *model.Module {
		m := model.NewModule("generic.dll")
		corlib := &model.AssemblyRef{Name: "mscorlib", Version: model.Version{Major: 4}}
		m.AssemblyRefs = []*model.AssemblyRef{corlib}
		obj := object(corlib)

		tuple := &model.TypeDef{Flags: 0x00100001, Namespace: "Demo", TypeName: "Tuple`8", Extends: obj}
		for i := range 8 {
			marker := &model.TypeRef{Scope: corlib, Namespace: "Demo.Markers", TypeName: fmt.Sprintf("Marker%d", i)}
			ctor := &model.MemberRef{Parent: marker, MemberName: ".ctor",
				MethodSig: &signature.MethodSig{HasThis: true, Return: void}}
			c := &model.GenericParamConstraint{Constraint: obj}
			c.CustomAttributes = []*model.CustomAttribute{{Constructor: ctor, Value: []byte{1, 0, byte(i), 0}}}
			gp := &model.GenericParam{Number: uint16(i), ParamName: fmt.Sprintf("T%d", i),
				Constraints: []*model.GenericParamConstraint{c}}
			gp.CustomAttributes = []*model.CustomAttribute{{Constructor: ctor, Value: []byte{1, 0, 0, byte(i)}}}
			tuple.GenericParams = append(tuple.GenericParams, gp)
		}
		m.Types = append(m.Types, tuple)
		return m
	}

	m := newModule()
	first, err := builder.NewWithDefaults().Build(m)
	require.NoError(t, err)
	for range 10 {
		again, err := builder.NewWithDefaults().Build(m)
		require.NoError(t, err)
		require.Equal(t, first.Metadata, again.Metadata)
	}

	r, err := image.Open(first.Metadata, "generic.dll")
	require.NoError(t, err)
	assert.Equal(t, uint32(16), r.RowCount(metadata.TableCustomAttribute))
	assert.Equal(t, uint32(8), r.RowCount(metadata.TableMemberRef))
}

func TestRecomputeMaxStack(t *testing.T) {
	newModule := func() (*model.Module, *model.MethodDef) {
		m := model.NewModule("stack.dll")
		prog := &model.TypeDef{Flags: 0x00100001, Namespace: "Demo", TypeName: "Stack"}
		run := &model.MethodDef{
			Flags:         0x0096,
			MethodName:    "Run",
			DeclaringType: prog,
			Signature:     &signature.MethodSig{Return: void},
			Body: &il.Body{
				MaxStack: 1,
				Locals:   []*signature.TypeSig{i4},
				Instructions: []il.Instruction{
					il.Simple(il.LdcI41), il.Simple(il.LdcI42), il.Simple(il.LdcI43),
					il.Simple(il.Pop), il.Simple(il.Pop), il.Simple(il.Stloc0),
					il.Simple(il.Ret),
				},
			},
		}
		prog.Methods = []*model.MethodDef{run}
		m.Types = append(m.Types, prog)
		return m, run
	}
	maxStack := func(t *testing.T, opts builder.Options) uint16 {
		m, run := newModule()
		res, err := builder.New(opts, nil).Build(m)
		require.NoError(t, err)
		assert.Equal(t, uint16(1), run.Body.MaxStack, "the model body is left untouched")

		r, err := image.Open(res.Metadata, "stack.dll")
		require.NoError(t, err)
		row, err := r.MethodDef(1)
		require.NoError(t, err)
		data, err := res.BodyAt(row.RVA)
		require.NoError(t, err)
		require.Equal(t, byte(0x3), data[0]&0x3, "locals force a fat header")
		return uint16(data[2]) | uint16(data[3])<<8
	}

	assert.Equal(t, uint16(1), maxStack(t, builder.DefaultOptions()))
	opts := builder.DefaultOptions()
	opts.RecomputeMaxStack = true
	assert.Equal(t, uint16(3), maxStack(t, opts))
}
