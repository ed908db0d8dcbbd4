package model_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/il"
	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/metadata"
	"github.com/wippyai/clrmeta/model"
)

type bodies map[uint32][]byte

func (b bodies) BodyAt(rva uint32) ([]byte, error) {
	data, ok := b[rva]
	if !ok {
		return nil, fmt.Errorf("rva 0x%x outside image", rva)
	}
	return data, nil
}

func tok(t metadata.Table, rid uint32) metadata.Token { return metadata.NewToken(t, rid) }

func code(c metadata.CodedIndex, t metadata.Token) uint32 {
	v, ok := c.Encode(t)
	if !ok {
		panic("token " + t.String() + " not valid for " + c.String())
	}
	return v
}

const (
	mainRVA = 0x2050
	addRVA  = 0x2060
)

// demoImage builds:
//
//	class Demo.Program : System.Object {
//	    static int32 count;
//	    static void Main() { Console.WriteLine("hi"); }
//	    static int32 Add(int32 a, int32 b) { return a + b; }
//	    int32 Count { get = Add }
//	    class Nested {}
//	}
func demoImage(t *testing.T) ([]byte, bodies) {
	tw := metadata.NewTablesWriter()
	strs := metadata.NewStringsHeapWriter()
	blobs := metadata.NewBlobHeapWriter()
	guids := metadata.NewGUIDHeapWriter()
	us := metadata.NewUserStringsHeapWriter()
	blob := func(b ...byte) uint32 {
		off, err := blobs.Add(b)
		require.NoError(t, err)
		return off
	}
	s := strs.Add

	tw.Add(metadata.TableModule, 0, s("demo.dll"), guids.Add(metadata.GUID{0xAA}), 0, 0)
	tw.Add(metadata.TableAssembly, 0x8004, 1, 2, 0, 0, 0, 0, s("demo"), 0)
	tw.Add(metadata.TableAssemblyRef, 4, 0, 0, 0, 0, blob(0xB7, 0x7A), s("mscorlib"), 0, 0)

	mscorlib := code(metadata.ResolutionScope, tok(metadata.TableAssemblyRef, 1))
	tw.Add(metadata.TableTypeRef, mscorlib, s("Object"), s("System"))
	tw.Add(metadata.TableTypeRef, mscorlib, s("Console"), s("System"))

	object := code(metadata.TypeDefOrRef, tok(metadata.TableTypeRef, 1))
	tw.Add(metadata.TableTypeDef, 0, s("<Module>"), 0, 0, 1, 1)
	tw.Add(metadata.TableTypeDef, 0x00100001, s("Program"), s("Demo"), object, 1, 1)
	tw.Add(metadata.TableTypeDef, 0x00100002, s("Nested"), 0, object, 2, 3)

	tw.Add(metadata.TableField, 0x0011, s("count"), blob(0x06, 0x08))
	tw.Add(metadata.TableMethodDef, mainRVA, 0, 0x0096, s("Main"), blob(0x00, 0x00, 0x01), 1)
	tw.Add(metadata.TableMethodDef, addRVA, 0, 0x0896, s("Add"), blob(0x00, 0x02, 0x08, 0x08, 0x08), 1)
	tw.Add(metadata.TableParam, 0, 1, s("a"))
	tw.Add(metadata.TableParam, 0, 2, s("b"))

	console := code(metadata.MemberRefParent, tok(metadata.TableTypeRef, 2))
	objectParent := code(metadata.MemberRefParent, tok(metadata.TableTypeRef, 1))
	tw.Add(metadata.TableMemberRef, console, s("WriteLine"), blob(0x00, 0x01, 0x01, 0x0E))
	tw.Add(metadata.TableMemberRef, objectParent, s(".ctor"), blob(0x20, 0x00, 0x01))

	tw.Add(metadata.TableCustomAttribute,
		code(metadata.HasCustomAttribute, tok(metadata.TableTypeDef, 2)),
		code(metadata.CustomAttributeType, tok(metadata.TableMemberRef, 2)),
		blob(0x01, 0x00, 0x00, 0x00))

	tw.Add(metadata.TablePropertyMap, 2, 1)
	tw.Add(metadata.TableProperty, 0, s("Count"), blob(0x08, 0x00, 0x08))
	tw.Add(metadata.TableMethodSemantics, 0x0002, 2, code(metadata.HasSemantics, tok(metadata.TableProperty, 1)))
	tw.Add(metadata.TableNestedClass, 3, 2)

	tables, err := tw.Encode()
	require.NoError(t, err)

	hi, err := us.Add("hi")
	require.NoError(t, err)
	ldstr := tok(metadata.TableUserString, hi)
	writeLine := tok(metadata.TableMemberRef, 1)

	mainCode := []byte{
		0x72, byte(ldstr), byte(ldstr >> 8), byte(ldstr >> 16), byte(ldstr >> 24),
		0x28, byte(writeLine), byte(writeLine >> 8), byte(writeLine >> 16), byte(writeLine >> 24),
		0x2A,
	}
	addCode := []byte{0x02, 0x03, 0x58, 0x2A}

	root := &metadata.Root{Streams: []metadata.Stream{
		{Name: metadata.StreamTables, Data: tables},
		{Name: metadata.StreamStrings, Data: strs.Finalize()},
		{Name: metadata.StreamUserStrings, Data: us.Finalize()},
		{Name: metadata.StreamGUID, Data: guids.Finalize()},
		{Name: metadata.StreamBlob, Data: blobs.Finalize()},
	}}
	return root.Encode(), bodies{
		mainRVA: append([]byte{byte(len(mainCode)<<2 | 2)}, mainCode...),
		addRVA:  append([]byte{byte(len(addCode)<<2 | 2)}, addCode...),
	}
}

func loadDemo(t *testing.T, opts model.LoadOptions) *model.Module {
	data, src := demoImage(t)
	r, err := image.Open(data, "demo.dll")
	require.NoError(t, err)
	m, err := model.Load(r, src, opts)
	require.NoError(t, err)
	return m
}

func TestLoadGraph(t *testing.T) {
	m := loadDemo(t, model.LoadOptions{EntryPoint: tok(metadata.TableMethodDef, 1)})

	assert.Equal(t, "demo.dll", m.Name)
	require.NotNil(t, m.Assembly)
	assert.Equal(t, "demo", m.Assembly.Name)
	assert.Equal(t, model.Version{Major: 1, Minor: 2}, m.Assembly.Version)
	require.Len(t, m.AssemblyRefs, 1)
	assert.Equal(t, model.Version{Major: 4}, m.AssemblyRefs[0].Version)

	require.Len(t, m.Types, 3)
	program, nested := m.Types[1], m.Types[2]
	assert.Equal(t, "Demo.Program", program.FullName())
	assert.Equal(t, "Demo.Program/Nested", nested.FullName())
	assert.Same(t, program, nested.DeclaringType)

	base, ok := program.Extends.(*model.TypeRef)
	require.True(t, ok)
	assert.Equal(t, "System.Object", base.FullName())
	assert.Same(t, m.AssemblyRefs[0], base.Scope)

	require.Len(t, program.Fields, 1)
	assert.Equal(t, "Demo.Program::count", program.Fields[0].FullName())
	assert.Same(t, program, program.Fields[0].DeclaringType)

	require.Len(t, program.Methods, 2)
	main, add := program.Methods[0], program.Methods[1]
	assert.Same(t, main, m.EntryPoint)
	assert.True(t, main.Signature.IsVoid())
	require.Len(t, add.Params, 2)
	assert.Equal(t, "b", add.Params[1].ParamName)
	assert.Empty(t, nested.Methods)

	require.Len(t, program.Properties, 1)
	assert.Same(t, add, program.Properties[0].Getter)
	assert.Nil(t, program.Properties[0].Setter)

	require.Len(t, program.Attributes(), 1)
	ctor, ok := program.Attributes()[0].Constructor.(*model.MemberRef)
	require.True(t, ok)
	assert.Equal(t, "System.Object::.ctor", ctor.FullName())
	assert.False(t, ctor.IsField())
}

func TestLoadBodies(t *testing.T) {
	m := loadDemo(t, model.LoadOptions{})
	main := m.Types[1].Methods[0]
	require.NotNil(t, main.Body)
	require.Len(t, main.Body.Instructions, 3)

	ldstr := main.Body.Instructions[0]
	assert.Same(t, il.Ldstr, ldstr.OpCode)
	assert.Equal(t, "hi", ldstr.Operand.String)

	call := main.Body.Instructions[1]
	assert.Same(t, il.Call, call.OpCode)
	writeLine := m.MemberRefs[0]
	assert.Same(t, writeLine, call.Operand.Ref)
	assert.Same(t, writeLine.MethodSig, call.Operand.Sig)

	add := m.Types[1].Methods[1]
	require.NotNil(t, add.Body)
	assert.Len(t, add.Body.Instructions, 4)
}

func TestLoadSkipBodies(t *testing.T) {
	m := loadDemo(t, model.LoadOptions{SkipBodies: true})
	for _, method := range m.Types[1].Methods {
		assert.Nil(t, method.Body, method.FullName())
		assert.NotZero(t, method.RVA)
	}
}

func TestLoadWithoutBodySource(t *testing.T) {
	data, _ := demoImage(t)
	r, err := image.Open(data, "demo.dll")
	require.NoError(t, err)
	m, err := model.Load(r, nil, model.LoadOptions{})
	require.NoError(t, err)
	assert.Nil(t, m.Types[1].Methods[0].Body)
}

func TestLoadErrors(t *testing.T) {
	data, src := demoImage(t)
	r, err := image.Open(data, "demo.dll")
	require.NoError(t, err)

	t.Run("entry point not a method", func(t *testing.T) {
		_, err := model.Load(r, src, model.LoadOptions{EntryPoint: tok(metadata.TableTypeDef, 2)})
		require.Error(t, err)
		assert.True(t, errors.IsFormat(err))
	})

	t.Run("entry point out of range", func(t *testing.T) {
		_, err := model.Load(r, src, model.LoadOptions{EntryPoint: tok(metadata.TableMethodDef, 9)})
		require.Error(t, err)
		assert.True(t, errors.IsFormat(err))
	})

	t.Run("missing body", func(t *testing.T) {
		_, err := model.Load(r, bodies{addRVA: src[addRVA]}, model.LoadOptions{})
		require.Error(t, err)
		assert.True(t, errors.IsFormat(err))
	})

	t.Run("truncated body", func(t *testing.T) {
		short := bodies{mainRVA: src[mainRVA][:4], addRVA: src[addRVA]}
		_, err := model.Load(r, short, model.LoadOptions{})
		require.Error(t, err)
		assert.True(t, errors.IsFormat(err))
	})
}

func TestResolveToken(t *testing.T) {
	m := loadDemo(t, model.LoadOptions{})

	obj, ok, err := m.ResolveToken(tok(metadata.TableMethodDef, 2), true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, m.Types[1].Methods[1], obj)

	obj, ok, err = m.ResolveToken(tok(metadata.TableModule, 1), false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Same(t, m, obj)

	_, ok, err = m.ResolveToken(tok(metadata.TableField, 7), false)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = m.ResolveToken(tok(metadata.TableField, 7), true)
	assert.False(t, ok)
	assert.True(t, errors.IsNotFound(err))
}

func TestNewModule(t *testing.T) {
	a, b := model.NewModule("a.dll"), model.NewModule("b.dll")
	assert.False(t, a.Mvid.IsZero())
	assert.NotEqual(t, a.Mvid, b.Mvid)
	require.Len(t, a.Types, 1)
	assert.Equal(t, "<Module>", a.Types[0].FullName())

	_, ok, err := a.ResolveToken(tok(metadata.TableModule, 1), false)
	assert.NoError(t, err)
	assert.False(t, ok)
}
