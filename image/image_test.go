package image_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/metadata"
)

type fixture struct {
	t       *testing.T
	tw      *metadata.TablesWriter
	strings *metadata.StringsHeapWriter
	blobs   *metadata.BlobHeapWriter
	guids   *metadata.GUIDHeapWriter
	us      *metadata.UserStringsHeapWriter
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		t:       t,
		tw:      metadata.NewTablesWriter(),
		strings: metadata.NewStringsHeapWriter(),
		blobs:   metadata.NewBlobHeapWriter(),
		guids:   metadata.NewGUIDHeapWriter(),
		us:      metadata.NewUserStringsHeapWriter(),
	}
}

func (f *fixture) str(s string) uint32 { return f.strings.Add(s) }

func (f *fixture) blob(b ...byte) uint32 {
	off, err := f.blobs.Add(b)
	require.NoError(f.t, err)
	return off
}

func code(c metadata.CodedIndex, tok metadata.Token) uint32 {
	v, ok := c.Encode(tok)
	if !ok {
		panic("token " + tok.String() + " not valid for " + c.String())
	}
	return v
}

func (f *fixture) bytes(tablesStream string) []byte {
	tables, err := f.tw.Encode()
	require.NoError(f.t, err)
	root := &metadata.Root{Streams: []metadata.Stream{
		{Name: tablesStream, Data: tables},
		{Name: metadata.StreamStrings, Data: f.strings.Finalize()},
		{Name: metadata.StreamUserStrings, Data: f.us.Finalize()},
		{Name: metadata.StreamGUID, Data: f.guids.Finalize()},
		{Name: metadata.StreamBlob, Data: f.blobs.Finalize()},
	}}
	return root.Encode()
}

func tok(t metadata.Table, rid uint32) metadata.Token { return metadata.NewToken(t, rid) }

var mvid = metadata.GUID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

// sampleImage builds a compressed stream:
//
//	TypeDef 1 <Module>
//	TypeDef 2 Foo     fields 1-3, methods 1-2
//	TypeDef 3 Color   enum, fields 4-5
//	TypeDef 4 Blob12  class size 12
//	TypeDef 5 Inner   nested in Foo
//
// FieldRVA and CustomAttribute rows are deliberately out of key order.
func sampleImage(t *testing.T) []byte {
	f := newFixture(t)
	tw := f.tw

	tw.Add(metadata.TableModule, 0, f.str("test.dll"), f.guids.Add(mvid), 0, 0)

	tw.Add(metadata.TableTypeRef, 0, f.str("Object"), f.str("System"))
	tw.Add(metadata.TableTypeRef, 0, f.str("Enum"), f.str("System"))
	tw.Add(metadata.TableTypeRef, 0, f.str("ValueType"), f.str("System"))

	objectRef := code(metadata.TypeDefOrRef, tok(metadata.TableTypeRef, 1))
	enumRef := code(metadata.TypeDefOrRef, tok(metadata.TableTypeRef, 2))
	valueTypeRef := code(metadata.TypeDefOrRef, tok(metadata.TableTypeRef, 3))

	tw.Add(metadata.TableTypeDef, 0, f.str("<Module>"), 0, 0, 1, 1)
	tw.Add(metadata.TableTypeDef, 0x00100001, f.str("Foo"), f.str("Demo"), objectRef, 1, 1)
	tw.Add(metadata.TableTypeDef, 0x00000101, f.str("Color"), f.str("Demo"), enumRef, 4, 3)
	tw.Add(metadata.TableTypeDef, 0x00000109, f.str("Blob12"), f.str("Demo"), valueTypeRef, 6, 3)
	tw.Add(metadata.TableTypeDef, 0x00000002, f.str("Inner"), 0, objectRef, 6, 3)

	i4 := f.blob(0x06, 0x08)
	tw.Add(metadata.TableField, 0x0001, f.str("a"), i4)
	tw.Add(metadata.TableField, 0x0113, f.str("data"), f.blob(0x06, 0x11, 0x10))
	tw.Add(metadata.TableField, 0x0113, f.str("colors"), f.blob(0x06, 0x11, 0x0C))
	tw.Add(metadata.TableField, 0x0606, f.str("value__"), i4)
	tw.Add(metadata.TableField, 0x8056, f.str("Red"), f.blob(0x06, 0x11, 0x0C))

	tw.Add(metadata.TableMethodDef, 0x2050, 0, 0x0086, f.str("Add"), f.blob(0x00, 0x02, 0x08, 0x08, 0x08), 1)
	tw.Add(metadata.TableMethodDef, 0x2060, 0, 0x1886, f.str(".ctor"), f.blob(0x20, 0x00, 0x01), 3)
	tw.Add(metadata.TableParam, 0, 1, f.str("x"))
	tw.Add(metadata.TableParam, 0, 2, f.str("y"))

	tw.Add(metadata.TableMemberRef, code(metadata.MemberRefParent, tok(metadata.TableTypeRef, 1)), f.str(".ctor"), f.blob(0x20, 0x00, 0x01))

	ctor := code(metadata.CustomAttributeType, tok(metadata.TableMemberRef, 1))
	onFoo := code(metadata.HasCustomAttribute, tok(metadata.TableTypeDef, 2))
	onColor := code(metadata.HasCustomAttribute, tok(metadata.TableTypeDef, 3))
	tw.Add(metadata.TableCustomAttribute, onColor, ctor, f.blob(0x01, 0x00, 0x00, 0x00))
	tw.Add(metadata.TableCustomAttribute, onFoo, ctor, f.blob(0x01, 0x00, 0x01, 0x00, 0x00))
	tw.Add(metadata.TableCustomAttribute, onFoo, ctor, f.blob(0x01, 0x00, 0x02, 0x00, 0x00))

	tw.Add(metadata.TableClassLayout, 1, 12, 4)
	tw.Add(metadata.TableFieldRVA, 0x4000, 2)
	tw.Add(metadata.TableFieldRVA, 0x4010, 3)
	tw.Add(metadata.TableFieldRVA, 0x4020, 1)
	tw.Add(metadata.TableNestedClass, 5, 2)

	return f.bytes(metadata.StreamTables)
}

func openSample(t *testing.T) *image.Reader {
	r, err := image.Open(sampleImage(t), "sample.dll")
	require.NoError(t, err)
	return r
}

func TestOpenAndTypedRows(t *testing.T) {
	r := openSample(t)
	assert.Equal(t, "sample.dll", r.Location())
	assert.Equal(t, metadata.DefaultVersion, r.Root().Version)
	assert.Equal(t, uint32(5), r.RowCount(metadata.TableTypeDef))

	mod, err := r.Module(1)
	require.NoError(t, err)
	assert.Equal(t, "test.dll", mod.Name)
	assert.Equal(t, mvid, mod.Mvid)

	foo, err := r.TypeDef(2)
	require.NoError(t, err)
	assert.Equal(t, "Foo", foo.Name)
	assert.Equal(t, "Demo", foo.Namespace)
	assert.Equal(t, tok(metadata.TableTypeRef, 1), foo.Extends)

	m, err := r.MethodDef(2)
	require.NoError(t, err)
	assert.Equal(t, ".ctor", m.Name)
	assert.Equal(t, uint32(0x2060), m.RVA)
	assert.Equal(t, []byte{0x20, 0x00, 0x01}, m.Signature)

	ca, err := r.CustomAttribute(2)
	require.NoError(t, err)
	assert.Equal(t, tok(metadata.TableTypeDef, 2), ca.Parent)
	assert.Equal(t, tok(metadata.TableMemberRef, 1), ca.Type)

	nc, err := r.NestedClass(1)
	require.NoError(t, err)
	assert.Equal(t, tok(metadata.TableTypeDef, 5), nc.NestedClass)
	assert.Equal(t, tok(metadata.TableTypeDef, 2), nc.EnclosingClass)
}

func TestRowMiss(t *testing.T) {
	r := openSample(t)
	_, err := r.TypeDef(99)
	assert.True(t, errors.IsNotFound(err))
	_, err = r.Row(metadata.TableField, 0)
	assert.True(t, errors.IsNotFound(err))
	assert.False(t, r.HasToken(tok(metadata.TableMethodDef, 3)))
	assert.True(t, r.HasToken(tok(metadata.TableMethodDef, 2)))

	_, err = r.String(0xFFFF)
	assert.True(t, errors.IsFormat(err))
}

func TestOpenErrors(t *testing.T) {
	_, err := image.Open([]byte{1, 2, 3}, "junk.dll")
	require.Error(t, err)
	assert.True(t, errors.IsFormat(err))

	root := &metadata.Root{Streams: []metadata.Stream{{Name: metadata.StreamStrings, Data: []byte{0, 0, 0, 0}}}}
	_, err = image.Open(root.Encode(), "notables.dll")
	require.Error(t, err)
	assert.True(t, errors.IsFormat(err))
}

func TestListRanges(t *testing.T) {
	r := openSample(t)

	tests := []struct {
		list  image.List
		owner uint32
		want  image.Range
	}{
		{image.TypeFields, 1, image.Range{Start: 1, End: 1}},
		{image.TypeFields, 2, image.Range{Start: 1, End: 4}},
		{image.TypeFields, 3, image.Range{Start: 4, End: 6}},
		{image.TypeFields, 5, image.Range{Start: 6, End: 6}},
		{image.TypeMethods, 2, image.Range{Start: 1, End: 3}},
		{image.TypeMethods, 3, image.Range{Start: 3, End: 3}},
		{image.MethodParams, 1, image.Range{Start: 1, End: 3}},
		{image.MethodParams, 2, image.Range{Start: 3, End: 3}},
	}
	for _, tt := range tests {
		got, err := r.ListRange(tt.list, tt.owner)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s of %d", tt.list, tt.owner)
	}

	_, err := r.ListRange(image.TypeFields, 6)
	assert.True(t, errors.IsNotFound(err))
}

func TestListOwner(t *testing.T) {
	r := openSample(t)
	for field, want := range map[uint32]uint32{1: 2, 2: 2, 3: 2, 4: 3, 5: 3} {
		owner, ok, err := r.ListOwner(image.TypeFields, field, true)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, want, owner, "field %d", field)
	}

	owner, ok, err := r.DeclaringType(tok(metadata.TableMethodDef, 2), true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint32(2), owner)

	_, ok, err = r.ListOwner(image.TypeFields, 9, false)
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, err = r.ListOwner(image.TypeFields, 9, true)
	assert.True(t, errors.IsNotFound(err))
}

func TestForeignKeyUnsorted(t *testing.T) {
	r := openSample(t)

	assert.Equal(t, []uint32{2, 3}, r.CustomAttributes(tok(metadata.TableTypeDef, 2)))
	assert.Equal(t, []uint32{1}, r.CustomAttributes(tok(metadata.TableTypeDef, 3)))
	assert.Empty(t, r.CustomAttributes(tok(metadata.TableTypeDef, 4)))

	row, ok, err := r.Find(image.KeyFieldRVA, tok(metadata.TableField, 1), true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint32(3), row)

	row, ok, err = r.Find(image.KeyClassLayout, tok(metadata.TableTypeDef, 4), false)
	require.NoError(t, err)
	assert.True(t, ok)
	layout, err := r.ClassLayout(row)
	require.NoError(t, err)
	assert.Equal(t, uint32(12), layout.ClassSize)

	_, ok, err = r.Find(image.KeyClassLayout, tok(metadata.TableTypeDef, 2), false)
	assert.NoError(t, err)
	assert.False(t, ok)
	_, _, err = r.Find(image.KeyClassLayout, tok(metadata.TableTypeDef, 2), true)
	assert.True(t, errors.IsNotFound(err))

	// wrong table for a simple index column
	assert.Empty(t, r.Rows(image.KeyFieldRVA, tok(metadata.TableMethodDef, 1)))
}

func TestNesting(t *testing.T) {
	r := openSample(t)
	enclosing, ok, err := r.EnclosingType(5, true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint32(2), enclosing)

	assert.Equal(t, []uint32{1}, r.NestedTypes(2))

	_, ok, err = r.EnclosingType(2, false)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestFieldDataSize(t *testing.T) {
	r := openSample(t)
	assert.Equal(t, uint32(12), r.FieldDataSize(1), "class layout")
	assert.Equal(t, uint32(4), r.FieldDataSize(2), "enum over int32")
	assert.Equal(t, uint32(4), r.FieldDataSize(3), "primitive")
	assert.Equal(t, uint32(0), r.FieldDataSize(4), "no such row")
	assert.Equal(t, uint32(12), r.FieldDataSize(1), "memoized")
}

// pointerImage builds an unoptimized stream whose FieldPtr reverses the
// physical field order.
func pointerImage(t *testing.T) []byte {
	f := newFixture(t)
	tw := f.tw
	i4 := f.blob(0x06, 0x08)
	tw.Add(metadata.TableTypeDef, 0, f.str("A"), 0, 0, 1, 1)
	tw.Add(metadata.TableTypeDef, 0, f.str("B"), 0, 0, 3, 1)
	tw.Add(metadata.TableFieldPtr, 3)
	tw.Add(metadata.TableFieldPtr, 2)
	tw.Add(metadata.TableFieldPtr, 1)
	tw.Add(metadata.TableField, 0, f.str("c"), i4)
	tw.Add(metadata.TableField, 0, f.str("b"), i4)
	tw.Add(metadata.TableField, 0, f.str("a"), i4)
	tw.SortedMask = 0
	return f.bytes(metadata.StreamTablesUnopt)
}

func TestPointerTables(t *testing.T) {
	r, err := image.Open(pointerImage(t), "enc.dll")
	require.NoError(t, err)
	assert.True(t, r.Tables().Uncompressed)
	assert.Equal(t, uint32(3), r.LogicalCount(metadata.TableField))

	members, err := r.ListMembers(image.TypeFields, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint32{3, 2}, members)

	var names []string
	for _, rid := range members {
		f, err := r.Field(rid)
		require.NoError(t, err)
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a", "b"}, names)

	assert.True(t, r.Tables().Table(metadata.TableFieldPtr).Released())

	owner, ok, err := r.ListOwner(image.TypeFields, 1, true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint32(2), owner)

	phys, err := r.Physical(metadata.TableField, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), phys)
	logical, err := r.Logical(metadata.TableField, 3)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), logical)
}

func TestKeepPointerTables(t *testing.T) {
	opts := image.DefaultOptions()
	opts.KeepPointerTables = true
	r, err := image.OpenWithOptions(pointerImage(t), "enc.dll", opts)
	require.NoError(t, err)
	_, err = r.Physical(metadata.TableField, 2)
	require.NoError(t, err)
	assert.False(t, r.Tables().Table(metadata.TableFieldPtr).Released())
}

func TestBadListColumn(t *testing.T) {
	f := newFixture(t)
	f.tw.Add(metadata.TableTypeDef, 0, f.str("A"), 0, 0, 2, 1)
	f.tw.Add(metadata.TableTypeDef, 0, f.str("B"), 0, 0, 1, 1)
	f.tw.Add(metadata.TableField, 0, f.str("x"), 0)
	r, err := image.Open(f.bytes(metadata.StreamTables), "bad.dll")
	require.NoError(t, err)

	_, err = r.ListRange(image.TypeFields, 1)
	require.Error(t, err)
	assert.True(t, errors.IsFormat(err))
	assert.Error(t, r.Prewarm(context.Background()))
}

func TestPrewarmConcurrent(t *testing.T) {
	r := openSample(t)
	require.NoError(t, r.Prewarm(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, []uint32{2, 3}, r.CustomAttributes(tok(metadata.TableTypeDef, 2)))
			rng, err := r.ListRange(image.TypeFields, 3)
			assert.NoError(t, err)
			assert.Equal(t, 2, rng.Len())
			assert.Equal(t, uint32(4), r.FieldDataSize(2))
		}()
	}
	wg.Wait()
}

func TestPrewarmCancelled(t *testing.T) {
	r := openSample(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Prewarm(ctx), context.Canceled)
}

func TestSnapshotRestore(t *testing.T) {
	data := pointerImage(t)
	src, err := image.Open(data, "enc.dll")
	require.NoError(t, err)
	snap, err := src.Snapshot(context.Background())
	require.NoError(t, err)

	dst, err := image.Open(data, "enc.dll")
	require.NoError(t, err)
	require.NoError(t, dst.Restore(snap))
	assert.True(t, dst.Tables().Table(metadata.TableFieldPtr).Released())

	members, err := dst.ListMembers(image.TypeFields, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint32{3, 2}, members)

	sample := sampleImage(t)
	a, err := image.Open(sample, "sample.dll")
	require.NoError(t, err)
	snap, err = a.Snapshot(context.Background())
	require.NoError(t, err)
	b, err := image.Open(sample, "sample.dll")
	require.NoError(t, err)
	require.NoError(t, b.Restore(snap))
	assert.Equal(t, []uint32{2, 3}, b.CustomAttributes(tok(metadata.TableTypeDef, 2)))
	assert.Equal(t, uint32(12), b.FieldDataSize(1))

	again, err := b.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap, again)
}

func TestRestoreRejectsMismatch(t *testing.T) {
	src, err := image.Open(sampleImage(t), "sample.dll")
	require.NoError(t, err)
	snap, err := src.Snapshot(context.Background())
	require.NoError(t, err)

	other, err := image.Open(pointerImage(t), "enc.dll")
	require.NoError(t, err)
	assert.Error(t, other.Restore(snap))

	same, err := image.Open(sampleImage(t), "sample.dll")
	require.NoError(t, err)
	assert.Error(t, same.Restore(snap[:len(snap)-1]))
	assert.Error(t, same.Restore(append(append([]byte{}, snap...), 0)))
	assert.Error(t, same.Restore([]byte{9}))
}
