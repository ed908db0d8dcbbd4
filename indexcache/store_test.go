package indexcache_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/clrmeta/builder"
	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/indexcache"
	"github.com/wippyai/clrmeta/model"
	"github.com/wippyai/clrmeta/signature"
)

// buildImage returns the metadata root of a module with one type holding
// the given number of static void methods.
func buildImage(t *testing.T, name string, methods int) []byte {
	t.Helper()
	m := model.NewModule(name)
	td := &model.TypeDef{Flags: 0x00100001, Namespace: "Cache", TypeName: "Holder"}
	for i := range methods {
		td.Methods = append(td.Methods, &model.MethodDef{
			Flags:         0x0096,
			MethodName:    "M" + string(rune('A'+i)),
			DeclaringType: td,
			Signature:     &signature.MethodSig{Return: signature.Primitive(signature.ElemVoid)},
		})
	}
	m.Types = append(m.Types, td)
	res, err := builder.NewWithDefaults().Build(m)
	require.NoError(t, err)
	return res.Metadata
}

func open(t *testing.T, data []byte) *image.Reader {
	t.Helper()
	r, err := image.Open(data, "cache.dll")
	require.NoError(t, err)
	return r
}

func TestWarm(t *testing.T) {
	ctx := context.Background()
	store, err := indexcache.Open(ctx, filepath.Join(t.TempDir(), "idx.db"), indexcache.DefaultOptions())
	require.NoError(t, err)
	defer store.Close()

	data := buildImage(t, "warm.dll", 3)
	cold := open(t, data)
	hit, err := store.Warm(ctx, data, cold)
	require.NoError(t, err)
	assert.False(t, hit)

	warm := open(t, data)
	hit, err = store.Warm(ctx, data, warm)
	require.NoError(t, err)
	assert.True(t, hit)

	want, err := cold.ListMembers(image.TypeMethods, 2)
	require.NoError(t, err)
	got, err := warm.ListMembers(image.TypeMethods, 2)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Len(t, got, 3)

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, indexcache.Key(data), entries[0].Key)
	assert.Equal(t, "cache.dll", entries[0].Location)
	assert.Equal(t, int64(1), entries[0].Hits)
	assert.Positive(t, entries[0].Size)
}

func TestPersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "idx.db")
	data := buildImage(t, "persist.dll", 2)

	store, err := indexcache.Open(ctx, path, indexcache.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, data, open(t, data)))
	require.NoError(t, store.Close())

	store, err = indexcache.Open(ctx, path, indexcache.DefaultOptions())
	require.NoError(t, err)
	defer store.Close()
	hit, err := store.Restore(ctx, data, open(t, data))
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestRestoreMiss(t *testing.T) {
	ctx := context.Background()
	store, err := indexcache.Open(ctx, ":memory:", indexcache.DefaultOptions())
	require.NoError(t, err)
	defer store.Close()

	data := buildImage(t, "miss.dll", 1)
	hit, err := store.Restore(ctx, data, open(t, data))
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestStaleEntryIsDropped(t *testing.T) {
	ctx := context.Background()
	store, err := indexcache.Open(ctx, ":memory:", indexcache.DefaultOptions())
	require.NoError(t, err)
	defer store.Close()

	a := buildImage(t, "a.dll", 1)
	b := buildImage(t, "b.dll", 4)
	require.NoError(t, store.Put(ctx, a, open(t, a)))

	// same key, different image
	hit, err := store.Restore(ctx, a, open(t, b))
	require.NoError(t, err)
	assert.False(t, hit)

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEviction(t *testing.T) {
	ctx := context.Background()
	store, err := indexcache.Open(ctx, ":memory:", indexcache.Options{MaxEntries: 1})
	require.NoError(t, err)
	defer store.Close()

	a := buildImage(t, "a.dll", 1)
	b := buildImage(t, "b.dll", 2)
	require.NoError(t, store.Put(ctx, a, open(t, a)))
	require.NoError(t, store.Put(ctx, b, open(t, b)))

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	n, err := store.Evict(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestKey(t *testing.T) {
	a := buildImage(t, "a.dll", 1)
	assert.Equal(t, indexcache.Key(a), indexcache.Key(append([]byte(nil), a...)))
	assert.Len(t, indexcache.Key(a), 16)
	assert.NotEqual(t, indexcache.Key(a), indexcache.Key(buildImage(t, "b.dll", 1)))
}
