package builder

import (
	"bytes"
	"encoding/binary"

	"github.com/zeebo/xxh3"

	"github.com/wippyai/clrmeta/metadata"
)

// internIndex maps row content to the RID it was first emitted at. Heap
// columns are offsets into interning heaps, so equal rows mean equal
// content.
type internIndex struct {
	table   metadata.Table
	buckets map[uint64][]internEntry
	hits    int
	misses  int
}

type internEntry struct {
	key []byte
	rid uint32
}

func newInternIndex(t metadata.Table) *internIndex {
	return &internIndex{table: t, buckets: make(map[uint64][]internEntry)}
}

func rowKey(row []uint32) []byte {
	key := make([]byte, 4*len(row))
	for i, v := range row {
		binary.LittleEndian.PutUint32(key[4*i:], v)
	}
	return key
}

// intern returns the RID of row, appending it to tw on first sight.
func (x *internIndex) intern(tw *metadata.TablesWriter, row []uint32) (rid uint32, added bool) {
	key := rowKey(row)
	h := xxh3.Hash(key)
	for _, e := range x.buckets[h] {
		if bytes.Equal(e.key, key) {
			x.hits++
			return e.rid, false
		}
	}
	x.misses++
	rid = tw.Add(x.table, row...)
	x.buckets[h] = append(x.buckets[h], internEntry{key: key, rid: rid})
	return rid, true
}
