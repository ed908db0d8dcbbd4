package image

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/clrmeta/errors"
	bin "github.com/wippyai/clrmeta/internal/binary"
	"github.com/wippyai/clrmeta/metadata"
)

// SnapshotVersion identifies the layout written by Snapshot.
const SnapshotVersion = 1

// Prewarm builds every derived index concurrently so the reader can be
// shared without first-access contention.
func (r *Reader) Prewarm(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if r.options.PrewarmLimit > 0 {
		g.SetLimit(r.options.PrewarmLimit)
	}
	run := func(build func() error) {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return build()
		})
	}
	for slot := range numPointerTables {
		run(func() error {
			_, err := r.pointers(slot)
			return err
		})
	}
	for l := range numLists {
		run(func() error {
			_, err := r.list(l)
			return err
		})
	}
	for k := range numKeys {
		run(func() error {
			r.key(k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	Logger().Debug("reader prewarmed", zap.String("location", r.location))
	return nil
}

// Snapshot builds every derived index and serializes them with 7-bit
// varints. The result can be handed to Restore on a reader over the same
// image.
func (r *Reader) Snapshot(ctx context.Context) ([]byte, error) {
	if err := r.Prewarm(ctx); err != nil {
		return nil, err
	}
	for rid := uint32(1); rid <= r.tables.RowCount(metadata.TableFieldRVA); rid++ {
		r.FieldDataSize(rid)
	}

	w := bin.NewWriter()
	w.WriteUvarint(SnapshotVersion)
	w.WriteUvarint(metadata.NumTables)
	for t := metadata.Table(0); t < metadata.NumTables; t++ {
		w.WriteUvarint(uint64(r.tables.RowCount(t)))
	}

	writeSlice := func(vs []uint32) {
		w.WriteUvarint(uint64(len(vs)))
		for _, v := range vs {
			w.WriteUvarint(uint64(v))
		}
	}
	for i := range r.ptrs {
		writeSlice(r.ptrs[i].physical)
	}
	for i := range r.lists {
		writeSlice(r.lists[i].starts)
	}
	for i := range r.keys {
		ki := &r.keys[i]
		writeSlice(ki.owners)
		if ki.permuted {
			w.Byte(1)
			writeSlice(ki.rids)
		} else {
			w.Byte(0)
		}
	}

	fd := r.fieldSizes()
	fd.mu.Lock()
	w.WriteUvarint(uint64(len(fd.sizes)))
	for _, s := range fd.sizes {
		w.WriteUvarint(uint64(s + 1))
	}
	fd.mu.Unlock()
	return w.Bytes(), nil
}

type snapshot struct {
	ptrs      [numPointerTables][]uint32
	lists     [numLists][]uint32
	owners    [numKeys][]uint32
	rids      [numKeys][]uint32
	permuted  [numKeys]bool
	fieldData []int64
}

func cacheError(detail string, cause error) error {
	return errors.New(errors.PhaseCache, errors.KindInvalidData).Cause(cause).Detail("snapshot: %s", detail).Build()
}

// Restore installs indexes serialized by Snapshot. Indexes already built
// are left as they are. The snapshot must come from an image with the same
// row counts.
func (r *Reader) Restore(data []byte) error {
	s, err := r.parseSnapshot(data)
	if err != nil {
		return err
	}

	for slot := range r.ptrs {
		p := &r.ptrs[slot]
		physical := s.ptrs[slot]
		p.once.Do(func() {
			if len(physical) == 0 {
				return
			}
			p.physical = physical
			p.logical = make([]uint32, r.tables.RowCount(pointerTables[slot].logical))
			for i, v := range physical {
				p.logical[v-1] = uint32(i + 1)
			}
			r.releasePointerTable(slot)
		})
	}
	for l := range r.lists {
		li := &r.lists[l]
		li.once.Do(func() { li.starts = s.lists[l] })
	}
	for k := range r.keys {
		ki := &r.keys[k]
		ki.once.Do(func() {
			ki.owners, ki.rids, ki.permuted = s.owners[k], s.rids[k], s.permuted[k]
		})
	}

	fd := r.fieldSizes()
	fd.mu.Lock()
	for i, v := range s.fieldData {
		if v >= 0 && fd.sizes[i] < 0 {
			fd.sizes[i] = v
		}
	}
	fd.mu.Unlock()

	Logger().Debug("reader indexes restored", zap.String("location", r.location), zap.Int("bytes", len(data)))
	return nil
}

func (r *Reader) parseSnapshot(data []byte) (*snapshot, error) {
	rd := bin.NewReader(data)
	version, err := rd.ReadUvarint()
	if err != nil {
		return nil, cacheError("header", err)
	}
	if version != SnapshotVersion {
		return nil, cacheError(fmt.Sprintf("version %d, want %d", version, SnapshotVersion), nil)
	}
	n, err := rd.ReadUvarint()
	if err != nil || n != metadata.NumTables {
		return nil, cacheError("table count", err)
	}
	for t := metadata.Table(0); t < metadata.NumTables; t++ {
		rows, err := rd.ReadUvarint32()
		if err != nil {
			return nil, cacheError("row counts", err)
		}
		if rows != r.tables.RowCount(t) {
			return nil, cacheError(fmt.Sprintf("%s has %d rows, snapshot has %d", t, r.tables.RowCount(t), rows), nil)
		}
	}

	readSlice := func(what string, want int, limit uint32) ([]uint32, error) {
		n, err := rd.ReadUvarint32()
		if err != nil {
			return nil, cacheError(what, err)
		}
		if n == 0 {
			return nil, nil
		}
		if want >= 0 && int(n) != want {
			return nil, cacheError(fmt.Sprintf("%s has %d entries, want %d", what, n, want), nil)
		}
		if int(n) > rd.Len() {
			return nil, cacheError(what, fmt.Errorf("%d entries exceed %d remaining bytes", n, rd.Len()))
		}
		out := make([]uint32, n)
		for i := range out {
			if out[i], err = rd.ReadUvarint32(); err != nil {
				return nil, cacheError(what, err)
			}
			if out[i] > limit {
				return nil, cacheError(fmt.Sprintf("%s entry %d is %d", what, i, out[i]), nil)
			}
		}
		return out, nil
	}

	s := &snapshot{}
	for slot, pt := range pointerTables {
		rows := r.tables.RowCount(pt.logical)
		if s.ptrs[slot], err = readSlice(pt.ptr.String(), int(r.tables.RowCount(pt.ptr)), rows); err != nil {
			return nil, err
		}
		if s.ptrs[slot] == nil && r.tables.RowCount(pt.ptr) > 0 {
			return nil, cacheError(pt.ptr.String()+" is missing", nil)
		}
		for _, v := range s.ptrs[slot] {
			if v == 0 {
				return nil, cacheError(pt.ptr.String()+" has a null entry", nil)
			}
		}
	}
	for l := range numLists {
		owners := int(r.tables.RowCount(l.Owner()))
		if s.lists[l], err = readSlice(l.String(), owners+1, r.LogicalCount(l.Child())+1); err != nil {
			return nil, err
		}
		if s.lists[l] == nil {
			return nil, cacheError(l.String()+" is missing", nil)
		}
	}
	for k := range numKeys {
		rows := int(r.tables.RowCount(k.Table()))
		if s.owners[k], err = readSlice(k.String(), rows, ^uint32(0)); err != nil {
			return nil, err
		}
		flag, err := rd.ReadByte()
		if err != nil {
			return nil, cacheError(k.String(), err)
		}
		s.permuted[k] = flag == 1
		if s.permuted[k] {
			if s.rids[k], err = readSlice(k.String(), rows, uint32(rows)); err != nil {
				return nil, err
			}
		} else if rows > 0 {
			s.rids[k] = make([]uint32, rows)
			for i := range s.rids[k] {
				s.rids[k][i] = uint32(i + 1)
			}
		}
		if s.owners[k] == nil && rows > 0 {
			return nil, cacheError(k.String()+" is missing", nil)
		}
	}

	sizes, err := rd.ReadUvarint32()
	if err != nil {
		return nil, cacheError("field data", err)
	}
	if sizes != r.tables.RowCount(metadata.TableFieldRVA) {
		return nil, cacheError(fmt.Sprintf("field data has %d entries", sizes), nil)
	}
	s.fieldData = make([]int64, sizes)
	for i := range s.fieldData {
		v, err := rd.ReadUvarint32()
		if err != nil {
			return nil, cacheError("field data", err)
		}
		s.fieldData[i] = int64(v) - 1
	}
	if rd.Len() != 0 {
		return nil, cacheError(fmt.Sprintf("%d trailing bytes", rd.Len()), nil)
	}
	return s, nil
}
