package image

import (
	"sync"

	"github.com/wippyai/clrmeta/metadata"
	"github.com/wippyai/clrmeta/signature"
)

const (
	fieldStatic  = 0x0010
	maxTypeDepth = 16
)

// fieldDataIndex memoizes the data size of each FieldRVA row; -1 marks a
// row not yet computed.
type fieldDataIndex struct {
	once  sync.Once
	mu    sync.Mutex
	sizes []int64
}

func (r *Reader) fieldSizes() *fieldDataIndex {
	fd := &r.fieldData
	fd.once.Do(func() {
		fd.sizes = make([]int64, r.tables.RowCount(metadata.TableFieldRVA))
		for i := range fd.sizes {
			fd.sizes[i] = -1
		}
	})
	return fd
}

// FieldDataSize returns the byte size of the data a FieldRVA row points
// at, derived from the field's type. The size is computed on first access
// and memoized. It is zero when the type's size is not statically known.
func (r *Reader) FieldDataSize(fieldRVA uint32) uint32 {
	fd := r.fieldSizes()
	if fieldRVA == 0 || int(fieldRVA) > len(fd.sizes) {
		return 0
	}
	fd.mu.Lock()
	v := fd.sizes[fieldRVA-1]
	fd.mu.Unlock()
	if v >= 0 {
		return uint32(v)
	}

	field := r.tables.Column(metadata.TableFieldRVA, fieldRVA, 1)
	size := r.fieldTypeSize(field, 0)

	fd.mu.Lock()
	fd.sizes[fieldRVA-1] = int64(size)
	fd.mu.Unlock()
	return size
}

func (r *Reader) fieldTypeSize(field uint32, depth int) uint32 {
	if !r.Has(metadata.TableField, field) {
		return 0
	}
	blob, err := r.Blob(r.tables.Column(metadata.TableField, field, 2))
	if err != nil {
		return 0
	}
	sig, err := signature.DecodeField(blob, nil)
	if err != nil {
		return 0
	}
	return r.typeSize(sig.Type, depth)
}

func (r *Reader) typeSize(t *signature.TypeSig, depth int) uint32 {
	t = t.StripModifiers()
	if t == nil || depth > maxTypeDepth {
		return 0
	}
	switch t.Elem {
	case signature.ElemBoolean, signature.ElemI1, signature.ElemU1:
		return 1
	case signature.ElemChar, signature.ElemI2, signature.ElemU2:
		return 2
	case signature.ElemI4, signature.ElemU4, signature.ElemR4:
		return 4
	case signature.ElemI8, signature.ElemU8, signature.ElemR8:
		return 8
	case signature.ElemValueType:
		ref, ok := t.Type.(signature.TokenRef)
		if !ok || ref.Token.Table() != metadata.TableTypeDef {
			return 0
		}
		return r.valueTypeSize(ref.Token.RID(), depth+1)
	}
	return 0
}

// valueTypeSize uses an explicit class size when present and the
// underlying type for enums.
func (r *Reader) valueTypeSize(typeDef uint32, depth int) uint32 {
	tok := metadata.NewToken(metadata.TableTypeDef, typeDef)
	if row, ok, _ := r.Find(KeyClassLayout, tok, false); ok {
		if size := r.tables.Column(metadata.TableClassLayout, row, 1); size > 0 {
			return size
		}
	}
	if !r.isEnum(typeDef) {
		return 0
	}
	fields, err := r.ListMembers(TypeFields, typeDef)
	if err != nil {
		return 0
	}
	for _, f := range fields {
		if r.tables.Column(metadata.TableField, f, 0)&fieldStatic == 0 {
			return r.fieldTypeSize(f, depth)
		}
	}
	return 0
}

func (r *Reader) isEnum(typeDef uint32) bool {
	ext := r.Token(metadata.TableTypeDef, typeDef, 3)
	if ext.Table() != metadata.TableTypeRef || !r.HasToken(ext) {
		return false
	}
	row, err := r.TypeRef(ext.RID())
	return err == nil && row.Namespace == "System" && row.Name == "Enum"
}
