package image

import (
	stderrors "errors"
	"io"

	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/errors"
	bin "github.com/wippyai/clrmeta/internal/binary"
	"github.com/wippyai/clrmeta/metadata"
)

// Options configures a Reader.
type Options struct {
	// PrewarmLimit bounds the number of indexes Prewarm builds at once.
	// Zero or negative means no limit.
	PrewarmLimit int
	// KeepPointerTables retains the physical pointer table rows after the
	// logical-to-physical translation has been cached.
	KeepPointerTables bool
}

// DefaultOptions returns the default reader configuration.
func DefaultOptions() Options {
	return Options{PrewarmLimit: 4}
}

// Heaps groups the four metadata heaps of an image.
type Heaps struct {
	Strings     *metadata.StringsHeap
	Blob        *metadata.BlobHeap
	GUID        *metadata.GUIDHeap
	UserStrings *metadata.UserStringsHeap
}

// Reader is read-only, lazily indexed access to the tables of one image.
// Row reads are pass-through to the tables stream. Derived indexes are
// built on first use, at most once each, and are safe to build from
// multiple goroutines.
type Reader struct {
	location string
	options  Options
	root     *metadata.Root
	tables   *metadata.Tables
	heaps    Heaps

	ptrs      [numPointerTables]pointerIndex
	lists     [numLists]listIndex
	keys      [numKeys]keyIndex
	fieldData fieldDataIndex
}

// Open parses a metadata root and its streams with default options.
func Open(data []byte, location string) (*Reader, error) {
	return OpenWithOptions(data, location, DefaultOptions())
}

// OpenWithOptions parses a metadata root and its streams. location names
// the image in errors.
func OpenWithOptions(data []byte, location string, opts Options) (*Reader, error) {
	root, err := metadata.ParseRoot(data)
	if err != nil {
		return nil, loadError(location, "metadata root", err)
	}

	raw, ok := root.Stream(metadata.StreamTables)
	uncompressed := false
	if !ok {
		if raw, ok = root.Stream(metadata.StreamTablesUnopt); !ok {
			return nil, errors.Load(location, 0, errors.KindInvalidData, "no tables stream", nil)
		}
		uncompressed = true
	}
	tables, err := metadata.ParseTables(raw, uncompressed)
	if err != nil {
		return nil, loadError(location, "tables stream", err)
	}

	stream := func(name string) []byte {
		b, _ := root.Stream(name)
		return b
	}
	heaps := Heaps{
		Strings:     metadata.NewStringsHeap(stream(metadata.StreamStrings)),
		Blob:        metadata.NewBlobHeap(stream(metadata.StreamBlob)),
		GUID:        metadata.NewGUIDHeap(stream(metadata.StreamGUID)),
		UserStrings: metadata.NewUserStringsHeap(stream(metadata.StreamUserStrings)),
	}

	r := New(tables, heaps, location, opts)
	r.root = root
	Logger().Debug("opened metadata image",
		zap.String("location", location),
		zap.String("version", root.Version),
		zap.Int("streams", len(root.Streams)),
		zap.Bool("uncompressed", uncompressed))
	return r, nil
}

// New wraps already parsed tables and heaps. Nil heaps are treated as
// empty.
func New(tables *metadata.Tables, heaps Heaps, location string, opts Options) *Reader {
	if heaps.Strings == nil {
		heaps.Strings = metadata.NewStringsHeap(nil)
	}
	if heaps.Blob == nil {
		heaps.Blob = metadata.NewBlobHeap(nil)
	}
	if heaps.GUID == nil {
		heaps.GUID = metadata.NewGUIDHeap(nil)
	}
	if heaps.UserStrings == nil {
		heaps.UserStrings = metadata.NewUserStringsHeap(nil)
	}
	return &Reader{
		location: location,
		options:  opts,
		tables:   tables,
		heaps:    heaps,
	}
}

func loadError(location, section string, err error) error {
	kind := errors.KindInvalidData
	if stderrors.Is(err, io.ErrUnexpectedEOF) || stderrors.Is(err, io.EOF) {
		kind = errors.KindTruncated
	}
	var off int64
	var pe *bin.ParseError
	if stderrors.As(err, &pe) {
		off = int64(pe.Position)
	}
	return errors.Load(location, off, kind, section, err)
}

// Location returns the name the image was opened with.
func (r *Reader) Location() string { return r.location }

// Root returns the metadata root, or nil for readers created with New.
func (r *Reader) Root() *metadata.Root { return r.root }

// Tables returns the parsed tables stream.
func (r *Reader) Tables() *metadata.Tables { return r.tables }

// Heaps returns the image heaps.
func (r *Reader) Heaps() Heaps { return r.heaps }

// RowCount returns the number of physical rows of t.
func (r *Reader) RowCount(t metadata.Table) uint32 {
	return r.tables.RowCount(t)
}

// Has reports whether rid is a row of t.
func (r *Reader) Has(t metadata.Table, rid uint32) bool {
	return rid != 0 && rid <= r.tables.RowCount(t)
}

// HasToken reports whether tok names an existing row.
func (r *Reader) HasToken(tok metadata.Token) bool {
	return tok.Table().Valid() && r.Has(tok.Table(), tok.RID())
}

// Column returns the raw value of column col of row rid of t.
func (r *Reader) Column(t metadata.Table, rid uint32, col int) uint32 {
	return r.tables.Column(t, rid, col)
}

// Row returns every raw column of row rid of t.
func (r *Reader) Row(t metadata.Table, rid uint32) ([]uint32, error) {
	if !r.Has(t, rid) {
		return nil, errors.NotFound(errors.PhaseRead, t.String(), rid)
	}
	return r.tables.Row(t, rid), nil
}

// Token returns column col of row rid of t as a token. Coded and simple
// table index columns are decoded; other columns are returned raw.
func (r *Reader) Token(t metadata.Table, rid uint32, col int) metadata.Token {
	v := r.tables.Column(t, rid, col)
	c := metadata.Columns(t)[col]
	switch c.Kind {
	case metadata.ColCoded:
		return c.Coded.Decode(v)
	case metadata.ColTable:
		if v == 0 {
			return 0
		}
		return metadata.NewToken(c.Table, v)
	}
	return metadata.Token(v)
}

// String returns the #Strings entry at off.
func (r *Reader) String(off uint32) (string, error) {
	s, err := r.heaps.Strings.Get(off)
	if err != nil {
		return "", errors.Load(r.location, int64(off), errors.KindInvalidData, "#Strings", err)
	}
	return s, nil
}

// Blob returns the #Blob entry at off.
func (r *Reader) Blob(off uint32) ([]byte, error) {
	b, err := r.heaps.Blob.Get(off)
	if err != nil {
		return nil, errors.Load(r.location, int64(off), errors.KindInvalidData, "#Blob", err)
	}
	return b, nil
}

// GUID returns the 1-based #GUID entry index.
func (r *Reader) GUID(index uint32) (metadata.GUID, error) {
	g, err := r.heaps.GUID.Get(index)
	if err != nil {
		return metadata.GUID{}, errors.Load(r.location, int64(index), errors.KindInvalidData, "#GUID", err)
	}
	return g, nil
}

// UserString returns the #US literal named by an ldstr token or offset.
func (r *Reader) UserString(tok metadata.Token) (string, error) {
	s, err := r.heaps.UserStrings.Get(tok.RID())
	if err != nil {
		return "", errors.Load(r.location, int64(tok.RID()), errors.KindInvalidData, "#US", err)
	}
	return s, nil
}
