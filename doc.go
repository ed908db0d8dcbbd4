// Package clrmeta reads, models and rebuilds ECMA-335 CLI metadata and IL.
//
// The module covers the managed half of a .NET assembly: the metadata root
// with its heaps and tables, member signatures, and the method bodies that
// reference them. PE writing is left to the caller; the builder produces the
// metadata root together with the code, field data and resource blobs that go
// next to it.
//
// # Architecture Overview
//
//	clrmeta/
//	├── metadata/        Table schema, coded indexes, tokens, heaps, tables stream
//	├── signature/       Blob signature model, encoder and decoder
//	├── il/              Instruction catalog, stack effects, method body codec
//	├── image/           Metadata image reader with lazy indexes and snapshots
//	├── model/           Object graph of a module and its loader
//	├── builder/         Metadata table builder with interning and RID maps
//	├── indexcache/      SQLite cache of reader snapshots
//	├── config/          clrmeta.toml loading and validation
//	├── errors/          Structured error types
//	├── internal/binary  Little-endian reader/writer and compressed integers
//	├── internal/pefile  CLI header and section mapping of PE images
//	└── cmd/clrmeta      Command line tool
//
// # Quick Start
//
// Read a metadata root and load its object graph:
//
//	r, err := image.Open(data, "app.dll")
//	if err != nil {
//	    return err
//	}
//	m, err := model.Load(r, bodies, model.LoadOptions{EntryPoint: entry})
//
// Rebuild it:
//
//	res, err := builder.NewWithDefaults().Build(m)
//	// res.Metadata, res.Code, res.FieldData, res.Resources
//	newRID, ok := res.NewRID(metadata.TableMethodDef, oldRID)
//
// # Error Handling
//
// Errors carry a phase and a kind:
//
//	if errors.IsFormat(err) {
//	    // malformed input
//	}
//	var e *errors.Error
//	if stderrors.As(err, &e) && e.Kind == errors.KindEntryPointNotFound {
//	    // the entry point is not part of the module
//	}
package clrmeta
