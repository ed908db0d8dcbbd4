// Package builder lowers a model.Module back into metadata tables, heaps
// and method bodies.
//
// A build runs in three steps, which Build performs in order:
//
//	sess, err := b.Begin(mod) // assign definition RIDs
//	if err != nil {
//	    return err
//	}
//	if err := sess.EmitAll(); err != nil { // emit rows, intern references, encode bodies
//	    return err
//	}
//	res, err := sess.Finalize() // sort tables, lay out heaps, encode the root
//	if err != nil {
//	    return err
//	}
//
// Reference rows (TypeRef, TypeSpec, MemberRef, MethodSpec, StandAloneSig,
// AssemblyRef, ModuleRef) are interned: structurally equal references share
// one row. Definitions get RIDs in graph order, and Result keeps the map
// from every emitted row back to the RID it was loaded with.
//
// A Session is not safe for concurrent use. A Builder holds only options
// and may be shared.
package builder
