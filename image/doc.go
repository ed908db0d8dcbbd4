// Package image provides read-only, lazily indexed access to the metadata
// tables of a loaded image.
//
// Row reads go straight to the tables stream. Everything derived from the
// rows is built on first use and memoized:
//
//   - pointer-table translation for unoptimized (#-) streams, after which
//     the physical pointer rows are released
//   - list ranges such as type to fields and method to params, with reverse
//     lookup from a member to its owner by binary search
//   - foreign-key indexes over flat owner and RID arrays, with a stable
//     sort permutation for tables not stored in key order
//   - data sizes of FieldRVA rows
//
// Prewarm builds the indexes up front; Snapshot and Restore move them
// between processes. Lookups taking a mustExist flag return (0, false, nil)
// on a miss unless the flag is set, in which case the miss is a not_found
// error.
package image
