// Package metadata implements the physical layer of ECMA-335 metadata:
// tokens, table kinds and their column schema, coded indexes, the four
// heaps and the tables stream, and the BSJB metadata root that ties the
// streams together.
//
// Reading is zero-copy: heaps and table rows alias the input bytes.
// Writing goes through interning heap writers and a TablesWriter that
// computes column widths from the final row counts, so callers add rows
// with full 32-bit values and let Encode pick 2- or 4-byte columns.
package metadata
