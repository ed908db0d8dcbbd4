// Package signature decodes and encodes the signature blobs of the #Blob
// heap: method, field, property, local variable, type spec and method
// spec signatures.
//
// Type references embedded in a blob are surfaced through the
// TypeDefOrRef interface. Decoding takes a ResolveFunc that turns the
// embedded token into a reference; encoding takes a TokenFunc that maps it
// back, so a signature loaded from one image can be re-emitted against the
// RIDs of another.
package signature
