// Package model is the in-memory object graph of a module: type
// definitions and references with their members, signatures and IL bodies,
// linked by pointers instead of tokens.
//
// Load builds a graph from an image.Reader; the builder package turns a
// graph back into metadata tables. Union-typed references such as
// TypeDefOrRef mirror the coded index columns and are sealed to the graph
// types that may appear in them.
package model
