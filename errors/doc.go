// Package errors provides structured error types for the clrmeta library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Three families matter to callers:
//
//   - Format errors: the image bytes are malformed (truncated tables,
//     unknown opcodes, a method body overrunning its code size). They carry
//     the image location and byte offset. See IsFormat.
//   - Build-contract errors: the in-memory graph asks for something the
//     builder cannot honor (entry point not among definitions, native bodies
//     while native emission is disabled, an opcode with variable stack
//     behaviour and no call-site signature). See IsContract.
//   - Resolution misses: a row or token lookup found nothing. Lookup APIs
//     take a mustExist flag so callers can opt into a nil result instead.
//     See IsNotFound.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindTruncated).
//		Location("app.dll").
//		Offset(0x2050).
//		Detail("method body ends inside an instruction").
//		Build()
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
