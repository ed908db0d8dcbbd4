package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad    Phase = "load"    // image parsing
	PhaseDecode  Phase = "decode"  // method body / signature decoding
	PhaseEncode  Phase = "encode"  // method body / signature encoding
	PhaseBuild   Phase = "build"   // table builder
	PhaseResolve Phase = "resolve" // token and row lookups
	PhaseRead    Phase = "read"    // image reader indexes
	PhaseConfig  Phase = "config"  // configuration loading
	PhaseCache   Phase = "cache"   // persisted index cache
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidData      Kind = "invalid_data"
	KindTruncated        Kind = "truncated"
	KindUnknownOpcode    Kind = "unknown_opcode"
	KindCodeSizeMismatch Kind = "code_size_mismatch"
	KindInvalidSignature Kind = "invalid_signature"
	KindNotFound         Kind = "not_found"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindOverflow         Kind = "overflow"
	KindUnsupported      Kind = "unsupported"
	KindInvalidInput     Kind = "invalid_input"

	// Build-contract kinds. These originate from the in-memory graph.
	KindEntryPointNotFound    Kind = "entry_point_not_found"
	KindNativeBodyUnsupported Kind = "native_body_unsupported"
	KindVariableStack         Kind = "variable_stack"
	KindUnresolvedReference   Kind = "unresolved_reference"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Location string // image name or path
	Detail   string
	Path     []string
	Offset   int64 // byte offset inside the image, -1 when unknown
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Location != "" || e.Offset >= 0 {
		b.WriteString(" (")
		if e.Location != "" {
			b.WriteString(e.Location)
		}
		if e.Offset >= 0 {
			if e.Location != "" {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "@0x%x", e.Offset)
		}
		b.WriteByte(')')
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase:  phase,
			Kind:   kind,
			Offset: -1,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Location sets the image location
func (b *Builder) Location(loc string) *Builder {
	b.err.Location = loc
	return b
}

// Offset sets the byte offset inside the image
func (b *Builder) Offset(off int64) *Builder {
	b.err.Offset = off
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Format-error constructors

// Load creates a format error carrying the offending image location.
func Load(location string, offset int64, kind Kind, detail string, cause error) *Error {
	return &Error{
		Phase:    PhaseLoad,
		Kind:     kind,
		Location: location,
		Offset:   offset,
		Detail:   detail,
		Cause:    cause,
	}
}

// Decode creates a method body or signature decoding error.
func Decode(location string, offset int64, kind Kind, detail string, cause error) *Error {
	return &Error{
		Phase:    PhaseDecode,
		Kind:     kind,
		Location: location,
		Offset:   offset,
		Detail:   detail,
		Cause:    cause,
	}
}

// UnknownOpcode creates an unrecognized opcode error.
func UnknownOpcode(location string, offset int64, b0, b1 byte) *Error {
	detail := fmt.Sprintf("unknown opcode 0x%02x", b0)
	if b0 == 0xFE {
		detail = fmt.Sprintf("unknown opcode 0xfe 0x%02x", b1)
	}
	return &Error{
		Phase:    PhaseDecode,
		Kind:     KindUnknownOpcode,
		Location: location,
		Offset:   offset,
		Detail:   detail,
		Value:    b0,
	}
}

// InvalidSignature creates an unresolvable or malformed signature blob error.
func InvalidSignature(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidSignature,
		Detail: detail,
		Cause:  cause,
		Offset: -1,
	}
}

// Build-contract constructors

// EntryPointNotFound is returned when the configured entry point is not
// among the module's definitions.
func EntryPointNotFound(name string) *Error {
	return &Error{
		Phase:  PhaseBuild,
		Kind:   KindEntryPointNotFound,
		Detail: fmt.Sprintf("entry point %q is not a definition of this module", name),
		Offset: -1,
	}
}

// NativeBodyUnsupported is returned when a native method body must be
// emitted but the active configuration does not allow it.
func NativeBodyUnsupported(method string) *Error {
	return &Error{
		Phase:  PhaseBuild,
		Kind:   KindNativeBodyUnsupported,
		Detail: fmt.Sprintf("method %q has a native body and native emission is disabled", method),
		Offset: -1,
	}
}

// VariableStack is returned when an opcode claims variable stack behaviour
// outside call, callvirt, calli, newobj and ret.
func VariableStack(opcode string) *Error {
	return &Error{
		Phase:  PhaseBuild,
		Kind:   KindVariableStack,
		Detail: fmt.Sprintf("opcode %s has variable stack behaviour without a call-site signature", opcode),
		Value:  opcode,
		Offset: -1,
	}
}

// UnresolvedReference is returned when a graph object cannot be mapped to a row.
func UnresolvedReference(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnresolvedReference,
		Detail: what,
		Offset: -1,
	}
}

// Resolution-miss constructors

// NotFound creates a not-found error
func NotFound(phase Phase, what string, id any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %v not found", what, id),
		Value:  id,
		Offset: -1,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
		Offset: -1,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, target string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Detail: fmt.Sprintf("value %v overflows %s", value, target),
		Value:  value,
		Offset: -1,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
		Offset: -1,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
		Offset: -1,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
		Offset: -1,
	}
}

// Classification helpers

// IsFormat reports whether err is a format error: the bytes of the image
// are malformed, truncated or unrecognized.
func IsFormat(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	if e.Phase != PhaseLoad && e.Phase != PhaseDecode {
		return false
	}
	switch e.Kind {
	case KindInvalidData, KindTruncated, KindUnknownOpcode, KindCodeSizeMismatch,
		KindInvalidSignature, KindOutOfBounds, KindOverflow:
		return true
	}
	return false
}

// IsContract reports whether err is a build-contract error originating from
// the in-memory graph rather than from bytes.
func IsContract(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindEntryPointNotFound, KindNativeBodyUnsupported, KindVariableStack, KindUnresolvedReference:
		return true
	}
	return false
}

// IsNotFound reports whether err is a resolution miss.
func IsNotFound(err error) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Kind == KindNotFound
}
