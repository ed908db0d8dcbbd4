package il

import (
	"github.com/wippyai/clrmeta/metadata"
	"github.com/wippyai/clrmeta/signature"
)

// HandlerKind is the clause kind of an exception handler.
type HandlerKind uint32

const (
	HandlerCatch   HandlerKind = 0x0
	HandlerFilter  HandlerKind = 0x1
	HandlerFinally HandlerKind = 0x2
	HandlerFault   HandlerKind = 0x4
)

func (k HandlerKind) String() string {
	switch k {
	case HandlerCatch:
		return "catch"
	case HandlerFilter:
		return "filter"
	case HandlerFinally:
		return "finally"
	case HandlerFault:
		return "fault"
	}
	return "unknown"
}

// ExceptionHandler is one clause of a method's exception table. Offsets
// and lengths are byte offsets into the owning body's code.
type ExceptionHandler struct {
	Kind          HandlerKind
	TryStart      uint32
	TryLength     uint32
	HandlerStart  uint32
	HandlerLength uint32
	FilterStart   uint32         // HandlerFilter only
	CatchType     any            // HandlerCatch only, resolved type
	CatchToken    metadata.Token // token CatchType was decoded from
}

// Body is a decoded method body.
type Body struct {
	MaxStack     uint16
	InitLocals   bool
	LocalVarSig  metadata.Token // token the locals were decoded from
	Locals       []*signature.TypeSig
	Instructions []Instruction
	Handlers     []ExceptionHandler
}

// Resolver turns operand tokens into references while decoding. It is
// implemented by the object-graph loader.
type Resolver interface {
	// ResolveToken resolves a field, method, type or stand-alone signature
	// token. sig is the call-site signature for method and calli operands.
	ResolveToken(tok metadata.Token) (ref any, sig *signature.MethodSig, err error)
	// ResolveUserString returns the #US literal named by an ldstr token.
	ResolveUserString(tok metadata.Token) (string, error)
	// ResolveLocals decodes the local variable signature named by tok.
	ResolveLocals(tok metadata.Token) ([]*signature.TypeSig, error)
}

// TokenProvider maps references back to tokens while encoding. It is
// implemented by the table builder, which interns rows on demand.
type TokenProvider interface {
	Token(ref any) (metadata.Token, error)
	UserStringToken(s string) (metadata.Token, error)
	LocalsToken(locals []*signature.TypeSig) (metadata.Token, error)
}

// Location identifies a body inside an image for error reporting.
type Location struct {
	Image string
	RVA   uint32
}

// TinyMaxStack is the implicit max stack of a tiny header.
const TinyMaxStack = 8

const (
	tinyMaxCodeSize = 0x40

	headerTiny       = 0x2
	headerFat        = 0x3
	headerFormatMask = 0x3
	flagMoreSects    = 0x08
	flagInitLocals   = 0x10
	fatHeaderDwords  = 3

	sectEHTable   = 0x01
	sectOptIL     = 0x02
	sectFatFormat = 0x40
	sectMoreSects = 0x80

	tinyClauseSize = 12
	fatClauseSize  = 24
)

// IsTinyCandidate reports whether the body can use the tiny header: code
// below 0x40 bytes, no locals, no handlers and max stack at most 8.
func IsTinyCandidate(b *Body) bool {
	return CodeSize(b.Instructions) < tinyMaxCodeSize &&
		len(b.Locals) == 0 && b.LocalVarSig.IsNull() &&
		len(b.Handlers) == 0 &&
		b.MaxStack <= TinyMaxStack
}

// NormalizeMaxStack returns a copy of b whose max stack is lowered to the
// tiny-header value when b is otherwise tiny-eligible. b is not modified.
func NormalizeMaxStack(b *Body) *Body {
	out := *b
	if out.MaxStack > TinyMaxStack &&
		CodeSize(out.Instructions) < tinyMaxCodeSize &&
		len(out.Locals) == 0 && out.LocalVarSig.IsNull() &&
		len(out.Handlers) == 0 {
		out.MaxStack = TinyMaxStack
	}
	return &out
}

// needsFatSection reports whether handlers must use the fat EH encoding.
func needsFatSection(handlers []ExceptionHandler) bool {
	if len(handlers)*tinyClauseSize+4 > 0xFF {
		return true
	}
	for _, h := range handlers {
		if h.TryStart > 0xFFFF || h.HandlerStart > 0xFFFF ||
			h.TryLength > 0xFF || h.HandlerLength > 0xFF {
			return true
		}
	}
	return false
}
