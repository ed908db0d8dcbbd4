package metadata

import "fmt"

// Token is a 32-bit cross-table reference: table kind in the high byte,
// 1-based row id in the low 24 bits. RID 0 is the null reference.
type Token uint32

// MaxRID is the largest row id a token can carry.
const MaxRID = 0x00FFFFFF

// NewToken packs a table kind and a RID into a token.
func NewToken(t Table, rid uint32) Token {
	return Token(uint32(t)<<24 | rid&MaxRID)
}

// Table returns the table-kind tag.
func (t Token) Table() Table {
	return Table(t >> 24)
}

// RID returns the row id.
func (t Token) RID() uint32 {
	return uint32(t) & MaxRID
}

// IsNull reports whether the token carries RID 0.
func (t Token) IsNull() bool {
	return t.RID() == 0
}

func (t Token) String() string {
	return fmt.Sprintf("%s[0x%08x]", t.Table(), uint32(t))
}
