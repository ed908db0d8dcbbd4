package il_test

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/il"
	"github.com/wippyai/clrmeta/metadata"
	"github.com/wippyai/clrmeta/signature"
)

func TestCatalogBijective(t *testing.T) {
	all := il.All()
	if len(all) != 219 {
		t.Errorf("catalog has %d opcodes, want 219", len(all))
	}
	seen := make(map[uint16]*il.OpCode)
	for _, op := range all {
		if prev, ok := seen[op.Value]; ok {
			t.Fatalf("%s and %s share encoding 0x%04x", prev.Name, op.Name, op.Value)
		}
		seen[op.Value] = op

		b := op.Bytes()
		var second byte
		if len(b) == 2 {
			second = b[1]
		}
		if got := il.Lookup(b[0], second); got != op {
			t.Errorf("Lookup(% x) = %v, want %s", b, got, op.Name)
		}
		if got := il.ByName(op.Name); got != op {
			t.Errorf("ByName(%q) = %v", op.Name, got)
		}
		if got := il.ByValue(op.Value); got != op {
			t.Errorf("ByValue(0x%04x) = %v", op.Value, got)
		}
	}
}

func TestLookupUnused(t *testing.T) {
	if op := il.Lookup(0xA6, 0); op != nil {
		t.Errorf("0xa6 resolved to %s", op.Name)
	}
	if op := il.Lookup(0xFE, 0x08); op != nil {
		t.Errorf("0xfe 0x08 resolved to %s", op.Name)
	}
	if op := il.ByValue(0x1234); op != nil {
		t.Errorf("0x1234 resolved to %s", op.Name)
	}
}

func TestSize(t *testing.T) {
	tests := []struct {
		in   il.Instruction
		want int
	}{
		{il.Simple(il.Nop), 1},
		{il.WithInt(il.LdcI4S, 3), 2},
		{il.WithInt(il.LdcI4, 300), 5},
		{il.WithInt(il.LdcI8, 1), 9},
		{il.WithFloat(il.LdcR4, 1), 5},
		{il.WithFloat(il.LdcR8, 1), 9},
		{il.WithTarget(il.BrS, 0), 2},
		{il.WithTarget(il.Br, 0), 5},
		{il.WithInt(il.Ldloc, 300), 4},
		{il.WithInt(il.LdlocS, 3), 2},
		{il.WithRef(il.Call, nil, nil), 5},
		{il.Simple(il.Ceq), 2},
		{il.WithTargets(il.Switch, 0, 1, 2), 1 + 4 + 12},
		{il.WithTargets(il.Switch), 5},
	}
	for _, tt := range tests {
		if got := tt.in.Size(); got != tt.want {
			t.Errorf("%s: size %d, want %d", tt.in.OpCode.Name, got, tt.want)
		}
	}
}

func voidSig(instance bool, params ...*signature.TypeSig) *signature.MethodSig {
	return &signature.MethodSig{HasThis: instance, Return: signature.Primitive(signature.ElemVoid), Params: params}
}

func TestStackDeltaCalls(t *testing.T) {
	i4 := signature.Primitive(signature.ElemI4)
	intSig := &signature.MethodSig{Return: i4}

	tests := []struct {
		name      string
		in        il.Instruction
		enclosing *signature.MethodSig
		net       int
	}{
		{"call instance void()", il.WithRef(il.Call, nil, voidSig(true)), nil, -1},
		{"call static void()", il.WithRef(il.Call, nil, voidSig(false)), nil, 0},
		{"callvirt instance void(int32)", il.WithRef(il.Callvirt, nil, voidSig(true, i4)), nil, -2},
		{"call static int32()", il.WithRef(il.Call, nil, intSig), nil, 1},
		{"calli static int32(int32)", il.WithRef(il.Calli, nil, &signature.MethodSig{Return: i4, Params: []*signature.TypeSig{i4}}), nil, -1},
		{"newobj .ctor(int32, int32)", il.WithRef(il.Newobj, nil, voidSig(true, i4, i4)), nil, -1},
		{"ret void", il.Simple(il.Ret), voidSig(false), 0},
		{"ret int32", il.Simple(il.Ret), intSig, -1},
		{"ret without enclosing", il.Simple(il.Ret), nil, 0},
		{"add", il.Simple(il.Add), nil, -1},
		{"dup", il.Simple(il.Dup), nil, 1},
		{"stelem.ref", il.Simple(il.StelemRef), nil, -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eff, err := il.StackDelta(&tt.in, tt.enclosing)
			if err != nil {
				t.Fatalf("StackDelta: %v", err)
			}
			if eff.Net() != tt.net {
				t.Errorf("net = %d, want %d (%+v)", eff.Net(), tt.net, eff)
			}
		})
	}
}

func TestStackDeltaContract(t *testing.T) {
	in := il.WithRef(il.Call, nil, nil)
	_, err := il.StackDelta(&in, nil)
	if !errors.IsContract(err) {
		t.Fatalf("expected contract error, got %v", err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindVariableStack {
		t.Errorf("unexpected error %v", err)
	}
}

func tinyBody() *il.Body {
	b := &il.Body{
		MaxStack: 8,
		Instructions: []il.Instruction{
			il.Simple(il.Ldarg0),
			il.WithInt(il.LdcI4S, -5),
			il.Simple(il.Add),
			il.WithTarget(il.BrtrueS, 5),
			il.WithInt(il.LdcI4, 1000),
			il.Simple(il.Ret),
		},
	}
	il.Layout(b.Instructions)
	return b
}

func TestTinyRoundTrip(t *testing.T) {
	b := tinyBody()
	enc, err := il.EncodeBody(b, nil, il.EncodeOptions{})
	if err != nil {
		t.Fatalf("EncodeBody: %v", err)
	}
	if !enc.Tiny {
		t.Fatal("expected tiny encoding")
	}
	if len(enc.Bytes) != 1+12 {
		t.Errorf("encoded %d bytes", len(enc.Bytes))
	}

	got, n, err := il.DecodeBody(enc.Bytes, nil, il.Location{Image: "test"})
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if n != len(enc.Bytes) {
		t.Errorf("consumed %d of %d bytes", n, len(enc.Bytes))
	}
	if !reflect.DeepEqual(b, got) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, b)
	}
}

func nops(n int) []il.Instruction {
	out := make([]il.Instruction, n)
	for i := range out {
		out[i] = il.Simple(il.Nop)
	}
	return out
}

func TestFormatSelectionBoundary(t *testing.T) {
	tests := []struct {
		name     string
		body     *il.Body
		wantTiny bool
	}{
		{"0x3f bytes", &il.Body{MaxStack: 8, Instructions: nops(0x3F)}, true},
		{"0x40 bytes", &il.Body{MaxStack: 8, Instructions: nops(0x40)}, false},
		{"max stack 9", &il.Body{MaxStack: 9, Instructions: nops(1)}, false},
		{"locals", &il.Body{MaxStack: 1, Instructions: nops(1), LocalVarSig: metadata.NewToken(metadata.TableStandAloneSig, 1)}, false},
		{"handlers", &il.Body{MaxStack: 1, Instructions: nops(2), Handlers: []il.ExceptionHandler{{Kind: il.HandlerFinally, TryLength: 1, HandlerStart: 1, HandlerLength: 1}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := il.EncodeBody(tt.body, nil, il.EncodeOptions{})
			if err != nil {
				t.Fatalf("EncodeBody: %v", err)
			}
			if enc.Tiny != tt.wantTiny {
				t.Errorf("tiny = %v, want %v", enc.Tiny, tt.wantTiny)
			}
			if tt.wantTiny && enc.Bytes[0] != byte(len(tt.body.Instructions))<<2|0x2 {
				t.Errorf("tiny header 0x%02x", enc.Bytes[0])
			}
		})
	}
}

func fatBody() *il.Body {
	b := &il.Body{
		MaxStack:    2,
		InitLocals:  true,
		LocalVarSig: metadata.NewToken(metadata.TableStandAloneSig, 1),
		Instructions: []il.Instruction{
			il.Simple(il.Nop),
			{OpCode: il.Ldstr, Operand: il.Operand{Token: metadata.NewToken(metadata.TableUserString, 1)}},
			{OpCode: il.Call, Operand: il.Operand{Token: metadata.NewToken(metadata.TableMemberRef, 2)}},
			il.WithTarget(il.LeaveS, 6),
			il.Simple(il.Pop),
			il.Simple(il.Endfinally),
			il.WithTargets(il.Switch, 0, 6),
			il.Simple(il.Ret),
		},
	}
	il.Layout(b.Instructions)
	b.Handlers = []il.ExceptionHandler{
		{Kind: il.HandlerFinally, TryStart: 0, TryLength: 13, HandlerStart: 13, HandlerLength: 2},
		{Kind: il.HandlerCatch, TryStart: 0, TryLength: 13, HandlerStart: 13, HandlerLength: 2,
			CatchToken: metadata.NewToken(metadata.TableTypeRef, 3)},
		{Kind: il.HandlerFilter, TryStart: 0, TryLength: 1, HandlerStart: 13, HandlerLength: 1, FilterStart: 1},
	}
	return b
}

func TestFatRoundTrip(t *testing.T) {
	b := fatBody()
	enc, err := il.EncodeBody(b, nil, il.EncodeOptions{})
	if err != nil {
		t.Fatalf("EncodeBody: %v", err)
	}
	if enc.Tiny || enc.FatSection {
		t.Fatalf("tiny=%v fatSection=%v", enc.Tiny, enc.FatSection)
	}
	if len(enc.Bytes)%4 != 0 {
		t.Errorf("fat body with tiny section should end aligned, got %d bytes", len(enc.Bytes))
	}

	got, n, err := il.DecodeBody(enc.Bytes, nil, il.Location{})
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if n != len(enc.Bytes) {
		t.Errorf("consumed %d of %d", n, len(enc.Bytes))
	}
	if !reflect.DeepEqual(b, got) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, b)
	}
}

func handlerBody(handlers ...il.ExceptionHandler) *il.Body {
	return &il.Body{MaxStack: 1, Instructions: nops(4), Handlers: handlers}
}

func finallyAt(try uint32) il.ExceptionHandler {
	return il.ExceptionHandler{Kind: il.HandlerFinally, TryStart: try, TryLength: 1, HandlerStart: 2, HandlerLength: 1}
}

func TestHandlerSectionBoundary(t *testing.T) {
	twenty := make([]il.ExceptionHandler, 20)
	twentyOne := make([]il.ExceptionHandler, 21)
	for i := range twentyOne {
		twentyOne[i] = finallyAt(0)
		if i < 20 {
			twenty[i] = finallyAt(0)
		}
	}

	tests := []struct {
		name    string
		body    *il.Body
		wantFat bool
	}{
		{"try offset 0xffff", handlerBody(finallyAt(0xFFFF)), false},
		{"try offset 0x10000", handlerBody(finallyAt(0x10000), finallyAt(0)), true},
		{"handler length 0x100", handlerBody(il.ExceptionHandler{Kind: il.HandlerFault, HandlerLength: 0x100}), true},
		{"20 clauses", handlerBody(twenty...), false},
		{"21 clauses", handlerBody(twentyOne...), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := il.EncodeBody(tt.body, nil, il.EncodeOptions{})
			if err != nil {
				t.Fatalf("EncodeBody: %v", err)
			}
			if enc.FatSection != tt.wantFat {
				t.Errorf("fat section = %v, want %v", enc.FatSection, tt.wantFat)
			}
			got, _, err := il.DecodeBody(enc.Bytes, nil, il.Location{})
			if err != nil {
				t.Fatalf("DecodeBody: %v", err)
			}
			if !reflect.DeepEqual(got.Handlers, tt.body.Handlers) {
				t.Errorf("handlers mismatch: got %+v", got.Handlers)
			}
		})
	}
}

func TestNormalizeMaxStackIsPure(t *testing.T) {
	b := &il.Body{MaxStack: 16, Instructions: nops(3)}
	n := il.NormalizeMaxStack(b)
	if n.MaxStack != 8 {
		t.Errorf("normalized max stack %d", n.MaxStack)
	}
	if b.MaxStack != 16 {
		t.Errorf("input mutated to %d", b.MaxStack)
	}

	big := &il.Body{MaxStack: 16, Instructions: nops(0x40)}
	if il.NormalizeMaxStack(big).MaxStack != 16 {
		t.Error("non-tiny body should keep its max stack")
	}

	enc, err := il.EncodeBody(b, nil, il.EncodeOptions{NormalizeTinyMaxStack: true})
	if err != nil {
		t.Fatalf("EncodeBody: %v", err)
	}
	if !enc.Tiny {
		t.Error("normalized body should encode tiny")
	}
	if b.MaxStack != 16 {
		t.Errorf("encoding mutated max stack to %d", b.MaxStack)
	}

	enc, err = il.EncodeBody(b, nil, il.EncodeOptions{})
	if err != nil {
		t.Fatalf("EncodeBody: %v", err)
	}
	if enc.Tiny {
		t.Error("max stack 16 without normalization should encode fat")
	}
}

func TestDecodeFormatErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		kind errors.Kind
	}{
		{"empty", nil, errors.KindTruncated},
		{"unknown opcode", []byte{1<<2 | 2, 0xA6}, errors.KindUnknownOpcode},
		{"unknown two-byte opcode", []byte{2<<2 | 2, 0xFE, 0x30}, errors.KindUnknownOpcode},
		{"operand overrun", []byte{2<<2 | 2, 0x20, 0x01}, errors.KindCodeSizeMismatch},
		{"code past data", []byte{10<<2 | 2, 0x00, 0x00}, errors.KindTruncated},
		{"branch into operand", []byte{5<<2 | 2, 0x2B, 0x01, 0x1F, 0x00, 0x2A}, errors.KindInvalidData},
		{"bad header", []byte{0x01}, errors.KindInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := il.DecodeBody(tt.data, nil, il.Location{Image: "bad.dll", RVA: 0x2050})
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.IsFormat(err) {
				t.Errorf("not a format error: %v", err)
			}
			var e *errors.Error
			if !stderrors.As(err, &e) {
				t.Fatalf("unexpected error type %T", err)
			}
			if e.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", e.Kind, tt.kind)
			}
			if e.Location != "bad.dll" {
				t.Errorf("location = %q", e.Location)
			}
		})
	}
}

func TestEncodeShortBranchOverflow(t *testing.T) {
	instrs := append([]il.Instruction{il.WithTarget(il.BrS, 200)}, nops(200)...)
	b := &il.Body{MaxStack: 8, Instructions: instrs}
	_, err := il.EncodeBody(b, nil, il.EncodeOptions{})
	if err == nil {
		t.Fatal("expected overflow error")
	}
}

type namedRef string

func (n namedRef) FullName() string { return string(n) }

type fakeModule struct {
	refs   map[metadata.Token]namedRef
	tokens map[namedRef]metadata.Token
	sigs   map[metadata.Token]*signature.MethodSig
}

func newFakeModule() *fakeModule {
	m := &fakeModule{
		refs:   map[metadata.Token]namedRef{},
		tokens: map[namedRef]metadata.Token{},
		sigs:   map[metadata.Token]*signature.MethodSig{},
	}
	add := func(tok metadata.Token, name string) {
		m.refs[tok] = namedRef(name)
		m.tokens[namedRef(name)] = tok
	}
	add(metadata.NewToken(metadata.TableMemberRef, 1), "System.Console::WriteLine")
	add(metadata.NewToken(metadata.TableTypeRef, 2), "System.Exception")
	m.sigs[metadata.NewToken(metadata.TableMemberRef, 1)] = voidSig(false, signature.Primitive(signature.ElemString))
	return m
}

func (m *fakeModule) ResolveToken(tok metadata.Token) (any, *signature.MethodSig, error) {
	r, ok := m.refs[tok]
	if !ok {
		return nil, nil, fmt.Errorf("no row for %s", tok)
	}
	return r, m.sigs[tok], nil
}

func (m *fakeModule) ResolveUserString(tok metadata.Token) (string, error) {
	return fmt.Sprintf("str%d", tok.RID()), nil
}

func (m *fakeModule) ResolveLocals(tok metadata.Token) ([]*signature.TypeSig, error) {
	return []*signature.TypeSig{signature.Primitive(signature.ElemI4)}, nil
}

func (m *fakeModule) Token(ref any) (metadata.Token, error) {
	if n, ok := ref.(namedRef); ok {
		if tok, ok := m.tokens[n]; ok {
			return tok, nil
		}
	}
	return 0, fmt.Errorf("unknown ref %v", ref)
}

func (m *fakeModule) UserStringToken(s string) (metadata.Token, error) {
	var rid uint32
	_, err := fmt.Sscanf(s, "str%d", &rid)
	return metadata.NewToken(metadata.TableUserString, rid), err
}

func (m *fakeModule) LocalsToken(locals []*signature.TypeSig) (metadata.Token, error) {
	return metadata.NewToken(metadata.TableStandAloneSig, 7), nil
}

func TestResolverRoundTrip(t *testing.T) {
	mod := newFakeModule()
	raw := []byte{
		0x13, 0x30, 0x02, 0x00, 0x0C, 0x00, 0x00, 0x00, 0x07, 0x00, 0x00, 0x11, // fat header, locals StandAloneSig 7
		0x72, 0x09, 0x00, 0x00, 0x70, // ldstr 0x70000009
		0x28, 0x01, 0x00, 0x00, 0x0A, // call MemberRef 1
		0x26, // pop
		0x2A, // ret
	}
	body, n, err := il.DecodeBody(raw, mod, il.Location{})
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if n != len(raw) {
		t.Errorf("consumed %d of %d", n, len(raw))
	}
	if len(body.Locals) != 1 || !body.InitLocals {
		t.Fatalf("locals %v initLocals %v", body.Locals, body.InitLocals)
	}
	if body.Instructions[0].Operand.String != "str9" {
		t.Errorf("ldstr operand %q", body.Instructions[0].Operand.String)
	}
	call := body.Instructions[1]
	if call.Operand.Ref != namedRef("System.Console::WriteLine") || call.Operand.Sig == nil {
		t.Fatalf("call operand %+v", call.Operand)
	}
	eff, err := il.StackDelta(&call, nil)
	if err != nil || eff.Net() != -1 {
		t.Errorf("call delta %+v, %v", eff, err)
	}

	enc, err := il.EncodeBody(body, mod, il.EncodeOptions{})
	if err != nil {
		t.Fatalf("EncodeBody: %v", err)
	}
	if !reflect.DeepEqual(enc.Bytes, raw) {
		t.Errorf("re-encoded\n% x\nwant\n% x", enc.Bytes, raw)
	}
}

func TestEmptyLocalsToken(t *testing.T) {
	localsField := func(enc *il.EncodedBody) metadata.Token {
		b := enc.Bytes
		return metadata.Token(uint32(b[8]) | uint32(b[9])<<8 | uint32(b[10])<<16 | uint32(b[11])<<24)
	}
	tests := []struct {
		name   string
		sig    metadata.Token
		tokens il.TokenProvider
		want   metadata.Token
	}{
		{"stale token is interned", metadata.NewToken(metadata.TableStandAloneSig, 0x40), newFakeModule(), metadata.NewToken(metadata.TableStandAloneSig, 7)},
		{"no signature", 0, newFakeModule(), 0},
		{"no provider keeps token", metadata.NewToken(metadata.TableStandAloneSig, 0x40), nil, metadata.NewToken(metadata.TableStandAloneSig, 0x40)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := &il.Body{MaxStack: 9, LocalVarSig: tt.sig, Instructions: []il.Instruction{il.Simple(il.Ret)}}
			enc, err := il.EncodeBody(body, tt.tokens, il.EncodeOptions{})
			if err != nil {
				t.Fatalf("EncodeBody: %v", err)
			}
			if enc.Tiny {
				t.Fatal("expected a fat header")
			}
			if got := localsField(enc); got != tt.want {
				t.Errorf("local signature token = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolverFailureIsFormatError(t *testing.T) {
	raw := []byte{6<<2 | 2, 0x28, 0x09, 0x00, 0x00, 0x0A, 0x2A}
	_, _, err := il.DecodeBody(raw, newFakeModule(), il.Location{Image: "x.dll"})
	if !errors.IsFormat(err) {
		t.Fatalf("expected format error, got %v", err)
	}
}

func TestComputeMaxStack(t *testing.T) {
	i4 := signature.Primitive(signature.ElemI4)
	b := &il.Body{
		Instructions: []il.Instruction{
			il.Simple(il.LdcI40),
			il.Simple(il.LdcI41),
			il.Simple(il.LdcI42),
			il.WithRef(il.Call, nil, &signature.MethodSig{Return: i4, Params: []*signature.TypeSig{i4, i4, i4}}),
			il.WithTarget(il.BrtrueS, 6),
			il.Simple(il.Ldnull),
			il.Simple(il.Ret),
		},
	}
	got, err := il.ComputeMaxStack(b, &signature.MethodSig{Return: signature.Primitive(signature.ElemObject)})
	if err != nil {
		t.Fatalf("ComputeMaxStack: %v", err)
	}
	if got != 3 {
		t.Errorf("max stack %d, want 3", got)
	}

	b.Instructions[3] = il.WithRef(il.Call, nil, nil)
	if _, err := il.ComputeMaxStack(b, nil); !errors.IsContract(err) {
		t.Errorf("expected contract error, got %v", err)
	}
}

func TestInstructionString(t *testing.T) {
	in := il.WithInt(il.LdcI4S, -2)
	in.Offset = 0x10
	if got := in.String(); got != "IL_0010: ldc.i4.s -2" {
		t.Errorf("String() = %q", got)
	}
	ref := il.WithRef(il.Call, namedRef("A::B"), nil)
	if got := ref.String(); got != "IL_0000: call A::B" {
		t.Errorf("String() = %q", got)
	}
}
