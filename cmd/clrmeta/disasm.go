package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/clrmeta/il"
	"github.com/wippyai/clrmeta/model"
)

var disasmMethodFlag string

var disasmCmd = &cobra.Command{
	Use:     "disasm <file>",
	GroupID: "inspect",
	Short:   "Disassemble method bodies",
	Long: `Decodes and prints the IL of every method with a body. Requires a PE
image; a bare metadata root carries no bodies.`,
	Args: cobra.ExactArgs(1),
	RunE: runDisasm,
}

func init() {
	disasmCmd.Flags().StringVar(&disasmMethodFlag, "method", "", "only methods whose full name contains this text")
}

func runDisasm(cmd *cobra.Command, args []string) error {
	in, err := openInput(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if in.file.IsRaw() {
		return fmt.Errorf("%s is a bare metadata root; there are no method bodies to disassemble", in.path)
	}
	m, err := in.load(false)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, t := range m.Types {
		for _, meth := range t.Methods {
			if disasmMethodFlag != "" && !strings.Contains(meth.FullName(), disasmMethodFlag) {
				continue
			}
			if meth.Body == nil {
				continue
			}
			writeMethod(out, meth)
			fmt.Fprintln(out)
		}
	}
	return nil
}

func writeMethod(out io.Writer, m *model.MethodDef) {
	fmt.Fprintf(out, ".method %s %s\n", render(nameStyle, m.FullName()), render(typeStyle, m.Signature.String()))
	b := m.Body
	if b == nil {
		switch {
		case m.IsNative():
			fmt.Fprintln(out, "  // native code")
		case m.RVA == 0:
			fmt.Fprintln(out, "  // no body")
		default:
			fmt.Fprintf(out, "  // body at rva 0x%x not decoded\n", m.RVA)
		}
		return
	}

	fmt.Fprintf(out, "  // rva 0x%x, code size %d\n", m.RVA, il.CodeSize(b.Instructions))
	fmt.Fprintf(out, "  .maxstack %d\n", b.MaxStack)
	if len(b.Locals) > 0 {
		locals := make([]string, len(b.Locals))
		for i, l := range b.Locals {
			locals[i] = fmt.Sprintf("[%d] %s", i, l)
		}
		init := ""
		if b.InitLocals {
			init = "init "
		}
		fmt.Fprintf(out, "  .locals %s(%s)\n", init, strings.Join(locals, ", "))
	}

	handlersAt := make(map[uint32][]il.ExceptionHandler)
	for _, h := range b.Handlers {
		handlersAt[h.TryStart] = append(handlersAt[h.TryStart], h)
	}
	for i := range b.Instructions {
		in := &b.Instructions[i]
		for _, h := range handlersAt[in.Offset] {
			fmt.Fprintf(out, "  %s\n", render(helpStyle, handlerString(h)))
		}
		fmt.Fprintf(out, "  %s\n", in)
	}
}

func handlerString(h il.ExceptionHandler) string {
	s := fmt.Sprintf(".try IL_%04x to IL_%04x %s", h.TryStart, h.TryStart+h.TryLength, h.Kind)
	switch h.Kind {
	case il.HandlerCatch:
		if named, ok := h.CatchType.(il.Named); ok {
			s += " " + named.FullName()
		} else if !h.CatchToken.IsNull() {
			s += " " + h.CatchToken.String()
		}
	case il.HandlerFilter:
		s += fmt.Sprintf(" IL_%04x", h.FilterStart)
	}
	return s + fmt.Sprintf(" handler IL_%04x to IL_%04x", h.HandlerStart, h.HandlerStart+h.HandlerLength)
}
