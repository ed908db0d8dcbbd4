package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/clrmeta/model"
)

var dumpFilterFlag string

var dumpCmd = &cobra.Command{
	Use:     "dump <file>",
	GroupID: "inspect",
	Short:   "Print the type and member tree",
	Args:    cobra.ExactArgs(1),
	RunE:    runDump,
}

func init() {
	dumpCmd.Flags().StringVar(&dumpFilterFlag, "type", "", "only types whose full name contains this text")
}

func runDump(cmd *cobra.Command, args []string) error {
	in, err := openInput(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	m, err := in.load(true)
	if err != nil {
		return err
	}
	dumpModule(cmd.OutOrStdout(), m, dumpFilterFlag)
	return nil
}

func version(v model.Version) string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

func dumpModule(out io.Writer, m *model.Module, filter string) {
	fmt.Fprintf(out, "%s %s {%s}\n", render(titleStyle, "module"), m.Name, m.Mvid)
	if a := m.Assembly; a != nil {
		fmt.Fprintf(out, "assembly %s %s\n", a.Name, version(a.Version))
	}
	for _, a := range m.AssemblyRefs {
		fmt.Fprintf(out, "  .assembly extern %s %s\n", a.Name, version(a.Version))
	}
	for _, r := range m.ModuleRefs {
		fmt.Fprintf(out, "  .module extern %s\n", r.Name)
	}
	for _, r := range m.Resources {
		where := "embedded"
		if r.Implementation != nil {
			where = "linked"
		}
		fmt.Fprintf(out, "  .mresource %s (%s, %d bytes)\n", r.Name, where, len(r.Data))
	}
	if m.EntryPoint != nil {
		fmt.Fprintf(out, "  .entrypoint %s\n", m.EntryPoint.FullName())
	}
	fmt.Fprintln(out)

	for _, t := range m.Types {
		if filter != "" && !strings.Contains(t.FullName(), filter) {
			continue
		}
		dumpType(out, t)
	}
}

func dumpType(out io.Writer, t *model.TypeDef) {
	kind := "class"
	if t.Flags&0x20 != 0 {
		kind = "interface"
	}
	line := kind + " " + render(nameStyle, t.FullName())
	if len(t.GenericParams) > 0 {
		names := make([]string, len(t.GenericParams))
		for i, gp := range t.GenericParams {
			names[i] = gp.ParamName
		}
		line += "<" + strings.Join(names, ", ") + ">"
	}
	if t.Extends != nil {
		line += " extends " + render(typeStyle, t.Extends.FullName())
	}
	if len(t.Interfaces) > 0 {
		names := make([]string, len(t.Interfaces))
		for i, ii := range t.Interfaces {
			names[i] = ii.Interface.FullName()
		}
		line += " implements " + strings.Join(names, ", ")
	}
	fmt.Fprintln(out, line)

	for _, f := range t.Fields {
		var typ string
		if f.Signature != nil {
			typ = f.Signature.Type.String()
		}
		extra := ""
		if f.Constant != nil {
			extra = fmt.Sprintf(" = const(0x%02x, % x)", f.Constant.Type, f.Constant.Value)
		}
		if f.InitialValue != nil {
			extra += fmt.Sprintf(" at data[%d]", len(f.InitialValue))
		}
		fmt.Fprintf(out, "  field %s %s%s\n", render(typeStyle, typ), f.FieldName, extra)
	}
	for _, m := range t.Methods {
		rva := ""
		if m.RVA != 0 {
			rva = fmt.Sprintf("  // rva 0x%x", m.RVA)
		}
		fmt.Fprintf(out, "  method %s %s%s\n", render(nameStyle, m.MethodName), render(typeStyle, m.Signature.String()), rva)
	}
	for _, p := range t.Properties {
		accessors := []string{}
		if p.Getter != nil {
			accessors = append(accessors, "get")
		}
		if p.Setter != nil {
			accessors = append(accessors, "set")
		}
		fmt.Fprintf(out, "  property %s { %s }\n", p.PropertyName, strings.Join(accessors, "; "))
	}
	for _, e := range t.Events {
		fmt.Fprintf(out, "  event %s\n", e.EventName)
	}
	if n := len(t.Attributes()); n > 0 {
		fmt.Fprintf(out, "  // %d custom attributes\n", n)
	}
	fmt.Fprintln(out)
}
