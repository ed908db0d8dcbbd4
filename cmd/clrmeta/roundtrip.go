package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/builder"
	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/metadata"
	"github.com/wippyai/clrmeta/model"
)

var (
	roundtripOutFlag   string
	roundtripCheckFlag bool
)

var roundtripCmd = &cobra.Command{
	Use:     "roundtrip <file>",
	GroupID: "rebuild",
	Short:   "Load an image, rebuild its metadata and compare",
	Long: `Loads the object graph, rebuilds the metadata tables, heaps and method
bodies with the [build] settings, reopens the result and compares row counts
and definition names through the RID maps.

With --check, the rebuilt image is loaded and built once more; the two
builds must be byte-identical.`,
	Args: cobra.ExactArgs(1),
	RunE: runRoundtrip,
}

func init() {
	roundtripCmd.Flags().StringVarP(&roundtripOutFlag, "out", "o", "", "write the rebuilt metadata root to this file")
	roundtripCmd.Flags().BoolVar(&roundtripCheckFlag, "check", false, "verify that a second rebuild is byte-identical")
}

func runRoundtrip(cmd *cobra.Command, args []string) error {
	in, err := openInput(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	m, err := in.load(false)
	if err != nil {
		return err
	}

	b := builder.New(cfg.BuilderOptions(), log.Named("builder"))
	res, err := b.Build(m)
	if err != nil {
		return err
	}
	rebuilt, err := image.OpenWithOptions(res.Metadata, in.path+" (rebuilt)", cfg.ReaderOptions())
	if err != nil {
		return fmt.Errorf("reopen rebuilt metadata: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", render(titleStyle, "roundtrip"), in.path)
	fmt.Fprintf(out, "metadata %s -> %s, code %s, field data %s, resources %s\n\n",
		humanize.IBytes(uint64(len(in.file.Metadata))), humanize.IBytes(uint64(len(res.Metadata))),
		humanize.IBytes(uint64(len(res.Code))), humanize.IBytes(uint64(len(res.FieldData))),
		humanize.IBytes(uint64(len(res.Resources))))
	compareCounts(out, in.reader, rebuilt)

	mismatches, err := checkDefinitions(m, res, rebuilt)
	if err != nil {
		return err
	}
	for _, msg := range mismatches {
		fmt.Fprintln(out, render(errorStyle, msg))
	}
	if len(mismatches) == 0 {
		fmt.Fprintln(out, render(okStyle, "definitions: every RID map entry matches"))
	}

	if roundtripCheckFlag {
		if err := checkFixedPoint(out, b, res); err != nil {
			return err
		}
	}

	if roundtripOutFlag != "" {
		if err := os.WriteFile(roundtripOutFlag, res.Metadata, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", roundtripOutFlag, err)
		}
		log.Info("rebuilt metadata written", zap.String("path", roundtripOutFlag), zap.Int("bytes", len(res.Metadata)))
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%d definitions do not match after rebuild", len(mismatches))
	}
	return nil
}

func compareCounts(out io.Writer, before, after *image.Reader) {
	fmt.Fprintf(out, "  %-24s %8s %8s %8s\n", "table", "before", "after", "delta")
	for t := metadata.Table(0); t < metadata.NumTables; t++ {
		a, b := before.RowCount(t), after.RowCount(t)
		if a == 0 && b == 0 {
			continue
		}
		delta := ""
		if a != b {
			delta = fmt.Sprintf("%+d", int64(b)-int64(a))
		}
		fmt.Fprintf(out, "  %-24s %8d %8d %8s\n", t, a, b, delta)
	}
	fmt.Fprintln(out)
}

// checkDefinitions follows the RID maps from every loaded definition to its
// rebuilt row and compares names.
func checkDefinitions(m *model.Module, res *builder.Result, r *image.Reader) ([]string, error) {
	var out []string
	check := func(t metadata.Table, original uint32, want string, name func(uint32) (string, error)) error {
		rid, ok := res.NewRID(t, original)
		if !ok {
			out = append(out, fmt.Sprintf("%s %s: original row %d was not emitted", t, want, original))
			return nil
		}
		got, err := name(rid)
		if err != nil {
			return err
		}
		if got != want {
			out = append(out, fmt.Sprintf("%s row %d -> %d: %q, want %q", t, original, rid, got, want))
		}
		return nil
	}

	typeName := func(rid uint32) (string, error) { row, err := r.TypeDef(rid); return row.Name, err }
	fieldName := func(rid uint32) (string, error) { row, err := r.Field(rid); return row.Name, err }
	methodName := func(rid uint32) (string, error) { row, err := r.MethodDef(rid); return row.Name, err }
	propertyName := func(rid uint32) (string, error) { row, err := r.Property(rid); return row.Name, err }
	eventName := func(rid uint32) (string, error) { row, err := r.Event(rid); return row.Name, err }
	resourceName := func(rid uint32) (string, error) { row, err := r.ManifestResource(rid); return row.Name, err }

	for _, t := range m.Types {
		if err := check(metadata.TableTypeDef, t.OriginalRID, t.TypeName, typeName); err != nil {
			return nil, err
		}
		for _, f := range t.Fields {
			if err := check(metadata.TableField, f.OriginalRID, f.FieldName, fieldName); err != nil {
				return nil, err
			}
		}
		for _, meth := range t.Methods {
			if err := check(metadata.TableMethodDef, meth.OriginalRID, meth.MethodName, methodName); err != nil {
				return nil, err
			}
		}
		for _, p := range t.Properties {
			if err := check(metadata.TableProperty, p.OriginalRID, p.PropertyName, propertyName); err != nil {
				return nil, err
			}
		}
		for _, e := range t.Events {
			if err := check(metadata.TableEvent, e.OriginalRID, e.EventName, eventName); err != nil {
				return nil, err
			}
		}
	}
	for _, mr := range m.Resources {
		if err := check(metadata.TableManifestResource, mr.OriginalRID, mr.Name, resourceName); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func checkFixedPoint(out io.Writer, b *builder.Builder, first *builder.Result) error {
	r, err := image.Open(first.Metadata, "rebuilt")
	if err != nil {
		return err
	}
	m, err := model.Load(r, first, model.LoadOptions{EntryPoint: first.EntryPoint})
	if err != nil {
		return fmt.Errorf("reload rebuilt image: %w", err)
	}
	second, err := b.Build(m)
	if err != nil {
		return fmt.Errorf("second rebuild: %w", err)
	}
	same := bytes.Equal(first.Metadata, second.Metadata) &&
		bytes.Equal(first.Code, second.Code) &&
		bytes.Equal(first.FieldData, second.FieldData) &&
		bytes.Equal(first.Resources, second.Resources)
	if !same {
		return fmt.Errorf("second rebuild differs from the first")
	}
	fmt.Fprintln(out, render(okStyle, "fixed point: second rebuild is byte-identical"))
	return nil
}
