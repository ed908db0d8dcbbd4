package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/metadata"
)

var tablesRowsFlag string

var tablesCmd = &cobra.Command{
	Use:     "tables <file>",
	GroupID: "inspect",
	Short:   "List metadata streams and table row counts",
	Long: `Prints the metadata root, its streams and every present table with its
row count and row size. With --rows, prints the raw column values of one
table instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runTables,
}

func init() {
	tablesCmd.Flags().StringVar(&tablesRowsFlag, "rows", "", "print the raw rows of the named table")
}

func runTables(cmd *cobra.Command, args []string) error {
	in, err := openInput(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if tablesRowsFlag != "" {
		t, ok := metadata.TableByName(tablesRowsFlag)
		if !ok {
			return fmt.Errorf("unknown table %q", tablesRowsFlag)
		}
		return printRows(out, in.reader, t)
	}
	printSummary(out, in)
	return nil
}

func printSummary(out io.Writer, in *input) {
	r := in.reader
	kind := "PE image"
	if in.file.IsRaw() {
		kind = "metadata root"
	}
	fmt.Fprintf(out, "%s %s (%s, %s)\n", render(titleStyle, "clrmeta"), in.path, kind, humanize.IBytes(uint64(in.size)))
	root := r.Root()
	fmt.Fprintf(out, "Version: %s (root %d.%d)\n", root.Version, root.MajorVersion, root.MinorVersion)
	if !in.file.IsRaw() {
		fmt.Fprintf(out, "Runtime: %d.%d  Entry point: %s\n", in.file.RuntimeMajor, in.file.RuntimeMinor, in.file.EntryPoint)
	}
	if in.cached {
		fmt.Fprintln(out, "Indexes: restored from cache")
	}

	fmt.Fprintf(out, "\n%s\n", render(headerStyle, "Streams"))
	for _, s := range root.Streams {
		fmt.Fprintf(out, "  %-10s offset 0x%06x  %10s\n", s.Name, s.Offset, humanize.IBytes(uint64(len(s.Data))))
	}

	ts := r.Tables()
	fmt.Fprintf(out, "\n%s\n", render(headerStyle, fmt.Sprintf("Tables (schema %d.%d)", ts.MajorVersion, ts.MinorVersion)))
	fmt.Fprintf(out, "  %-24s %8s %8s %10s  %s\n", "table", "rows", "row size", "bytes", "sorted")
	var total uint64
	for t := metadata.Table(0); t < metadata.NumTables; t++ {
		rows := r.RowCount(t)
		if rows == 0 {
			continue
		}
		size := ts.Layout.RowSize(t)
		bytes := uint64(rows) * uint64(size)
		total += bytes
		sorted := ""
		if ts.Sorted(t) {
			sorted = "yes"
		}
		fmt.Fprintf(out, "  %-24s %8s %8d %10s  %s\n",
			render(nameStyle, t.String()), humanize.Comma(int64(rows)), size, humanize.IBytes(bytes), sorted)
	}
	fmt.Fprintf(out, "  %-24s %8s %8s %10s\n", "total", "", "", humanize.IBytes(total))
}

func printRows(out io.Writer, r *image.Reader, t metadata.Table) error {
	n := r.RowCount(t)
	fmt.Fprintf(out, "%s: %s rows\n", render(headerStyle, t.String()), humanize.Comma(int64(n)))
	for rid := uint32(1); rid <= n; rid++ {
		row, err := r.Row(t, rid)
		if err != nil {
			return err
		}
		cols := make([]string, len(row))
		for i, v := range row {
			cols[i] = fmt.Sprintf("%08x", v)
		}
		fmt.Fprintf(out, "  %6d: %s\n", rid, strings.Join(cols, " "))
	}
	return nil
}
