package main

import (
	"fmt"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rawbytedev/flatcore/internal/log"
	"github.com/rawbytedev/flatcore/pkg/schema"
)

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump FILE --schema FILE",
		Short: "Verify a buffer and print its contents",
		Args:  cobra.ExactArgs(1),
		RunE:  runDump,
	}
	cmd.Flags().String(FlagSchema, "", "schema file")
	cmd.Flags().String(FlagTable, "", "root table, defaults to the schema root")
	cmd.Flags().StringP(FlagOutput, "o", "yaml", "output format (yaml, table)")
	registerReadFlags(cmd)
	_ = cmd.MarkFlagRequired(FlagSchema)
	return cmd
}

func runDump(cmd *cobra.Command, args []string) (err error) {
	output, err := cmd.Flags().GetString(FlagOutput)
	if err != nil {
		return err
	}
	if output != "yaml" && output != "table" {
		return fmt.Errorf("unknown output format: %q", output)
	}
	s, name, err := loadSchema(cmd)
	if err != nil {
		return err
	}
	op := log.Operation(cmd.Context(), "dump", slog.String("file", args[0]), slog.String("table", name))
	defer func() { op.Done(err) }()

	buf, opts, err := readBuffer(cmd, args[0])
	if err != nil {
		return err
	}
	op.Buffer(buf)
	root, err := s.Open(buf, name, opts)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	doc, err := s.Decode(root, name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if output == "yaml" {
		data, err := yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		_, err = out.Write(data)
		return err
	}

	tbl, _ := s.Table(name)
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Slot", "Field", "Type", "Value"})
	for _, f := range tbl.Fields {
		v, ok := doc[f.Name]
		if !ok {
			continue
		}
		t.AppendRow(table.Row{f.Slot, f.Name, describe(f), fmt.Sprint(v)})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

func describe(f *schema.Field) string {
	switch f.Type {
	case schema.Vector:
		if f.Ref != "" {
			return fmt.Sprintf("[%s]", f.Ref)
		}
		return fmt.Sprintf("[%s]", f.Elem)
	case schema.TableKind, schema.StructKind:
		return f.Ref
	}
	return string(f.Type)
}
