package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/rawbytedev/flatcore"
)

func newVtableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vtable FILE",
		Short: "Print the root table's vtable",
		Long: `Print the root table's vtable. No schema is needed: every slot the vtable
covers is listed with its field offset, 0 meaning absent.`,
		Args: cobra.ExactArgs(1),
		RunE: runVtable,
	}
	registerReadFlags(cmd)
	return cmd
}

func runVtable(cmd *cobra.Command, args []string) error {
	buf, opts, err := readBuffer(cmd, args[0])
	if err != nil {
		return err
	}
	opts.Verify = flatcore.VerifyHeaderOnly
	root, err := flatcore.Open(buf, opts)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	vt := flatcore.UOffsetT(flatcore.SOffsetT(root.Pos) - flatcore.GetSOffsetT(buf[root.Pos:]))
	vsize := flatcore.GetVOffsetT(buf[vt:])
	osize := flatcore.GetVOffsetT(buf[vt+flatcore.SizeVOffsetT:])
	slots := int(vsize)/flatcore.SizeVOffsetT - flatcore.VtableMetadataFields

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "table at %d, vtable at %d (%d bytes), object %d bytes\n", root.Pos, vt, vsize, osize)
	if !opts.SizePrefixed && len(buf) >= flatcore.SizeUOffsetT+flatcore.FileIdentifierLength {
		if id := flatcore.GetBufferIdentifier(buf); isPrintable(id) {
			fmt.Fprintf(out, "identifier %q\n", id)
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Slot", "Offset", "Present"})
	for slot := range slots {
		off := root.FieldOffset(slot)
		t.AppendRow(table.Row{slot, off, off != 0})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, Align: text.AlignRight},
	})
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

func isPrintable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return false
		}
	}
	return true
}
