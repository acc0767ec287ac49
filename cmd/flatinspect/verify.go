package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rawbytedev/flatcore/internal/log"
)

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify FILE --schema FILE",
		Short: "Check that a buffer is well formed for a schema",
		Args:  cobra.ExactArgs(1),
		RunE:  runVerify,
	}
	cmd.Flags().String(FlagSchema, "", "schema file")
	cmd.Flags().String(FlagTable, "", "root table, defaults to the schema root")
	registerReadFlags(cmd)
	_ = cmd.MarkFlagRequired(FlagSchema)
	return cmd
}

func runVerify(cmd *cobra.Command, args []string) (err error) {
	s, table, err := loadSchema(cmd)
	if err != nil {
		return err
	}
	op := log.Operation(cmd.Context(), "verify", slog.String("file", args[0]), slog.String("table", table))
	defer func() { op.Done(err) }()

	buf, opts, err := readBuffer(cmd, args[0])
	if err != nil {
		return err
	}
	op.Buffer(buf)
	if _, err := s.Open(buf, table, opts); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %d bytes, root %s\n", args[0], len(buf), table)
	return nil
}
