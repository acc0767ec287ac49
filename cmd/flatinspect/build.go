package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rawbytedev/flatcore/internal/log"
	"github.com/rawbytedev/flatcore/pkg/frame"
	"github.com/rawbytedev/flatcore/pkg/schema"
)

const (
	FlagData          = "data"
	FlagOut           = "out"
	FlagCompress      = "compress"
	FlagForceDefaults = "force-defaults"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build --schema FILE --data FILE --out FILE",
		Short: "Build a buffer from a YAML document",
		Long: `Build a buffer from a YAML document whose keys are the field names of the
root table. Unions are written as {type: Variant, value: {...}} and structs
as maps of their fields.`,
		Args: cobra.NoArgs,
		RunE: runBuild,
	}
	cmd.Flags().String(FlagSchema, "", "schema file")
	cmd.Flags().String(FlagTable, "", "table to build, defaults to the schema root")
	cmd.Flags().String(FlagData, "", "YAML document to encode")
	cmd.Flags().StringP(FlagOut, "o", "", "output file")
	cmd.Flags().Bool(FlagFramed, false, "wrap the buffer in a frame")
	cmd.Flags().Bool(FlagCompress, false, "compress the framed payload with zstd")
	cmd.Flags().Bool(FlagSizePrefixed, false, "prefix the buffer with its size")
	cmd.Flags().Bool(FlagForceDefaults, false, "write scalars even when they equal their default")
	for _, f := range []string{FlagSchema, FlagData, FlagOut} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func runBuild(cmd *cobra.Command, _ []string) (err error) {
	s, table, err := loadSchema(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	dataPath, _ := flags.GetString(FlagData)
	outPath, _ := flags.GetString(FlagOut)
	framed, _ := flags.GetBool(FlagFramed)
	compress, _ := flags.GetBool(FlagCompress)
	sizePrefixed, _ := flags.GetBool(FlagSizePrefixed)
	force, _ := flags.GetBool(FlagForceDefaults)
	if compress && !framed {
		return fmt.Errorf("--%s requires --%s", FlagCompress, FlagFramed)
	}

	op := log.Operation(cmd.Context(), "build", slog.String("table", table), slog.String("data", dataPath))
	defer func() { op.Done(err) }()

	raw, err := os.ReadFile(dataPath)
	if err != nil {
		return fmt.Errorf("reading data: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parsing data: %w", err)
	}

	buf, err := s.Encode(table, doc, schema.EncodeOptions{SizePrefixed: sizePrefixed, ForceDefaults: force})
	if err != nil {
		return err
	}
	if framed {
		enc, err := frame.NewEncoder(frame.Options{Compress: compress})
		if err != nil {
			return err
		}
		buf = enc.Encode(buf)
		if err := enc.Close(); err != nil {
			return err
		}
	}
	op.Buffer(buf)
	if err := os.WriteFile(outPath, buf, 0o644); err != nil {
		return fmt.Errorf("writing buffer: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(buf), outPath)
	return nil
}
