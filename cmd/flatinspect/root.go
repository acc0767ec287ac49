package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rawbytedev/flatcore"
	"github.com/rawbytedev/flatcore/pkg/frame"
	"github.com/rawbytedev/flatcore/pkg/schema"
)

const (
	FlagSchema       = "schema"
	FlagTable        = "table"
	FlagFramed       = "framed"
	FlagSizePrefixed = "size-prefixed"
	FlagOutput       = "output"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flatinspect [sub-command]",
		Short: "Build, verify and inspect flatcore buffers",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := GetBaseLogger(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:      true,
		DisableAutoGenTag: true,
	}
	RegisterLoggingFlags(cmd.PersistentFlags())
	cmd.AddCommand(newBuildCmd(), newVerifyCmd(), newDumpCmd(), newVtableCmd())
	return cmd
}

// registerReadFlags adds the flags shared by commands that read a buffer.
func registerReadFlags(cmd *cobra.Command) {
	cmd.Flags().Bool(FlagFramed, false, "the file is wrapped in a frame")
	cmd.Flags().Bool(FlagSizePrefixed, false, "the buffer starts with a size prefix")
}

func loadSchema(cmd *cobra.Command) (*schema.Schema, string, error) {
	path, err := cmd.Flags().GetString(FlagSchema)
	if err != nil {
		return nil, "", fmt.Errorf("getting %s flag failed: %w", FlagSchema, err)
	}
	s, err := schema.Load(cmd.Context(), path)
	if err != nil {
		return nil, "", err
	}
	table, err := cmd.Flags().GetString(FlagTable)
	if err != nil {
		return nil, "", fmt.Errorf("getting %s flag failed: %w", FlagTable, err)
	}
	if table == "" {
		table = s.Root
	}
	if table == "" {
		return nil, "", fmt.Errorf("schema %s has no root table, pass --%s", path, FlagTable)
	}
	return s, table, nil
}

// readBuffer reads the file named by path, unwrapping a frame when
// --framed is set, and returns the read options matching the flags.
func readBuffer(cmd *cobra.Command, path string) ([]byte, flatcore.ReadOptions, error) {
	var opts flatcore.ReadOptions
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, opts, fmt.Errorf("reading buffer: %w", err)
	}
	if opts.SizePrefixed, err = cmd.Flags().GetBool(FlagSizePrefixed); err != nil {
		return nil, opts, err
	}
	framed, err := cmd.Flags().GetBool(FlagFramed)
	if err != nil {
		return nil, opts, err
	}
	if !framed {
		return data, opts, nil
	}
	dec, err := frame.NewDecoder(0)
	if err != nil {
		return nil, opts, err
	}
	defer dec.Close()
	payload, err := dec.Decode(data)
	if err != nil {
		return nil, opts, fmt.Errorf("unwrapping frame: %w", err)
	}
	return payload, opts, nil
}
