package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	LevelFlagName  = "loglevel"
	FormatFlagName = "logformat"

	FormatText = "text"
	FormatJSON = "json"
)

// RegisterLoggingFlags adds the logging flags to fs.
func RegisterLoggingFlags(fs *pflag.FlagSet) {
	fs.String(LevelFlagName, "warn", "log level (debug, info, warn, error)")
	fs.String(FormatFlagName, FormatText, "log format (text, json)")
}

func loggerLevelFromCommand(cmd *cobra.Command) (slog.Level, error) {
	name, err := cmd.Flags().GetString(LevelFlagName)
	if err != nil {
		return 0, fmt.Errorf("getting %s flag failed: %w", LevelFlagName, err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// GetBaseLogger builds the logger selected by cmd's logging flags, writing
// to w.
func GetBaseLogger(cmd *cobra.Command, w io.Writer) (*slog.Logger, error) {
	level, err := loggerLevelFromCommand(cmd)
	if err != nil {
		return nil, err
	}
	format, err := cmd.Flags().GetString(FormatFlagName)
	if err != nil {
		return nil, fmt.Errorf("getting %s flag failed: %w", FormatFlagName, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case FormatText:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}
