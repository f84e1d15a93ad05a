package main

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srg/hrbridge/pkg/config"
)

// resolveLogLevel applies the logging flags on top of the configured level.
// --log-level takes precedence, then --verbose.
func resolveLogLevel(cmd *cobra.Command, cfg *config.Config) {
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	} else if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}
}

// configureLogger creates the logger for a validated configuration, writing to
// the command's stderr with colours on terminals.
func configureLogger(cmd *cobra.Command, cfg *config.Config) *logrus.Logger {
	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	if formatter, ok := logger.Formatter.(*logrus.TextFormatter); ok {
		formatter.ForceColors = isTerminal(cmd.ErrOrStderr())
	}
	return logger
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// configureColor enables coloured console output only on terminals.
func configureColor(w io.Writer) {
	color.NoColor = !isTerminal(w)
}
