package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"

	_ "github.com/srg/hrbridge/internal/sensor/ant"
	_ "github.com/srg/hrbridge/internal/sensor/blehrm"
	_ "github.com/srg/hrbridge/internal/sensor/sim"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hrbridge",
	Short: "Heart rate sensor bridge",
	Long: `Reads a heart rate sensor and forwards the heart rate to another application:

- ANT+ USB sticks (Garmin/Dynastream) and Bluetooth LE heart rate straps
- a built-in simulator for running without hardware
- computed, intra-beat and unfiltered intra-beat BPM modes
- output to the log, OSC (e.g. VRChat avatar parameters), NATS or WebSocket clients`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("hrbridge {{.Version}} (commit %s, built %s)\n", commit, date))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(portsCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}
