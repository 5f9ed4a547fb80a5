package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
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

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bikemon",
		Short: "Bosch e-bike telemetry monitor",
		Long: `Bluetooth Low Energy monitor for Bosch e-bike drive units:

- Scan for nearby bikes and rank them by signal strength
- Connect, subscribe to the status characteristic and stream decoded readings
- Alert on battery level and assist mode changes
- Decode captured frames offline with the configured byte patterns

The telemetry protocol is undocumented; fields are located by configurable
byte patterns (see "bikemon config show").`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
		// Silence Cobra's "Error:" prefix - main() prints clean errors
		SilenceErrors: true,
	}

	root.AddCommand(newScanCmd())
	root.AddCommand(newMonitorCmd())
	root.AddCommand(newDecodeCmd())
	root.AddCommand(newConfigCmd())

	root.PersistentFlags().String("config", "", "Config file (default ~/.config/bikemon/config.yaml)")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolP("verbose", "V", false, "Debug logging (same as --log-level debug)")
	root.PersistentFlags().String("backend", "", "Bluetooth backend (go-ble, tinygo); overrides the config file")

	root.Flags().BoolP("version", "v", false, "Show version information")
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
