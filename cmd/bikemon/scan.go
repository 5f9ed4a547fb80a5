package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/srg/bikemon/internal/device"
	"github.com/srg/bikemon/internal/session"
)

var validScanFormats = []string{"table", "json"}

const maxNameWidth = 24

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for nearby bikes",
		Long: `Scan for Bluetooth Low Energy peripherals and list them by signal strength,
strongest first. Use the address of your bike with "bikemon monitor" or put
it in the bike.address key of the config file.`,
		Args: cobra.NoArgs,
		RunE: runScan,
	}
	cmd.Flags().DurationP("duration", "d", 0, "Scan duration (default bluetooth.scan_timeout)")
	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	return cmd
}

func runScan(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if !slices.Contains(validScanFormats, format) {
		return fmt.Errorf("invalid format '%s': must be one of %v", format, validScanFormats)
	}
	duration, _ := cmd.Flags().GetDuration("duration")
	if duration < 0 {
		return fmt.Errorf("invalid duration %s: must be positive", duration)
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	opts := session.FromConfig(a.cfg)
	if duration > 0 {
		opts.ScanTimeout = duration
	}

	sess, err := a.newSession(opts, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.Start(cmd.Context()); err != nil {
		return err
	}

	w := sess.Watch(0)
	defer w.Close()

	if err := sess.StartScan(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Scanning for %s...\n", opts.ScanTimeout)

	if err := waitScanEnd(ctx, w); err != nil {
		return err
	}

	if ctx.Err() != nil {
		// Ctrl+C ends the scan early; the results so far are still printed
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = sess.StopScan(stopCtx)
		cancel()
	}

	return printScanResults(cmd.OutOrStdout(), format, sess.ScanResults())
}

// waitScanEnd blocks until the session leaves Scanning or ctx ends. A scan that ends in
// Error is returned as the failure.
func waitScanEnd(ctx context.Context, w *session.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-w.C():
			if !ok {
				return session.ErrClosed
			}
			if u.Kind != session.UpdateState {
				continue
			}
			switch u.Status.State {
			case session.Error:
				return u.Status.Reason
			case session.Disconnected:
				return nil
			}
		}
	}
}

func printScanResults(out io.Writer, format string, results []device.PeripheralRef) error {
	if format == "json" {
		if results == nil {
			results = []device.PeripheralRef{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI")
	fmt.Fprintln(w, strings.Repeat("-", 50))
	for _, p := range results {
		name := p.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\n", truncateName(name, maxNameWidth), p.Address, p.RSSI)
	}
	return w.Flush()
}

// truncateName shortens name to at most width runes, ending in "..." when cut.
func truncateName(name string, width int) string {
	if utf8.RuneCountInString(name) <= width {
		return name
	}
	runes := []rune(name)
	return string(runes[:width-3]) + "..."
}
