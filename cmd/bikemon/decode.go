package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/bikemon/internal/telemetry"
)

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <hex-frame>...",
		Short: "Decode captured frames offline",
		Long: `Decode notification payloads with the configured byte patterns, without a
bike. Frames may be written as 01-2C-FF, 01:2C:FF, "01 2C FF" or 012CFF.
Pass "-" to read one frame per line from stdin; blank lines and lines
starting with # are skipped.`,
		Example: `  bikemon decode 01-2C-30-04-02-00
  bikemon decode --json - < capture.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: runDecode,
	}
	cmd.Flags().Bool("json", false, "Print one JSON reading per frame")
	return cmd
}

func runDecode(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	if err := a.cfg.ValidateParsing(); err != nil {
		return err
	}
	cmd.SilenceUsage = true

	frames, err := collectFrames(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	patterns, labels := a.cfg.Patterns(), a.cfg.Labels()
	out := cmd.OutOrStdout()
	now := time.Now()

	for _, raw := range frames {
		r := telemetry.Decode(telemetry.NewFrame(raw, now), patterns)
		a.logger.WithField("kind", r.Kind).WithField("raw", r.RawHex).Debug("Frame decoded")

		if asJSON {
			data, err := json.Marshal(r)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			continue
		}
		fmt.Fprintf(out, "%s [%db] %s: %s\n", r.RawHex, r.Length, r.Kind, labels.Summary(r))
	}
	return nil
}

func collectFrames(stdin io.Reader, args []string) ([][]byte, error) {
	var frames [][]byte
	for _, arg := range args {
		if arg != "-" {
			data, err := telemetry.ParseHex(arg)
			if err != nil {
				return nil, err
			}
			frames = append(frames, data)
			continue
		}

		scanner := bufio.NewScanner(stdin)
		line := 0
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(scanner.Text())
			if text == "" || strings.HasPrefix(text, "#") {
				continue
			}
			data, err := telemetry.ParseHex(text)
			if err != nil {
				return nil, fmt.Errorf("stdin line %d: %w", line, err)
			}
			frames = append(frames, data)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
	}
	return frames, nil
}
