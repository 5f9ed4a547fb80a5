package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/bikemon/internal/alert"
	"github.com/srg/bikemon/internal/session"
)

const disconnectTimeout = 3 * time.Second

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor [address]",
		Short: "Connect to the bike and stream readings",
		Long: `Connect to the bike, subscribe to its status characteristic and print every
decoded frame. Battery and assist mode changes are announced as alerts.

The address argument takes precedence over bike.address from the config file.
Monitoring runs until Ctrl+C or until the bike drops the link.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runMonitor,
	}
	cmd.Flags().Bool("json", false, "Print one JSON object per state change and reading")
	cmd.Flags().Bool("no-alerts", false, "Do not print battery and assist mode alerts")
	return cmd
}

func runMonitor(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	noAlerts, _ := cmd.Flags().GetBool("no-alerts")

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	out := &lockedWriter{w: cmd.OutOrStdout()}
	colors := colorsEnabled(cmd)

	var sinks []alert.Sink
	sinks = append(sinks, alert.NewLogSink(a.logger))
	if !noAlerts && !asJSON {
		sinks = append(sinks, alert.NewConsoleSink(out, colors))
	}
	dispatcher := alert.NewDispatcher(alert.Multi(sinks...), a.logger)
	defer dispatcher.Close()

	opts := session.FromConfig(a.cfg)
	sess, err := a.newSession(opts, dispatcher)
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

	if len(args) == 1 {
		err = sess.Connect(ctx, args[0])
	} else {
		err = sess.ConnectConfigured(ctx)
	}
	if err != nil {
		return err
	}

	p := newPrinter(out, asJSON, colors, sess.Labels())
	err = followStream(ctx, w, p)

	if ctx.Err() != nil {
		dctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		if derr := sess.Disconnect(dctx); derr != nil {
			a.logger.WithError(derr).Warn("Failed to disconnect")
		}
		cancel()
		return context.Canceled
	}
	return err
}

// followStream prints updates until the link ends. Losing an established stream is
// ErrConnectionLost; failing before it is the session's error reason.
func followStream(ctx context.Context, w *session.Watcher, p *printer) error {
	streamed := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-w.C():
			if !ok {
				return session.ErrClosed
			}
			switch u.Kind {
			case session.UpdateState:
				p.Status(u.Status)
				switch u.Status.State {
				case session.Streaming:
					streamed = true
				case session.Error:
					return u.Status.Reason
				case session.Disconnected:
					if streamed {
						return ErrConnectionLost
					}
					return fmt.Errorf("disconnected before streaming: %w", ErrConnectionLost)
				}
			case session.UpdateReading:
				p.Reading(u.Reading)
			}
		}
	}
}
