package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/bikemon/internal/device"
	"github.com/srg/bikemon/internal/session"
	"github.com/srg/bikemon/pkg/config"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the bike dropped the link while monitoring. It is
	// distinct from device.ErrNotConnected, which means no link was ever established.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError turns an error into a message for the terminal.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var (
		permErr  *device.PermissionError
		cfgErr   *config.ConfigurationError
		notFound *device.NotFoundError
	)

	switch {
	case errors.As(err, &permErr):
		return fmt.Sprintf("bluetooth access denied (%s); grant this terminal Bluetooth permission and retry", permErr.Capability)
	case errors.Is(err, device.ErrBluetoothOff):
		return "bluetooth is powered off; turn it on and retry"
	case errors.As(err, &cfgErr):
		var sb strings.Builder
		sb.WriteString("invalid configuration:")
		for _, r := range cfgErr.Reasons {
			sb.WriteString("\n  - ")
			sb.WriteString(r)
		}
		return sb.String()
	case errors.Is(err, session.ErrNoTarget):
		return "no bike address given; pass one as an argument or set bike.address in the config file"
	case errors.As(err, &notFound):
		return fmt.Sprintf("the bike does not expose the %s %s; check bluetooth.status_service_uuid and bluetooth.status_characteristic_uuid",
			notFound.Resource, strings.Join(notFound.UUIDs, ", "))
	case errors.Is(err, device.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timed out: %v", err)
	case errors.Is(err, device.ErrUnsupported):
		return "this platform has no supported bluetooth backend"
	default:
		return err.Error()
	}
}
