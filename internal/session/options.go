package session

import (
	"strings"
	"time"

	"github.com/srg/bikemon/pkg/config"
	"github.com/srg/bikemon/internal/telemetry"
)

// Default timings.
const (
	DefaultScanTimeout    = 15 * time.Second
	DefaultConnectTimeout = 30 * time.Second
)

// Options is the already-parsed configuration a session runs with. It is fixed for the
// lifetime of a connection and can only be replaced with Reconfigure while no link exists.
type Options struct {
	Patterns           telemetry.PatternConfig
	ServiceUUID        string
	CharacteristicUUID string
	TargetName         string
	TargetAddress      string
	ScanTimeout        time.Duration
	ConnectTimeout     time.Duration
	AssistLabels       telemetry.AssistLabels
}

// Target is the configured bike.
type Target struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// Validate reports every missing piece of addressing or pattern data.
func (o Options) Validate() error {
	var reasons []string

	if len(o.Patterns.AssistPattern()) == 0 {
		reasons = append(reasons, "assist pattern is empty")
	}
	if len(o.Patterns.BatteryPattern()) == 0 {
		reasons = append(reasons, "battery pattern is empty")
	}
	if strings.TrimSpace(o.ServiceUUID) == "" {
		reasons = append(reasons, "status service UUID is empty")
	}
	if strings.TrimSpace(o.CharacteristicUUID) == "" {
		reasons = append(reasons, "status characteristic UUID is empty")
	}
	if o.ScanTimeout < 0 {
		reasons = append(reasons, "scan timeout is negative")
	}
	if o.ConnectTimeout < 0 {
		reasons = append(reasons, "connect timeout is negative")
	}

	if len(reasons) > 0 {
		return &config.ConfigurationError{Reasons: reasons}
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.ScanTimeout == 0 {
		o.ScanTimeout = DefaultScanTimeout
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.AssistLabels == nil {
		o.AssistLabels = telemetry.DefaultAssistLabels
	}
	return o
}

// FromConfig builds session options from a configuration document.
func FromConfig(cfg *config.Config) Options {
	return Options{
		Patterns:           cfg.Patterns(),
		ServiceUUID:        cfg.Bluetooth.StatusServiceUUID,
		CharacteristicUUID: cfg.Bluetooth.StatusCharacteristicUUID,
		TargetName:         cfg.Bike.Name,
		TargetAddress:      cfg.Bike.Address,
		ScanTimeout:        cfg.Bluetooth.ScanTimeout,
		ConnectTimeout:     cfg.Bluetooth.ConnectTimeout,
		AssistLabels:       cfg.Labels(),
	}
}
