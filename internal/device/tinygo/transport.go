// Package tinygo implements device.Transport on top of tinygo.org/x/bluetooth, which
// drives BlueZ over D-Bus on Linux, CoreBluetooth on macOS and WinRT on Windows.
package tinygo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bikemon/internal/device"
	"github.com/srg/bikemon/internal/groutine"
	"tinygo.org/x/bluetooth"
)

var errScanInProgress = errors.New("scan already in progress")

// peripheral is the part of *bluetooth.Device the transport drives.
type peripheral interface {
	DiscoverServices(uuids []bluetooth.UUID) ([]bluetooth.DeviceService, error)
	Disconnect() error
}

// Transport drives the default tinygo adapter. The adapter is process-wide, so only
// one Transport should be enabled at a time.
type Transport struct {
	adapter *bluetooth.Adapter
	logger  *logrus.Logger
	dial    func(bluetooth.Address) (peripheral, error)

	mu       sync.Mutex
	enabled  bool
	scanning bool

	// the link owned by the most recent Connect; nil when idle
	cur *link
}

// link is the state of one Connect. The dial goroutine only installs its peripheral
// while the link is still cur.
type link struct {
	address string
	handler device.LinkHandler
	dev     peripheral
	char    *bluetooth.DeviceCharacteristic
	closing bool
}

// New creates a transport on bluetooth.DefaultAdapter.
func New(logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	t := &Transport{adapter: bluetooth.DefaultAdapter, logger: logger}
	t.dial = func(addr bluetooth.Address) (peripheral, error) {
		dev, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})
		if err != nil {
			return nil, err
		}
		return &dev, nil
	}
	return t
}

// Enable powers the adapter and registers the link-loss handler.
func (t *Transport) Enable() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.enabled {
		return nil
	}
	if err := t.adapter.Enable(); err != nil {
		t.logger.WithError(err).Error("Failed to enable BLE adapter")
		return device.NormalizeError(err)
	}

	t.adapter.SetConnectHandler(func(d bluetooth.Device, connected bool) {
		if connected {
			return
		}
		t.onLinkLost(d.Address.String())
	})

	t.enabled = true
	t.logger.Debug("tinygo adapter enabled")
	return nil
}

func (t *Transport) onLinkLost(address string) {
	t.mu.Lock()
	l := t.cur
	if l == nil || l.dev == nil || l.address != address {
		t.mu.Unlock()
		return
	}
	t.cur = nil
	t.mu.Unlock()

	t.logger.WithField("address", address).Warn("Peripheral dropped the link")
	l.handler.OnConnectionChange(false, device.ErrNotConnected)
}

// StartDiscovery runs Adapter.Scan on its own goroutine. The scan stops on StopDiscovery
// or when ctx ends.
func (t *Transport) StartDiscovery(ctx context.Context, onSighting func(device.PeripheralRef), onDone func(error)) error {
	t.mu.Lock()
	if !t.enabled {
		t.mu.Unlock()
		return device.ErrNotInitialized
	}
	if t.scanning {
		t.mu.Unlock()
		return errScanInProgress
	}
	t.scanning = true
	t.mu.Unlock()

	scanCtx, cancel := context.WithCancel(ctx)
	groutine.Go(scanCtx, "tinygo-scan-watch", func(ctx context.Context) {
		<-ctx.Done()
		t.mu.Lock()
		running := t.scanning
		t.mu.Unlock()
		if running {
			_ = t.adapter.StopScan()
		}
	})

	groutine.Go(scanCtx, "tinygo-scan", func(context.Context) {
		err := t.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			onSighting(device.PeripheralRef{
				Address: result.Address.String(),
				Name:    result.LocalName(),
				RSSI:    int(result.RSSI),
			})
		})

		t.mu.Lock()
		t.scanning = false
		t.mu.Unlock()
		cancel()

		if err != nil {
			t.logger.WithError(err).Error("BLE scan failed")
			onDone(device.NewTransportError("scan", device.NormalizeError(err)))
			return
		}
		onDone(nil)
	})

	return nil
}

// StopDiscovery stops a running scan. It is a no-op when no scan runs.
func (t *Transport) StopDiscovery() error {
	t.mu.Lock()
	running := t.scanning
	t.mu.Unlock()

	if !running {
		return nil
	}
	return device.NormalizeError(t.adapter.StopScan())
}

// Connect dials address in the background. tinygo's Connect cannot be cancelled, so a
// Disconnect issued while dialing abandons the attempt: its peripheral is dropped as soon
// as the dial returns, and a new Connect may start right away.
func (t *Transport) Connect(_ context.Context, address string, h device.LinkHandler) error {
	var addr bluetooth.Address
	addr.Set(address)

	t.mu.Lock()
	if !t.enabled {
		t.mu.Unlock()
		return device.ErrNotInitialized
	}
	if t.cur != nil {
		t.mu.Unlock()
		return device.ErrAlreadyConnected
	}
	l := &link{address: addr.String(), handler: h}
	t.cur = l
	t.mu.Unlock()

	log := t.logger.WithField("address", address)

	groutine.Go(context.Background(), "tinygo-connect", func(context.Context) {
		log.Debug("Connecting to BLE device...")
		dev, err := t.dial(addr)

		t.mu.Lock()
		if t.cur != l || l.closing {
			t.mu.Unlock()
			if err == nil {
				log.Debug("Link torn down while dialing, disconnecting")
				_ = dev.Disconnect()
			}
			return
		}
		if err != nil {
			t.cur = nil
			t.mu.Unlock()
			log.WithError(err).Error("Failed to connect to BLE device")
			h.OnConnectionChange(false, device.NewTransportError("connect", device.NormalizeError(err)))
			return
		}
		l.dev = dev
		t.mu.Unlock()

		log.Info("BLE device connected")
		h.OnConnectionChange(true, nil)
	})

	return nil
}

// DiscoverServices looks up exactly the requested service and characteristic.
func (t *Transport) DiscoverServices(serviceID, charID string) error {
	svcUUID, charUUID, err := parseIDs(serviceID, charID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	l := t.cur
	if l == nil || l.dev == nil {
		t.mu.Unlock()
		return device.ErrNotConnected
	}
	dev, h := l.dev, l.handler
	t.mu.Unlock()

	groutine.Go(context.Background(), "tinygo-discover", func(context.Context) {
		svcs, err := dev.DiscoverServices([]bluetooth.UUID{svcUUID})
		if err != nil {
			h.OnServicesResolved(device.NewTransportError("discover", device.NormalizeError(err)))
			return
		}
		if len(svcs) == 0 {
			h.OnServicesResolved(&device.NotFoundError{Resource: "service", UUIDs: []string{serviceID}})
			return
		}

		chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
		if err != nil {
			h.OnServicesResolved(device.NewTransportError("discover", device.NormalizeError(err)))
			return
		}
		if len(chars) == 0 {
			h.OnServicesResolved(&device.NotFoundError{Resource: "characteristic", UUIDs: []string{serviceID, charID}})
			return
		}

		t.mu.Lock()
		l.char = &chars[0]
		t.mu.Unlock()
		h.OnServicesResolved(nil)
	})

	return nil
}

// Subscribe enables notifications on the characteristic resolved by DiscoverServices.
func (t *Transport) Subscribe(_, _ string) error {
	t.mu.Lock()
	var (
		char *bluetooth.DeviceCharacteristic
		h    device.LinkHandler
	)
	if l := t.cur; l != nil {
		char, h = l.char, l.handler
	}
	t.mu.Unlock()
	if char == nil {
		return &device.NotFoundError{Resource: "characteristic"}
	}

	groutine.Go(context.Background(), "tinygo-subscribe", func(context.Context) {
		err := char.EnableNotifications(func(buf []byte) {
			h.OnNotification(bytes.Clone(buf), time.Now())
		})
		h.OnSubscribed(device.NewTransportError("subscribe", device.NormalizeError(err)))
	})

	return nil
}

// Disconnect drops the current link, or abandons a dial in progress. It is a no-op
// without either.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	l := t.cur
	if l == nil {
		t.mu.Unlock()
		t.logger.Debug("Disconnect called but already disconnected")
		return nil
	}
	l.closing = true
	t.cur = nil
	dev := l.dev
	t.mu.Unlock()

	if dev == nil {
		t.logger.WithField("address", l.address).Debug("Abandoned dial in progress")
		return nil
	}
	if err := dev.Disconnect(); err != nil {
		t.logger.WithError(err).Warn("BLE device disconnected with errors")
		return device.NormalizeError(err)
	}
	t.logger.Info("BLE device disconnected")
	return nil
}

func parseIDs(serviceID, charID string) (bluetooth.UUID, bluetooth.UUID, error) {
	svc, err := bluetooth.ParseUUID(serviceID)
	if err != nil {
		return bluetooth.UUID{}, bluetooth.UUID{}, fmt.Errorf("invalid service UUID %q: %w", serviceID, err)
	}
	char, err := bluetooth.ParseUUID(charID)
	if err != nil {
		return bluetooth.UUID{}, bluetooth.UUID{}, fmt.Errorf("invalid characteristic UUID %q: %w", charID, err)
	}
	return svc, char, nil
}

var _ device.Transport = (*Transport)(nil)
