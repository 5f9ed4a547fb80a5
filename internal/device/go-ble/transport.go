// Package goble implements device.Transport on top of github.com/go-ble/ble.
package goble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/bikemon/internal/device"
	"github.com/srg/bikemon/internal/groutine"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

var errScanInProgress = errors.New("scan already in progress")

// Transport drives one go-ble central. It holds at most one link at a time.
type Transport struct {
	logger *logrus.Logger

	mu         sync.Mutex
	dev        ble.Device
	scanCancel context.CancelFunc

	// the link owned by the most recent Connect; nil when idle
	cur *link
}

// link is the state of one Connect. A dial or monitor goroutine only touches the
// Transport while its link is still cur.
type link struct {
	cancel  context.CancelFunc
	handler device.LinkHandler
	client  ble.Client
	char    *ble.Characteristic
	closing bool
}

// New creates a go-ble transport. The platform device is opened by Enable.
func New(logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{logger: logger}
}

// Enable opens the platform HCI/CoreBluetooth device.
func (t *Transport) Enable() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev != nil {
		return nil
	}

	dev, err := DeviceFactory()
	if err != nil {
		t.logger.WithError(err).Error("Failed to create BLE device")
		return NormalizeError(err)
	}
	t.dev = dev
	t.logger.Debug("go-ble device ready")
	return nil
}

func (t *Transport) bleDevice() (ble.Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev == nil {
		return nil, device.ErrNotInitialized
	}
	return t.dev, nil
}

// StartDiscovery runs ble.Device.Scan on its own goroutine until StopDiscovery or ctx ends.
func (t *Transport) StartDiscovery(ctx context.Context, onSighting func(device.PeripheralRef), onDone func(error)) error {
	dev, err := t.bleDevice()
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.scanCancel != nil {
		t.mu.Unlock()
		return errScanInProgress
	}
	scanCtx, cancel := context.WithCancel(ctx)
	t.scanCancel = cancel
	t.mu.Unlock()

	groutine.Go(scanCtx, "goble-scan", func(ctx context.Context) {
		err := dev.Scan(ctx, true, func(adv ble.Advertisement) {
			onSighting(device.PeripheralRef{
				Address: adv.Addr().String(),
				Name:    adv.LocalName(),
				RSSI:    adv.RSSI(),
			})
		})

		t.mu.Lock()
		t.scanCancel = nil
		t.mu.Unlock()
		cancel()

		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.logger.WithError(err).Error("BLE scan failed")
			onDone(device.NewTransportError("scan", NormalizeError(err)))
			return
		}
		onDone(nil)
	})

	return nil
}

// StopDiscovery cancels a running scan. It is a no-op when no scan runs.
func (t *Transport) StopDiscovery() error {
	t.mu.Lock()
	cancel := t.scanCancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// Connect dials address in the background and reports the result to h.
func (t *Transport) Connect(ctx context.Context, address string, h device.LinkHandler) error {
	dev, err := t.bleDevice()
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.cur != nil {
		t.mu.Unlock()
		return device.ErrAlreadyConnected
	}
	linkCtx, cancel := context.WithCancel(ctx)
	l := &link{cancel: cancel, handler: h}
	t.cur = l
	t.mu.Unlock()

	log := t.logger.WithField("address", address)

	groutine.Go(linkCtx, "goble-connect", func(ctx context.Context) {
		log.Debug("Dialing BLE device...")
		client, err := dev.Dial(ctx, ble.NewAddr(address))
		if err != nil {
			if !t.release(l) {
				log.WithError(err).Debug("Abandoned dial ended")
				return
			}
			log.WithError(err).Error("Failed to dial BLE device")
			h.OnConnectionChange(false, device.NewTransportError("connect", NormalizeError(err)))
			return
		}

		t.mu.Lock()
		if t.cur != l || l.closing {
			t.mu.Unlock()
			log.Debug("Link torn down while dialing, cancelling connection")
			_ = client.CancelConnection()
			return
		}
		l.client = client
		t.mu.Unlock()

		log.Info("BLE device connected")
		h.OnConnectionChange(true, nil)

		groutine.Go(context.Background(), "goble-link-monitor", func(context.Context) {
			select {
			case <-client.Disconnected():
				if t.release(l) {
					log.Warn("Peripheral dropped the link")
					h.OnConnectionChange(false, device.ErrNotConnected)
				}
			case <-ctx.Done():
			}
		})
	})

	return nil
}

// DiscoverServices runs profile discovery and looks up the status characteristic.
func (t *Transport) DiscoverServices(serviceID, charID string) error {
	svcUUID, err := ble.Parse(serviceID)
	if err != nil {
		return fmt.Errorf("invalid service UUID %q: %w", serviceID, err)
	}
	charUUID, err := ble.Parse(charID)
	if err != nil {
		return fmt.Errorf("invalid characteristic UUID %q: %w", charID, err)
	}

	l, err := t.link()
	if err != nil {
		return err
	}
	client, h := l.client, l.handler

	groutine.Go(context.Background(), "goble-discover", func(context.Context) {
		profile, err := client.DiscoverProfile(true)
		if err != nil {
			h.OnServicesResolved(device.NewTransportError("discover", NormalizeError(err)))
			return
		}

		char, err := findCharacteristic(profile, svcUUID, charUUID)
		if err != nil {
			h.OnServicesResolved(err)
			return
		}

		t.mu.Lock()
		l.char = char
		t.mu.Unlock()

		t.logger.WithFields(logrus.Fields{
			"services":  len(profile.Services),
			"char_uuid": char.UUID.String(),
		}).Debug("Status characteristic resolved")
		h.OnServicesResolved(nil)
	})

	return nil
}

func findCharacteristic(profile *ble.Profile, svcUUID, charUUID ble.UUID) (*ble.Characteristic, error) {
	for _, svc := range profile.Services {
		if !svc.UUID.Equal(svcUUID) {
			continue
		}
		for _, c := range svc.Characteristics {
			if c.UUID.Equal(charUUID) {
				return c, nil
			}
		}
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{svcUUID.String(), charUUID.String()}}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{svcUUID.String()}}
}

// Subscribe enables notifications on the characteristic resolved by DiscoverServices.
func (t *Transport) Subscribe(_, _ string) error {
	l, err := t.link()
	if err != nil {
		return err
	}

	t.mu.Lock()
	client, h, char := l.client, l.handler, l.char
	t.mu.Unlock()
	if char == nil {
		return &device.NotFoundError{Resource: "characteristic"}
	}

	groutine.Go(context.Background(), "goble-subscribe", func(context.Context) {
		err := client.Subscribe(char, false, func(data []byte) {
			h.OnNotification(bytes.Clone(data), time.Now())
		})
		h.OnSubscribed(device.NewTransportError("subscribe", NormalizeError(err)))
	})

	return nil
}

// Disconnect tears down the current link, or abandons a dial in progress. A Connect
// issued afterwards starts a fresh link even while the abandoned dial is still returning.
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
	client, char := l.client, l.char
	t.mu.Unlock()

	l.cancel()

	var err error
	if client != nil {
		if char != nil {
			if uerr := client.Unsubscribe(char, false); uerr != nil {
				t.logger.WithError(uerr).Debug("Failed to unsubscribe during disconnect")
			}
		}
		err = client.CancelConnection()
	}

	if err != nil {
		t.logger.WithError(err).Warn("BLE device disconnected with errors")
		return NormalizeError(err)
	}
	t.logger.Info("BLE device disconnected")
	return nil
}

func (t *Transport) link() (*link, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cur == nil || t.cur.client == nil {
		return nil, device.ErrNotConnected
	}
	return t.cur, nil
}

// release drops l if it is still the current link and reports whether it was.
func (t *Transport) release(l *link) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	l.cancel()
	if t.cur != l || l.closing {
		return false
	}
	t.cur = nil
	return true
}

var _ device.Transport = (*Transport)(nil)
