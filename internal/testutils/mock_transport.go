//go:build test

package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/srg/bikemon/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockTransport is a device.Transport that records every call and lets the test play
// the peripheral's side through the Emit helpers.
//
// Expectations registered with On before Defaults take precedence over the permissive
// defaults, so a test only describes the calls it wants to fail.
type MockTransport struct {
	mock.Mock

	mu         sync.Mutex
	onSighting func(device.PeripheralRef)
	onScanDone func(error)
	handler    device.LinkHandler
	address    string
	counts     map[string]int
}

// NewMockTransport returns a transport on which every call succeeds. setup runs first and
// may register failing expectations.
func NewMockTransport(setup ...func(m *MockTransport)) *MockTransport {
	m := &MockTransport{counts: make(map[string]int)}
	for _, fn := range setup {
		fn(m)
	}
	m.Defaults()
	return m
}

// Defaults registers a successful, optional expectation for every method.
func (m *MockTransport) Defaults() {
	m.On("Enable").Return(nil).Maybe()
	m.On("StartDiscovery", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("StopDiscovery").Return(nil).Maybe()
	m.On("Connect", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("DiscoverServices", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("Subscribe", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("Disconnect").Return(nil).Maybe()
}

func (m *MockTransport) Enable() error {
	m.track("Enable")
	return m.Called().Error(0)
}

func (m *MockTransport) StartDiscovery(ctx context.Context, onSighting func(device.PeripheralRef), onDone func(error)) error {
	m.track("StartDiscovery")
	err := m.Called(ctx, onSighting, onDone).Error(0)
	if err == nil {
		m.mu.Lock()
		m.onSighting, m.onScanDone = onSighting, onDone
		m.mu.Unlock()
	}
	return err
}

func (m *MockTransport) StopDiscovery() error {
	m.track("StopDiscovery")
	return m.Called().Error(0)
}

func (m *MockTransport) Connect(ctx context.Context, address string, h device.LinkHandler) error {
	m.track("Connect")
	err := m.Called(ctx, address, h).Error(0)
	if err == nil {
		m.mu.Lock()
		m.handler, m.address = h, address
		m.mu.Unlock()
	}
	return err
}

func (m *MockTransport) DiscoverServices(serviceID, charID string) error {
	m.track("DiscoverServices")
	return m.Called(serviceID, charID).Error(0)
}

func (m *MockTransport) Subscribe(serviceID, charID string) error {
	m.track("Subscribe")
	return m.Called(serviceID, charID).Error(0)
}

func (m *MockTransport) Disconnect() error {
	m.track("Disconnect")
	return m.Called().Error(0)
}

// Address returns the address of the last successful Connect.
func (m *MockTransport) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.address
}

// Handler returns the link handler of the last successful Connect.
func (m *MockTransport) Handler() device.LinkHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler
}

func (m *MockTransport) track(method string) {
	m.mu.Lock()
	m.counts[method]++
	m.mu.Unlock()
}

// Count returns how many times method was invoked.
func (m *MockTransport) Count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[method]
}

// EmitSighting reports an advertisement to the running discovery.
func (m *MockTransport) EmitSighting(address, name string, rssi int) {
	m.mu.Lock()
	fn := m.onSighting
	m.mu.Unlock()
	if fn != nil {
		fn(device.PeripheralRef{Address: address, Name: name, RSSI: rssi})
	}
}

// EmitScanDone ends the running discovery with err.
func (m *MockTransport) EmitScanDone(err error) {
	m.mu.Lock()
	fn := m.onScanDone
	m.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (m *MockTransport) EmitConnected() {
	if h := m.Handler(); h != nil {
		h.OnConnectionChange(true, nil)
	}
}

func (m *MockTransport) EmitDisconnected(err error) {
	if h := m.Handler(); h != nil {
		h.OnConnectionChange(false, err)
	}
}

func (m *MockTransport) EmitServicesResolved(err error) {
	if h := m.Handler(); h != nil {
		h.OnServicesResolved(err)
	}
}

func (m *MockTransport) EmitSubscribed(err error) {
	if h := m.Handler(); h != nil {
		h.OnSubscribed(err)
	}
}

// EmitNotification delivers one notification payload stamped with the current time.
func (m *MockTransport) EmitNotification(data []byte) {
	if h := m.Handler(); h != nil {
		h.OnNotification(append([]byte(nil), data...), time.Now())
	}
}

// EmitLinkUp walks the link from connected to subscribed.
func (m *MockTransport) EmitLinkUp() {
	m.EmitConnected()
	m.EmitServicesResolved(nil)
	m.EmitSubscribed(nil)
}

var _ device.Transport = (*MockTransport)(nil)
