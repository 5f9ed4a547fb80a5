package device

import (
	"context"
	"time"
)

// PeripheralRef is one advertising peripheral as seen during discovery.
type PeripheralRef struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	RSSI    int    `json:"rssi"`
}

// DisplayName returns the advertised name, or the address when the peripheral has none.
func (p PeripheralRef) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Address
}

// LinkHandler receives the asynchronous results of a connection attempt.
// Callbacks may arrive on any goroutine and must not block.
type LinkHandler interface {
	// OnConnectionChange reports the link coming up or going down. err explains an
	// unsuccessful attempt or an unexpected loss of the link.
	OnConnectionChange(connected bool, err error)
	// OnServicesResolved reports the outcome of DiscoverServices.
	OnServicesResolved(err error)
	// OnSubscribed reports the outcome of Subscribe.
	OnSubscribed(err error)
	// OnNotification delivers one characteristic notification. data is owned by the callee.
	OnNotification(data []byte, at time.Time)
}

// Transport is a platform BLE stack driven by the session.
type Transport interface {
	// Enable powers up the adapter. A PermissionError means the process may not use Bluetooth.
	Enable() error

	// StartDiscovery begins scanning and calls onSighting for each advertisement until
	// StopDiscovery is called or ctx ends. onDone is called exactly once when scanning
	// ends, with nil for a requested stop and the failure otherwise.
	StartDiscovery(ctx context.Context, onSighting func(PeripheralRef), onDone func(error)) error
	StopDiscovery() error

	// Connect starts connecting to address. The outcome and every later link change are
	// reported to h.
	Connect(ctx context.Context, address string, h LinkHandler) error
	// DiscoverServices resolves the given service and characteristic on the connected peripheral.
	DiscoverServices(serviceID, charID string) error
	// Subscribe enables notifications on the resolved characteristic.
	Subscribe(serviceID, charID string) error
	// Disconnect tears down the link. Calling it without a link is a no-op.
	Disconnect() error
}
