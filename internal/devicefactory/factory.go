// Package devicefactory selects the BLE transport backend by name.
package devicefactory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/srg/bikemon/internal/device"
	goble "github.com/srg/bikemon/internal/device/go-ble"
	"github.com/srg/bikemon/internal/device/tinygo"
)

// Backend names accepted by New.
const (
	BackendGoBLE  = "go-ble"
	BackendTinyGo = "tinygo"
)

// DefaultBackend is used when no backend is configured.
const DefaultBackend = BackendGoBLE

var backends = map[string]func(*logrus.Logger) device.Transport{
	BackendGoBLE:  func(l *logrus.Logger) device.Transport { return goble.New(l) },
	BackendTinyGo: func(l *logrus.Logger) device.Transport { return tinygo.New(l) },
}

// TransportFactory creates the transport for a backend name.
// This is a variable so that it can be overridden in tests.
var TransportFactory = func(backend string, logger *logrus.Logger) (device.Transport, error) {
	if backend == "" {
		backend = DefaultBackend
	}
	ctor, ok := backends[strings.ToLower(backend)]
	if !ok {
		return nil, fmt.Errorf("unknown bluetooth backend %q (available: %s)", backend, strings.Join(Backends(), ", "))
	}
	return ctor(logger), nil
}

// New creates the transport for backend, logging under the "backend" field.
func New(backend string, logger *logrus.Logger) (device.Transport, error) {
	if logger == nil {
		logger = logrus.New()
	}
	logger.WithField("backend", backend).Debug("Creating BLE transport")
	return TransportFactory(backend, logger)
}

// Backends lists the accepted backend names in sorted order.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsBackend reports whether name selects a known backend.
func IsBackend(name string) bool {
	_, ok := backends[strings.ToLower(name)]
	return ok
}
