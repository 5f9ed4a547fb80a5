package goble

import (
	"fmt"
	"strings"

	"github.com/srg/bikemon/internal/device"
)

// coreBluetoothPoweredOff is the exact error go-ble's darwin backend returns while the
// radio is switched off.
const coreBluetoothPoweredOff = "central manager has invalid state: have=4 want=5: is Bluetooth turned on?"

// coreBluetoothUnauthorized is returned when the app has not been granted Bluetooth access.
const coreBluetoothUnauthorized = "central manager has invalid state: have=3 want=5"

// NormalizeError maps go-ble error strings onto the device error taxonomy.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	switch msg := err.Error(); {
	case msg == coreBluetoothPoweredOff:
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case strings.HasPrefix(msg, coreBluetoothUnauthorized):
		return &device.PermissionError{Capability: "bluetooth", Err: err}
	default:
		return device.NormalizeError(err)
	}
}
