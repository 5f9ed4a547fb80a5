// Package device defines the Bluetooth Low Energy transport used by the bike session.
//
// A Transport wraps one platform BLE stack and exposes the handful of operations the
// session needs:
//   - Peripheral discovery with per-sighting callbacks
//   - A single central connection with link-state callbacks
//   - Resolution of one service/characteristic pair
//   - Notification subscription on that characteristic
//
// Every Transport method returns promptly. Results of asynchronous work are delivered
// through the LinkHandler supplied to Connect. Implementations live in the go-ble and
// tinygo sub-packages.
package device
