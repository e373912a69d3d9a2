// Package ble implements the vehicle-facing Bluetooth Low Energy connector:
// deriving the advertised local name from a VIN, discovering the vehicle
// beacon, and moving protocol messages across the MTU-limited write/notify
// characteristic pair. Concrete radio stacks plug in through the Adapter
// interface; see the goble and tinygo subpackages.
package ble

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"

	"github.com/jan21493/tesla-ble-state/pkg/protocol"
)

// GATT identifiers of the vehicle's BLE surface. One write-type
// characteristic carries request chunks in, one notify-type characteristic
// carries response chunks out.
const (
	VehicleServiceUUID = "00000211-b2d1-43f0-9b88-960cebf8b91e"
	ToVehicleUUID      = "00000212-b2d1-43f0-9b88-960cebf8b91e"
	FromVehicleUUID    = "00000213-b2d1-43f0-9b88-960cebf8b91e"
)

const vinLength = 17

// VehicleLocalName derives the BLE advertised name from a VIN: "S" followed
// by the lowercase hex of the first eight bytes of SHA1(vin), followed by
// "C". The name is the only substitute for pairing when discovering the
// vehicle, so the derivation must be deterministic.
func VehicleLocalName(vin string) (string, error) {
	if len(vin) != vinLength {
		return "", fmt.Errorf("%w: got %d characters", protocol.ErrInvalidVIN, len(vin))
	}
	digest := sha1.Sum([]byte(vin))
	return fmt.Sprintf("S%02xC", digest[:8]), nil
}

// Beacon is a discovered vehicle advertisement.
type Beacon struct {
	Address     string
	LocalName   string
	RSSI        int16
	Connectable bool
}

// Adapter abstracts a host BLE radio stack.
type Adapter interface {
	// ScanBeacon scans until an advertisement with the given local name
	// appears or ctx expires.
	ScanBeacon(ctx context.Context, name string) (*Beacon, error)
	Connect(ctx context.Context, beacon *Beacon) (Device, error)
	Close() error
}

// Device is an established link to a vehicle.
type Device interface {
	Service(ctx context.Context, uuid string) (Service, error)
	Close() error
}

// Service resolves the characteristics of a discovered GATT service.
type Service interface {
	// Rx subscribes to notifications on the given characteristic.
	Rx(uuid string, callback func(buf []byte)) error
	// Tx opens the given characteristic for writing.
	Tx(uuid string) (Writer, error)
}

// Writer writes chunks to a characteristic. MTU negotiates the link
// transmission unit, requesting rxMTU and returning the agreed txMTU.
type Writer interface {
	io.Writer
	MTU(rxMTU int) (txMTU int, err error)
}

// ScanVehicleBeacon derives the vehicle's local name from vin and scans for
// its advertisement. It returns protocol.ErrDeviceNotFound when ctx expires
// before a matching beacon appears.
func ScanVehicleBeacon(ctx context.Context, vin string, adapter Adapter) (*Beacon, error) {
	name, err := VehicleLocalName(vin)
	if err != nil {
		return nil, err
	}
	beacon, err := adapter.ScanBeacon(ctx, name)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s", protocol.ErrDeviceNotFound, name)
		}
		return nil, err
	}
	if beacon == nil {
		return nil, fmt.Errorf("%w: %s", protocol.ErrDeviceNotFound, name)
	}
	return beacon, nil
}
