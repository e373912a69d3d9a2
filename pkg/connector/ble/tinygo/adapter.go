// Package tinygo adapts the tinygo.org/x/bluetooth host stack to the
// connector interfaces. It talks to BlueZ over D-Bus on Linux and to
// CoreBluetooth on macOS, with no raw HCI socket access required.
package tinygo

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/jan21493/tesla-ble-state/pkg/connector/ble"
	"github.com/jan21493/tesla-ble-state/pkg/protocol"
)

// NewAdapter enables the default platform adapter.
func NewAdapter() (ble.Adapter, error) {
	hostAdapter := bluetooth.DefaultAdapter
	if err := hostAdapter.Enable(); err != nil {
		return nil, fmt.Errorf("tinygo: failed to enable BLE adapter: %w", err)
	}
	return &adapter{
		adapter:   hostAdapter,
		addresses: make(map[string]bluetooth.Address),
	}, nil
}

type adapter struct {
	adapter *bluetooth.Adapter

	// Connect needs the platform address value observed during scanning,
	// not just its string form. macOS addresses are opaque UUIDs.
	mu        sync.Mutex
	addresses map[string]bluetooth.Address
}

func (a *adapter) ScanBeacon(ctx context.Context, name string) (*ble.Beacon, error) {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-scanCtx.Done()
		_ = a.adapter.StopScan()
	}()

	var result *ble.Beacon
	err := a.adapter.Scan(func(hostAdapter *bluetooth.Adapter, scan bluetooth.ScanResult) {
		if scan.LocalName() != name {
			return
		}
		a.remember(scan.Address)
		result = &ble.Beacon{
			Address:   scan.Address.String(),
			LocalName: scan.LocalName(),
			RSSI:      scan.RSSI,
			// The scan result does not expose the advertisement type, and
			// the body controller stops advertising as connectable only
			// while its connection slots are full.
			Connectable: true,
		}
		_ = hostAdapter.StopScan()
	})
	if result != nil {
		return result, nil
	}
	if ctx.Err() != nil || err == nil {
		return nil, fmt.Errorf("%w: %s", protocol.ErrDeviceNotFound, name)
	}
	return nil, err
}

func (a *adapter) Connect(_ context.Context, beacon *ble.Beacon) (ble.Device, error) {
	address, ok := a.lookup(beacon.Address)
	if !ok {
		return nil, fmt.Errorf("tinygo: address %s was not observed during scanning", beacon.Address)
	}
	client, err := a.adapter.Connect(address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, err
	}
	return &device{client: client}, nil
}

func (a *adapter) Close() error {
	return a.adapter.StopScan()
}

func (a *adapter) remember(address bluetooth.Address) {
	a.mu.Lock()
	a.addresses[address.String()] = address
	a.mu.Unlock()
}

func (a *adapter) lookup(key string) (bluetooth.Address, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	address, ok := a.addresses[key]
	return address, ok
}
