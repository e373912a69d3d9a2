// Package goble adapts the github.com/go-ble/ble host stack to the connector
// interfaces. It is the default adapter on Linux (HCI socket) and macOS.
package goble

import (
	"context"
	"fmt"

	goble "github.com/go-ble/ble"

	"github.com/jan21493/tesla-ble-state/pkg/connector/ble"
	"github.com/jan21493/tesla-ble-state/pkg/protocol"
)

// NewAdapter opens the platform BLE device.
func NewAdapter() (ble.Adapter, error) {
	device, err := newDevice()
	if err != nil {
		return nil, fmt.Errorf("goble: failed to open BLE device: %w", err)
	}
	return &adapter{device: device}, nil
}

type adapter struct {
	device goble.Device
}

func (a *adapter) ScanBeacon(ctx context.Context, name string) (*ble.Beacon, error) {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var result *ble.Beacon
	fn := func(adv goble.Advertisement) {
		if adv.LocalName() != name {
			return
		}
		result = advertisementToBeacon(adv)
		cancel()
	}

	err := a.device.Scan(scanCtx, false, fn)
	if result != nil {
		return result, nil
	}
	if ctx.Err() != nil || err == nil {
		return nil, fmt.Errorf("%w: %s", protocol.ErrDeviceNotFound, name)
	}
	return nil, err
}

func (a *adapter) Connect(ctx context.Context, beacon *ble.Beacon) (ble.Device, error) {
	client, err := a.device.Dial(ctx, goble.NewAddr(beacon.Address))
	if err != nil {
		return nil, err
	}
	return &device{client: client}, nil
}

func (a *adapter) Close() error {
	if a.device == nil {
		return nil
	}
	device := a.device
	a.device = nil
	return device.Stop()
}

func advertisementToBeacon(adv goble.Advertisement) *ble.Beacon {
	return &ble.Beacon{
		Address:     adv.Addr().String(),
		LocalName:   adv.LocalName(),
		RSSI:        int16(adv.RSSI()),
		Connectable: adv.Connectable(),
	}
}
