package goble

import (
	"time"

	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
)

const bleTimeout = 20 * time.Second

// TODO: Depending on the model and state, BLE advertisements come every 20ms or every 150ms.

var scanParams = cmd.LESetScanParameters{
	LEScanType:           1,    // Active scanning
	LEScanInterval:       0x10, // 10ms
	LEScanWindow:         0x10, // 10ms
	OwnAddressType:       0,    // Static
	ScanningFilterPolicy: 0,    // Basic unfiltered
}

func newDevice() (goble.Device, error) {
	device, err := linux.NewDevice(goble.OptListenerTimeout(bleTimeout), goble.OptDialerTimeout(bleTimeout), goble.OptScanParams(scanParams))
	if err != nil {
		return nil, err
	}
	return device, nil
}
