package goble

import (
	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

func newDevice() (goble.Device, error) {
	device, err := darwin.NewDevice()
	if err != nil {
		return nil, err
	}
	return device, nil
}
