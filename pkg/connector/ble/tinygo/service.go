package tinygo

import (
	"fmt"

	"tinygo.org/x/bluetooth"

	"github.com/jan21493/tesla-ble-state/pkg/connector/ble"
)

type service struct {
	service bluetooth.DeviceService
}

func (s *service) Rx(uuid string, callback func(p []byte)) error {
	characteristic, err := s.discover(uuid)
	if err != nil {
		return err
	}
	if err := characteristic.EnableNotifications(callback); err != nil {
		return fmt.Errorf("tinygo: failed to subscribe to %s: %w", uuid, err)
	}
	return nil
}

func (s *service) Tx(uuid string) (ble.Writer, error) {
	characteristic, err := s.discover(uuid)
	if err != nil {
		return nil, err
	}
	return &writer{characteristic: characteristic}, nil
}

func (s *service) discover(uuid string) (bluetooth.DeviceCharacteristic, error) {
	target, err := bluetooth.ParseUUID(uuid)
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("tinygo: invalid characteristic UUID %s: %w", uuid, err)
	}
	characteristics, err := s.service.DiscoverCharacteristics([]bluetooth.UUID{target})
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("tinygo: characteristic discovery failed: %w", err)
	}
	if len(characteristics) == 0 {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("tinygo: characteristic %s not found", uuid)
	}
	return characteristics[0], nil
}

type writer struct {
	characteristic bluetooth.DeviceCharacteristic
}

func (w *writer) Write(p []byte) (int, error) {
	return w.characteristic.WriteWithoutResponse(p)
}

func (w *writer) MTU(int) (int, error) {
	mtu, err := w.characteristic.GetMTU()
	if err != nil {
		return 0, err
	}
	return int(mtu), nil
}
