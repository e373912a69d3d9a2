package tinygo

import (
	"context"
	"fmt"

	"tinygo.org/x/bluetooth"

	"github.com/jan21493/tesla-ble-state/pkg/connector/ble"
)

type device struct {
	client bluetooth.Device
}

func (d *device) Service(_ context.Context, uuid string) (ble.Service, error) {
	target, err := bluetooth.ParseUUID(uuid)
	if err != nil {
		return nil, fmt.Errorf("tinygo: invalid service UUID %s: %w", uuid, err)
	}
	services, err := d.client.DiscoverServices([]bluetooth.UUID{target})
	if err != nil {
		return nil, fmt.Errorf("tinygo: service discovery failed: %w", err)
	}
	if len(services) != 1 {
		return nil, fmt.Errorf("tinygo: service %s not found", uuid)
	}
	return &service{service: services[0]}, nil
}

func (d *device) Close() error {
	return d.client.Disconnect()
}
