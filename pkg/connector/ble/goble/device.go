package goble

import (
	"context"
	"fmt"

	goble "github.com/go-ble/ble"

	"github.com/jan21493/tesla-ble-state/pkg/connector/ble"
)

type device struct {
	client goble.Client
}

func (d *device) Service(_ context.Context, uuid string) (ble.Service, error) {
	target, err := goble.Parse(uuid)
	if err != nil {
		return nil, fmt.Errorf("goble: invalid service UUID %s: %w", uuid, err)
	}
	services, err := d.client.DiscoverServices([]goble.UUID{target})
	if err != nil {
		return nil, fmt.Errorf("goble: service discovery failed: %w", err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("goble: service %s not found", uuid)
	}
	return &service{client: d.client, service: services[0]}, nil
}

func (d *device) Close() error {
	client := d.client
	d.client = nil
	return client.CancelConnection()
}
