package goble

import (
	"fmt"

	goble "github.com/go-ble/ble"

	"github.com/jan21493/tesla-ble-state/pkg/connector/ble"
)

type service struct {
	client  goble.Client
	service *goble.Service
}

func (s *service) Rx(uuid string, callback func(p []byte)) error {
	characteristic, err := s.discover(uuid)
	if err != nil {
		return err
	}
	if err := s.client.Subscribe(characteristic, false, callback); err != nil {
		return fmt.Errorf("goble: failed to subscribe to %s: %w", uuid, err)
	}
	return nil
}

func (s *service) Tx(uuid string) (ble.Writer, error) {
	characteristic, err := s.discover(uuid)
	if err != nil {
		return nil, err
	}
	return &writer{client: s.client, characteristic: characteristic}, nil
}

func (s *service) discover(uuid string) (*goble.Characteristic, error) {
	target, err := goble.Parse(uuid)
	if err != nil {
		return nil, fmt.Errorf("goble: invalid characteristic UUID %s: %w", uuid, err)
	}
	characteristics, err := s.client.DiscoverCharacteristics([]goble.UUID{target}, s.service)
	if err != nil {
		return nil, fmt.Errorf("goble: characteristic discovery failed: %w", err)
	}
	if len(characteristics) == 0 {
		return nil, fmt.Errorf("goble: characteristic %s not found", uuid)
	}
	return characteristics[0], nil
}

type writer struct {
	client         goble.Client
	characteristic *goble.Characteristic
}

func (w *writer) Write(p []byte) (int, error) {
	if err := w.client.WriteCharacteristic(w.characteristic, p, false); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *writer) MTU(rxMTU int) (int, error) {
	return w.client.ExchangeMTU(rxMTU)
}
