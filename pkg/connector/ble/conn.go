package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jan21493/tesla-ble-state/internal/log"
	"github.com/jan21493/tesla-ble-state/pkg/protocol"
)

const (
	defaultMTU    = 23
	maxBLEMTUSize = 512 + 3 // target MTU; 3 bytes of ATT header

	// rxTimeout bounds the idle interval between chunks of one message. A
	// reassembly that stalls longer is discarded so a later response cannot
	// be glued onto stale bytes.
	rxTimeout = time.Second
)

// Inbound is one reassembly outcome delivered to the session: a complete
// message, or the framing error that aborted it.
type Inbound struct {
	Message []byte
	Err     error
}

// Connection is one established BLE link to one vehicle. It owns the
// write/notify characteristic pair and the chunk reassembly state; callers
// exchange whole protocol messages through Send and Receive.
type Connection struct {
	vin    string
	beacon Beacon
	device Device
	writer Writer

	blockLength int
	inbox       chan Inbound

	lock      sync.Mutex
	assembler Assembler
	lastRx    time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// NewConnection scans for the vehicle matching vin and connects to it.
func NewConnection(ctx context.Context, vin string, adapter Adapter) (*Connection, error) {
	beacon, err := ScanVehicleBeacon(ctx, vin, adapter)
	if err != nil {
		return nil, err
	}
	return NewConnectionFromBeacon(ctx, vin, beacon, adapter)
}

// NewConnectionFromBeacon connects to a previously discovered beacon,
// establishes the GATT session, and negotiates the block length used for
// chunking. The beacon must advertise the local name derived from vin.
func NewConnectionFromBeacon(ctx context.Context, vin string, beacon *Beacon, adapter Adapter) (*Connection, error) {
	name, err := VehicleLocalName(vin)
	if err != nil {
		return nil, err
	}
	if beacon.LocalName != name {
		return nil, fmt.Errorf("%w: beacon advertises '%s'", protocol.ErrConnectionFailed, beacon.LocalName)
	}
	if !beacon.Connectable {
		return nil, protocol.ErrMaxConnectionsExceeded
	}

	device, err := adapter.Connect(ctx, beacon)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrConnectionFailed, err)
	}

	service, err := device.Service(ctx, VehicleServiceUUID)
	if err != nil {
		device.Close()
		return nil, fmt.Errorf("%w: %v", protocol.ErrConnectionFailed, err)
	}

	writer, err := service.Tx(ToVehicleUUID)
	if err != nil {
		device.Close()
		return nil, fmt.Errorf("%w: %v", protocol.ErrConnectionFailed, err)
	}

	txMTU, err := writer.MTU(maxBLEMTUSize)
	if err != nil {
		txMTU = defaultMTU
		log.Warning("ble: MTU exchange failed, falling back to %d: %s", defaultMTU, err)
	}

	conn := &Connection{
		vin:         vin,
		beacon:      *beacon,
		device:      device,
		writer:      writer,
		blockLength: min(txMTU, maxBLEMTUSize) - 3,
		inbox:       make(chan Inbound, 5),
		done:        make(chan struct{}),
	}

	if err := service.Rx(FromVehicleUUID, conn.rx); err != nil {
		device.Close()
		return nil, fmt.Errorf("%w: %v", protocol.ErrConnectionFailed, err)
	}

	log.Info("ble: connected to %s (rssi %d, block length %d)", beacon.LocalName, beacon.RSSI, conn.blockLength)
	return conn, nil
}

// Send chunks buffer to the negotiated block length and writes the chunks in
// order. Callers must not interleave Send calls for distinct messages.
func (c *Connection) Send(ctx context.Context, buffer []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	log.Debug("ble: TX %02x", buffer)
	chunks, err := SplitMessage(buffer, c.blockLength)
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return protocol.ErrResponseTimeout
			}
			return err
		}
		select {
		case <-c.done:
			return protocol.ErrConnectionLost
		default:
		}
		n, err := c.writer.Write(chunk)
		if err != nil {
			return fmt.Errorf("%w: %v", protocol.ErrConnectionLost, err)
		}
		if n != len(chunk) {
			return fmt.Errorf("%w: short write (%d of %d bytes)", protocol.ErrConnectionLost, n, len(chunk))
		}
	}
	return nil
}

// Receive yields reassembled messages and framing failures.
func (c *Connection) Receive() <-chan Inbound {
	return c.inbox
}

// Done is closed when the connection is torn down.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) VIN() string {
	return c.vin
}

// LocalName returns the advertised name the connection was matched on.
func (c *Connection) LocalName() string {
	return c.beacon.LocalName
}

// RSSI returns the signal strength observed during discovery.
func (c *Connection) RSSI() int16 {
	return c.beacon.RSSI
}

// BlockLength returns the negotiated chunk size.
func (c *Connection) BlockLength() int {
	return c.blockLength
}

// Close tears down the link. Safe to call more than once and from any state;
// a request blocked in Receive observes Done instead.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.device.Close(); err != nil {
			log.Warning("ble: failed to close device: %s", err)
		}
	})
}

// rx handles one notification chunk. Runs on the adapter's callback
// goroutine; reassembly state is guarded against concurrent Send calls.
func (c *Connection) rx(p []byte) {
	c.lock.Lock()
	if c.assembler.Pending() && time.Since(c.lastRx) > rxTimeout {
		log.Warning("ble: discarding stalled partial message")
		c.assembler.Reset()
	}
	c.lastRx = time.Now()
	msg, err := c.assembler.Feed(p)
	c.lock.Unlock()

	if err != nil {
		log.Warning("ble: %s", err)
		c.deliver(Inbound{Err: err})
		return
	}
	if msg != nil {
		log.Debug("ble: RX %02x", msg)
		c.deliver(Inbound{Message: msg})
	}
}

func (c *Connection) deliver(in Inbound) {
	select {
	case c.inbox <- in:
	default:
		log.Warning("ble: dropping inbound message, inbox full")
	}
}
