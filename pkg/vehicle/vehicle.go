// Package vehicle maintains one body controller session: it drives status
// requests over an established BLE connection and accumulates the responses
// into a VehicleState.
package vehicle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/jan21493/tesla-ble-state/internal/log"
	"github.com/jan21493/tesla-ble-state/pkg/connector/ble"
	"github.com/jan21493/tesla-ble-state/pkg/protocol"
	"github.com/jan21493/tesla-ble-state/pkg/protocol/vcsec"
)

// Status describes where a session is in its lifecycle.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusDiscovering
	StatusConnecting
	StatusConnected
	StatusRequesting
	StatusDisconnecting
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusDiscovering:
		return "discovering"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusRequesting:
		return "requesting"
	case StatusDisconnecting:
		return "disconnecting"
	default:
		return "invalid"
	}
}

// Vehicle is a session with one vehicle's body controller.
type Vehicle struct {
	conn *ble.Connection

	status atomic.Int32

	// requestMu enforces a single outstanding request per session.
	requestMu sync.Mutex

	stateMu sync.Mutex
	state   *State
}

// Connect discovers the vehicle matching vin and establishes a session with
// an all-unknown state.
func Connect(ctx context.Context, vin string, adapter ble.Adapter) (*Vehicle, error) {
	v := &Vehicle{}

	v.status.Store(int32(StatusDiscovering))
	beacon, err := ble.ScanVehicleBeacon(ctx, vin, adapter)
	if err != nil {
		v.status.Store(int32(StatusDisconnected))
		return nil, err
	}

	v.status.Store(int32(StatusConnecting))
	conn, err := ble.NewConnectionFromBeacon(ctx, vin, beacon, adapter)
	if err != nil {
		v.status.Store(int32(StatusDisconnected))
		return nil, err
	}

	v.conn = conn
	v.state = &State{}
	v.status.Store(int32(StatusConnected))
	log.Info("Connected to %s (%s)", conn.LocalName(), vin)
	return v, nil
}

// NewVehicle wraps an already established connection. Used by callers that
// manage discovery themselves and by tests.
func NewVehicle(conn *ble.Connection) *Vehicle {
	v := &Vehicle{conn: conn, state: &State{}}
	v.status.Store(int32(StatusConnected))
	return v
}

// Status returns the current session state.
func (v *Vehicle) Status() Status {
	return Status(v.status.Load())
}

// VIN returns the VIN this session was opened against.
func (v *Vehicle) VIN() string {
	return v.conn.VIN()
}

// LocalName returns the advertisement name of the connected vehicle.
func (v *Vehicle) LocalName() string {
	return v.conn.LocalName()
}

// RSSI returns the signal strength observed when the vehicle was discovered.
func (v *Vehicle) RSSI() int16 {
	return v.conn.RSSI()
}

// BlockLength returns the negotiated BLE write size.
func (v *Vehicle) BlockLength() int {
	return v.conn.BlockLength()
}

// State returns the accumulated body controller state, or nil before the
// first successful request or after Disconnect.
func (v *Vehicle) State() *State {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()
	return v.state
}

// BodyControllerState sends one status request and folds the response into
// the session state, which it returns. A request already in flight fails
// with ErrBusy. Framing, decode, and timeout errors leave the accumulated
// state untouched and the session usable.
func (v *Vehicle) BodyControllerState(ctx context.Context) (*State, error) {
	if !v.requestMu.TryLock() {
		return nil, protocol.ErrBusy
	}
	defer v.requestMu.Unlock()

	v.status.Store(int32(StatusRequesting))
	// A concurrent Disconnect wins: only restore Connected if the session is
	// still in Requesting once the request finishes.
	defer v.status.CompareAndSwap(int32(StatusRequesting), int32(StatusConnected))

	request, err := vcsec.EncodeStateRequest()
	if err != nil {
		return nil, err
	}

	// Responses to an abandoned earlier request must not be taken for this
	// one.
	v.drainInbox()

	if err := v.conn.Send(ctx, request); err != nil {
		return nil, err
	}

	snapshot, err := v.awaitSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	v.stateMu.Lock()
	defer v.stateMu.Unlock()
	if v.state == nil {
		return nil, protocol.ErrConnectionLost
	}
	changes := MergeSnapshot(v.state, snapshot)
	for _, change := range changes {
		log.Debug("%s: %s -> %s", change.Field, change.Old, change.New)
	}
	return v.state, nil
}

func (v *Vehicle) awaitSnapshot(ctx context.Context) (*vcsec.StateSnapshot, error) {
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, protocol.ErrResponseTimeout
			}
			return nil, ctx.Err()
		case <-v.conn.Done():
			return nil, protocol.ErrConnectionLost
		case in := <-v.conn.Receive():
			if in.Err != nil {
				return nil, in.Err
			}
			snapshot, err := vcsec.DecodeStateResponse(in.Message)
			if err != nil {
				return nil, err
			}
			// Unsolicited notifications without status fields are
			// dropped; the request stays outstanding.
			if snapshot.Empty() {
				log.Debug("Ignoring response without status fields")
				continue
			}
			return snapshot, nil
		}
	}
}

func (v *Vehicle) drainInbox() {
	for {
		select {
		case in := <-v.conn.Receive():
			log.Debug("Discarding stale inbound message (%d bytes)", len(in.Message))
		default:
			return
		}
	}
}

// Disconnect tears down the BLE link and invalidates the accumulated state.
// It is safe to call from any session state and more than once.
func (v *Vehicle) Disconnect() {
	v.status.Store(int32(StatusDisconnecting))
	v.conn.Close()
	v.stateMu.Lock()
	v.state = nil
	v.stateMu.Unlock()
	v.status.Store(int32(StatusDisconnected))
}
