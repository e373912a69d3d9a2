package vehicle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/jan21493/tesla-ble-state/pkg/connector/ble"
	"github.com/jan21493/tesla-ble-state/pkg/protocol"
)

const (
	testVIN       = "5YJ30000000000000"
	testLocalName = "S02227a10fa58b737C"
	testMTU       = 150
)

// harness fakes the BLE stack below the connector interfaces. Each queued
// response is a list of raw notification chunks replayed after a complete
// request has been written.
type harness struct {
	service *fakeService
	writer  *fakeWriter
	conn    *ble.Connection
}

func newHarness(t *testing.T) (*Vehicle, *harness) {
	t.Helper()
	h := &harness{}
	h.writer = &fakeWriter{}
	h.service = &fakeService{writer: h.writer}
	adapter := &fakeAdapter{device: &fakeDevice{service: h.service}}

	beacon := &ble.Beacon{
		Address:     "aa:bb:cc:dd:ee:ff",
		LocalName:   testLocalName,
		RSSI:        -65,
		Connectable: true,
	}
	conn, err := ble.NewConnectionFromBeacon(context.Background(), testVIN, beacon, adapter)
	require.NoError(t, err)
	h.conn = conn
	h.writer.onRequest = func() {
		chunks, ok := h.service.pop()
		if !ok {
			return
		}
		go func() {
			for _, chunk := range chunks {
				h.service.notify(chunk)
			}
		}()
	}
	return NewVehicle(conn), h
}

// queue registers the chunks replayed in response to the next request.
func (h *harness) queue(messages ...[]byte) {
	var chunks [][]byte
	for _, msg := range messages {
		split, err := ble.SplitMessage(msg, h.conn.BlockLength())
		if err != nil {
			panic(err)
		}
		chunks = append(chunks, split...)
	}
	h.service.push(chunks)
}

func (h *harness) queueChunks(chunks [][]byte) {
	h.service.push(chunks)
}

type fakeAdapter struct {
	device *fakeDevice
}

func (a *fakeAdapter) ScanBeacon(ctx context.Context, name string) (*ble.Beacon, error) {
	return nil, protocol.ErrDeviceNotFound
}

func (a *fakeAdapter) Connect(ctx context.Context, beacon *ble.Beacon) (ble.Device, error) {
	return a.device, nil
}

func (a *fakeAdapter) Close() error { return nil }

type fakeDevice struct {
	service *fakeService
	closed  bool
}

func (d *fakeDevice) Service(ctx context.Context, uuid string) (ble.Service, error) {
	return d.service, nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

type fakeService struct {
	writer *fakeWriter
	notify func(p []byte)

	mu        sync.Mutex
	responses [][][]byte
}

func (s *fakeService) Rx(uuid string, callback func(p []byte)) error {
	s.notify = callback
	return nil
}

func (s *fakeService) Tx(uuid string) (ble.Writer, error) {
	return s.writer, nil
}

func (s *fakeService) push(chunks [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, chunks)
}

func (s *fakeService) pop() ([][]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.responses) == 0 {
		return nil, false
	}
	chunks := s.responses[0]
	s.responses = s.responses[1:]
	return chunks, true
}

type fakeWriter struct {
	onRequest func()
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	if len(p) > 0 && p[0]&0x80 != 0 && w.onRequest != nil {
		w.onRequest()
	}
	return len(p), nil
}

func (w *fakeWriter) MTU(rxMTU int) (int, error) {
	return testMTU, nil
}

// Wire-format response builders. Field numbers follow the vehicle's
// RoutableMessage/FromVCSECMessage/VehicleStatus layout.

func appendSub(b []byte, num protowire.Number, sub []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, sub)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func envelope(payload []byte) []byte {
	from := appendVarint(nil, 1, 2) // Destination{domain: DOMAIN_VEHICLE_SECURITY}
	msg := appendSub(nil, 7, from)  // from_destination
	return appendSub(msg, 10, payload)
}

func statusResponse(closures map[protowire.Number]uint64, lockState, sleepStatus, userPresence uint64) []byte {
	var closureMsg []byte
	for num := protowire.Number(1); num <= 7; num++ {
		if v, ok := closures[num]; ok {
			closureMsg = appendVarint(closureMsg, num, v)
		}
	}
	var status []byte
	if closureMsg != nil {
		status = appendSub(status, 1, closureMsg)
	}
	if lockState != 0xff {
		status = appendVarint(status, 2, lockState)
	}
	if sleepStatus != 0xff {
		status = appendVarint(status, 3, sleepStatus)
	}
	if userPresence != 0xff {
		status = appendVarint(status, 4, userPresence)
	}
	return envelope(appendSub(nil, 1, status))
}

func allClosedLockedResponse() []byte {
	closures := map[protowire.Number]uint64{1: 2, 2: 2, 3: 2, 4: 2, 5: 2, 6: 2, 7: 2}
	return statusResponse(closures, 1, 1, 1)
}

func TestBodyControllerStateMergesAcrossPolls(t *testing.T) {
	car, h := newHarness(t)
	defer car.Disconnect()

	h.queue(allClosedLockedResponse())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	state, err := car.BodyControllerState(ctx)
	require.NoError(t, err)
	assert.True(t, state.AllDoorsClosed())
	assert.True(t, state.IsLocked())
	assert.Equal(t, StatusConnected, car.Status())

	// Second poll reports only the front trunk opening; everything else is
	// retained from the first poll.
	h.queue(statusResponse(map[protowire.Number]uint64{6: 1}, 0xff, 0xff, 0xff))
	state, err = car.BodyControllerState(ctx)
	require.NoError(t, err)
	assert.False(t, state.AllDoorsClosed())
	assert.Equal(t, []string{"front trunk"}, state.OpenDoors())
	assert.True(t, state.IsLocked(), "lock state must survive a response that omits it")
}

func TestBodyControllerStateBadFrameThenRecovery(t *testing.T) {
	car, h := newHarness(t)
	defer car.Disconnect()

	chunks, err := ble.SplitMessage(allClosedLockedResponse(), 20)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	// An out-of-sequence chunk followed by a full retransmission. The first
	// poll observes the framing error; the retransmitted message is stale by
	// the time the second poll starts and must be discarded.
	h.queueChunks(append([][]byte{chunks[1]}, chunks...))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = car.BodyControllerState(ctx)
	require.ErrorIs(t, err, protocol.ErrBadFrame)
	assert.Equal(t, StatusConnected, car.Status())

	h.queue(allClosedLockedResponse())
	state, err := car.BodyControllerState(ctx)
	require.NoError(t, err)
	assert.True(t, state.AllDoorsClosed())
}

func TestBodyControllerStateMalformedResponseLeavesStateUntouched(t *testing.T) {
	car, h := newHarness(t)
	defer car.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	h.queue(allClosedLockedResponse())
	_, err := car.BodyControllerState(ctx)
	require.NoError(t, err)
	before := *car.State()

	h.queue([]byte{0xff, 0xff, 0xff})
	_, err = car.BodyControllerState(ctx)
	require.ErrorIs(t, err, protocol.ErrMalformedResponse)
	assert.Equal(t, before, *car.State())
	assert.Equal(t, StatusConnected, car.Status())
}

func TestBodyControllerStateUnexpectedCommand(t *testing.T) {
	car, h := newHarness(t)
	defer car.Disconnect()

	// Whitelist information, not a status response.
	h.queue(envelope(appendSub(nil, 16, appendVarint(nil, 1, 3))))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := car.BodyControllerState(ctx)
	require.ErrorIs(t, err, protocol.ErrUnexpectedCommand)
}

func TestBodyControllerStateSkipsEmptyNotification(t *testing.T) {
	car, h := newHarness(t)
	defer car.Disconnect()

	// An unsolicited notification with no status fields precedes the answer.
	h.queue(envelope(appendSub(nil, 1, nil)), allClosedLockedResponse())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	state, err := car.BodyControllerState(ctx)
	require.NoError(t, err)
	assert.True(t, state.AllDoorsClosed())
}

func TestBodyControllerStateTimeout(t *testing.T) {
	car, _ := newHarness(t)
	defer car.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := car.BodyControllerState(ctx)
	require.ErrorIs(t, err, protocol.ErrResponseTimeout)
	assert.True(t, protocol.Temporary(err))
	assert.Equal(t, StatusConnected, car.Status())
}

func TestBodyControllerStateBusy(t *testing.T) {
	car, _ := newHarness(t)
	defer car.Disconnect()

	require.True(t, car.requestMu.TryLock())
	defer car.requestMu.Unlock()

	_, err := car.BodyControllerState(context.Background())
	require.ErrorIs(t, err, protocol.ErrBusy)
}

func TestBodyControllerStateConnectionLost(t *testing.T) {
	car, h := newHarness(t)

	h.writer.onRequest = func() {
		h.conn.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := car.BodyControllerState(ctx)
	require.ErrorIs(t, err, protocol.ErrConnectionLost)
}

func TestDisconnectDuringRequest(t *testing.T) {
	car, _ := newHarness(t)

	// No response queued, so the request stays blocked until Disconnect
	// tears the connection down underneath it.
	errs := make(chan error, 1)
	go func() {
		_, err := car.BodyControllerState(context.Background())
		errs <- err
	}()
	require.Eventually(t, func() bool {
		return car.Status() == StatusRequesting
	}, time.Second, time.Millisecond)

	car.Disconnect()
	require.ErrorIs(t, <-errs, protocol.ErrConnectionLost)
	assert.Equal(t, StatusDisconnected, car.Status())
}

func TestDisconnectInvalidatesState(t *testing.T) {
	car, h := newHarness(t)

	h.queue(allClosedLockedResponse())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := car.BodyControllerState(ctx)
	require.NoError(t, err)
	require.NotNil(t, car.State())

	car.Disconnect()
	assert.Nil(t, car.State())
	assert.Equal(t, StatusDisconnected, car.Status())

	// Safe to call again.
	car.Disconnect()
}

func TestVehicleAccessors(t *testing.T) {
	car, _ := newHarness(t)
	defer car.Disconnect()

	assert.Equal(t, testVIN, car.VIN())
	assert.Equal(t, testLocalName, car.LocalName())
	assert.Equal(t, int16(-65), car.RSSI())
	assert.Equal(t, testMTU-3, car.BlockLength())
	assert.Equal(t, StatusConnected, car.Status())
}
