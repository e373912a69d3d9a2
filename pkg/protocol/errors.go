// Package protocol defines the error taxonomy shared by the BLE connector,
// the VCSEC wire codec, and the vehicle session layer.
package protocol

import "errors"

// Error is a protocol-level error. The two flags drive caller retry policy:
// possibleSuccess means the vehicle may have acted on the request even though
// the client never saw a well-formed response, and temporary means the same
// call may succeed if repeated.
type Error struct {
	message         string
	possibleSuccess bool
	temporary       bool
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) MayHaveSucceeded() bool {
	return e.possibleSuccess
}

func (e *Error) Temporary() bool {
	return e.temporary
}

// NewError creates a protocol error. Exported so adapter implementations
// outside this module can participate in the same retry policy.
func NewError(message string, possibleSuccess, temporary bool) *Error {
	return &Error{message: message, possibleSuccess: possibleSuccess, temporary: temporary}
}

var (
	// ErrInvalidVIN indicates the VIN is not exactly 17 characters. Local
	// check, never retried.
	ErrInvalidVIN = NewError("vin must be exactly 17 characters", false, false)

	// ErrDeviceNotFound indicates the scan window closed without seeing an
	// advertisement with the derived local name. Retry with backoff.
	ErrDeviceNotFound = NewError("no vehicle advertisement found within the scan window", false, true)

	// ErrMaxConnectionsExceeded indicates the vehicle advertised as
	// non-connectable, meaning it is already serving its maximum number of
	// BLE centrals.
	ErrMaxConnectionsExceeded = NewError("the vehicle is already connected to the maximum number of BLE devices", false, false)

	// ErrConnectionFailed indicates link establishment failed. Fatal to the
	// current connection attempt.
	ErrConnectionFailed = NewError("failed to establish BLE connection", false, true)

	// ErrConnectionLost indicates the link dropped mid-session. The session
	// is unusable; the caller must reconnect.
	ErrConnectionLost = NewError("BLE connection lost", true, false)

	// ErrBusy indicates a request was issued while another was outstanding
	// on the same session. Caller bug; requests are not queued.
	ErrBusy = NewError("a request is already in flight on this session", false, true)

	// ErrBadFrame indicates a malformed, duplicated, or out-of-sequence
	// chunk. The in-flight request fails; the session remains usable.
	ErrBadFrame = NewError("malformed chunk sequence", false, true)

	// ErrResponseTimeout indicates the response never completed within the
	// request deadline. The request may still have reached the vehicle.
	ErrResponseTimeout = NewError("timed out waiting for vehicle response", true, true)

	// ErrMalformedResponse indicates the reassembled bytes do not parse as a
	// message of the expected shape.
	ErrMalformedResponse = NewError("response is not a well-formed message", true, true)

	// ErrUnexpectedCommand indicates a well-formed response that answers a
	// different command than was requested.
	ErrUnexpectedCommand = NewError("response answers a different command", true, true)
)

// MayHaveSucceeded reports whether err leaves open the possibility that the
// vehicle received and acted on the request.
func MayHaveSucceeded(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.MayHaveSucceeded()
	}
	return false
}

// Temporary reports whether retrying the failed call is reasonable.
func Temporary(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Temporary()
	}
	return false
}
