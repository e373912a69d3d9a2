package vcsec

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/jan21493/tesla-ble-state/pkg/protocol"
)

// wireField is one scanned protobuf field. Exactly one of varint/bytes is
// meaningful, depending on typ.
type wireField struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

// scanFields walks every top-level field of a wire-format message. Unknown
// field numbers are passed through to visit so callers can ignore them;
// malformed input returns an error.
func scanFields(b []byte, visit func(f wireField) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := wireField{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.varint = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.bytes = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		if err := visit(f); err != nil {
			return err
		}
	}
	return nil
}

// DecodeStateResponse parses a reassembled response into a StateSnapshot.
// It fails with protocol.ErrMalformedResponse when the bytes do not parse as
// a RoutableMessage carrying a VCSEC payload, and protocol.ErrUnexpectedCommand
// when the message is well formed but does not answer a body-controller-state
// request (wrong source domain, a reported message fault, or a payload other
// than vehicleStatus). Fields the vehicle omitted stay nil in the snapshot.
func DecodeStateResponse(data []byte) (*StateSnapshot, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty response", protocol.ErrMalformedResponse)
	}

	var payload []byte
	fromDomain := DomainBroadcast
	haveFromDomain := false
	var fault uint64
	var opStatus uint64

	err := scanFields(data, func(f wireField) error {
		switch f.num {
		case tagFromDestination:
			if f.typ != protowire.BytesType {
				return fmt.Errorf("%w: from_destination is not a message", protocol.ErrMalformedResponse)
			}
			return scanFields(f.bytes, func(d wireField) error {
				if d.num == tagDomain && d.typ == protowire.VarintType {
					fromDomain = Domain(d.varint)
					haveFromDomain = true
				}
				return nil
			})
		case tagPayload:
			if f.typ != protowire.BytesType {
				return fmt.Errorf("%w: payload is not length-delimited", protocol.ErrMalformedResponse)
			}
			payload = f.bytes
		case tagMessageStatus:
			if f.typ != protowire.BytesType {
				return nil
			}
			return scanFields(f.bytes, func(s wireField) error {
				switch s.num {
				case tagOperationStatus:
					opStatus = s.varint
				case tagSignedMessageFault:
					fault = s.varint
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, wrapMalformed(err)
	}

	if opStatus == operationStatusError || fault != 0 {
		return nil, fmt.Errorf("%w: vehicle reported message fault %d", protocol.ErrUnexpectedCommand, fault)
	}
	if haveFromDomain && fromDomain != DomainVehicleSecurity {
		return nil, fmt.Errorf("%w: response from domain %d", protocol.ErrUnexpectedCommand, fromDomain)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: response carries no payload", protocol.ErrMalformedResponse)
	}
	return decodeFromVCSEC(payload)
}

// decodeFromVCSEC extracts the vehicleStatus submessage from a
// FromVCSECMessage payload.
func decodeFromVCSEC(payload []byte) (*StateSnapshot, error) {
	var status []byte
	var otherCommand protowire.Number

	err := scanFields(payload, func(f wireField) error {
		switch f.num {
		case tagVehicleStatus:
			if f.typ != protowire.BytesType {
				return fmt.Errorf("%w: vehicleStatus is not a message", protocol.ErrMalformedResponse)
			}
			status = f.bytes
		case tagCommandStatus, tagWhitelistInfo, tagWhitelistEntryInfo:
			otherCommand = f.num
		}
		return nil
	})
	if err != nil {
		return nil, wrapMalformed(err)
	}
	if status == nil {
		if otherCommand != 0 {
			return nil, fmt.Errorf("%w: payload answers field %d, not vehicleStatus", protocol.ErrUnexpectedCommand, otherCommand)
		}
		return nil, fmt.Errorf("%w: payload carries no vehicleStatus", protocol.ErrUnexpectedCommand)
	}
	return decodeVehicleStatus(status)
}

func decodeVehicleStatus(status []byte) (*StateSnapshot, error) {
	snap := &StateSnapshot{}

	err := scanFields(status, func(f wireField) error {
		switch f.num {
		case tagClosureStatuses:
			if f.typ != protowire.BytesType {
				return fmt.Errorf("%w: closureStatuses is not a message", protocol.ErrMalformedResponse)
			}
			return decodeClosures(f.bytes, snap)
		case tagVehicleLockState:
			if f.typ == protowire.VarintType {
				snap.LockState = lockStateFromWire(f.varint)
			}
		case tagVehicleSleepStatus:
			if f.typ == protowire.VarintType {
				snap.SleepStatus = sleepStatusFromWire(f.varint)
			}
		case tagUserPresence:
			if f.typ == protowire.VarintType {
				snap.UserPresence = userPresenceFromWire(f.varint)
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapMalformed(err)
	}
	return snap, nil
}

func decodeClosures(closures []byte, snap *StateSnapshot) error {
	return scanFields(closures, func(f wireField) error {
		if f.typ != protowire.VarintType {
			return nil
		}
		state := closureStateFromWire(f.varint)
		switch f.num {
		case tagFrontDriverDoor:
			snap.FrontDriverDoor = state
		case tagFrontPassengerDoor:
			snap.FrontPassengerDoor = state
		case tagRearDriverDoor:
			snap.RearDriverDoor = state
		case tagRearPassengerDoor:
			snap.RearPassengerDoor = state
		case tagRearTrunk:
			snap.RearTrunk = state
		case tagFrontTrunk:
			snap.FrontTrunk = state
		case tagChargePort:
			snap.ChargePort = state
		case tagTonneau:
			// Cybertruck only; not part of the tracked closure set.
		}
		return nil
	})
}

// Wire enum values observed on the vehicle differ from the published proto:
// closures arrive as 1=OPEN and 2=CLOSED, with 3..6 covering ajar, failed
// unlatch, and in-motion states. Anything not fully closed counts as OPEN;
// values outside the known range decode to absent rather than a guess.
func closureStateFromWire(v uint64) *ClosureState {
	var s ClosureState
	switch v {
	case 1, 3, 4, 5, 6:
		s = ClosureOpen
	case 2:
		s = ClosureClosed
	default:
		return nil
	}
	return &s
}

// Lock wire values: 0=UNLOCKED, 1=LOCKED, 2=INTERNAL_LOCKED,
// 3=SELECTIVE_UNLOCKED. Selective unlock leaves part of the vehicle open, so
// it maps to UNLOCKED.
func lockStateFromWire(v uint64) *LockState {
	var s LockState
	switch v {
	case 0, 3:
		s = LockUnlocked
	case 1:
		s = LockLocked
	case 2:
		s = LockInternalLocked
	default:
		return nil
	}
	return &s
}

func sleepStatusFromWire(v uint64) *SleepStatus {
	var s SleepStatus
	switch v {
	case 1:
		s = SleepAwake
	case 2:
		s = SleepAsleep
	default:
		return nil
	}
	return &s
}

func userPresenceFromWire(v uint64) *UserPresence {
	var s UserPresence
	switch v {
	case 1:
		s = PresenceNotPresent
	case 2:
		s = PresencePresent
	default:
		return nil
	}
	return &s
}

// wrapMalformed tags raw protowire parse errors with the protocol sentinel,
// leaving errors that already carry one untouched.
func wrapMalformed(err error) error {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return err
	}
	return fmt.Errorf("%w: %v", protocol.ErrMalformedResponse, err)
}
