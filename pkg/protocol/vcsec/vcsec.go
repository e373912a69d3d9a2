// Package vcsec encodes and decodes the unauthenticated body-controller-state
// exchange with the vehicle security controller (VCSEC).
//
// Messages ride inside a RoutableMessage envelope. The request addresses
// DomainVehicleSecurity and carries an empty InformationRequest (GET_STATUS);
// the response carries a FromVCSECMessage whose vehicleStatus submessage holds
// the closure, lock, sleep, and presence fields. The codec works directly on
// the protobuf wire format via protowire, so fields the vehicle omits decode
// to absent rather than to a zero default.
package vcsec

import "google.golang.org/protobuf/encoding/protowire"

// Domain identifies the vehicle subsystem a RoutableMessage is addressed to.
type Domain uint64

const (
	DomainBroadcast       Domain = 0
	DomainVehicleSecurity Domain = 2
	DomainInfotainment    Domain = 3
)

// RoutableMessage field numbers.
const (
	tagToDestination   protowire.Number = 6
	tagFromDestination protowire.Number = 7
	tagPayload         protowire.Number = 10
	tagMessageStatus   protowire.Number = 12
	tagUUID            protowire.Number = 51
	tagFlags           protowire.Number = 52
)

// Destination field numbers.
const (
	tagDomain         protowire.Number = 1
	tagRoutingAddress protowire.Number = 2
)

// UnsignedMessage and InformationRequest field numbers.
const (
	tagInformationRequest protowire.Number = 1
)

// FromVCSECMessage field numbers.
const (
	tagVehicleStatus      protowire.Number = 1
	tagCommandStatus      protowire.Number = 4
	tagWhitelistInfo      protowire.Number = 16
	tagWhitelistEntryInfo protowire.Number = 17
)

// VehicleStatus field numbers.
const (
	tagClosureStatuses    protowire.Number = 1
	tagVehicleLockState   protowire.Number = 2
	tagVehicleSleepStatus protowire.Number = 3
	tagUserPresence       protowire.Number = 4
)

// ClosureStatuses field numbers.
const (
	tagFrontDriverDoor    protowire.Number = 1
	tagFrontPassengerDoor protowire.Number = 2
	tagRearDriverDoor     protowire.Number = 3
	tagRearPassengerDoor  protowire.Number = 4
	tagRearTrunk          protowire.Number = 5
	tagFrontTrunk         protowire.Number = 6
	tagChargePort         protowire.Number = 7
	tagTonneau            protowire.Number = 8
)

// MessageStatus field numbers.
const (
	tagOperationStatus    protowire.Number = 1
	tagSignedMessageFault protowire.Number = 2
)

const operationStatusError = 2

// routingAddressLen is the length of the random per-request routing address
// and request UUID.
const routingAddressLen = 16

// requestFlags is the flag word the vehicle expects on unauthenticated
// information requests.
const requestFlags = 2

// ClosureState is the resolved state of a door, trunk, or charge port.
type ClosureState int32

const (
	ClosureUnknown ClosureState = iota
	ClosureOpen
	ClosureClosed
)

func (s ClosureState) String() string {
	switch s {
	case ClosureOpen:
		return "OPEN"
	case ClosureClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// LockState is the resolved central locking state.
type LockState int32

const (
	LockUnknown LockState = iota
	LockUnlocked
	LockLocked
	LockInternalLocked
)

func (s LockState) String() string {
	switch s {
	case LockUnlocked:
		return "UNLOCKED"
	case LockLocked:
		return "LOCKED"
	case LockInternalLocked:
		return "INTERNAL_LOCKED"
	default:
		return "UNKNOWN"
	}
}

// SleepStatus reports whether the infotainment system is awake.
type SleepStatus int32

const (
	SleepUnknown SleepStatus = iota
	SleepAwake
	SleepAsleep
)

func (s SleepStatus) String() string {
	switch s {
	case SleepAwake:
		return "AWAKE"
	case SleepAsleep:
		return "ASLEEP"
	default:
		return "UNKNOWN"
	}
}

// UserPresence reports whether the vehicle believes a user is nearby.
type UserPresence int32

const (
	PresenceUnknown UserPresence = iota
	PresenceNotPresent
	PresencePresent
)

func (s UserPresence) String() string {
	switch s {
	case PresenceNotPresent:
		return "NOT_PRESENT"
	case PresencePresent:
		return "PRESENT"
	default:
		return "UNKNOWN"
	}
}

// StateSnapshot is one decoded body-controller-state response. Every field is
// independently optional: nil means the vehicle did not report that field in
// this response, which is distinct from reporting an unknown value. Snapshots
// are ephemeral; they exist only to be folded into a longer-lived state by the
// session's merge step.
type StateSnapshot struct {
	FrontDriverDoor    *ClosureState
	FrontPassengerDoor *ClosureState
	RearDriverDoor     *ClosureState
	RearPassengerDoor  *ClosureState
	FrontTrunk         *ClosureState
	RearTrunk          *ClosureState
	ChargePort         *ClosureState

	LockState    *LockState
	SleepStatus  *SleepStatus
	UserPresence *UserPresence
}

// Empty reports whether the snapshot carries no observations at all.
func (s *StateSnapshot) Empty() bool {
	return s.FrontDriverDoor == nil && s.FrontPassengerDoor == nil &&
		s.RearDriverDoor == nil && s.RearPassengerDoor == nil &&
		s.FrontTrunk == nil && s.RearTrunk == nil && s.ChargePort == nil &&
		s.LockState == nil && s.SleepStatus == nil && s.UserPresence == nil
}
