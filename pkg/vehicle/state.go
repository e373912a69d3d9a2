package vehicle

import "github.com/jan21493/tesla-ble-state/pkg/protocol/vcsec"

// State accumulates body controller observations across polls. Fields start
// at their Unknown zero value and only move when a response carries the
// corresponding field.
type State struct {
	FrontDriverDoor    vcsec.ClosureState
	FrontPassengerDoor vcsec.ClosureState
	RearDriverDoor     vcsec.ClosureState
	RearPassengerDoor  vcsec.ClosureState
	FrontTrunk         vcsec.ClosureState
	RearTrunk          vcsec.ClosureState
	ChargePort         vcsec.ClosureState

	LockState    vcsec.LockState
	SleepStatus  vcsec.SleepStatus
	UserPresence vcsec.UserPresence
}

func (s *State) closures() []closureField {
	return []closureField{
		{"front driver door", &s.FrontDriverDoor},
		{"front passenger door", &s.FrontPassengerDoor},
		{"rear driver door", &s.RearDriverDoor},
		{"rear passenger door", &s.RearPassengerDoor},
		{"front trunk", &s.FrontTrunk},
		{"rear trunk", &s.RearTrunk},
		{"charge port", &s.ChargePort},
	}
}

type closureField struct {
	name  string
	state *vcsec.ClosureState
}

// AllDoorsClosed reports whether every tracked closure has been observed
// closed. A closure still at Unknown has not been observed, so it does not
// count as closed.
func (s *State) AllDoorsClosed() bool {
	for _, closure := range s.closures() {
		if *closure.state != vcsec.ClosureClosed {
			return false
		}
	}
	return true
}

// AnyDoorsOpen reports whether at least one tracked closure has been
// observed open. Unknown closures do not count as open.
func (s *State) AnyDoorsOpen() bool {
	for _, closure := range s.closures() {
		if *closure.state == vcsec.ClosureOpen {
			return true
		}
	}
	return false
}

// OpenDoors lists the names of closures currently observed open.
func (s *State) OpenDoors() []string {
	var open []string
	for _, closure := range s.closures() {
		if *closure.state == vcsec.ClosureOpen {
			open = append(open, closure.name)
		}
	}
	return open
}

// IsLocked reports whether the vehicle has been observed fully locked.
// Internal lock and selective unlock states do not count as locked.
func (s *State) IsLocked() bool {
	return s.LockState == vcsec.LockLocked
}

// IsAwake reports whether the vehicle has been observed awake.
func (s *State) IsAwake() bool {
	return s.SleepStatus == vcsec.SleepAwake
}
