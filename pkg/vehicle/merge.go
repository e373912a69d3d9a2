package vehicle

import "github.com/jan21493/tesla-ble-state/pkg/protocol/vcsec"

// Change records a single field transition produced by a merge.
type Change struct {
	Field string
	Old   string
	New   string
}

// MergeSnapshot folds a decoded snapshot into the accumulated state. Fields
// absent from the snapshot keep their previous value. The returned changes
// cover only fields whose value actually moved.
func MergeSnapshot(state *State, snapshot *vcsec.StateSnapshot) []Change {
	var changes []Change

	mergeClosure := func(field string, dst *vcsec.ClosureState, src *vcsec.ClosureState) {
		if src == nil || *dst == *src {
			return
		}
		changes = append(changes, Change{Field: field, Old: dst.String(), New: src.String()})
		*dst = *src
	}

	mergeClosure("front driver door", &state.FrontDriverDoor, snapshot.FrontDriverDoor)
	mergeClosure("front passenger door", &state.FrontPassengerDoor, snapshot.FrontPassengerDoor)
	mergeClosure("rear driver door", &state.RearDriverDoor, snapshot.RearDriverDoor)
	mergeClosure("rear passenger door", &state.RearPassengerDoor, snapshot.RearPassengerDoor)
	mergeClosure("front trunk", &state.FrontTrunk, snapshot.FrontTrunk)
	mergeClosure("rear trunk", &state.RearTrunk, snapshot.RearTrunk)
	mergeClosure("charge port", &state.ChargePort, snapshot.ChargePort)

	if snapshot.LockState != nil && state.LockState != *snapshot.LockState {
		changes = append(changes, Change{Field: "lock state", Old: state.LockState.String(), New: snapshot.LockState.String()})
		state.LockState = *snapshot.LockState
	}
	if snapshot.SleepStatus != nil && state.SleepStatus != *snapshot.SleepStatus {
		changes = append(changes, Change{Field: "sleep status", Old: state.SleepStatus.String(), New: snapshot.SleepStatus.String()})
		state.SleepStatus = *snapshot.SleepStatus
	}
	if snapshot.UserPresence != nil && state.UserPresence != *snapshot.UserPresence {
		changes = append(changes, Change{Field: "user presence", Old: state.UserPresence.String(), New: snapshot.UserPresence.String()})
		state.UserPresence = *snapshot.UserPresence
	}

	return changes
}

// Diff lists the field transitions from prev to s. Used by callers that
// watch for changes across polls.
func (s *State) Diff(prev *State) []Change {
	var changes []Change

	oldClosures := prev.closures()
	for i, closure := range s.closures() {
		if *closure.state != *oldClosures[i].state {
			changes = append(changes, Change{Field: closure.name, Old: oldClosures[i].state.String(), New: closure.state.String()})
		}
	}
	if s.LockState != prev.LockState {
		changes = append(changes, Change{Field: "lock state", Old: prev.LockState.String(), New: s.LockState.String()})
	}
	if s.SleepStatus != prev.SleepStatus {
		changes = append(changes, Change{Field: "sleep status", Old: prev.SleepStatus.String(), New: s.SleepStatus.String()})
	}
	if s.UserPresence != prev.UserPresence {
		changes = append(changes, Change{Field: "user presence", Old: prev.UserPresence.String(), New: s.UserPresence.String()})
	}
	return changes
}
