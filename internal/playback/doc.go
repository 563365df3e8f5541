// Package playback implements the turn slider's state machine.
//
// A [State] is Idle or Playing. Transitions are plain method calls that
// return an [Effect]; the caller owns the actual clock:
//
//	effect := st.Play()
//	if effect == playback.EffectSchedule {
//		arm(st.Interval(), st.Timer())
//	}
//	// when the clock fires:
//	effect = st.Tick(id)
//
// Playback stops by itself on the last turn. Speed changes take effect on
// the next Play; a running timer is not rescheduled.
package playback
