package playback

import (
	"context"
	"time"
)

const (
	MinSpeed     = 1
	MaxSpeed     = 60
	DefaultSpeed = 30

	// fullReplay is how long a whole replay takes at speed 1.
	fullReplay = 300 * time.Second
)

// TurnCounter is the part of the oracle playback needs.
type TurnCounter interface {
	MaxTurn(ctx context.Context, input, output string) (int, error)
}

// Effect tells the driver what to do with its timer after a transition.
type Effect int

const (
	// EffectNone leaves the timer alone.
	EffectNone Effect = iota
	// EffectSchedule arms (or re-arms) the timer for Interval() with Timer().
	EffectSchedule
	// EffectCancel stops the timer.
	EffectCancel
)

func (e Effect) String() string {
	switch e {
	case EffectSchedule:
		return "schedule"
	case EffectCancel:
		return "cancel"
	default:
		return "none"
	}
}

// TimerID identifies one armed timer. Ticks carrying any other id are stale.
type TimerID uint64

// State is the turn-progression state machine behind the turn slider.
//
// It is Idle or Playing. It never owns a real timer: transitions return an
// Effect and the driver (a bubbletea program, a test) arms or stops its own
// clock and hands ticks back with the TimerID it was given. At most one
// TimerID is live at any time.
//
// State is not safe for concurrent use.
type State struct {
	turn     int
	maxTurn  int
	speed    int
	playing  bool
	timer    TimerID
	interval time.Duration
}

func New() *State {
	return &State{speed: DefaultSpeed}
}

func (s *State) Turn() int { return s.turn }
func (s *State) MaxTurn() int { return s.maxTurn }
func (s *State) Speed() int { return s.speed }
func (s *State) Playing() bool { return s.playing }
func (s *State) Timer() TimerID { return s.timer }
func (s *State) Interval() time.Duration { return s.interval }

// SetCase recomputes the turn bound for a new (input, output) pair and
// rewinds. When the oracle cannot count turns the bound becomes 0. The
// returned error is informational; the state is always consistent.
func (s *State) SetCase(ctx context.Context, counter TurnCounter, input, output string) (Effect, error) {
	effect := s.stop()

	maxTurn, err := counter.MaxTurn(ctx, input, output)
	if err != nil || maxTurn < 0 {
		maxTurn = 0
	}
	s.maxTurn = maxTurn
	s.turn = 0
	return effect, err
}

// SetMaxTurn is SetCase for callers that already know the bound.
func (s *State) SetMaxTurn(maxTurn int) Effect {
	effect := s.stop()
	s.maxTurn = max(maxTurn, 0)
	s.turn = 0
	return effect
}

// Play starts playback from Idle. It refuses when there is nothing to play
// (maxTurn == 0). Starting from the last turn rewinds to turn 0 first.
func (s *State) Play() Effect {
	if s.playing || s.maxTurn <= 0 {
		return EffectNone
	}
	if s.turn >= s.maxTurn {
		s.turn = 0
	}
	s.interval = TickInterval(s.maxTurn, s.speed)
	s.timer++
	s.playing = true
	return EffectSchedule
}

// Pause returns to Idle keeping the current turn.
func (s *State) Pause() Effect {
	if !s.playing {
		return EffectNone
	}
	return s.stop()
}

// Toggle is the play/stop button.
func (s *State) Toggle() Effect {
	if s.playing {
		return s.Pause()
	}
	return s.Play()
}

// Tick advances one turn for the timer identified by id. Ticks from timers
// that were cancelled or replaced are ignored. Reaching the last turn stops
// playback in the same transition, so the final frame is the one rendered
// after this tick.
func (s *State) Tick(id TimerID) Effect {
	if !s.playing || id != s.timer {
		return EffectNone
	}
	s.turn++
	if s.turn >= s.maxTurn {
		s.turn = s.maxTurn
		return s.stop()
	}
	return EffectSchedule
}

// SetSpeed changes the speed multiplier. A running timer keeps its interval
// until the next Play.
func (s *State) SetSpeed(v int) {
	s.speed = min(max(v, MinSpeed), MaxSpeed)
}

// Seek jumps to turn, clamped to [0, maxTurn]. Playback continues unless the
// seek lands on the last turn.
func (s *State) Seek(turn int) Effect {
	s.turn = min(max(turn, 0), s.maxTurn)
	if s.playing && s.turn == s.maxTurn {
		return s.stop()
	}
	return EffectNone
}

// Step seeks relative to the current turn.
func (s *State) Step(delta int) Effect {
	return s.Seek(s.turn + delta)
}

func (s *State) stop() Effect {
	if !s.playing {
		return EffectNone
	}
	s.playing = false
	s.timer++
	return EffectCancel
}

// TickInterval spreads a whole replay over five minutes at speed 1:
// 300000 / maxTurn / speed milliseconds. It is 0 when maxTurn or speed is not
// positive, and callers never arm a timer in that case.
func TickInterval(maxTurn, speed int) time.Duration {
	if maxTurn <= 0 || speed <= 0 {
		return 0
	}
	return time.Duration(float64(fullReplay) / float64(maxTurn) / float64(speed))
}
