package playback

import (
	"time"

	"github.com/ayahplayer/ayah/internal/ayah"
)

// State is the orchestrator's session state.
type State int

const (
	// StateIdle indicates no verse is chosen.
	StateIdle State = iota
	// StateResolving indicates a verse URL lookup is in flight.
	StateResolving
	// StatePlaying indicates audio is playing.
	StatePlaying
	// StatePaused indicates playback is paused on the current verse.
	StatePaused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the session.
type Status struct {
	State      State
	Chapter    int
	Verse      ayah.Verse // last verse that started playing
	Requested  ayah.Verse // verse being resolved, if any
	Selection  ayah.Selection
	Speed      float64
	Repeat     ayah.RepeatMode
	Markers    ayah.Markers
	Continuity bool
	AutoScroll bool
	Position   time.Duration
	Duration   time.Duration
	LastError  error
}

// IsActive returns true if a verse is loaded.
func (s Status) IsActive() bool {
	return s.State == StatePlaying || s.State == StatePaused
}

// Progress returns the position as a fraction of the duration.
func (s Status) Progress() float64 {
	if s.Duration <= 0 {
		return 0
	}
	p := float64(s.Position) / float64(s.Duration)
	if p > 1 {
		return 1
	}
	return p
}
