package playback

import "github.com/ayahplayer/ayah/internal/ayah"

// Action is what the orchestrator does after a verse ends.
type Action int

const (
	// ActionStop leaves playback paused on the verse that just ended.
	ActionStop Action = iota
	// ActionPlay plays Decision.Verse.
	ActionPlay
	// ActionRestartWhole starts the chapter over at its first verse.
	ActionRestartWhole
)

func (a Action) String() string {
	switch a {
	case ActionStop:
		return "stop"
	case ActionPlay:
		return "play"
	case ActionRestartWhole:
		return "restart"
	default:
		return "unknown"
	}
}

// Decision is the outcome of Decide. Verse is set for ActionPlay and
// ActionRestartWhole.
type Decision struct {
	Action Action
	Verse  ayah.Verse
}

// PolicyInput is the state Decide works on.
type PolicyInput struct {
	Chapter    *ayah.Chapter
	Current    ayah.Verse
	Mode       ayah.RepeatMode
	Continuity bool
	Markers    ayah.Markers
}

// Decide returns what should happen when in.Current finishes playing. It has
// no side effects and always gives the same answer for the same input.
//
// Rules, first match wins:
//
//  1. single repeat replays the current verse
//  2. range repeat with both markers set plays A once the current verse is
//     at or past B, otherwise the next verse
//  3. the next verse plays when continuity is on or the whole chapter
//     repeats; at the end of the chapter whole repeat restarts it
//
// Anything else stops.
func Decide(in PolicyInput) Decision {
	if in.Chapter.IndexOf(in.Current) < 0 {
		return Decision{Action: ActionStop}
	}

	if in.Mode == ayah.RepeatSingle {
		return play(in.Current)
	}

	next, hasNext := in.Chapter.NextInChapter(in.Current)

	if in.Mode == ayah.RepeatRange && in.Markers.Complete() {
		start, ok := in.Chapter.Verse(in.Markers.A)
		if !ok {
			return Decision{Action: ActionStop}
		}
		if in.Current.InChapter >= in.Markers.B || !hasNext {
			return play(start)
		}
		return play(next)
	}

	if hasNext && (in.Continuity || in.Mode == ayah.RepeatWhole) {
		return play(next)
	}
	if !hasNext && in.Mode == ayah.RepeatWhole {
		first, _ := in.Chapter.First()
		return Decision{Action: ActionRestartWhole, Verse: first}
	}
	return Decision{Action: ActionStop}
}

func play(v ayah.Verse) Decision {
	return Decision{Action: ActionPlay, Verse: v}
}
