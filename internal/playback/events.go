package playback

import (
	"sync"
	"time"

	"github.com/ayahplayer/ayah/internal/ayah"
)

// Event is emitted by the orchestrator to its subscribers.
type Event interface {
	event()
}

// VerseChanged is emitted when a new verse starts playing.
type VerseChanged struct {
	Verse      ayah.Verse
	Selection  ayah.Selection
	AutoScroll bool // the UI should bring the verse into view
}

// StateChanged is emitted on every state transition.
type StateChanged struct {
	State State
	Prev  State
}

// Failed reports a recoverable error: a resolution failure, a rejected
// playback start or a clip that could not be loaded.
type Failed struct {
	Verse ayah.Verse
	Err   error
}

// TimeUpdate carries the position of the current clip, for display only.
type TimeUpdate struct {
	Verse    ayah.Verse
	Position time.Duration
	Duration time.Duration
}

// OptionsChanged is emitted when speed, repeat mode, markers, continuity,
// auto-scroll or the selection change.
type OptionsChanged struct {
	Status Status
}

func (VerseChanged) event()   {}
func (StateChanged) event()   {}
func (Failed) event()         {}
func (TimeUpdate) event()     {}
func (OptionsChanged) event() {}

// listeners is the subscriber list. Handlers are called synchronously on
// the emitting goroutine and must not block.
type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Event)
}

func (l *listeners) add(fn func(Event)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(Event))
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

func (l *listeners) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	l.mu.Lock()
	fns := make([]func(Event), 0, len(l.fns))
	for i := 0; i < l.next; i++ {
		if fn, ok := l.fns[i]; ok {
			fns = append(fns, fn)
		}
	}
	l.mu.Unlock()

	for _, e := range events {
		for _, fn := range fns {
			fn(e)
		}
	}
}
