package audio

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	// MinSpeed and MaxSpeed bound the playback rate.
	MinSpeed = 0.5
	MaxSpeed = 2.0

	// TimeUpdateInterval is how often observers get a time update while
	// playing.
	TimeUpdateInterval = 500 * time.Millisecond
)

var (
	// ErrSpeedOutOfRange is returned for rates outside [MinSpeed, MaxSpeed].
	ErrSpeedOutOfRange = errors.New("speed must be between 0.5 and 2.0")

	// ErrNoSource is returned when an operation needs a loaded clip.
	ErrNoSource = errors.New("no clip loaded")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine is closed")

	// ErrForeignClip is returned when Swap gets a clip another engine prepared.
	ErrForeignClip = errors.New("clip was not prepared by this engine")
)

// Clip is a decoded clip that is ready to play but not playing.
type Clip interface {
	URL() string
	Duration() time.Duration

	// Close releases the decoded data. Closing a clip that was swapped
	// into an engine is a no-op.
	Close() error
}

// Observer receives engine notifications. Callbacks run on engine
// goroutines and must not block.
type Observer interface {
	// OnEnded is called once when a clip plays through to its end. It is
	// not called on pause, on load or when a clip is replaced.
	OnEnded(url string)

	// OnTimeUpdate is called about twice per second while playing. It is
	// for display only.
	OnTimeUpdate(position, duration time.Duration)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Ended      func(url string)
	TimeUpdate func(position, duration time.Duration)
}

// OnEnded implements Observer.
func (o ObserverFuncs) OnEnded(url string) {
	if o.Ended != nil {
		o.Ended(url)
	}
}

// OnTimeUpdate implements Observer.
func (o ObserverFuncs) OnTimeUpdate(position, duration time.Duration) {
	if o.TimeUpdate != nil {
		o.TimeUpdate(position, duration)
	}
}

// Engine is one audio output channel.
type Engine interface {
	// Load makes url the current source. Loading the current url is a
	// no-op; otherwise the old clip is dropped, the position resets to
	// zero and the current speed is applied to the new clip.
	Load(ctx context.Context, url string) error

	// Prepare fetches and decodes url without touching the current clip.
	Prepare(ctx context.Context, url string) (Clip, error)

	// Swap makes a prepared clip current, like Load without fetching.
	Swap(clip Clip) error

	// Play starts or resumes playback. A refusal from the output device
	// is returned as ayah.ErrPlaybackRejected and leaves the engine paused.
	Play() error

	// Pause keeps the position.
	Pause()

	// SetSpeed changes the rate immediately and for every later load.
	SetSpeed(rate float64) error
	Speed() float64

	// SeekTo moves to pos, clamped to [0, Duration()].
	SeekTo(pos time.Duration) error

	Position() time.Duration
	Duration() time.Duration
	IsPlaying() bool

	// Source returns the url of the current clip, or "".
	Source() string

	// Subscribe registers an observer and returns a function removing it.
	Subscribe(o Observer) (unsubscribe func())

	Close() error
}

// SeekFraction seeks e to fraction of the current clip's duration.
func SeekFraction(e Engine, fraction float64) error {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return e.SeekTo(time.Duration(fraction * float64(e.Duration())))
}

// ValidateSpeed checks rate against the supported range.
func ValidateSpeed(rate float64) error {
	if rate < MinSpeed || rate > MaxSpeed {
		return ErrSpeedOutOfRange
	}
	return nil
}

func clampPosition(pos, duration time.Duration) time.Duration {
	if pos < 0 {
		return 0
	}
	if duration > 0 && pos > duration {
		return duration
	}
	return pos
}

// observers is a copy-on-notify observer list shared by the engines.
type observers struct {
	mu   sync.Mutex
	next int
	list map[int]Observer
}

func (o *observers) add(obs Observer) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.list == nil {
		o.list = make(map[int]Observer)
	}
	id := o.next
	o.next++
	o.list[id] = obs

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.list, id)
			o.mu.Unlock()
		})
	}
}

func (o *observers) snapshot() []Observer {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Observer, 0, len(o.list))
	for i := 0; i < o.next; i++ {
		if obs, ok := o.list[i]; ok {
			out = append(out, obs)
		}
	}
	return out
}

func (o *observers) ended(url string) {
	for _, obs := range o.snapshot() {
		obs.OnEnded(url)
	}
}

func (o *observers) timeUpdate(pos, dur time.Duration) {
	for _, obs := range o.snapshot() {
		obs.OnTimeUpdate(pos, dur)
	}
}
